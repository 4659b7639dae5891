package plan

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulbrowser/soulbrowser/internal/core"
)

func testRequest(goal string) Request {
	return Request{TaskID: core.NewTaskId(), Goal: goal}
}

func TestNormalizeCustomToolsRewritesAliases(t *testing.T) {
	p := NewAgentPlan(core.NewTaskId(), "alias-test")
	p.Steps = append(p.Steps, NewStep("s1", "Parse", CustomTool("parse", nil)))

	n := NewNormalizer(nil)
	rewrites := n.normalizeCustomTools(&p, newRepairLedger(repairNoteBudget))

	assert.Equal(t, 1, rewrites)
	assert.Equal(t, genericParseCanonical, p.Steps[0].Tool.Name)
	repaired, _ := p.Steps[0].Metadata["repaired"].(bool)
	assert.True(t, repaired)
}

func TestBrowserClickAliasBecomesTypedTool(t *testing.T) {
	p := NewAgentPlan(core.NewTaskId(), "click-alias")
	p.Steps = append(p.Steps, NewStep("s1", "Click", CustomTool("browser.click", map[string]any{
		"selector": "#submit",
	})))

	n := NewNormalizer(nil)
	n.normalizeCustomTools(&p, newRepairLedger(repairNoteBudget))

	require.Equal(t, ToolClick, p.Steps[0].Tool.Kind)
	assert.Equal(t, "#submit", p.Steps[0].Tool.Locator.Css)
}

func TestShimUnsupportedCustomToolBecomesPluginSlug(t *testing.T) {
	p := NewAgentPlan(core.NewTaskId(), "shim-test")
	p.Steps = append(p.Steps, NewStep("s1", "Weird Tool", CustomTool("totally.custom.Thing!", nil)))

	n := NewNormalizer(nil)
	n.shimUnsupportedCustomTools(&p, newRepairLedger(repairNoteBudget))

	assert.Equal(t, "plugin.totally-custom-thing", p.Steps[0].Tool.Name)
}

func TestEnsureWeatherMacroInsertsHeadStep(t *testing.T) {
	p := NewAgentPlan(core.NewTaskId(), "weather")
	p.Steps = append(p.Steps, NewStep("s1", "Navigate", NavigateTool("https://example.com")))
	request := testRequest("北京今天天气怎么样")

	n := NewNormalizer(nil)
	ledger := newRepairLedger(repairNoteBudget)
	context := NewStageContext(request)
	added := n.ensureWeatherMacro(&p, request, context, ledger)

	require.Equal(t, 1, added)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, "weather.search", p.Steps[0].Tool.Name)
}

func TestEnsureClickValidationAddsUrlMatchesValidation(t *testing.T) {
	p := NewAgentPlan(core.NewTaskId(), "click-validation")
	p.Steps = append(p.Steps, NewStep("s1", "Click", ClickTool(CssLocator("#go"))))
	request := testRequest("visit example")
	request.Context.CurrentURL = "https://example.com/page"

	n := NewNormalizer(nil)
	ledger := newRepairLedger(repairNoteBudget)
	n.ensureClickValidations(&p, NewStageContext(request), ledger)

	require.Len(t, p.Steps[0].Validations, 1)
	assert.Equal(t, WaitUrlMatches, p.Steps[0].Validations[0].Condition.Kind)
	pattern := regexp.MustCompile(p.Steps[0].Validations[0].Condition.Operand)
	assert.True(t, pattern.MatchString("https://example.com/page"))
}

func TestEnsureBrowserSearchPayloadBackfill(t *testing.T) {
	p := NewAgentPlan(core.NewTaskId(), "search-backfill")
	p.Steps = append(p.Steps, NewStep("s1", "Search", CustomTool("browser.search", nil)))
	request := testRequest("find the weather forecast")
	request.Intent.TargetSites = []string{"weather.com"}

	n := NewNormalizer(nil)
	ledger := newRepairLedger(repairNoteBudget)
	n.ensureBrowserSearchPayloads(&p, NewStageContext(request), ledger)

	payload := p.Steps[0].Tool.Payload
	assert.Equal(t, "find the weather forecast", payload["query"])
	assert.Equal(t, "weather.com", payload["site"])
}

func TestStructuredOutputPipelineInsertsParseAndDeliver(t *testing.T) {
	p := NewAgentPlan(core.NewTaskId(), "structured-output")
	p.Steps = append(p.Steps, NewStep("obs-1", "Observe", CustomTool(observationCanonical, nil)))
	request := testRequest("summarize the page")
	request.Intent.RequiredOutputs = []RequestedOutput{{Schema: "generic_observation_v1"}}

	n := NewNormalizer(nil)
	ledger := newRepairLedger(repairNoteBudget)
	updates := n.ensureStructuredOutputDeliveries(&p, request, ledger)

	require.Equal(t, 2, updates)
	require.Len(t, p.Steps, 3)
	assert.True(t, isParseStep(p.Steps[1]))
	assert.True(t, isDeliverStep(p.Steps[2]))
	assert.Equal(t, p.Steps[1].ID, p.Steps[2].Tool.Payload["source_step_id"])
}

func TestGithubUsernameFilledFromNavigate(t *testing.T) {
	p := NewAgentPlan(core.NewTaskId(), "github")
	p.Steps = append(p.Steps,
		NewStep("nav-1", "Go to profile", NavigateTool("https://github.com/octocat")),
		NewStep("parse-1", "Parse repo", CustomTool("data.parse.github-repo", map[string]any{})),
	)
	request := testRequest("summarize octocat's repos")

	n := NewNormalizer(nil)
	ledger := newRepairLedger(repairNoteBudget)
	updates := n.ensureGithubRepoUsernames(&p, request, ledger)

	require.Equal(t, 1, updates)
	assert.Equal(t, "octocat", p.Steps[1].Tool.Payload["username"])
}

func TestRemoveEmptyNavigateSteps(t *testing.T) {
	p := NewAgentPlan(core.NewTaskId(), "empty-nav")
	p.Steps = append(p.Steps,
		NewStep("nav-1", "Empty", NavigateTool("")),
		NewStep("nav-2", "Real", NavigateTool("https://example.com")),
	)

	n := NewNormalizer(nil)
	removed := n.removeEmptyNavigateSteps(&p, newRepairLedger(repairNoteBudget))

	assert.Equal(t, 1, removed)
	require.Len(t, p.Steps, 1)
	assert.Equal(t, "nav-2", p.Steps[0].ID)
}

func TestPruneWeatherNavigationRemovesLegacyNavigatesWhenMacroPresent(t *testing.T) {
	p := NewAgentPlan(core.NewTaskId(), "weather-prune")
	p.Steps = append(p.Steps,
		NewStep("weather-1", "Macro", CustomTool("weather.search", nil)),
		NewStep("nav-1", "Legacy nav", NavigateTool("https://www.baidu.com/s?wd=weather")),
	)
	request := testRequest("what's the weather today")

	n := NewNormalizer(nil)
	removed := n.pruneWeatherNavigation(&p, request, newRepairLedger(repairNoteBudget))

	assert.Equal(t, 1, removed)
	require.Len(t, p.Steps, 1)
	assert.Equal(t, "weather-1", p.Steps[0].ID)
}

func TestRetargetWaitToolsAwayFromBlockedEngine(t *testing.T) {
	p := NewAgentPlan(core.NewTaskId(), "retarget")
	p.Steps = append(p.Steps, NewStep("wait-1", "Wait for google results", WaitTool(UrlEqualsWait("https://www.google.com/search?q=weather"))))
	request := testRequest("weather forecast")

	n := NewNormalizer(nil)
	ledger := newRepairLedger(repairNoteBudget)
	n.retargetWaitTools(&p, NewStageContext(request), ledger)

	assert.NotContains(t, p.Steps[0].Tool.Condition.Operand, "google")
	assert.Greater(t, ledger.totalRepairs, 0)
}

func TestAutoFillDeliverSchemaFromPriorParse(t *testing.T) {
	p := NewAgentPlan(core.NewTaskId(), "deliver-schema")
	p.Steps = append(p.Steps,
		NewStep("parse-1", "Parse", CustomTool(genericParseCanonical, map[string]any{"schema": "generic_observation_v1"})),
		NewStep("deliver-1", "Deliver", CustomTool(deliverCanonical, map[string]any{})),
	)

	n := NewNormalizer(nil)
	updates := n.autoFillDeliverSchema(&p, newRepairLedger(repairNoteBudget))

	assert.Equal(t, 1, updates)
	assert.Equal(t, "generic_observation_v1", p.Steps[1].Tool.Payload["schema"])
}

func TestEnsureUserResultStepAppendsNoteForInformationalIntent(t *testing.T) {
	p := NewAgentPlan(core.NewTaskId(), "informational")
	p.Steps = append(p.Steps, NewStep("nav-1", "Navigate", NavigateTool("https://example.com")))
	request := testRequest("tell me what's on this page")
	request.Intent.IntentKind = IntentInformational

	n := NewNormalizer(nil)
	added := n.ensureUserResultStep(&p, request, newRepairLedger(repairNoteBudget))

	require.Equal(t, 1, added)
	assert.True(t, isNoteStep(p.Steps[len(p.Steps)-1]))
}

func TestExecutionTweaksEnforceMinNavTimeoutAndDomReadyWait(t *testing.T) {
	p := NewAgentPlan(core.NewTaskId(), "exec-tweaks")
	nav := NavigateTool("https://example.com")
	nav.Wait = WaitModeIdle
	typeStep := TypeTextTool(CssLocator("#q"), "hello", false)
	p.Steps = append(p.Steps,
		NewStep("nav-1", "Navigate", nav),
		NewStep("type-1", "Type", typeStep),
	)

	n := NewNormalizer(nil)
	n.applyExecutionTweaks(&p)

	require.NotNil(t, p.Steps[0].Tool.TimeoutMs)
	assert.GreaterOrEqual(t, *p.Steps[0].Tool.TimeoutMs, 30000)
	assert.Equal(t, WaitModeDomReady, p.Steps[0].Tool.Wait)
	assert.Equal(t, WaitModeDomReady, p.Steps[1].Tool.Wait)
}

func TestNormalizeEndToEndWeatherScenario(t *testing.T) {
	p := NewAgentPlan(core.NewTaskId(), "e2e-weather")
	p.Steps = append(p.Steps, NewStep("nav-1", "Search google", NavigateTool("https://www.google.com/search?q=weather")))
	request := testRequest("告诉我今天的天气")
	request.Intent.IntentKind = IntentInformational

	n := NewNormalizer(nil)
	report := n.Normalize(&p, request)

	assert.True(t, report.HasRepairs())
	assert.True(t, planHasWeatherMacro(&p))
	assert.True(t, planHasNoteStep(&p))
	assert.Equal(t, true, p.Meta.VendorContext["auto_repaired"])
}

func TestUniqueStepIDAvoidsCollisions(t *testing.T) {
	p := NewAgentPlan(core.NewTaskId(), "unique-id")
	p.Steps = append(p.Steps, NewStep("dup", "One", DoneTool()))

	got := p.UniqueStepID("dup")
	assert.Equal(t, "dup-2", got)
}
