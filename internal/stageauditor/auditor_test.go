package stageauditor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulbrowser/soulbrowser/internal/core"
	"github.com/soulbrowser/soulbrowser/internal/plan"
)

func testRequest(goal string) plan.Request {
	return plan.Request{TaskID: core.NewTaskId(), Goal: goal}
}

func TestDeterministicModeRebuildsEmptyInformationalPlan(t *testing.T) {
	p := plan.NewAgentPlan(core.NewTaskId(), "empty-informational")
	request := testRequest("今天北京天气怎么样")
	request.Intent.IntentKind = plan.IntentInformational

	a := NewAuditor()
	ledger := newTestLedger()
	a.Audit(&p, request, plan.NewStageContext(request), ledger)

	require.NotEmpty(t, p.Steps)
	assert.True(t, planContainsStage(&p, StageNavigate))
	assert.True(t, planHasExtractSite(&p))
	assert.True(t, planHasDeliverStage(&p))
	_, hasTimeline := p.Meta.VendorContext["stage_timeline"]
	assert.True(t, hasTimeline)
}

func TestSearchStrategyFillsNavigateWhenNoPreferredSite(t *testing.T) {
	p := plan.NewAgentPlan(core.NewTaskId(), "search-nav")
	request := testRequest("latest rust release notes")

	a := NewAuditor()
	ledger := newTestLedger()
	context := plan.NewStageContext(request)
	a.Audit(&p, request, context, ledger)

	require.NotEmpty(t, p.Steps)
	assert.Equal(t, plan.ToolCustom, p.Steps[0].Tool.Kind)
	assert.Equal(t, "browser.search", p.Steps[0].Tool.Name)
	assert.Equal(t, "latest rust release notes", p.Steps[0].Tool.Payload["query"])
}

func TestGuardrailOverlayRecordedWhenKeywordsDerived(t *testing.T) {
	p := plan.NewAgentPlan(core.NewTaskId(), "guardrail")
	request := testRequest("find the official pricing page for acme")

	a := NewAuditor()
	ledger := newTestLedger()
	context := plan.NewStageContext(request)
	require.NotEmpty(t, context.GuardrailKeywords)

	a.Audit(&p, request, context, ledger)

	_, ok := p.Meta.VendorContext["guardrail_keywords"]
	assert.True(t, ok)
	assert.NotEmpty(t, ledger.overlays)
}

func TestRetargetBlockedSearchEngineNavigate(t *testing.T) {
	p := plan.NewAgentPlan(core.NewTaskId(), "retarget")
	p.Steps = append(p.Steps, plan.NewStep("nav-1", "Search google", plan.NavigateTool("https://www.google.com/search?q=weather")))
	request := testRequest("weather forecast")

	a := NewAuditor()
	ledger := newTestLedger()
	context := plan.NewStageContext(request)
	a.retargetBlockedSearchEngines(&p, context, ledger)

	assert.NotContains(t, p.Steps[0].Tool.URL, "google")
	assert.True(t, ledger.marked)
}

func TestStageAlreadySatisfiedSkipsPlaceholder(t *testing.T) {
	p := plan.NewAgentPlan(core.NewTaskId(), "already-satisfied")
	p.Meta.VendorContext["auto_act_engine"] = true
	p.Steps = append(p.Steps,
		plan.NewStep("search-1", "Search", plan.CustomTool("browser.search", map[string]any{"query": "example.com"})),
		plan.NewStep("nav-1", "Navigate", plan.NavigateTool("https://example.com")),
		plan.NewStep("obs-1", "Observe", plan.CustomTool("data.extract-site", nil)),
		plan.NewStep("validate-1", "Validate", plan.CustomTool("data.validate-target", map[string]any{"source_step_id": "obs-1"})),
		plan.NewStep("parse-1", "Parse", plan.CustomTool("data.parse.generic", map[string]any{"source_step_id": "obs-1"})),
		plan.NewStep("note-1", "Note", plan.CustomTool("agent.note", nil)),
	)
	request := testRequest("summarize example.com")

	a := NewAuditor()
	ledger := newTestLedger()
	context := plan.NewStageContext(request)
	a.Audit(&p, request, context, ledger)

	require.Len(t, p.Steps, 6)
}

// TestFullNormalizeEndToEndWeatherLiteralScenario drives plan.Normalizer
// wired to a real Auditor against the exact literal input spec.md's
// mandatory end-to-end scenario 1 names: goal "查询今天天气", Informational
// intent, empty plan. The deterministic stage-audit path alone only gets
// as far as a generic observe+parse placeholder; the normalizer's weather
// pipeline pass has to turn that into a real data.parse.weather step and a
// weather_report_v1 deliver for this to hold.
func TestFullNormalizeEndToEndWeatherLiteralScenario(t *testing.T) {
	p := plan.NewAgentPlan(core.NewTaskId(), "weather-literal")
	request := testRequest("查询今天天气")
	request.Intent.IntentKind = plan.IntentInformational

	normalizer := plan.NewNormalizer(NewAuditor())
	report := normalizer.Normalize(&p, request)

	require.True(t, report.HasRepairs())
	require.NotEmpty(t, p.Steps)
	assert.Equal(t, "weather.search", p.Steps[0].Tool.Name)

	require.True(t, plan.RequiresWeatherPipeline(request))
	require.True(t, planHasWeatherParseStep(&p), "expected a data.parse.weather step, got %+v", stepToolNames(&p))
	require.True(t, planHasWeatherDeliverStep(&p), "expected a deliver step targeting weather_report_v1, got %+v", stepToolNames(&p))
}

func stepToolNames(p *plan.AgentPlan) []string {
	names := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		names[i] = s.Tool.Name
	}
	return names
}

func planHasWeatherParseStep(p *plan.AgentPlan) bool {
	for _, s := range p.Steps {
		if s.Tool.Kind == plan.ToolCustom && strings.EqualFold(s.Tool.Name, "data.parse.weather") {
			return true
		}
	}
	return false
}

func planHasWeatherDeliverStep(p *plan.AgentPlan) bool {
	for _, s := range p.Steps {
		if s.Tool.Kind != plan.ToolCustom || !strings.HasPrefix(strings.ToLower(s.Tool.Name), "data.deliver.") {
			continue
		}
		schema, ok := s.Tool.Payload["schema"].(string)
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSuffix(schema, ".json"), "weather_report_v1") {
			return true
		}
	}
	return false
}

// testLedger is a minimal plan.RepairRecorder stand-in for tests that
// don't need a full Normalizer pass.
type testLedger struct {
	notes    []string
	overlays []map[string]any
	marked   bool
}

func newTestLedger() *testLedger { return &testLedger{} }

func (l *testLedger) Note(note string)              { l.notes = append(l.notes, note) }
func (l *testLedger) Overlay(overlay map[string]any) { l.overlays = append(l.overlays, overlay) }
func (l *testLedger) MarkStep(step *plan.Step, note string) {
	l.marked = true
	l.notes = append(l.notes, note)
}
