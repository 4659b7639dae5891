package planrunner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulbrowser/soulbrowser/internal/core"
	"github.com/soulbrowser/soulbrowser/internal/plan"
)

func newTestPlan(steps ...plan.Step) plan.AgentPlan {
	p := plan.NewAgentPlan(core.NewTaskId(), "validated")
	p.Steps = append(p.Steps, steps...)
	return p
}

func TestValidatePassesMinimalPlan(t *testing.T) {
	p := newTestPlan(plan.NewStep("nav-1", "Navigate", plan.NavigateTool("https://example.com")))
	v := DefaultPlanValidator()
	assert.NoError(t, v.Validate(&p, plan.Request{Goal: "go somewhere"}))
}

func TestValidateCatchesEmptyNavigateURL(t *testing.T) {
	p := newTestPlan(plan.NewStep("nav-1", "Navigate", plan.NavigateTool("")))
	v := DefaultPlanValidator()
	err := v.Validate(&p, plan.Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-empty url")
}

func TestValidateCatchesClickWithoutNavigationValidation(t *testing.T) {
	p := newTestPlan(plan.NewStep("click-1", "Click", plan.ClickTool(plan.CssLocator("button.go"))))
	v := DefaultPlanValidator()
	err := v.Validate(&p, plan.Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must include wait_for")
}

func TestValidateAcceptsClickWithNavigationValidation(t *testing.T) {
	step := plan.NewStep("click-1", "Click", plan.ClickTool(plan.CssLocator("button.go")))
	step.Validations = append(step.Validations, plan.Validation{Condition: plan.UrlEqualsWait("https://example.com/done")})
	p := newTestPlan(step)
	v := DefaultPlanValidator()
	assert.NoError(t, v.Validate(&p, plan.Request{}))
}

func TestValidateDeliverMissingSchemaTriggersReplan(t *testing.T) {
	parse := plan.NewStep("parse-1", "Parse", plan.CustomTool("data.parse.generic", map[string]any{}))
	deliver := plan.NewStep("deliver-1", "Deliver", plan.CustomTool("data.deliver.structured", map[string]any{
		"artifact_label": "result",
		"filename":       "result.json",
		"source_step_id": "parse-1",
	}))
	p := newTestPlan(parse, deliver)

	err := DefaultPlanValidator().Validate(&p, plan.Request{})
	require.Error(t, err)
	issue, ok := err.(*PlanValidationIssue)
	require.True(t, ok)
	assert.Equal(t, "deliver_missing_schema", issue.Label)
	assert.True(t, issue.ShouldTriggerReplan())
}

func TestValidateDeliverSourceMustPrecedeStep(t *testing.T) {
	deliver := plan.NewStep("deliver-1", "Deliver", plan.CustomTool("data.deliver.structured", map[string]any{
		"schema":         "generic_v1",
		"artifact_label": "result",
		"filename":       "result.json",
		"source_step_id": "parse-1",
	}))
	parse := plan.NewStep("parse-1", "Parse", plan.CustomTool("data.parse.generic", map[string]any{}))
	p := newTestPlan(deliver, parse)

	err := DefaultPlanValidator().Validate(&p, plan.Request{})
	require.Error(t, err)
	issue, ok := err.(*PlanValidationIssue)
	require.True(t, ok)
	assert.Equal(t, "deliver_source_not_prior", issue.Label)
	assert.False(t, issue.ShouldTriggerReplan())
}

func TestValidateDeliverSourceMustBeParseTool(t *testing.T) {
	nav := plan.NewStep("nav-1", "Navigate", plan.NavigateTool("https://example.com"))
	deliver := plan.NewStep("deliver-1", "Deliver", plan.CustomTool("data.deliver.structured", map[string]any{
		"schema":         "generic_v1",
		"artifact_label": "result",
		"filename":       "result.json",
		"source_step_id": "nav-1",
	}))
	p := newTestPlan(nav, deliver)

	err := DefaultPlanValidator().Validate(&p, plan.Request{})
	require.Error(t, err)
	issue, ok := err.(*PlanValidationIssue)
	require.True(t, ok)
	assert.Equal(t, "deliver_source_not_parse", issue.Label)
}

func TestValidateGithubRepoToolRequiresUsername(t *testing.T) {
	step := plan.NewStep("parse-1", "Parse", plan.CustomTool("data.parse.github-repo", map[string]any{}))
	p := newTestPlan(step)
	err := DefaultPlanValidator().Validate(&p, plan.Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload.username")
}

func TestStrictValidationForbidsPluginTools(t *testing.T) {
	step := plan.NewStep("plugin-1", "Plugin", plan.CustomTool("plugin.custom-thing", map[string]any{}))
	p := newTestPlan(step)
	err := StrictPlanValidator().Validate(&p, plan.Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plugin.*")
}

func TestStrictValidationRequiresDeliverWhenOutputsRequested(t *testing.T) {
	p := newTestPlan(plan.NewStep("nav-1", "Navigate", plan.NavigateTool("https://example.com")))
	request := plan.Request{Intent: plan.Intent{RequiredOutputs: []plan.RequestedOutput{{Schema: "generic_v1"}}}}
	err := StrictPlanValidator().Validate(&p, request)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lacks data.deliver.structured")
}

func TestIsAllowedCustomToolRecognizesAliasesAndPlugins(t *testing.T) {
	assert.True(t, IsAllowedCustomTool("data.parse.generic"))
	assert.True(t, IsAllowedCustomTool("github.extract-repo"))
	assert.True(t, IsAllowedCustomTool("plugin.anything"))
	assert.False(t, IsAllowedCustomTool("totally.unknown.tool"))
}
