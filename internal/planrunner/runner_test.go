package planrunner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulbrowser/soulbrowser/internal/core"
	"github.com/soulbrowser/soulbrowser/internal/plan"
	"github.com/soulbrowser/soulbrowser/internal/toolflow"
)

func TestRunnerPlanProducesTranslatableFlowWithRuleBasedStrategy(t *testing.T) {
	taskID := core.NewTaskId()
	runner := NewRunner(NewRuleStrategy(NewRuleBasedPlanner()), nil, DefaultPlanValidator(), toolflow.DefaultOptions())

	request := plan.Request{TaskID: taskID, Goal: "check weather in boston"}
	outcome, err := runner.Plan(context.Background(), request)
	require.NoError(t, err)
	assert.Equal(t, taskID, outcome.Flow.TaskID)
	assert.NotEmpty(t, outcome.Explanations)
}

// replanningProvider returns a plan missing payload.schema on its first
// call and a fully-formed one on any subsequent call, exercising Runner's
// schema-retry path.
type replanningProvider struct {
	calls int
}

func (p *replanningProvider) Plan(ctx context.Context, request plan.Request) (*plan.AgentPlan, []string, error) {
	p.calls++
	parse := plan.NewStep("parse-1", "Parse", plan.CustomTool("data.parse.generic", map[string]any{}))
	payload := map[string]any{
		"artifact_label": "result",
		"filename":       "result.json",
		"source_step_id": "parse-1",
	}
	if p.calls > 1 {
		payload["schema"] = "generic_v1"
	}
	deliver := plan.NewStep("deliver-1", "Deliver", plan.CustomTool("data.deliver.structured", payload))
	result := plan.NewAgentPlan(request.TaskID, "weather plan")
	result.Steps = append(result.Steps, parse, deliver)
	return &result, []string{"draft"}, nil
}

func (p *replanningProvider) Replan(ctx context.Context, request plan.Request, prior *plan.AgentPlan, issue string) (*plan.AgentPlan, []string, error) {
	return p.Plan(ctx, request)
}

func TestRunnerReplansOnceWhenDeliverSchemaMissing(t *testing.T) {
	provider := &replanningProvider{}
	llm := NewLlmPlanner(provider, nil, "tenant", "model")
	runner := NewRunner(NewLlmStrategy(llm, nil), nil, DefaultPlanValidator(), toolflow.DefaultOptions())

	request := plan.Request{TaskID: core.NewTaskId(), Goal: "check weather"}
	outcome, err := runner.Plan(context.Background(), request)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls)
	assert.Nil(t, outcome.ValidationIssue)
}

type constantProvider struct {
	plan *plan.AgentPlan
}

func (p *constantProvider) Plan(ctx context.Context, request plan.Request) (*plan.AgentPlan, []string, error) {
	return p.plan, nil, nil
}

func (p *constantProvider) Replan(ctx context.Context, request plan.Request, prior *plan.AgentPlan, issue string) (*plan.AgentPlan, []string, error) {
	return nil, nil, assertError{"replan unsupported"}
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }

func TestRunnerKeepsPlanWhenReplanFails(t *testing.T) {
	parse := plan.NewStep("parse-1", "Parse", plan.CustomTool("data.parse.generic", map[string]any{}))
	deliver := plan.NewStep("deliver-1", "Deliver", plan.CustomTool("data.deliver.structured", map[string]any{
		"artifact_label": "result",
		"filename":       "result.json",
		"source_step_id": "parse-1",
	}))
	draft := plan.NewAgentPlan("t1", "broken plan")
	draft.Steps = append(draft.Steps, parse, deliver)

	llm := NewLlmPlanner(&constantProvider{plan: &draft}, nil, "tenant", "model")
	runner := NewRunner(NewLlmStrategy(llm, nil), nil, DefaultPlanValidator(), toolflow.DefaultOptions())

	outcome, err := runner.Plan(context.Background(), plan.Request{TaskID: "t1", Goal: "check weather"})
	require.NoError(t, err)
	require.NotNil(t, outcome.ValidationIssue)
	assert.Equal(t, "deliver_missing_schema", outcome.ValidationIssue.Label)
}
