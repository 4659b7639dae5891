package planrunner

import (
	"context"
	"fmt"

	"github.com/soulbrowser/soulbrowser/internal/plan"
	"github.com/soulbrowser/soulbrowser/internal/toolflow"
)

// StageAuditor is the stage-audit dependency a Runner threads through to its
// Normalizer. Declared here (rather than imported from internal/plan) so
// this package's public surface doesn't force callers to know the
// normalizer's own interface name; satisfied directly by *stageauditor.Auditor.
type StageAuditor = plan.StageAuditor

// maxReplanAttempts bounds finalize's schema-retry loop: one initial attempt
// plus this many replans, mirroring finalize_with_schema_retry's single
// retry-on-missing-schema behavior in agent/mod.rs.
const maxReplanAttempts = 1

// Outcome is everything one planning-and-translation pass produced: the
// normalized plan, the planner's own explanations, the repairs the
// normalizer applied, and (unless translation failed) the flow ready for
// execution. Grounded on finalize_outcome's return shape in agent/mod.rs.
type Outcome struct {
	Plan            plan.AgentPlan
	Explanations    []string
	Repairs         plan.RepairReport
	ValidationIssue *PlanValidationIssue
	Flow            toolflow.Flow
}

// Runner wires a Planner, a Normalizer (with its StageAuditor set to a real
// auditor), a PlanValidator and the toolflow translator into one pipeline:
// plan -> normalize -> validate (retrying once on a schema defect) ->
// translate to an executable Flow. Grounded on ChatRunner::finalize_outcome/
// finalize_with_schema_retry in agent/mod.rs.
type Runner struct {
	Strategy    PlannerStrategy
	Normalizer  *plan.Normalizer
	Validator   PlanValidator
	FlowOptions toolflow.Options
}

// NewRunner builds a Runner from its constituent parts. auditor may be nil,
// in which case the normalizer's stage-audit pass is a no-op (useful for
// tests that don't care about stage filling).
func NewRunner(strategy PlannerStrategy, auditor StageAuditor, validator PlanValidator, flowOptions toolflow.Options) *Runner {
	return &Runner{
		Strategy:    strategy,
		Normalizer:  plan.NewNormalizer(auditor),
		Validator:   validator,
		FlowOptions: flowOptions,
	}
}

// Plan runs one full planning pass: ask the strategy for a draft, normalize
// it, validate it, and -- if validation reports a schema defect worth a
// second attempt -- replan once and redo the pipeline on the result. It
// always returns an Outcome with a translated Flow unless translation
// itself fails; a validation issue that doesn't trigger a replan is
// attached to the Outcome rather than treated as fatal, leaving the caller
// free to decide whether to run a plan with unresolved issues.
func (r *Runner) Plan(ctx context.Context, request plan.Request) (Outcome, error) {
	p, explanations, err := r.Strategy.Plan(ctx, request)
	if err != nil {
		return Outcome{}, fmt.Errorf("planrunner: plan: %w", err)
	}
	return r.finalize(ctx, request, p, explanations, 0)
}

func (r *Runner) finalize(ctx context.Context, request plan.Request, p *plan.AgentPlan, explanations []string, attempt int) (Outcome, error) {
	repairs := r.Normalizer.Normalize(p, request)

	var issue *PlanValidationIssue
	if err := r.Validator.Validate(p, request); err != nil {
		var ok bool
		issue, ok = err.(*PlanValidationIssue)
		if !ok {
			return Outcome{}, fmt.Errorf("planrunner: validate: %w", err)
		}
	}

	if issue != nil && issue.ShouldTriggerReplan() && attempt < maxReplanAttempts {
		replanned, replanExplanations, err := r.Strategy.Replan(ctx, request, p, issue.Error())
		if err != nil {
			// A failed replan isn't fatal: fall through and ship the
			// original plan with its validation issue attached, matching
			// finalize_with_schema_retry's "retry, but don't block on it"
			// behavior.
			return r.translate(request, p, explanations, repairs, issue)
		}
		return r.finalize(ctx, request, replanned, replanExplanations, attempt+1)
	}

	return r.translate(request, p, explanations, repairs, issue)
}

func (r *Runner) translate(request plan.Request, p *plan.AgentPlan, explanations []string, repairs plan.RepairReport, issue *PlanValidationIssue) (Outcome, error) {
	flow, err := toolflow.Translate(p, request, r.FlowOptions)
	if err != nil {
		return Outcome{}, fmt.Errorf("planrunner: translate: %w", err)
	}
	return Outcome{
		Plan:            *p,
		Explanations:    explanations,
		Repairs:         repairs,
		ValidationIssue: issue,
		Flow:            flow,
	}, nil
}

// Execute runs outcome.Flow to completion against dispatcher/validator,
// mirroring ChatRunner handing a finalized flow to execute_plan.
func (r *Runner) Execute(ctx context.Context, dispatcher toolflow.Dispatcher, validator toolflow.ValidationRunner, outcome Outcome) (toolflow.FlowExecutionReport, error) {
	return toolflow.ExecutePlan(ctx, dispatcher, validator, outcome.Flow, r.FlowOptions)
}
