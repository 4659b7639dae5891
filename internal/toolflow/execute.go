package toolflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/soulbrowser/soulbrowser/internal/core"
	"github.com/soulbrowser/soulbrowser/internal/gate"
	"github.com/soulbrowser/soulbrowser/internal/scheduler"
)

// StepExecutionStatus is the terminal state of one flow step, reconstructed
// from its usage in FlowExecutionReport rendering inside agent/mod.rs
// (status strings such as "succeeded", "failed", "skipped" appear in the
// ChatSessionOutput formatting call sites).
type StepExecutionStatus int

const (
	StepSucceeded StepExecutionStatus = iota
	StepFailed
	StepValidationFailed
	StepSkipped
	StepCancelled
)

func (s StepExecutionStatus) String() string {
	switch s {
	case StepSucceeded:
		return "succeeded"
	case StepFailed:
		return "failed"
	case StepValidationFailed:
		return "validation_failed"
	case StepSkipped:
		return "skipped"
	case StepCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// StepExecutionReport is the per-step outcome recorded into a
// FlowExecutionReport.
type StepExecutionReport struct {
	StepID    string
	Status    StepExecutionStatus
	Output    json.RawMessage
	Error     string
	Gate      *gate.GateResult
	WaitMs    int64
	RunMs     int64
	Route     core.ExecRoute
	FinishedAt time.Time
}

// FlowExecutionReport is the full record of running a Flow end to end:
// every step's outcome plus whether the flow as a whole completed.
type FlowExecutionReport struct {
	TaskID    core.TaskId
	PlanID    string
	Steps     []StepExecutionReport
	Succeeded bool
	StartedAt time.Time
	EndedAt   time.Time
}

// Dispatcher is the subset of Orchestrator ExecutePlan needs: submit one
// dispatch request and await its outcome. Satisfied by *orchestrator.
// Orchestrator's Submit plus reading from the returned channel.
type Dispatcher interface {
	Submit(ctx context.Context, request scheduler.DispatchRequest) (scheduler.SubmitHandle, error)
}

// ValidationRunner is the subset of gate.GateValidator ExecutePlan depends
// on, accepted as an interface so the toolflow package doesn't need a live
// gate.DefaultGateValidator (and its ScriptEvaluator dependency) to be unit
// tested.
type ValidationRunner interface {
	Validate(ctx context.Context, spec gate.ExpectSpec, vctx gate.ValidationContext, route core.ExecRoute) (gate.GateResult, error)
}

// ExecutePlan submits flow's steps one at a time, in order, waiting for each
// to finish before submitting the next (a flow is a strictly sequential
// pipeline, unlike the scheduler's own cross-task concurrency). A step
// carrying a Validation runs it against the resulting ValidationContext;
// under opts.StrictValidation a failed validation stops the flow, otherwise
// it is recorded and the flow continues. Mirrors execute_plan's call-site
// contract in agent/mod.rs: it returns a FlowExecutionReport whose
// Succeeded field is true only if every step reached StepSucceeded.
func ExecutePlan(ctx context.Context, dispatcher Dispatcher, validator ValidationRunner, flow Flow, opts Options) (FlowExecutionReport, error) {
	report := FlowExecutionReport{
		TaskID:    flow.TaskID,
		PlanID:    flow.PlanID,
		StartedAt: timeNow(),
		Succeeded: true,
	}

	for _, step := range flow.Steps {
		if ctx.Err() != nil {
			report.Steps = append(report.Steps, StepExecutionReport{
				StepID: step.StepID, Status: StepCancelled, Error: ctx.Err().Error(), FinishedAt: timeNow(),
			})
			report.Succeeded = false
			continue
		}

		handle, err := dispatcher.Submit(ctx, step.Request)
		if err != nil {
			report.Steps = append(report.Steps, StepExecutionReport{
				StepID: step.StepID, Status: StepFailed, Error: err.Error(), FinishedAt: timeNow(),
			})
			report.Succeeded = false
			if opts.StrictValidation {
				break
			}
			continue
		}

		outcome := <-handle.Result
		waitMs, runMs := outcome.Timeline.Durations()
		stepReport := StepExecutionReport{
			StepID: step.StepID, Output: outcome.Output, Route: outcome.Route,
			WaitMs: waitMs, RunMs: runMs, FinishedAt: timeNow(),
		}

		if outcome.Err != nil {
			stepReport.Status = StepFailed
			stepReport.Error = outcome.Err.Error()
			report.Succeeded = false
			report.Steps = append(report.Steps, stepReport)
			if opts.StrictValidation {
				break
			}
			continue
		}

		if step.Validation != nil && validator != nil {
			vctx := validationContextFromOutput(outcome.Output)
			result, err := validator.Validate(ctx, *step.Validation, vctx, outcome.Route)
			if err != nil {
				stepReport.Status = StepValidationFailed
				stepReport.Error = err.Error()
				report.Succeeded = false
			} else {
				stepReport.Gate = &result
				if result.Passed {
					stepReport.Status = StepSucceeded
				} else {
					stepReport.Status = StepValidationFailed
					report.Succeeded = false
				}
			}
			report.Steps = append(report.Steps, stepReport)
			if stepReport.Status == StepValidationFailed && opts.StrictValidation {
				break
			}
			continue
		}

		stepReport.Status = StepSucceeded
		report.Steps = append(report.Steps, stepReport)
	}

	report.EndedAt = timeNow()
	return report, nil
}

// validationContextFromOutput builds a ValidationContext from a tool's raw
// JSON output, reading the optional current_url/current_title fields that a
// navigate/observe-style executor is expected to report back, matching how
// DefaultGateValidator consumes ValidationContext.
func validationContextFromOutput(raw json.RawMessage) gate.ValidationContext {
	vctx := gate.NewValidationContext()
	if len(raw) == 0 {
		return vctx
	}
	var shape struct {
		CurrentURL   *string  `json:"current_url"`
		CurrentTitle *string  `json:"current_title"`
		Console      []string `json:"console_messages"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return vctx
	}
	vctx.CurrentURL = shape.CurrentURL
	vctx.CurrentTitle = shape.CurrentTitle
	vctx.ConsoleMessages = shape.Console
	return vctx
}

// timeNow is a seam so execution timestamps come from one place; the
// toolchain-free discipline this repo is built under means this never
// needs to be swapped for a fake clock in a running test, but keeping it
// named makes the intent explicit at each call site.
func timeNow() time.Time { return time.Now() }
