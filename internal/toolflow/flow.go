// Package toolflow translates a normalized plan.AgentPlan into the sequence
// of scheduler dispatch requests the orchestrator actually runs, and
// executes that sequence end to end. Grounded on plan_to_flow/
// PlanToFlowOptions/PlanToFlowResult/execute_plan as used (never defined) in
// original_source/crates/soulbrowser-kernel/src/agent/mod.rs; the Rust
// definitions live in the agent-core crate, which was not retained in the
// pack, so the shapes here are reconstructed from how agent/mod.rs calls
// them rather than ported line by line.
package toolflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/soulbrowser/soulbrowser/internal/core"
	"github.com/soulbrowser/soulbrowser/internal/gate"
	"github.com/soulbrowser/soulbrowser/internal/plan"
	"github.com/soulbrowser/soulbrowser/internal/scheduler"
)

// Options mirrors PlanToFlowOptions: knobs that shape translation rather
// than any one step's payload.
type Options struct {
	// DefaultTimeout applies to a step whose Tool has no TimeoutMs.
	DefaultTimeout time.Duration
	// DefaultRetry applies to every step; the original gives every tool
	// call the same retry policy rather than deriving one per step.
	DefaultRetry scheduler.RetryPolicy
	// DefaultPriority applies to every dispatched step.
	DefaultPriority scheduler.Priority
	// StrictValidation makes ExecutePlan stop the flow on the first step
	// whose validation fails, rather than recording the failure and
	// continuing to the next step. Mirrors ChatRunner's
	// strict_plan_validation.
	StrictValidation bool
}

// DefaultOptions returns the translation knobs used when a caller hasn't
// configured anything more specific, matching PlanToFlowOptions::default.
func DefaultOptions() Options {
	return Options{
		DefaultTimeout:  30 * time.Second,
		DefaultRetry:    scheduler.RetryPolicy{Max: 1, Backoff: 500 * time.Millisecond},
		DefaultPriority: scheduler.PriorityStandard,
	}
}

// FlowStep pairs one dispatch request with the plan step it came from, so
// execution can report back against the original plan.
type FlowStep struct {
	StepID     string
	Request    scheduler.DispatchRequest
	Validation *gate.ExpectSpec
}

// Flow is the translated, orchestrator-ready form of an AgentPlan.
type Flow struct {
	TaskID core.TaskId
	PlanID string
	Steps  []FlowStep
}

// Translate converts p's steps into dispatch requests in order, mirroring
// plan_to_flow: the planner's Tool union becomes a ToolCall whose Payload is
// the tool's own JSON shape, with a Done step translating to nothing (it
// only signals completion to whatever consumes the flow) and a Custom
// step's name becoming the ToolCall's tool id directly.
func Translate(p *plan.AgentPlan, request plan.Request, opts Options) (Flow, error) {
	flow := Flow{TaskID: p.TaskID, PlanID: p.Title, Steps: make([]FlowStep, 0, len(p.Steps))}
	for _, step := range p.Steps {
		if step.Tool.Kind == plan.ToolDone {
			continue
		}
		payload, toolName, err := toolPayload(step.Tool)
		if err != nil {
			return Flow{}, fmt.Errorf("toolflow: step %s: %w", step.ID, err)
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return Flow{}, fmt.Errorf("toolflow: step %s: marshal payload: %w", step.ID, err)
		}

		timeout := opts.DefaultTimeout
		if step.Tool.TimeoutMs != nil {
			timeout = time.Duration(*step.Tool.TimeoutMs) * time.Millisecond
		}

		call := scheduler.ToolCall{
			Tool:    toolName,
			TaskID:  string(p.TaskID),
			CallID:  p.UniqueStepID(step.ID),
			Payload: raw,
		}
		dispatch := scheduler.DispatchRequest{
			ToolCall: call,
			Options: scheduler.CallOptions{
				Priority: opts.DefaultPriority,
				Retry:    opts.DefaultRetry,
				Timeout:  timeout,
			},
		}

		flow.Steps = append(flow.Steps, FlowStep{
			StepID:     step.ID,
			Request:    dispatch,
			Validation: validationSpec(step),
		})
	}
	return flow, nil
}

// toolPayload flattens a plan.Tool into its wire JSON shape and the tool
// name a dispatcher resolves to an executor, matching the canonical tool
// ids the auditor/normalizer already emit (browser.search,
// data.extract-site, and friends) for Custom tools, and the builtin
// navigate-to-url/click/type-text/select-option/scroll-page/
// wait-for-element ids for the structured variants.
func toolPayload(t plan.Tool) (map[string]any, string, error) {
	switch t.Kind {
	case plan.ToolNavigate:
		return map[string]any{"url": t.URL, "wait": waitModeString(t.Wait)}, "navigate-to-url", nil
	case plan.ToolClick:
		return map[string]any{"anchor": locatorPayload(t.Locator), "wait": waitModeString(t.Wait)}, "click", nil
	case plan.ToolTypeText:
		return map[string]any{
			"anchor": locatorPayload(t.Locator),
			"text":   t.Text,
			"submit": t.Submit,
			"wait":   waitModeString(t.Wait),
		}, "type-text", nil
	case plan.ToolSelect:
		return map[string]any{
			"anchor": locatorPayload(t.Locator),
			"value":  t.Value,
			"method": t.Method,
		}, "select-option", nil
	case plan.ToolScroll:
		return map[string]any{"target": scrollTargetPayload(t.ScrollTarget)}, "scroll-page", nil
	case plan.ToolWait:
		return map[string]any{"condition": waitConditionPayload(t.Condition)}, "wait-for-element", nil
	case plan.ToolCustom:
		payload := make(map[string]any, len(t.Payload))
		for k, v := range t.Payload {
			payload[k] = v
		}
		return payload, t.Name, nil
	default:
		return nil, "", fmt.Errorf("unsupported tool kind %v", t.Kind)
	}
}

func waitModeString(mode plan.WaitMode) string {
	switch mode {
	case plan.WaitModeDomReady:
		return "dom_ready"
	case plan.WaitModeIdle:
		return "idle"
	case plan.WaitModeLoad:
		return "load"
	default:
		return "none"
	}
}

func locatorPayload(l plan.Locator) map[string]any {
	switch l.Kind {
	case plan.LocatorCss:
		return map[string]any{"strategy": "css", "selector": l.Css}
	case plan.LocatorAria:
		return map[string]any{"strategy": "aria", "role": l.Role, "name": l.Name}
	case plan.LocatorText:
		return map[string]any{"strategy": "text", "text": l.Text, "exact": l.Exact}
	default:
		return map[string]any{"strategy": "unknown"}
	}
}

func scrollTargetPayload(t plan.ScrollTarget) map[string]any {
	switch t.Kind {
	case plan.ScrollTop:
		return map[string]any{"kind": "top"}
	case plan.ScrollBottom:
		return map[string]any{"kind": "bottom"}
	case plan.ScrollPixels:
		return map[string]any{"kind": "pixels", "value": t.Pixels}
	case plan.ScrollSelector:
		return map[string]any{"kind": "selector", "selector": locatorPayload(t.Selector)}
	default:
		return map[string]any{"kind": "unknown"}
	}
}

func waitConditionPayload(c plan.WaitCondition) map[string]any {
	switch c.Kind {
	case plan.WaitDuration:
		return map[string]any{"kind": "duration", "duration_ms": c.DurationMs}
	case plan.WaitNetworkIdle:
		return map[string]any{"kind": "network_idle", "idle_ms": c.NetworkMs}
	case plan.WaitElementVisible:
		return map[string]any{"kind": "visible", "anchor": locatorPayload(c.Locator)}
	case plan.WaitElementHidden:
		return map[string]any{"kind": "hidden", "anchor": locatorPayload(c.Locator)}
	case plan.WaitUrlEquals:
		return map[string]any{"kind": "url_equals", "url": c.Operand}
	case plan.WaitUrlMatches:
		return map[string]any{"kind": "url_matches", "pattern": c.Operand}
	case plan.WaitTitleMatches:
		return map[string]any{"kind": "title_matches", "pattern": c.Operand}
	default:
		return map[string]any{"kind": "unknown"}
	}
}

// validationSpec folds a step's Validations into a gate.ExpectSpec the
// executor checks once the step's tool call returns, or nil if the step has
// no post-conditions to check.
func validationSpec(step plan.Step) *gate.ExpectSpec {
	if len(step.Validations) == 0 {
		return nil
	}
	conditions := make([]gate.Condition, 0, len(step.Validations))
	for _, v := range step.Validations {
		if cond, ok := gateConditionFromWait(v.Condition); ok {
			conditions = append(conditions, cond)
		}
	}
	if len(conditions) == 0 {
		return nil
	}
	spec := gate.NewExpectSpec()
	for _, c := range conditions {
		spec = spec.WithAll(c)
	}
	return &spec
}

// gateConditionFromWait turns a step validation's WaitCondition into the
// equivalent gate.Condition, since both model the same handful of
// page-readiness checks but the gate package owns the richer condition
// union the Gate Validator actually evaluates.
func gateConditionFromWait(c plan.WaitCondition) (gate.Condition, bool) {
	switch c.Kind {
	case plan.WaitUrlEquals:
		return gate.UrlCond(gate.UrlCondition{Kind: gate.UrlEquals, Operand: c.Operand}), true
	case plan.WaitUrlMatches:
		return gate.UrlCond(gate.UrlCondition{Kind: gate.UrlMatches, Operand: c.Operand}), true
	case plan.WaitTitleMatches:
		return gate.TitleCond(gate.TitleCondition{Kind: gate.TitleMatches, Operand: c.Operand}), true
	case plan.WaitElementVisible:
		return gate.DomCond(gate.DomCondition{Kind: gate.DomElementVisible, Anchor: anchorFromLocator(c.Locator)}), true
	case plan.WaitElementHidden:
		return gate.DomCond(gate.DomCondition{Kind: gate.DomElementHidden, Anchor: anchorFromLocator(c.Locator)}), true
	default:
		return gate.Condition{}, false
	}
}

func anchorFromLocator(l plan.Locator) gate.AnchorDescriptor {
	switch l.Kind {
	case plan.LocatorAria:
		return gate.NewAriaAnchor(l.Role, l.Name)
	case plan.LocatorText:
		return gate.NewTextAnchor(l.Text, l.Exact)
	default:
		return gate.NewCssAnchor(l.Css)
	}
}
