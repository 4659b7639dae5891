// Package stageauditor reconstructs a missing pipeline around whatever a
// planner already produced: it classifies each step into the stage(s) it
// satisfies, then walks a fixed stage order (Navigate, Act, Observe,
// Validate, Parse, Deliver, and optionally Evaluate) filling any gap with a
// registered strategy or, failing that, a placeholder step. Grounded on
// StageAuditor/classify_step/PlanStageKind in
// original_source/crates/soulbrowser-kernel/src/agent/mod.rs; PlanStageKind
// and classify_step's own bodies live in agent-core/src/planner, which was
// not retained in the pack, so both are reconstructed from call sites
// ("data.extract-site" -> Observe, "data.validate-target" -> Validate,
// "data.parse.*"/"market.quote.fetch" -> Parse, "data.deliver.structured"/
// "agent.note" -> Deliver, "agent.evaluate" -> Evaluate, browser.search ->
// both Act and Navigate).
package stageauditor

import (
	"strings"

	"github.com/soulbrowser/soulbrowser/internal/plan"
)

// Stage is one stop on the navigate/act/observe/validate/parse/deliver
// pipeline a plan is audited against.
type Stage int

const (
	StageNavigate Stage = iota
	StageAct
	StageObserve
	StageValidate
	StageParse
	StageDeliver
	StageEvaluate
)

func (s Stage) String() string {
	switch s {
	case StageNavigate:
		return "navigate"
	case StageAct:
		return "act"
	case StageObserve:
		return "observe"
	case StageValidate:
		return "validate"
	case StageParse:
		return "parse"
	case StageDeliver:
		return "deliver"
	case StageEvaluate:
		return "evaluate"
	default:
		return "unknown"
	}
}

// stageLabel is the Chinese label used in overlays and stage_timeline,
// mirroring stage_label from the (unretained) strategies module.
func stageLabel(s Stage) string {
	switch s {
	case StageNavigate:
		return "导航"
	case StageAct:
		return "操作"
	case StageObserve:
		return "观察"
	case StageValidate:
		return "校验"
	case StageParse:
		return "解析"
	case StageDeliver:
		return "交付"
	case StageEvaluate:
		return "评估"
	default:
		return "未知"
	}
}

// classifyStep returns every stage a step's tool satisfies.
func classifyStep(step plan.Step) []Stage {
	switch step.Tool.Kind {
	case plan.ToolNavigate:
		return []Stage{StageNavigate}
	case plan.ToolTypeText, plan.ToolClick, plan.ToolSelect, plan.ToolScroll:
		return []Stage{StageAct}
	case plan.ToolCustom:
		name := strings.ToLower(strings.TrimSpace(step.Tool.Name))
		switch {
		case name == "browser.search":
			return []Stage{StageAct, StageNavigate}
		case name == "data.extract-site":
			return []Stage{StageObserve}
		case name == "data.validate-target":
			return []Stage{StageValidate}
		case strings.HasPrefix(name, "data.parse.") || name == "market.quote.fetch":
			return []Stage{StageParse}
		case name == "data.deliver.structured" || name == "agent.note":
			return []Stage{StageDeliver}
		case name == "agent.evaluate":
			return []Stage{StageEvaluate}
		default:
			return nil
		}
	default:
		return nil
	}
}

func stepSatisfiesStage(step plan.Step, stage Stage) bool {
	for _, s := range classifyStep(step) {
		if s == stage {
			return true
		}
	}
	return false
}

func planContainsStage(p *plan.AgentPlan, stage Stage) bool {
	for _, step := range p.Steps {
		if stepSatisfiesStage(step, stage) {
			return true
		}
	}
	return false
}

func lastStageIndex(p *plan.AgentPlan, stage Stage) (int, bool) {
	for i := len(p.Steps) - 1; i >= 0; i-- {
		if stepSatisfiesStage(p.Steps[i], stage) {
			return i, true
		}
	}
	return 0, false
}

func browserSearchIndex(p *plan.AgentPlan) (int, bool) {
	for i, step := range p.Steps {
		if step.Tool.Kind == plan.ToolCustom && strings.EqualFold(step.Tool.Name, "browser.search") {
			return i, true
		}
	}
	return 0, false
}

// insertionIndex computes where a synthesized stage's steps should land to
// preserve pipeline order, mirroring insertion_index.
func insertionIndex(p *plan.AgentPlan, stage Stage) int {
	switch stage {
	case StageNavigate:
		return 0
	case StageObserve:
		if idx, ok := lastStageIndex(p, StageAct); ok {
			return idx + 1
		}
		if idx, ok := lastStageIndex(p, StageNavigate); ok {
			return idx + 1
		}
		return len(p.Steps)
	case StageValidate:
		if idx, ok := lastStageIndex(p, StageObserve); ok {
			return idx + 1
		}
		if idx, ok := lastStageIndex(p, StageAct); ok {
			return idx + 1
		}
		if idx, ok := lastStageIndex(p, StageNavigate); ok {
			return idx + 1
		}
		return len(p.Steps)
	case StageAct:
		if idx, ok := browserSearchIndex(p); ok {
			return idx + 1
		}
		if idx, ok := lastStageIndex(p, StageNavigate); ok {
			return idx + 1
		}
		return len(p.Steps)
	case StageEvaluate:
		if idx, ok := lastStageIndex(p, StageObserve); ok {
			return idx + 1
		}
		if idx, ok := lastStageIndex(p, StageAct); ok {
			return idx + 1
		}
		return len(p.Steps)
	case StageParse:
		for _, s := range []Stage{StageValidate, StageEvaluate, StageObserve, StageAct} {
			if idx, ok := lastStageIndex(p, s); ok {
				return idx + 1
			}
		}
		return len(p.Steps)
	case StageDeliver:
		return len(p.Steps)
	default:
		return len(p.Steps)
	}
}

// defaultStageOrder is the fixed pipeline every audit walks, matching the
// stage_graph().plan_for_request(request).stages iteration order. Evaluate
// only joins the walk when the request explicitly asks for it (no Non-goal
// excludes it, but nothing in this plan model signals "needs evaluate" yet,
// so it is audited only when already present in the raw plan).
func defaultStageOrder(p *plan.AgentPlan) []Stage {
	order := []Stage{StageNavigate, StageAct, StageObserve, StageValidate, StageParse, StageDeliver}
	if planContainsStage(p, StageEvaluate) {
		order = append(order, StageEvaluate)
	}
	return order
}
