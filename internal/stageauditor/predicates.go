package stageauditor

import (
	"strings"

	"github.com/soulbrowser/soulbrowser/internal/plan"
)

// planHasCustomTool mirrors plan_has_custom_tool: an exact, case-insensitive
// Custom tool name match anywhere in the plan.
func planHasCustomTool(p *plan.AgentPlan, name string) bool {
	for _, step := range p.Steps {
		if step.Tool.Kind == plan.ToolCustom && strings.EqualFold(step.Tool.Name, name) {
			return true
		}
	}
	return false
}

func planHasCustomToolMatching(p *plan.AgentPlan, predicate func(string) bool) bool {
	for _, step := range p.Steps {
		if step.Tool.Kind == plan.ToolCustom && predicate(step.Tool.Name) {
			return true
		}
	}
	return false
}

func planHasNavigateStep(p *plan.AgentPlan) bool {
	for _, step := range p.Steps {
		if step.Tool.Kind == plan.ToolNavigate {
			return true
		}
	}
	return false
}

func planHasBrowserSearch(p *plan.AgentPlan) bool {
	return planHasCustomTool(p, "browser.search")
}

// planHasAutoAct mirrors plan_has_auto_act, which checked for an
// "auto_act_engine" vendor_context marker: it reports true only when that
// marker is present. No non-test code in this port sets the marker, so in
// a real run the Act stage gets filled by a placeholder or strategy like
// any other unsatisfied stage.
func planHasAutoAct(p *plan.AgentPlan) bool {
	_, ok := p.Meta.VendorContext["auto_act_engine"]
	return ok
}

func planHasExtractSite(p *plan.AgentPlan) bool {
	return planHasCustomTool(p, "data.extract-site")
}

func planHasTargetValidation(p *plan.AgentPlan) bool {
	return planHasCustomTool(p, "data.validate-target")
}

func planHasParseStep(p *plan.AgentPlan) bool {
	return planHasCustomToolMatching(p, func(name string) bool {
		lowered := strings.ToLower(strings.TrimSpace(name))
		return strings.HasPrefix(lowered, "data.parse.") || lowered == "market.quote.fetch"
	})
}

func planHasNoteStep(p *plan.AgentPlan) bool {
	return planHasCustomTool(p, "agent.note")
}

func planHasDeliverStep(p *plan.AgentPlan) bool {
	return planHasCustomTool(p, "data.deliver.structured")
}

func planHasDeliverStage(p *plan.AgentPlan) bool {
	return planHasDeliverStep(p) || planHasNoteStep(p)
}

func planHasObservationStep(p *plan.AgentPlan) bool {
	return planHasExtractSite(p)
}

func planHasWeatherMacro(p *plan.AgentPlan) bool {
	return planHasCustomTool(p, "weather.search")
}

// previousObservationStep finds the nearest data.extract-site step at or
// before endIndex, mirroring previous_observation_step.
func previousObservationStep(p *plan.AgentPlan, endIndex int) (int, string, bool) {
	if endIndex > len(p.Steps) {
		endIndex = len(p.Steps)
	}
	for i := endIndex - 1; i >= 0; i-- {
		if p.Steps[i].Tool.Kind == plan.ToolCustom && strings.EqualFold(p.Steps[i].Tool.Name, "data.extract-site") {
			return i, p.Steps[i].ID, true
		}
	}
	return 0, "", false
}
