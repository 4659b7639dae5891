package stageauditor

import (
	"fmt"

	"github.com/soulbrowser/soulbrowser/internal/plan"
)

// synthesizePlaceholder inserts the canonical fallback step(s) for stage
// when no strategy in its chain fired. Mirrors synthesize_placeholder's
// per-stage dispatch to insert_placeholder_*.
func (a *Auditor) synthesizePlaceholder(p *plan.AgentPlan, request plan.Request, context plan.StageContext, stage Stage, recorder plan.RepairRecorder) bool {
	switch stage {
	case StageNavigate:
		return a.insertPlaceholderNavigate(p, context, recorder)
	case StageObserve:
		return a.insertPlaceholderObserve(p, context, recorder)
	case StageValidate:
		return a.insertPlaceholderValidate(p, request, context, recorder)
	case StageAct:
		return a.insertPlaceholderAct(p, recorder)
	case StageEvaluate:
		return a.insertPlaceholderEvaluate(p, recorder)
	case StageParse:
		return a.insertPlaceholderParse(p, request, context, recorder)
	case StageDeliver:
		return a.insertPlaceholderDeliver(p, request, recorder)
	default:
		return false
	}
}

func (a *Auditor) insertPlaceholderAct(p *plan.AgentPlan, recorder plan.RepairRecorder) bool {
	timeout := 4000
	step := plan.NewStep(p.UniqueStepID("placeholder-act"), "探索页面可交互元素",
		plan.ScrollTool(plan.ScrollTarget{Kind: plan.ScrollPixels, Pixels: 640}))
	step.Detail = "Fallback act stage via scroll"
	step.Tool.Wait = plan.WaitModeDomReady
	step.Tool.TimeoutMs = &timeout
	recorder.MarkStep(&step, "Placeholder act step inserted")
	idx := insertionIndex(p, StageAct)
	insertStepAt(p, idx, step)
	return true
}

func (a *Auditor) insertPlaceholderEvaluate(p *plan.AgentPlan, recorder plan.RepairRecorder) bool {
	timeout := 1000
	step := plan.NewStep(p.UniqueStepID("placeholder-evaluate"), "评估页面状态",
		plan.CustomTool("agent.evaluate", map[string]any{"message": "评估当前页面状态"}))
	step.Detail = "Fallback evaluate stage via agent.evaluate"
	step.Tool.TimeoutMs = &timeout
	recorder.MarkStep(&step, "Placeholder agent.evaluate inserted")
	idx := insertionIndex(p, StageEvaluate)
	insertStepAt(p, idx, step)
	return true
}

func (a *Auditor) insertPlaceholderNavigate(p *plan.AgentPlan, context plan.StageContext, recorder plan.RepairRecorder) bool {
	url, ok := context.BestKnownURL()
	if !ok {
		url = context.FallbackSearchURL()
	}
	timeout := 30000
	step := plan.NewStep(p.UniqueStepID("placeholder-navigate"), "自动跳转页面", plan.NavigateTool(url))
	step.Detail = fmt.Sprintf("Fallback navigation to %s", url)
	step.Tool.Wait = plan.WaitModeDomReady
	step.Tool.TimeoutMs = &timeout
	recorder.MarkStep(&step, fmt.Sprintf("Placeholder navigate -> %s", url))
	p.Steps = append([]plan.Step{step}, p.Steps...)
	return true
}

func (a *Auditor) insertPlaceholderObserve(p *plan.AgentPlan, context plan.StageContext, recorder plan.RepairRecorder) bool {
	url := ""
	for i := len(p.Steps) - 1; i >= 0; i-- {
		if p.Steps[i].Tool.Kind == plan.ToolNavigate {
			url = p.Steps[i].Tool.URL
			break
		}
	}
	if url == "" {
		if best, ok := context.BestKnownURL(); ok {
			url = best
		} else {
			url = context.FallbackSearchURL()
		}
	}
	timeout := 10000
	step := plan.NewStep(p.UniqueStepID("placeholder-observe"), "自动采集页面", plan.CustomTool("data.extract-site", map[string]any{
		"title":  "自动采集页面内容",
		"detail": "Placeholder observation",
		"url":    url,
	}))
	step.Detail = "Fallback observation"
	step.Tool.TimeoutMs = &timeout
	step.Metadata["expected_url"] = url
	idx := insertionIndex(p, StageObserve)
	recorder.MarkStep(&step, "Placeholder observation inserted")
	insertStepAt(p, idx, step)
	return true
}

func (a *Auditor) insertPlaceholderValidate(p *plan.AgentPlan, request plan.Request, context plan.StageContext, recorder plan.RepairRecorder) bool {
	_, observationID, ok := previousObservationStep(p, len(p.Steps))
	if !ok {
		return false
	}
	if len(context.GuardrailKeywords) == 0 && len(context.GuardrailDomains) == 0 {
		return false
	}
	timeout := 3000
	step := plan.NewStep(p.UniqueStepID("placeholder-validate"), "验证目标页面", plan.CustomTool("data.validate-target", map[string]any{
		"source_step_id":  observationID,
		"keywords":        context.GuardrailKeywords,
		"allowed_domains": context.GuardrailDomains,
		"expected_status": 200,
	}))
	step.Detail = "Placeholder target validation"
	step.Tool.TimeoutMs = &timeout
	idx := insertionIndex(p, StageValidate)
	recorder.MarkStep(&step, "Placeholder validation inserted")
	insertStepAt(p, idx, step)
	return true
}

func (a *Auditor) insertPlaceholderParse(p *plan.AgentPlan, request plan.Request, context plan.StageContext, recorder plan.RepairRecorder) bool {
	if !planHasObservationStep(p) {
		a.insertPlaceholderObserve(p, context, recorder)
	}
	_, observationID, ok := previousObservationStep(p, len(p.Steps))
	if !ok {
		return false
	}
	timeout := 5000
	step := plan.NewStep(p.UniqueStepID("placeholder-parse"), "自动解析数据", plan.CustomTool("data.parse.generic", map[string]any{
		"source_step_id": observationID,
		"schema":         "generic_observation_v1",
		"title":          "Auto parser",
		"detail":         "Placeholder parser",
	}))
	step.Detail = "Placeholder parser"
	step.Tool.TimeoutMs = &timeout
	idx := insertionIndex(p, StageParse)
	recorder.MarkStep(&step, "Placeholder parse inserted")
	insertStepAt(p, idx, step)
	a.insertPlaceholderDeliver(p, request, recorder)
	return true
}

func (a *Auditor) insertPlaceholderDeliver(p *plan.AgentPlan, request plan.Request, recorder plan.RepairRecorder) bool {
	if planHasDeliverStep(p) || planHasNoteStep(p) {
		return true
	}
	summary := request.Intent.PrimaryGoal
	if summary == "" {
		summary = request.Goal
	}
	step := plan.NewStep(p.UniqueStepID("agent-note"), "总结结果", plan.CustomTool("agent.note", map[string]any{
		"summary": summary,
	}))
	recorder.MarkStep(&step, "Placeholder agent.note inserted")
	p.Steps = append(p.Steps, step)
	return true
}

// insertStepAt splices step into p.Steps at idx, clamping idx to bounds.
func insertStepAt(p *plan.AgentPlan, idx int, step plan.Step) {
	if idx < 0 {
		idx = 0
	}
	if idx > len(p.Steps) {
		idx = len(p.Steps)
	}
	p.Steps = append(p.Steps, plan.Step{})
	copy(p.Steps[idx+1:], p.Steps[idx:])
	p.Steps[idx] = step
}
