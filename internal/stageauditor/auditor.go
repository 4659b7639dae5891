package stageauditor

import (
	"fmt"
	"strings"

	"github.com/soulbrowser/soulbrowser/internal/plan"
)

// Auditor implements plan.StageAuditor: it walks the fixed pipeline order
// and fills whatever stage a raw plan is missing, via a strategy chain
// first and a placeholder synthesizer second. Grounded on StageAuditor in
// agent/mod.rs.
type Auditor struct {
	registry *StrategyRegistry
}

// NewAuditor builds an Auditor against the builtin strategy registry.
func NewAuditor() *Auditor {
	return &Auditor{registry: BuiltinRegistry()}
}

// stageOutcomeKind classifies how a stage ended up satisfied, for the
// stage_timeline entry and overlay text.
type stageOutcomeKind int

const (
	outcomeAlreadyPresent stageOutcomeKind = iota
	outcomeStrategyApplied
	outcomePlaceholderInserted
	outcomeMissing
)

type stageOutcome struct {
	kind       stageOutcomeKind
	strategyID string
}

// Audit satisfies plan.StageAuditor.
func (a *Auditor) Audit(p *plan.AgentPlan, request plan.Request, context plan.StageContext, recorder plan.RepairRecorder) {
	a.recordGuardrailOverlay(p, context, recorder)

	forceDeterministic := shouldForceDeterministic(p, request)
	if forceDeterministic {
		a.resetPlanForDeterministic(p, recorder)
	} else {
		a.retargetBlockedSearchEngines(p, context, recorder)
		a.alignSearchObservations(p, context, recorder)
	}

	var timeline []map[string]any
	for _, stage := range defaultStageOrder(p) {
		var outcome stageOutcome
		if a.stageAlreadySatisfied(p, request, context, stage) {
			outcome = stageOutcome{kind: outcomeAlreadyPresent}
		} else {
			outcome = a.tryChain(p, request, context, stage, recorder)
		}
		timeline = append(timeline, a.emitStageStatus(stage, outcome, recorder))
	}

	if !forceDeterministic {
		a.retargetBlockedSearchEngines(p, context, recorder)
	}
	a.persistStageTimeline(p, timeline)
}

func shouldForceDeterministic(p *plan.AgentPlan, request plan.Request) bool {
	return request.Intent.IntentKind == plan.IntentInformational && len(p.Steps) == 0
}

func (a *Auditor) resetPlanForDeterministic(p *plan.AgentPlan, recorder plan.RepairRecorder) {
	if len(p.Steps) == 0 {
		return
	}
	p.Steps = nil
	recorder.Note("LLM plan overridden by deterministic informational pipeline")
	recorder.Overlay(map[string]any{
		"stage":  StageNavigate.String(),
		"kind":   "deterministic_plan",
		"action": "reset",
		"label":  "♻️ 使用固定阶段图重建计划",
		"reason": "informational_intent",
	})
}

func (a *Auditor) recordGuardrailOverlay(p *plan.AgentPlan, context plan.StageContext, recorder plan.RepairRecorder) {
	if len(context.GuardrailKeywords) == 0 {
		return
	}
	preview := context.GuardrailKeywords
	if len(preview) > 3 {
		preview = preview[:3]
	}
	detail := fmt.Sprintf("注入 %d 个 Guardrail 关键词：%s", len(context.GuardrailKeywords), strings.Join(preview, " / "))
	recorder.Overlay(map[string]any{
		"kind":   "guardrail_keywords",
		"title":  "🎯 Guardrail 关键词注入",
		"detail": detail,
		"badge": map[string]any{
			"label": "Guardrail",
			"value": len(context.GuardrailKeywords),
			"tone":  "info",
		},
		"keywords": context.GuardrailKeywords,
		"domains":  context.GuardrailDomains,
	})
	p.Meta.VendorContext["guardrail_keywords"] = map[string]any{
		"keywords": context.GuardrailKeywords,
		"count":    len(context.GuardrailKeywords),
		"domains":  context.GuardrailDomains,
		"emitted":  false,
	}
}

func (a *Auditor) stageAlreadySatisfied(p *plan.AgentPlan, request plan.Request, context plan.StageContext, stage Stage) bool {
	switch stage {
	case StageNavigate:
		if shouldPrioritizeSearchNavigation(request, context) && !planHasBrowserSearch(p) {
			return false
		}
		return planHasNavigateStep(p)
	case StageAct:
		return planHasAutoAct(p)
	case StageObserve:
		return planHasExtractSite(p)
	case StageValidate:
		return planHasTargetValidation(p)
	case StageParse:
		return planHasParseStep(p)
	case StageDeliver:
		return planHasDeliverStage(p)
	default:
		return planContainsStage(p, stage)
	}
}

func shouldPrioritizeSearchNavigation(request plan.Request, context plan.StageContext) bool {
	if plan.RequiresWeatherPipeline(request) {
		return false
	}
	if len(context.GuardrailKeywords) > 0 {
		return true
	}
	if len(context.PreferredSites) == 0 && len(context.SearchTerms) > 0 {
		return true
	}
	return false
}

func (a *Auditor) tryChain(p *plan.AgentPlan, request plan.Request, context plan.StageContext, stage Stage, recorder plan.RepairRecorder) stageOutcome {
	input := StrategyInput{Plan: p, Request: request, Context: context}

	if stage == StageNavigate && shouldPrioritizeSearchNavigation(request, context) {
		if strategy, ok := a.registry.Get("search"); ok {
			if application, applied := strategy.Apply(input); applied {
				a.applyResult(p, stage, strategy.ID(), application, recorder)
				return stageOutcome{kind: outcomeStrategyApplied, strategyID: strategy.ID()}
			}
		}
	}

	for _, strategyID := range stageChains[stage] {
		strategy, ok := a.registry.Get(strategyID)
		if !ok {
			continue
		}
		application, applied := strategy.Apply(input)
		if applied {
			a.applyResult(p, stage, strategy.ID(), application, recorder)
			return stageOutcome{kind: outcomeStrategyApplied, strategyID: strategy.ID()}
		}
	}

	if a.synthesizePlaceholder(p, request, context, stage, recorder) {
		return stageOutcome{kind: outcomePlaceholderInserted}
	}
	return stageOutcome{kind: outcomeMissing}
}

func (a *Auditor) applyResult(p *plan.AgentPlan, stage Stage, strategyID string, application StrategyApplication, recorder plan.RepairRecorder) {
	if len(application.Steps) == 0 {
		return
	}
	insertAt := insertionIndex(p, stage)
	for _, templateStep := range application.Steps {
		step := templateStep
		step.ID = p.UniqueStepID(fmt.Sprintf("stage-%s", stage.String()))
		note := fmt.Sprintf("Stage '%s' satisfied via strategy '%s'.", stage.String(), strategyID)
		recorder.MarkStep(&step, note)
		insertStepAt(p, insertAt, step)
		insertAt++
	}
	if application.Note != "" {
		recorder.Note(application.Note)
	}
	if application.Overlay != nil {
		recorder.Overlay(application.Overlay)
	}
	for key, value := range application.VendorContext {
		p.Meta.VendorContext[key] = value
	}
}

func (a *Auditor) emitStageStatus(stage Stage, outcome stageOutcome, recorder plan.RepairRecorder) map[string]any {
	label := stageLabel(stage)
	var strategy, status, detail string
	switch outcome.kind {
	case outcomeAlreadyPresent:
		strategy, status = "plan", "existing"
		detail = fmt.Sprintf("✅ 计划已覆盖%s阶段", label)
	case outcomeStrategyApplied:
		strategy, status = outcome.strategyID, "auto_strategy"
		detail = fmt.Sprintf("🧠 策略 %s 补齐%s阶段", outcome.strategyID, label)
	case outcomePlaceholderInserted:
		strategy, status = "placeholder", "placeholder"
		detail = fmt.Sprintf("⚙️ 使用占位步骤补齐%s阶段", label)
	default:
		strategy, status = "missing", "missing"
		detail = fmt.Sprintf("⚠️ 仍缺少%s阶段，请检查任务提示", label)
	}
	recorder.Overlay(map[string]any{
		"stage":    stage.String(),
		"kind":     status,
		"action":   strategy,
		"label":    detail,
	})
	return map[string]any{
		"stage":    stage.String(),
		"label":    label,
		"status":   status,
		"strategy": strategy,
		"detail":   detail,
	}
}

// retargetBlockedSearchEngines rewrites any Navigate/Wait step targeting a
// blocked search engine to the configured fallback, mirroring
// retarget_blocked_search_engines. It runs both before stage strategies (so
// synthesized steps build on a clean slate) and after (in case a strategy
// introduced a fresh blocked URL).
func (a *Auditor) retargetBlockedSearchEngines(p *plan.AgentPlan, context plan.StageContext, recorder plan.RepairRecorder) {
	fallbackURL := context.FallbackSearchURL()
	if fallbackURL == "" || plan.IsBlockedSearchEngine(fallbackURL) {
		return
	}
	fallbackCondition := plan.BuildURLWaitCondition(fallbackURL)
	rewroteNavigation := false
	for i := range p.Steps {
		step := &p.Steps[i]
		switch step.Tool.Kind {
		case plan.ToolNavigate:
			if !plan.IsBlockedSearchEngine(step.Tool.URL) {
				continue
			}
			previous := step.Tool.URL
			step.Tool.URL = fallbackURL
			if step.Detail == "" {
				step.Detail = fmt.Sprintf("打开搜索结果：%s", context.SearchSeed())
			}
			if step.Metadata == nil {
				step.Metadata = map[string]any{}
			}
			step.Metadata["expected_url"] = fallbackURL
			recorder.MarkStep(step, fmt.Sprintf("Search engine '%s' replaced with fallback '%s'", previous, fallbackURL))
			rewroteNavigation = true
		case plan.ToolWait:
			if waitConditionTargetsBlockedSearch(step.Tool.Condition) {
				step.Tool.Condition = fallbackCondition
				recorder.Note(fmt.Sprintf("Wait condition retargeted to %s", fallbackURL))
			}
		}
	}
	if rewroteNavigation {
		recorder.Overlay(map[string]any{
			"stage":  StageNavigate.String(),
			"kind":   "adjust",
			"action": "search_engine_fallback",
			"label":  "🔍 搜索引擎不可用，改用备用入口",
			"seed":   context.SearchSeed(),
		})
	}
}

func waitConditionTargetsBlockedSearch(c plan.WaitCondition) bool {
	switch c.Kind {
	case plan.WaitUrlEquals, plan.WaitUrlMatches:
		return plan.IsBlockedSearchEngine(c.Operand)
	default:
		return false
	}
}

// alignSearchObservations redirects an observation step still pointed at a
// bare Baidu homepage (not yet a search-results URL) to the request's
// actual search-results URL, mirroring align_search_observations.
func (a *Auditor) alignSearchObservations(p *plan.AgentPlan, context plan.StageContext, recorder plan.RepairRecorder) {
	if len(context.SearchTerms) == 0 {
		return
	}
	targetURL := context.FallbackSearchURL()
	for i := range p.Steps {
		step := &p.Steps[i]
		if step.Tool.Kind != plan.ToolCustom || step.Tool.Name != "data.extract-site" {
			continue
		}
		if step.Tool.Payload == nil {
			step.Tool.Payload = map[string]any{}
		}
		currentURL, _ := step.Tool.Payload["url"].(string)
		if !strings.Contains(currentURL, "baidu.com") || strings.Contains(currentURL, "baidu.com/s?") {
			continue
		}
		step.Tool.Payload["url"] = targetURL
		recorder.MarkStep(step, fmt.Sprintf("Retarget observation to %s", targetURL))
		if step.Metadata == nil {
			step.Metadata = map[string]any{}
		}
		step.Metadata["expected_url"] = targetURL
		ensureObserveValidations(step, targetURL, recorder)
		recorder.Overlay(map[string]any{
			"stage":   StageObserve.String(),
			"kind":    "adjust",
			"action":  "search_align",
			"label":   "🔄 观察改为搜索结果页",
			"step_id": step.ID,
		})
	}
}

// ensureObserveValidations attaches a navigation-wait validation plus a
// results-visible validation to an Observe-stage step, mirroring
// ensure_observe_validations. Left out of Normalizer's own pass list since
// it is specific to the Observe-stage strategy, not a general repair.
func ensureObserveValidations(step *plan.Step, url string, recorder plan.RepairRecorder) {
	for _, v := range step.Validations {
		if v.Condition.Kind == plan.WaitUrlMatches || v.Condition.Kind == plan.WaitUrlEquals {
			return
		}
	}
	step.Validations = append(step.Validations,
		plan.Validation{Description: fmt.Sprintf("等待跳转至 %s", url), Condition: plan.BuildURLWaitCondition(url)},
		plan.Validation{Description: "等待结果列表出现", Condition: plan.ElementVisibleWait(plan.CssLocator("div#content_left"))},
	)
	recorder.Overlay(map[string]any{
		"stage":   StageObserve.String(),
		"kind":    "wait",
		"action":  "search_wait",
		"label":   "⏱️ 等待搜索结果加载",
		"step_id": step.ID,
	})
}

func (a *Auditor) persistStageTimeline(p *plan.AgentPlan, timeline []map[string]any) {
	if len(timeline) == 0 {
		return
	}
	p.Meta.VendorContext["stage_timeline"] = map[string]any{"stages": timeline}
}
