package plan

import (
	"fmt"
	"regexp"
	"strings"
)

// RepairRecorder is the subset of repairLedger a stage auditor needs to log
// its own changes against a Normalizer's shared ledger: a plain note, a UI
// overlay, or a per-step repair mark.
type RepairRecorder interface {
	Note(note string)
	Overlay(overlay map[string]any)
	MarkStep(step *Step, note string)
}

// StageAuditor is the subset of the stage auditor a Normalizer delegates
// to for pass 3 (stage audit). A nil StageAuditor skips that pass, which
// lets this package be used standalone before internal/stageauditor is
// wired in by the caller.
type StageAuditor interface {
	Audit(plan *AgentPlan, request Request, context StageContext, recorder RepairRecorder)
}

// Normalizer turns a raw planner-produced AgentPlan into something the
// scheduler can safely run, recording every change it makes. Grounded on
// normalize_plan in agent/mod.rs; each method below corresponds to one (or
// a tightly related group) of its constituent passes.
type Normalizer struct {
	stageAuditor StageAuditor
}

func NewNormalizer(stageAuditor StageAuditor) *Normalizer {
	return &Normalizer{stageAuditor: stageAuditor}
}

// Normalize runs all the repair passes below in order and returns a report
// of everything it changed.
func (n *Normalizer) Normalize(p *AgentPlan, request Request) RepairReport {
	ledger := newRepairLedger(repairNoteBudget)
	context := NewStageContext(request)

	n.normalizeCustomTools(p, ledger)          // 1. alias normalization
	n.shimUnsupportedCustomTools(p, ledger)    // 2. unknown-tool shimming
	n.auditStages(p, request, context, ledger) // 3. stage audit (delegated)
	n.ensureWeatherMacro(p, request, context, ledger) // 4. weather macro
	n.ensureClickValidations(p, context, ledger)      // 5. click validations
	n.ensureBrowserSearchPayloads(p, context, ledger) // 6. browser.search back-fill
	n.ensureStructuredOutputDeliveries(p, request, ledger) // 7. structured-output pipelines
	n.ensureGithubRepoUsernames(p, request, ledger)        // 8. github username fill
	n.removeEmptyNavigateSteps(p, ledger)    // 9a. navigation cleanup
	n.pruneWeatherNavigation(p, request, ledger)     // 9b.
	n.pruneWeatherFollowupSteps(p, ledger)            // 9c.
	n.retargetWaitTools(p, context, ledger)   // 10. search-engine fallback
	n.autoFillDeliverSchema(p, ledger)
	n.autoFillDeliverMetadata(p, ledger)
	n.autoInsertGenericParse(p, ledger)
	n.ensureWeatherParseAndDeliver(p, request, ledger) // weather parse/deliver pipeline
	n.ensureUserResultStep(p, request, ledger)         // 11. user-facing answer
	n.applyExecutionTweaks(p)                  // 12. execution tweaks

	report := ledger.intoReport()
	n.attachRepairMetadata(p, report)
	return report
}

func (n *Normalizer) auditStages(p *AgentPlan, request Request, context StageContext, ledger *repairLedger) {
	if n.stageAuditor == nil {
		return
	}
	n.stageAuditor.Audit(p, request, context, ledger)
}

// 1. Alias normalization: rewrite legacy/alias tool names to canonical
// form, or promote a well-formed browser.* Custom payload to its typed
// Tool variant.
func (n *Normalizer) normalizeCustomTools(p *AgentPlan, ledger *repairLedger) int {
	rewrites := 0
	for i := range p.Steps {
		step := &p.Steps[i]
		previousName := ""
		hadName := step.Tool.Kind == ToolCustom
		if hadName {
			previousName = step.Tool.Name
		}
		if normalizeStepTool(step) {
			var note string
			switch {
			case hadName && step.Tool.Kind == ToolCustom:
				note = fmt.Sprintf("Normalized custom tool '%s' -> '%s'", previousName, step.Tool.Name)
			case hadName:
				note = fmt.Sprintf("Rewrote tool alias '%s' into builtin action", previousName)
			default:
				note = "Normalized tool alias"
			}
			ledger.markStep(step, note)
			rewrites++
		}
	}
	return rewrites
}

// 2. Unknown-tool shimming: a Custom tool name that isn't on the allowed
// list gets rewritten to plugin.<slug> so the registry can still route it
// to a plugin executor instead of failing outright.
func (n *Normalizer) shimUnsupportedCustomTools(p *AgentPlan, ledger *repairLedger) int {
	updates := 0
	for i := range p.Steps {
		step := &p.Steps[i]
		if step.Tool.Kind != ToolCustom {
			continue
		}
		if isAllowedCustomTool(step.Tool.Name) {
			continue
		}
		original := step.Tool.Name
		slug := pluginSlug(original)
		step.Tool.Name = "plugin." + slug
		ledger.markStep(step, fmt.Sprintf("Shimmed unsupported tool '%s' as '%s'", original, step.Tool.Name))
		updates++
	}
	return updates
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

func pluginSlug(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	slug := nonSlugChars.ReplaceAllString(lowered, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "unknown"
	}
	return slug
}

// 4. Weather macro: informational weather requests get a weather.search
// step inserted at the head of the plan if one isn't already present.
func (n *Normalizer) ensureWeatherMacro(p *AgentPlan, request Request, context StageContext, ledger *repairLedger) int {
	if !requiresWeatherPipeline(request) {
		return 0
	}
	if planHasWeatherMacro(p) {
		return 0
	}
	query := context.SearchSeed()
	if query == "" {
		query = request.Goal
	}
	step := NewStep(p.UniqueStepID("weather-search"), "天气搜索", CustomTool("weather.search", map[string]any{
		"query":           query,
		"result_selector": "div#content_left",
	}))
	step.Detail = "自动插入 weather.search 宏工具"
	timeout := 30000
	step.Tool.TimeoutMs = &timeout
	ledger.markStep(&step, "确保天气搜索使用宏工具")
	p.Steps = append([]Step{step}, p.Steps...)
	return 1
}

const (
	expectedURLMetadataKey       = "expected_url"
	skipClickValidationMetadataKey = "skip_click_validation"
)

// 5. Click validations: every Click step gets a navigation-style
// validation synthesized if it doesn't already have one, preferring an
// explicit expected_url hint, falling back to the best known URL or the
// search-engine fallback.
func (n *Normalizer) ensureClickValidations(p *AgentPlan, context StageContext, ledger *repairLedger) {
	fallbackURL, ok := context.BestKnownURL()
	if !ok {
		fallbackURL = context.FallbackSearchURL()
	}
	for i := range p.Steps {
		step := &p.Steps[i]
		if step.Tool.Kind != ToolClick {
			continue
		}
		if skip, _ := step.Metadata[skipClickValidationMetadataKey].(bool); skip {
			continue
		}
		if n.hasNavigationValidation(step) {
			continue
		}

		targetURL := fallbackURL
		if hint, ok := step.Metadata[expectedURLMetadataKey].(string); ok && strings.TrimSpace(hint) != "" {
			targetURL = hint
		} else if hint, ok := hrefHintFromLocator(step.Tool.Locator); ok {
			targetURL = hint
		}

		domainOnly, ok := domainFromURL(targetURL)
		if !ok {
			domainOnly = targetURL
		}
		pattern := buildDomainMatchPattern(domainOnly)
		condition := UrlMatchesWait(pattern)
		description := fmt.Sprintf("自动等待跳转至 %s", targetURL)

		step.Validations = append(step.Validations, Validation{Description: description, Condition: condition})
		if _, ok := step.Metadata[expectedURLMetadataKey]; !ok {
			step.metadataMap()[expectedURLMetadataKey] = targetURL
		}
		ledger.markStep(step, fmt.Sprintf("Auto-added click validation targeting %s", targetURL))
		ledger.recordOverlay(map[string]any{
			"stage":   "act",
			"kind":    "click_validation",
			"action":  "adjust",
			"label":   "🔁 自动补齐点击跳转校验",
			"target":  targetURL,
			"step_id": step.ID,
		})
	}
}

func (n *Normalizer) hasNavigationValidation(step *Step) bool {
	for _, v := range step.Validations {
		if v.Condition.CoversNavigation() {
			return true
		}
	}
	return false
}

// hrefHintFromLocator extracts a domain/URL hint from a CSS selector like
// `a[href*="example.com"]`, a simplified stand-in for the original's
// richer href-hint inference.
var hrefHintPattern = regexp.MustCompile(`href\*?=["']([^"']+)["']`)

func hrefHintFromLocator(l Locator) (string, bool) {
	if l.Kind != LocatorCss {
		return "", false
	}
	match := hrefHintPattern.FindStringSubmatch(l.Css)
	if match == nil {
		return "", false
	}
	hint := match[1]
	if strings.Contains(hint, "://") {
		return hint, true
	}
	return normalizeDomainHintToURL(hint), true
}

// 6. browser.search payload back-fill: fill in a missing query from the
// best known search term, and a missing site from the request's preferred
// sites.
func (n *Normalizer) ensureBrowserSearchPayloads(p *AgentPlan, context StageContext, ledger *repairLedger) {
	fallbackQuery := context.SearchSeed()
	var siteHint string
	if len(context.PreferredSites) > 0 {
		siteHint = context.PreferredSites[0]
	}

	for i := range p.Steps {
		step := &p.Steps[i]
		if step.Tool.Kind != ToolCustom || !strings.EqualFold(step.Tool.Name, "browser.search") {
			continue
		}
		if step.Tool.Payload == nil {
			step.Tool.Payload = map[string]any{}
		}
		payload := step.Tool.Payload

		if query, ok := payloadString(payload, "query"); !ok || query == "" {
			payload["query"] = fallbackQuery
			ledger.markStep(step, fmt.Sprintf("自动补全 browser.search 查询词：%s", fallbackQuery))
		}
		if _, has := payload["site"]; !has && siteHint != "" {
			payload["site"] = siteHint
			ledger.markStep(step, fmt.Sprintf("为 browser.search 添加站点限定：%s", siteHint))
		}
	}
}

// 7. Structured-output pipelines: every required_output without a
// matching deliver step gets a parse step (bound to the most recent
// observation) and a deliver step (bound to that parse step) appended.
func (n *Normalizer) ensureStructuredOutputDeliveries(p *AgentPlan, request Request, ledger *repairLedger) int {
	if len(request.Intent.RequiredOutputs) == 0 {
		return 0
	}
	updates := 0
	for _, output := range request.Intent.RequiredOutputs {
		schema, ok := normalizedSchemaName(output.Schema)
		if !ok {
			continue
		}
		if n.planHasDeliverSchema(p, schema) {
			continue
		}
		obsIndex, obsID, ok := n.previousObservationStep(p, len(p.Steps))
		if !ok {
			continue
		}
		parseID := n.insertAutoParse(p, obsIndex, obsID, schema, ledger)

		deliverStep := NewStep(p.UniqueStepID("deliver-"+schema), "交付结构化数据", CustomTool(deliverCanonical, map[string]any{
			"schema":          schema,
			"artifact_label":  "structured." + schema,
			"filename":        schema + ".json",
			"source_step_id":  parseID,
		}))
		deliverStep.Detail = fmt.Sprintf("自动交付 %s 结果", schema)
		timeout := 4000
		deliverStep.Tool.TimeoutMs = &timeout
		ledger.markStep(&deliverStep, fmt.Sprintf("Inserted deliver step for schema %s", schema))
		p.Steps = append(p.Steps, deliverStep)
		updates += 2
	}
	return updates
}

func (n *Normalizer) planHasDeliverSchema(p *AgentPlan, schema string) bool {
	for _, s := range p.Steps {
		if deliverHasSchema(s, schema) {
			return true
		}
	}
	return false
}

func (n *Normalizer) previousObservationStep(p *AgentPlan, endIndex int) (int, string, bool) {
	for i := endIndex - 1; i >= 0; i-- {
		if isObservationStep(p.Steps[i]) {
			return i, p.Steps[i].ID, true
		}
	}
	return 0, "", false
}

func (n *Normalizer) insertAutoParse(p *AgentPlan, observationIndex int, observationID, schema string, ledger *repairLedger) string {
	parseID := p.UniqueStepID(observationID + "-parse")
	parseStep := NewStep(parseID, "自动解析结构化数据", CustomTool(genericParseCanonical, map[string]any{
		"source_step_id": observationID,
		"schema":         schema,
		"title":          "Auto parse observation",
		"detail":         fmt.Sprintf("Synthesized parser for %s", schema),
	}))
	parseStep.Detail = "自动插入的 data.parse.generic，用于补齐 deliver 依赖"
	timeout := 5000
	parseStep.Tool.TimeoutMs = &timeout
	ledger.markStep(&parseStep, fmt.Sprintf("Inserted generic parser for schema %s", schema))

	p.Steps = append(p.Steps, Step{})
	copy(p.Steps[observationIndex+2:], p.Steps[observationIndex+1:])
	p.Steps[observationIndex+1] = parseStep
	return parseID
}

// 8. GitHub username fill: a data.parse.github-repo step missing
// payload.username gets it inferred from a nearby Navigate step's
// github.com/<user> URL, or from the request's current_url.
func (n *Normalizer) ensureGithubRepoUsernames(p *AgentPlan, request Request, ledger *repairLedger) int {
	updates := 0
	for i := range p.Steps {
		step := &p.Steps[i]
		if step.Tool.Kind != ToolCustom || !isGithubRepoTool(step.Tool.Name) {
			continue
		}
		if payloadHasUsername(step.Tool.Payload) {
			continue
		}
		username, ok := n.inferGithubUsername(p, i, request)
		if !ok {
			continue
		}
		if step.Tool.Payload == nil {
			step.Tool.Payload = map[string]any{}
		}
		step.Tool.Payload["username"] = username
		ledger.markStep(step, fmt.Sprintf("Filled missing GitHub username '%s'", username))
		updates++
	}
	return updates
}

var githubUserPattern = regexp.MustCompile(`github\.com/([A-Za-z0-9-]+)`)

func (n *Normalizer) inferGithubUsername(p *AgentPlan, stepIndex int, request Request) (string, bool) {
	for _, order := range [][2]int{{stepIndex, -1}, {stepIndex, 1}} {
		start, dir := order[0], order[1]
		for i := start; i >= 0 && i < len(p.Steps); i += dir {
			if p.Steps[i].Tool.Kind != ToolNavigate {
				continue
			}
			if match := githubUserPattern.FindStringSubmatch(p.Steps[i].Tool.URL); match != nil {
				return match[1], true
			}
		}
	}
	if match := githubUserPattern.FindStringSubmatch(request.Context.CurrentURL); match != nil {
		return match[1], true
	}
	return "", false
}

// 9a. Navigation cleanup: drop Navigate steps with an empty URL.
func (n *Normalizer) removeEmptyNavigateSteps(p *AgentPlan, ledger *repairLedger) int {
	kept := p.Steps[:0:0]
	removed := 0
	for _, step := range p.Steps {
		if step.Tool.Kind == ToolNavigate && strings.TrimSpace(step.Tool.URL) == "" {
			ledger.recordNote(fmt.Sprintf("Removed navigate step '%s' with empty URL", step.ID))
			removed++
			continue
		}
		kept = append(kept, step)
	}
	p.Steps = kept
	return removed
}

// 9b. When a weather.search macro is present, any legacy navigate steps
// are redundant and removed; otherwise only the first of multiple
// navigates toward a weather search is kept.
func (n *Normalizer) pruneWeatherNavigation(p *AgentPlan, request Request, ledger *repairLedger) int {
	if !requiresWeatherPipeline(request) {
		return 0
	}
	removed := 0
	if planHasWeatherMacro(p) {
		kept := p.Steps[:0:0]
		for _, step := range p.Steps {
			if step.Tool.Kind == ToolNavigate {
				ledger.recordNote(fmt.Sprintf("Removed legacy navigate '%s' in favor of weather.search", step.ID))
				removed++
				continue
			}
			kept = append(kept, step)
		}
		p.Steps = kept
		return removed
	}

	seenNav := 0
	kept := p.Steps[:0:0]
	for _, step := range p.Steps {
		if step.Tool.Kind == ToolNavigate {
			seenNav++
			if seenNav > 1 {
				ledger.recordNote(fmt.Sprintf("Removed redundant weather navigation '%s'", step.ID))
				removed++
				continue
			}
		}
		kept = append(kept, step)
	}
	p.Steps = kept
	return removed
}

// 9c. Once a weather.search macro runs, any Act steps before the next
// Parse/Deliver stage are redundant, and only the latest Observe before
// that boundary is kept.
func (n *Normalizer) pruneWeatherFollowupSteps(p *AgentPlan, ledger *repairLedger) int {
	if !planHasWeatherMacro(p) {
		return 0
	}
	macroIdx := -1
	for i, s := range p.Steps {
		if s.Tool.Kind == ToolCustom && strings.EqualFold(s.Tool.Name, "weather.search") {
			macroIdx = i
			break
		}
	}
	if macroIdx < 0 {
		return 0
	}

	removed := 0
	var observeIndices []int
	kept := append([]Step{}, p.Steps[:macroIdx+1]...)
	for i := macroIdx + 1; i < len(p.Steps); i++ {
		step := p.Steps[i]
		if isParseStep(step) || isDeliverStep(step) {
			kept = append(kept, p.Steps[i:]...)
			break
		}
		if isObservationStep(step) {
			observeIndices = append(observeIndices, len(kept))
			kept = append(kept, step)
			continue
		}
		ledger.recordNote(fmt.Sprintf("Removed redundant step '%s' after weather.search", step.ID))
		removed++
	}
	if len(observeIndices) > 1 {
		drop := make(map[int]bool, len(observeIndices)-1)
		for _, idx := range observeIndices[:len(observeIndices)-1] {
			drop[idx] = true
		}
		pruned := kept[:0:0]
		for i, s := range kept {
			if drop[i] {
				ledger.recordNote(fmt.Sprintf("Removed redundant observation '%s' after weather.search", s.ID))
				removed++
				continue
			}
			pruned = append(pruned, s)
		}
		kept = pruned
	}
	p.Steps = kept
	return removed
}

// 10. Search-engine fallback: any Wait tool targeting a blocked search
// engine gets retargeted to the configured fallback.
func (n *Normalizer) retargetWaitTools(p *AgentPlan, context StageContext, ledger *repairLedger) {
	fallbackURL := context.FallbackSearchURL()
	if fallbackURL == "" || isBlockedSearchEngine(fallbackURL) {
		return
	}
	fallbackCondition := buildURLWaitCondition(fallbackURL)
	for i := range p.Steps {
		step := &p.Steps[i]
		if step.Tool.Kind != ToolWait {
			continue
		}
		if n.waitConditionTargetsBlockedSearch(step.Tool.Condition) {
			step.Tool.Condition = fallbackCondition
			ledger.recordNote(fmt.Sprintf("Wait condition retargeted to %s", fallbackURL))
		}
	}
}

func (n *Normalizer) waitConditionTargetsBlockedSearch(c WaitCondition) bool {
	switch c.Kind {
	case WaitUrlEquals, WaitUrlMatches:
		return isBlockedSearchEngine(c.Operand)
	default:
		return false
	}
}

// auto-fill deliver schema/metadata: when a deliver step's payload is
// missing schema/artifact_label/filename, infer them from the most recent
// parse step ahead of it in the plan.
func (n *Normalizer) autoFillDeliverSchema(p *AgentPlan, ledger *repairLedger) int {
	updates := 0
	for i := range p.Steps {
		step := &p.Steps[i]
		payload, ok := deliverPayload(*step)
		if !ok {
			continue
		}
		if _, has := payloadString(payload, "schema"); has {
			continue
		}
		schema, ok := n.inferSchemaFromPreviousParse(p, i)
		if !ok {
			continue
		}
		payload["schema"] = schema
		ledger.markStep(step, fmt.Sprintf("Auto-filled deliver schema as %s", schema))
		updates++
	}
	return updates
}

func (n *Normalizer) inferSchemaFromPreviousParse(p *AgentPlan, endIndex int) (string, bool) {
	for i := endIndex - 1; i >= 0; i-- {
		if !isParseStep(p.Steps[i]) {
			continue
		}
		if schema, ok := payloadString(p.Steps[i].Tool.Payload, "schema"); ok {
			return schema, true
		}
	}
	return "", false
}

func (n *Normalizer) autoFillDeliverMetadata(p *AgentPlan, ledger *repairLedger) int {
	updates := 0
	for i := range p.Steps {
		step := &p.Steps[i]
		payload, ok := deliverPayload(*step)
		if !ok {
			continue
		}
		schema, hasSchema := payloadString(payload, "schema")
		var changed []string
		if _, has := payloadString(payload, "artifact_label"); !has && hasSchema {
			payload["artifact_label"] = "structured." + schema
			changed = append(changed, "artifact_label")
		}
		if _, has := payloadString(payload, "filename"); !has && hasSchema {
			payload["filename"] = schema + ".json"
			changed = append(changed, "filename")
		}
		if len(changed) > 0 {
			ledger.markStep(step, fmt.Sprintf("Auto-filled deliver %s", strings.Join(changed, "/")))
			updates++
		}
	}
	return updates
}

// autoInsertGenericParse links a deliver step missing source_step_id to the
// nearest earlier parse step, inserting one bound to the nearest earlier
// observation if no parse step exists yet.
func (n *Normalizer) autoInsertGenericParse(p *AgentPlan, ledger *repairLedger) int {
	updates := 0
	for i := 0; i < len(p.Steps); i++ {
		step := &p.Steps[i]
		payload, ok := deliverPayload(*step)
		if !ok {
			continue
		}
		if _, has := payloadString(payload, "source_step_id"); has {
			continue
		}
		if parseIdx, parseID, ok := n.previousParseStep(p, i); ok {
			_ = parseIdx
			payload["source_step_id"] = parseID
			ledger.markStep(step, fmt.Sprintf("Linked deliver step to prior parse '%s'", parseID))
			updates++
			continue
		}
		obsIdx, obsID, ok := n.previousObservationStep(p, i)
		if !ok {
			continue
		}
		schema, _ := payloadString(payload, "schema")
		if schema == "" {
			schema = "generic_observation_v1"
		}
		parseID := n.insertAutoParse(p, obsIdx, obsID, schema, ledger)
		i++ // account for the inserted step shifting indices
		p.Steps[i].Tool.Payload["source_step_id"] = parseID
		updates++
	}
	return updates
}

func (n *Normalizer) previousParseStep(p *AgentPlan, endIndex int) (int, string, bool) {
	for i := endIndex - 1; i >= 0; i-- {
		if isParseStep(p.Steps[i]) {
			return i, p.Steps[i].ID, true
		}
	}
	return 0, "", false
}

// ensureWeatherParseAndDeliver guarantees a weather-intent plan ends with a
// real data.parse.weather step and a deliver step bound to
// weather_report_v1, inserting or retargeting whatever is already there and
// then collapsing any leftover duplicate weather deliver steps down to one.
// Mirrors auto_insert_weather_parse/retarget_deliver_to_weather/
// prune_duplicate_weather_deliver.
func (n *Normalizer) ensureWeatherParseAndDeliver(p *AgentPlan, request Request, ledger *repairLedger) int {
	if !requiresWeatherPipeline(request) {
		return 0
	}
	updates := 0
	insertedPipeline := false

	parseStepID, ok := n.findWeatherParseStep(p)
	if !ok {
		obsIndex, obsID, hasObs := n.previousObservationStep(p, len(p.Steps))
		if !hasObs {
			return 0
		}
		parseStepID = n.insertWeatherParse(p, obsIndex, obsID, ledger)
		updates++
		insertedPipeline = true
	}

	foundDeliver := false
	for i := range p.Steps {
		step := &p.Steps[i]
		payload, ok := deliverPayload(*step)
		if !ok {
			continue
		}
		schema, hasSchema := payloadString(payload, "schema")
		if hasSchema && schemaMatchesWeather(schema) {
			retargetDeliverToWeather(payload, parseStepID)
			ledger.markStep(step, fmt.Sprintf("Linked weather deliver '%s' to parser %s", step.ID, parseStepID))
			ledger.recordOverlay(map[string]any{
				"stage": "deliver", "kind": "weather_align", "action": "adjust",
				"label": "🌦️ 校准天气交付", "step_id": step.ID,
			})
			updates++
			foundDeliver = true
			break
		}
		retargetDeliverToWeather(payload, parseStepID)
		ledger.markStep(step, fmt.Sprintf("Retargeted deliver '%s' to weather schema", step.ID))
		ledger.recordOverlay(map[string]any{
			"stage": "deliver", "kind": "weather_adjust", "action": "adjust",
			"label": "🌦️ 调整交付为 weather_report_v1", "step_id": step.ID,
		})
		updates++
		foundDeliver = true
		break
	}

	if !foundDeliver {
		deliverStep := NewStep(p.UniqueStepID("deliver-weather"), "交付天气数据", CustomTool(deliverCanonical, map[string]any{
			"schema":         "weather_report_v1",
			"artifact_label": "structured.weather_report_v1",
			"filename":       "weather_report_v1.json",
			"source_step_id": parseStepID,
		}))
		deliverStep.Detail = "自动插入的 data.deliver.structured，用于天气报告"
		timeout := 4000
		deliverStep.Tool.TimeoutMs = &timeout
		ledger.markStep(&deliverStep, "Inserted deliver step for weather report")
		p.Steps = append(p.Steps, deliverStep)
		updates++
		insertedPipeline = true
	}

	if insertedPipeline {
		ledger.recordOverlay(map[string]any{
			"kind":   "repair.weather_pipeline",
			"title":  "已自动补齐天气流水线",
			"detail": fmt.Sprintf("已追加 data.parse.weather / data.deliver.structured 以满足 %s", weatherQueryText(request)),
		})
	}

	return updates + n.pruneDuplicateWeatherDeliver(p, ledger)
}

func (n *Normalizer) findWeatherParseStep(p *AgentPlan) (string, bool) {
	for _, s := range p.Steps {
		if s.Tool.Kind == ToolCustom && strings.EqualFold(s.Tool.Name, weatherParseCanonical) {
			return s.ID, true
		}
	}
	return "", false
}

func (n *Normalizer) insertWeatherParse(p *AgentPlan, observationIndex int, observationID string, ledger *repairLedger) string {
	parseID := p.UniqueStepID(observationID + "-weather-parse")
	parseStep := NewStep(parseID, "解析天气数据", CustomTool(weatherParseCanonical, map[string]any{
		"source_step_id": observationID,
		"title":          "Auto parse weather",
		"detail":         "Synthesized weather parser",
	}))
	parseStep.Detail = "自动插入的 data.parse.weather，用于满足天气查询"
	timeout := 8000
	parseStep.Tool.TimeoutMs = &timeout
	ledger.markStep(&parseStep, "Inserted weather parser")

	p.Steps = append(p.Steps, Step{})
	copy(p.Steps[observationIndex+2:], p.Steps[observationIndex+1:])
	p.Steps[observationIndex+1] = parseStep
	return parseID
}

// retargetDeliverToWeather overwrites payload's schema/artifact_label/
// filename/source_step_id so it delivers the weather parser's output.
func retargetDeliverToWeather(payload map[string]any, parseStepID string) {
	payload["schema"] = "weather_report_v1"
	payload["artifact_label"] = "structured.weather_report_v1"
	payload["filename"] = "weather_report_v1.json"
	payload["source_step_id"] = parseStepID
}

// pruneDuplicateWeatherDeliver keeps only the first weather_report_v1
// deliver step, removing any later ones left behind once retargeting
// collapsed multiple deliver steps onto the same schema.
func (n *Normalizer) pruneDuplicateWeatherDeliver(p *AgentPlan, ledger *repairLedger) int {
	seenPrimary := false
	removed := 0
	kept := p.Steps[:0:0]
	for _, step := range p.Steps {
		if payload, ok := deliverPayload(step); ok {
			if schema, hasSchema := payloadString(payload, "schema"); hasSchema && schemaMatchesWeather(schema) {
				if seenPrimary {
					ledger.recordNote(fmt.Sprintf("Removed duplicate weather deliver '%s'", step.ID))
					ledger.recordOverlay(map[string]any{
						"stage": "deliver", "kind": "weather_dedup", "action": "cleanup",
						"label": "♻️ 已去重天气交付", "step_id": step.ID,
					})
					removed++
					continue
				}
				seenPrimary = true
			}
		}
		kept = append(kept, step)
	}
	p.Steps = kept
	return removed
}

// weatherQueryText picks the best available text describing the weather
// request, for the repair overlay's human-readable detail line.
func weatherQueryText(request Request) string {
	if s := weatherSubject(request.Intent.PrimaryGoal); s != "" {
		return s
	}
	if s := weatherSubject(request.Goal); s != "" {
		return s
	}
	return request.Goal
}

// 11. User-facing answer: informational intents, or a goal containing a
// result-seeking keyword, get an agent.note step appended if the plan has
// no agent.note step yet; an existing deliver step does not suppress it.
func (n *Normalizer) ensureUserResultStep(p *AgentPlan, request Request, ledger *repairLedger) int {
	needsResult := request.Intent.IntentKind == IntentInformational || requiresUserFacingResult(request)
	if !needsResult {
		return 0
	}
	if planHasNoteStep(p) {
		return 0
	}
	step := n.buildAutoNoteStep(request)
	ledger.markStep(&step, "Appended agent.note for user-facing answer")
	p.Steps = append(p.Steps, step)
	return 1
}

func (n *Normalizer) buildAutoNoteStep(request Request) Step {
	summary := strings.TrimSpace(request.Intent.PrimaryGoal)
	if summary == "" {
		summary = strings.TrimSpace(request.Goal)
	}
	return NewStep("agent-note", "总结结果", CustomTool("agent.note", map[string]any{
		"summary": summary,
	}))
}

// 12. Execution tweaks: enforce a minimum navigation timeout, downgrade
// Navigate's WaitMode::Idle to DomReady, and upgrade a TypeText
// immediately following a Navigate to wait for DomReady too.
func (n *Normalizer) applyExecutionTweaks(p *AgentPlan) {
	const minNavTimeoutMs = 30000
	expectFreshTypeWait := false
	for i := range p.Steps {
		step := &p.Steps[i]
		switch step.Tool.Kind {
		case ToolNavigate:
			if step.Tool.TimeoutMs == nil || *step.Tool.TimeoutMs < minNavTimeoutMs {
				timeout := minNavTimeoutMs
				step.Tool.TimeoutMs = &timeout
			}
			if step.Tool.Wait == WaitModeIdle {
				step.Tool.Wait = WaitModeDomReady
			}
			expectFreshTypeWait = true
		case ToolTypeText:
			if expectFreshTypeWait && step.Tool.Wait == WaitModeNone {
				step.Tool.Wait = WaitModeDomReady
			}
			expectFreshTypeWait = false
		case ToolClick, ToolWait, ToolSelect, ToolScroll:
			expectFreshTypeWait = false
		}
	}
}

func (n *Normalizer) attachRepairMetadata(p *AgentPlan, report RepairReport) {
	if !report.HasRepairs() {
		return
	}
	if p.Meta.VendorContext == nil {
		p.Meta.VendorContext = map[string]any{}
	}
	p.Meta.VendorContext["plan_repairs"] = map[string]any{
		"count":            report.TotalRepairs,
		"notes":            report.Notes,
		"budget_exhausted": report.BudgetExhausted,
	}
	p.Meta.VendorContext["auto_repaired"] = true
	if len(report.Overlays) > 0 {
		p.Meta.Overlays = append(p.Meta.Overlays, report.Overlays...)
	}
}

// RepairSummary renders a human preview of a report's first few notes,
// mirroring repair_summary.
func RepairSummary(report RepairReport) (string, bool) {
	if !report.HasRepairs() {
		return "", false
	}
	limit := 3
	preview := report.Notes
	truncated := false
	if len(preview) > limit {
		preview = preview[:limit]
		truncated = true
	}
	body := "details logged"
	if len(preview) > 0 {
		body = strings.Join(preview, " | ")
		if truncated {
			body += " | …"
		}
	}
	return fmt.Sprintf("Auto-fixes applied (%d): %s", report.TotalRepairs, body), true
}
