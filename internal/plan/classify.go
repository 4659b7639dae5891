package plan

import "strings"

// parseTools mirrors PARSE_TOOLS + PARSE_TOOL_ALIASES from plan_validator.rs.
var parseTools = map[string]bool{
	"data.parse.generic":             true,
	"data.parse.market_info":         true,
	"data.parse.news_brief":          true,
	"data.parse.weather":             true,
	"data.parse.twitter-feed":        true,
	"data.parse.facebook-feed":       true,
	"data.parse.hackernews-feed":     true,
	"data.parse.linkedin-profile":    true,
	"data.parse.github-repo":         true,
	"parse":                          true,
	"github.extract-repo":            true,
	"data.parse.github.extract-repo": true,
	"data.parse.twitter_feed":        true,
	"data.parse.twitter.feed":        true,
	"data.parse.facebook_feed":       true,
	"data.parse.facebook.feed":       true,
	"data.parse.hackernews_feed":     true,
	"data.parse.hackernews.feed":     true,
	"data.parse.linkedin_profile":    true,
	"data.parse.linkedin.profile":    true,
}

func isParseTool(name string) bool {
	return parseTools[strings.ToLower(strings.TrimSpace(name))]
}

func isObservationTool(name string) bool {
	lowered := strings.ToLower(strings.TrimSpace(name))
	return lowered == "data.extract-site" || lowered == "page.observe"
}

func isDeliverTool(name string) bool {
	lowered := strings.ToLower(strings.TrimSpace(name))
	return lowered == deliverCanonical || strings.HasPrefix(lowered, "data.deliver.")
}

func isNoteTool(name string) bool {
	lowered := strings.ToLower(strings.TrimSpace(name))
	return lowered == "agent.note" || strings.HasSuffix(lowered, "note")
}

func isGithubRepoTool(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "data.parse.github-repo", "github.extract-repo", "data.parse.github.extract-repo":
		return true
	default:
		return false
	}
}

// allowedCustomToolHint lists the supported custom tool surface, echoed in
// validation errors the way plan_validator.rs's ALLOWED_CUSTOM_TOOL_HINT is.
const allowedCustomToolHint = "data.extract-site, data.parse.generic, data.parse.market_info, " +
	"data.parse.news_brief, data.parse.weather, data.parse.twitter-feed, data.parse.facebook-feed, " +
	"data.parse.hackernews-feed, data.parse.linkedin-profile, data.parse.github-repo, " +
	"data.deliver.structured, agent.note, plugin.*, mock.llm.plan"

func isAllowedCustomTool(name string) bool {
	lowered := strings.ToLower(strings.TrimSpace(name))
	if isObservationTool(lowered) || isParseTool(lowered) || isDeliverTool(lowered) || isNoteTool(lowered) {
		return true
	}
	return strings.HasPrefix(lowered, "plugin.") || lowered == "weather.search" || lowered == "mock.llm.plan"
}

func isObservationStep(step Step) bool {
	return step.Tool.Kind == ToolCustom && strings.EqualFold(step.Tool.Name, observationCanonical)
}

func isParseStep(step Step) bool {
	return step.Tool.Kind == ToolCustom && isParseTool(step.Tool.Name)
}

func isDeliverStep(step Step) bool {
	return step.Tool.Kind == ToolCustom && isDeliverTool(step.Tool.Name)
}

func isNoteStep(step Step) bool {
	return step.Tool.Kind == ToolCustom && isNoteTool(step.Tool.Name)
}

func planHasObservation(p *AgentPlan) bool {
	for _, s := range p.Steps {
		if isObservationStep(s) {
			return true
		}
	}
	return false
}

func planHasParseStep(p *AgentPlan) bool {
	for _, s := range p.Steps {
		if isParseStep(s) {
			return true
		}
	}
	return false
}

func planHasDeliverStep(p *AgentPlan) bool {
	for _, s := range p.Steps {
		if isDeliverStep(s) {
			return true
		}
	}
	return false
}

func planHasNoteStep(p *AgentPlan) bool {
	for _, s := range p.Steps {
		if isNoteStep(s) {
			return true
		}
	}
	return false
}

func planHasUserResult(p *AgentPlan) bool {
	return planHasDeliverStep(p) || planHasNoteStep(p)
}

func planHasWeatherMacro(p *AgentPlan) bool {
	for _, s := range p.Steps {
		if s.Tool.Kind == ToolCustom && strings.EqualFold(s.Tool.Name, "weather.search") {
			return true
		}
	}
	return false
}

func planContainsPluginTool(p *AgentPlan) bool {
	for _, s := range p.Steps {
		if s.Tool.Kind == ToolCustom && strings.HasPrefix(strings.ToLower(s.Tool.Name), "plugin.") {
			return true
		}
	}
	return false
}

// resultKeywords mirrors RESULT_KEYWORDS: phrases that signal the user
// expects a visible answer, not just a background action.
var resultKeywords = []string{"查看", "获取", "告诉", "结果", "weather", "天气"}

func containsResultKeywords(text string) bool {
	lowered := strings.ToLower(text)
	for _, keyword := range resultKeywords {
		trimmed := strings.TrimSpace(keyword)
		if trimmed == "" {
			continue
		}
		if strings.Contains(text, trimmed) || strings.Contains(lowered, strings.ToLower(trimmed)) {
			return true
		}
	}
	return false
}

func requiresUserFacingResult(request Request) bool {
	if containsResultKeywords(request.Goal) {
		return true
	}
	return containsResultKeywords(request.Intent.PrimaryGoal)
}

func normalizedSchemaName(input string) (string, bool) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(input), ".json")
	if trimmed == "" {
		return "", false
	}
	return strings.ToLower(trimmed), true
}

func schemaMatchesWeather(schema string) bool {
	normalized, ok := normalizedSchemaName(schema)
	return ok && normalized == "weather_report_v1"
}

// RequiresWeatherPipeline exports requiresWeatherPipeline for callers
// outside this package (the stage auditor's navigation-priority check).
func RequiresWeatherPipeline(request Request) bool {
	return requiresWeatherPipeline(request)
}

func requiresWeatherPipeline(request Request) bool {
	if weatherSubject(request.Intent.PrimaryGoal) != "" || weatherSubject(request.Goal) != "" {
		return true
	}
	for _, output := range request.Intent.RequiredOutputs {
		if schemaMatchesWeather(output.Schema) {
			return true
		}
	}
	return false
}

// weatherSubject is a lightweight stand-in for first_weather_subject: it
// flags text that mentions weather/天气 without attempting full subject
// extraction, which belongs to the planner, not the normalizer.
func weatherSubject(text string) string {
	lowered := strings.ToLower(text)
	if strings.Contains(lowered, "weather") || strings.Contains(text, "天气") {
		return text
	}
	return ""
}

func deliverPayload(step Step) (map[string]any, bool) {
	if !isDeliverStep(step) {
		return nil, false
	}
	return step.Tool.Payload, true
}

func payloadString(payload map[string]any, key string) (string, bool) {
	raw, ok := payload[key]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	return s, true
}

func deliverHasSchema(step Step, schema string) bool {
	payload, ok := deliverPayload(step)
	if !ok {
		return false
	}
	raw, ok := payloadString(payload, "schema")
	if !ok {
		return false
	}
	normalized := strings.ToLower(strings.TrimSuffix(raw, ".json"))
	return normalized == strings.ToLower(schema)
}

func payloadHasUsername(payload map[string]any) bool {
	_, ok := payloadString(payload, "username")
	return ok
}
