package planrunner

import (
	"fmt"
	"strings"

	"github.com/soulbrowser/soulbrowser/internal/plan"
)

// Custom tool name tables, grounded on the constant lists in
// original_source/crates/agent-core/src/plan_validator.rs.
var (
	observationTools = []string{"data.extract-site", "page.observe"}
	parseTools       = []string{
		"data.parse.generic",
		"data.parse.market_info",
		"data.parse.news_brief",
		"data.parse.weather",
		"data.parse.twitter-feed",
		"data.parse.facebook-feed",
		"data.parse.hackernews-feed",
		"data.parse.linkedin-profile",
		"data.parse.github-repo",
	}
	parseToolAliases = []string{
		"parse",
		"github.extract-repo",
		"data.parse.github.extract-repo",
		"data.parse.twitter_feed",
		"data.parse.twitter.feed",
		"data.parse.facebook_feed",
		"data.parse.facebook.feed",
		"data.parse.hackernews_feed",
		"data.parse.hackernews.feed",
		"data.parse.linkedin_profile",
		"data.parse.linkedin.profile",
	}
	domParserTools = []string{
		"data.parse.generic",
		"data.parse.market_info",
		"data.parse.news_brief",
		"data.parse.weather",
		"data.parse.twitter-feed",
		"data.parse.facebook-feed",
		"data.parse.hackernews-feed",
		"data.parse.linkedin-profile",
	}
	resultKeywords = []string{"查看", "获取", "告诉", "结果", "weather", "天气"}
)

const allowedCustomToolHint = "data.extract-site, data.parse.generic, data.parse.market_info, " +
	"data.parse.news_brief, data.parse.weather, data.parse.twitter-feed, data.parse.facebook-feed, " +
	"data.parse.hackernews-feed, data.parse.linkedin-profile, data.parse.github-repo, " +
	"data.deliver.structured, agent.note, plugin.*, mock.llm.plan"

// PlanValidationIssue is a semantic defect in an otherwise well-formed plan:
// a data.deliver.structured step missing a required payload field, a click
// step with no navigation-style validation, a strict-mode rule a plan
// violates. Grounded on the PlanValidationIssue enum in plan_validator.rs,
// collapsed to a single struct since Go has no closed sum type: Label
// replaces the variant, Message its formatted Display.
type PlanValidationIssue struct {
	Label       string
	Message     string
	StepID      string
	StepTitle   string
	SourceStepID string
}

func (i *PlanValidationIssue) Error() string { return i.Message }

// ShouldTriggerReplan reports whether this issue is worth asking the
// planner to fix rather than just logging: only a missing deliver schema
// triggers a replan in original_source, since every other issue there is
// either cosmetic or not something a single extra planning pass reliably
// fixes.
func (i *PlanValidationIssue) ShouldTriggerReplan() bool {
	return i.Label == "deliver_missing_schema"
}

func compositeIssue(messages []string) *PlanValidationIssue {
	return &PlanValidationIssue{Label: "composite_violation", Message: strings.Join(messages, " | ")}
}

// PlanValidator checks an AgentPlan against a fixed set of domain rules a
// schema alone can't express (deliver-step payload shape, click validations,
// and, in strict mode, a broader set of plan-shape requirements tied to the
// originating request's intent). Grounded on PlanValidator in
// plan_validator.rs.
type PlanValidator struct {
	Strict bool
}

func NewPlanValidator(strict bool) PlanValidator { return PlanValidator{Strict: strict} }

// DefaultPlanValidator runs only the always-on checks (deliver payload
// shape, click validations, github username), matching PlanValidator::default().
func DefaultPlanValidator() PlanValidator { return PlanValidator{Strict: false} }

// StrictPlanValidator additionally enforces the request-shaped requirements
// in collectStrictRequirements, matching PlanValidator::strict().
func StrictPlanValidator() PlanValidator { return PlanValidator{Strict: true} }

// Validate checks p against request, returning nil when the plan satisfies
// every rule. A deliver-payload defect is returned immediately (it's fatal
// to downstream artifact delivery); every other defect is accumulated and
// returned together as a composite issue, matching plan_validator.rs's
// validate().
func (v PlanValidator) Validate(p *plan.AgentPlan, request plan.Request) error {
	var messages []string

	if msg := missingGithubUsername(p); msg != "" {
		messages = append(messages, msg)
	}
	if msg := navigationMissingURL(p); msg != "" {
		messages = append(messages, msg)
	}
	if issue := deliverPayloadIssue(p); issue != nil {
		return issue
	}
	if msg := missingClickValidations(p); msg != "" {
		messages = append(messages, msg)
	}

	if v.Strict {
		messages = append(messages, v.collectStrictRequirements(p, request)...)
	}

	if len(messages) == 0 {
		return nil
	}
	return compositeIssue(messages)
}

func (v PlanValidator) collectStrictRequirements(p *plan.AgentPlan, request plan.Request) []string {
	var messages []string

	if planContainsPluginTool(p) {
		messages = append(messages, "strict validation forbids plugin.* shims; planner must emit supported tools")
	}

	if len(request.Intent.TargetSites) > 0 && !targetsExpectedSite(p, request.Intent.TargetSites) {
		messages = append(messages, fmt.Sprintf("plan must navigate to one of the preferred sites: %s", strings.Join(request.Intent.TargetSites, ", ")))
	}

	if msg := firstUnsupportedCustomTool(p); msg != "" {
		messages = append(messages, msg)
	}

	if len(request.Intent.RequiredOutputs) > 0 && !planHasDeliverStep(p) {
		messages = append(messages, "structured outputs requested but plan lacks data.deliver.structured")
	}

	if planHasDomParser(p) && !planHasObservation(p) {
		messages = append(messages, "DOM parsers require a prior data.extract-site observation")
	}

	if request.Intent.IntentKind == plan.IntentInformational {
		if !planHasParseStep(p) || !planHasUserResult(p) {
			messages = append(messages, "informational intents must parse data and surface a user-facing result")
		}
	}

	if requiresUserFacingResult(request) && !planHasUserResult(p) {
		messages = append(messages, "request expects a user-facing answer (agent.note or deliver step is required)")
	}

	if requiresWeatherPipeline(request) && !planHasWeatherPipeline(p) {
		messages = append(messages, "weather tasks must include data.parse.weather and structured delivery")
	}

	messages = append(messages, schemaValidationMessages(p)...)

	return messages
}

// schemaValidationMessages runs plan.ValidateDeliverPayload/ValidateCustomPayload
// against every Custom step's payload, catching JSON-shape defects (a
// non-object payload, a field present but of the wrong type) that the
// field-by-field checks above don't express as a JSON Schema would.
func schemaValidationMessages(p *plan.AgentPlan) []string {
	var messages []string
	for _, step := range p.Steps {
		if step.Tool.Kind != plan.ToolCustom {
			continue
		}
		if isDeliverTool(step.Tool.Name) {
			if err := plan.ValidateDeliverPayload(step.Tool.Payload); err != nil {
				messages = append(messages, fmt.Sprintf("step '%s' payload failed schema validation: %v", step.Title, err))
			}
			continue
		}
		if err := plan.ValidateCustomPayload(step.Tool.Name, step.Tool.Payload); err != nil {
			messages = append(messages, fmt.Sprintf("step '%s' payload failed schema validation: %v", step.Title, err))
		}
	}
	return messages
}

func planHasObservation(p *plan.AgentPlan) bool {
	return anyCustomStep(p, func(name string, _ map[string]any) bool {
		return containsFold(observationTools, name)
	})
}

func planHasParseStep(p *plan.AgentPlan) bool {
	return anyCustomStep(p, func(name string, _ map[string]any) bool {
		return isParseTool(name)
	})
}

func planHasDomParser(p *plan.AgentPlan) bool {
	return anyCustomStep(p, func(name string, _ map[string]any) bool {
		return containsFold(domParserTools, name)
	})
}

func planHasDeliverStep(p *plan.AgentPlan) bool {
	return anyCustomStep(p, func(name string, _ map[string]any) bool {
		return isDeliverTool(name)
	})
}

func planHasNoteStep(p *plan.AgentPlan) bool {
	return anyCustomStep(p, func(name string, _ map[string]any) bool {
		return isNoteTool(name)
	})
}

func planHasUserResult(p *plan.AgentPlan) bool {
	return planHasDeliverStep(p) || planHasNoteStep(p)
}

func planHasWeatherParser(p *plan.AgentPlan) bool {
	return anyCustomStep(p, func(name string, _ map[string]any) bool {
		return strings.EqualFold(name, "data.parse.weather")
	})
}

func planHasWeatherDeliver(p *plan.AgentPlan) bool {
	return anyCustomStep(p, func(name string, payload map[string]any) bool {
		return isDeliverTool(name) && payloadHasWeatherSchema(payload)
	})
}

func payloadHasWeatherSchema(payload map[string]any) bool {
	schema, ok := payload["schema"].(string)
	if !ok {
		return false
	}
	normalized := strings.TrimSuffix(strings.TrimSpace(schema), ".json")
	return strings.EqualFold(normalized, "weather_report_v1")
}

func planHasWeatherPipeline(p *plan.AgentPlan) bool {
	return planHasWeatherParser(p) && planHasWeatherDeliver(p)
}

func planContainsPluginTool(p *plan.AgentPlan) bool {
	return anyCustomStep(p, func(name string, _ map[string]any) bool {
		return strings.HasPrefix(name, "plugin.")
	})
}

func targetsExpectedSite(p *plan.AgentPlan, preferredSites []string) bool {
	if len(preferredSites) == 0 {
		return true
	}
	for _, step := range p.Steps {
		if step.Tool.Kind != plan.ToolNavigate {
			continue
		}
		for _, site := range preferredSites {
			if strings.Contains(step.Tool.URL, site) {
				return true
			}
		}
	}
	return false
}

func firstUnsupportedCustomTool(p *plan.AgentPlan) string {
	for _, step := range p.Steps {
		if step.Tool.Kind != plan.ToolCustom {
			continue
		}
		if !isAllowedCustomTool(step.Tool.Name) {
			return fmt.Sprintf("step '%s' uses unsupported custom tool '%s'. Allowed custom tools: %s", step.Title, step.Tool.Name, allowedCustomToolHint)
		}
	}
	return ""
}

// IsAllowedCustomTool reports whether name is one of the custom tools a
// planner may emit. Exported so internal/planrunner's callers can pre-filter
// planner output before it reaches Validate.
func IsAllowedCustomTool(name string) bool { return isAllowedCustomTool(name) }

func isAllowedCustomTool(name string) bool {
	trimmed := strings.TrimSpace(name)
	canonical := strings.ToLower(trimmed)
	return containsFold(observationTools, canonical) ||
		isParseTool(canonical) ||
		isDeliverTool(canonical) ||
		isNoteTool(canonical) ||
		strings.HasPrefix(canonical, "plugin.") ||
		canonical == "weather.search" ||
		canonical == "mock.llm.plan"
}

func isParseTool(name string) bool {
	return containsFold(parseTools, name) || containsFold(parseToolAliases, name)
}

func isGithubRepoTool(name string) bool {
	switch strings.ToLower(name) {
	case "data.parse.github-repo", "github.extract-repo", "data.parse.github.extract-repo":
		return true
	default:
		return false
	}
}

func isDeliverTool(name string) bool {
	return strings.EqualFold(name, "data.deliver.structured") || strings.HasPrefix(name, "data.deliver.")
}

func isNoteTool(name string) bool {
	return strings.EqualFold(name, "agent.note") || strings.HasSuffix(name, "note")
}

func requiresUserFacingResult(request plan.Request) bool {
	return containsResultKeywords(request.Goal) || containsResultKeywords(request.Intent.PrimaryGoal)
}

func containsResultKeywords(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, keyword := range resultKeywords {
		trimmed := strings.TrimSpace(keyword)
		if trimmed == "" {
			continue
		}
		if strings.Contains(text, trimmed) || strings.Contains(lower, strings.ToLower(trimmed)) {
			return true
		}
	}
	return false
}

func requiresWeatherPipeline(request plan.Request) bool {
	for _, output := range request.Intent.RequiredOutputs {
		if schemaMatchesWeather(output.Schema) {
			return true
		}
	}
	return firstWeatherSubject(request.Intent.PrimaryGoal) != "" || firstWeatherSubject(request.Goal) != ""
}

// firstWeatherSubject returns a non-empty marker when text reads as a
// weather request. original_source's first_weather_subject lives in an
// unretained weather.rs and does NLP subject extraction this package has no
// grounding for; this is deliberately a coarse keyword proxy, not a
// reimplementation of that parser.
func firstWeatherSubject(text string) string {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "weather") || strings.Contains(text, "天气") {
		return text
	}
	return ""
}

func schemaMatchesWeather(schema string) bool {
	normalized := strings.TrimSuffix(strings.TrimSpace(schema), ".json")
	return strings.EqualFold(normalized, "weather_report_v1")
}

func missingClickValidations(p *plan.AgentPlan) string {
	for _, step := range p.Steps {
		if step.Tool.Kind != plan.ToolClick {
			continue
		}
		if !hasRequiredClickValidation(step) {
			return fmt.Sprintf("click step '%s' must include wait_for url contains or DOM validation", step.Title)
		}
	}
	return ""
}

func hasRequiredClickValidation(step plan.Step) bool {
	for _, v := range step.Validations {
		if v.Condition.CoversNavigation() {
			return true
		}
	}
	return false
}

func missingGithubUsername(p *plan.AgentPlan) string {
	for _, step := range p.Steps {
		if step.Tool.Kind != plan.ToolCustom || !isGithubRepoTool(step.Tool.Name) {
			continue
		}
		username, _ := step.Tool.Payload["username"].(string)
		if strings.TrimSpace(username) == "" {
			return fmt.Sprintf("step '%s' invoking data.parse.github-repo must set payload.username (GitHub handle without '@')", step.Title)
		}
	}
	return ""
}

func navigationMissingURL(p *plan.AgentPlan) string {
	for _, step := range p.Steps {
		if step.Tool.Kind != plan.ToolNavigate {
			continue
		}
		if strings.TrimSpace(step.Tool.URL) == "" {
			return fmt.Sprintf("step '%s' invoking navigate must specify a non-empty url", step.Title)
		}
	}
	return ""
}

func deliverPayloadIssue(p *plan.AgentPlan) *PlanValidationIssue {
	for idx, step := range p.Steps {
		if step.Tool.Kind != plan.ToolCustom || !isDeliverTool(step.Tool.Name) {
			continue
		}
		payload := step.Tool.Payload

		if payloadString(payload, "schema") == "" {
			return &PlanValidationIssue{Label: "deliver_missing_schema", StepID: step.ID, StepTitle: step.Title,
				Message: fmt.Sprintf("step '%s' invoking data.deliver.structured must set payload.schema", step.Title)}
		}
		if payloadString(payload, "artifact_label") == "" {
			return &PlanValidationIssue{Label: "deliver_missing_artifact_label", StepID: step.ID, StepTitle: step.Title,
				Message: fmt.Sprintf("step '%s' invoking data.deliver.structured must set payload.artifact_label", step.Title)}
		}
		if payloadString(payload, "filename") == "" {
			return &PlanValidationIssue{Label: "deliver_missing_filename", StepID: step.ID, StepTitle: step.Title,
				Message: fmt.Sprintf("step '%s' invoking data.deliver.structured must set payload.filename", step.Title)}
		}
		sourceStepID := payloadString(payload, "source_step_id")
		if sourceStepID == "" {
			return &PlanValidationIssue{Label: "deliver_missing_source_step", StepID: step.ID, StepTitle: step.Title,
				Message: fmt.Sprintf("step '%s' invoking data.deliver.structured must set payload.source_step_id", step.Title)}
		}

		sourceIndex := -1
		for i, candidate := range p.Steps {
			if candidate.ID == sourceStepID {
				sourceIndex = i
				break
			}
		}
		if sourceIndex == -1 {
			return &PlanValidationIssue{Label: "deliver_source_missing", StepID: step.ID, StepTitle: step.Title, SourceStepID: sourceStepID,
				Message: fmt.Sprintf("step '%s' invoking data.deliver.structured references unknown source_step_id '%s'", step.Title, sourceStepID)}
		}
		if sourceIndex >= idx {
			return &PlanValidationIssue{Label: "deliver_source_not_prior", StepID: step.ID, StepTitle: step.Title, SourceStepID: sourceStepID,
				Message: fmt.Sprintf("step '%s' invoking data.deliver.structured must reference an earlier parse step, but '%s' appears later", step.Title, sourceStepID)}
		}

		source := p.Steps[sourceIndex]
		isParseSource := source.Tool.Kind == plan.ToolCustom && (isParseTool(source.Tool.Name) || strings.HasPrefix(source.Tool.Name, "plugin."))
		if !isParseSource {
			return &PlanValidationIssue{Label: "deliver_source_not_parse", StepID: step.ID, StepTitle: step.Title, SourceStepID: sourceStepID,
				Message: fmt.Sprintf("step '%s' invoking data.deliver.structured must reference a parse step, but '%s' is not a parser", step.Title, sourceStepID)}
		}
	}
	return nil
}

func payloadString(payload map[string]any, key string) string {
	v, ok := payload[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

func anyCustomStep(p *plan.AgentPlan, pred func(name string, payload map[string]any) bool) bool {
	for _, step := range p.Steps {
		if step.Tool.Kind != plan.ToolCustom {
			continue
		}
		if pred(strings.ToLower(step.Tool.Name), step.Tool.Payload) {
			return true
		}
	}
	return false
}

func containsFold(list []string, name string) bool {
	for _, item := range list {
		if strings.EqualFold(item, name) {
			return true
		}
	}
	return false
}
