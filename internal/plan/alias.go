package plan

import "strings"

const (
	observationCanonical  = "data.extract-site"
	genericParseCanonical = "data.parse.generic"
	weatherParseCanonical = "data.parse.weather"
	deliverCanonical      = "data.deliver.structured"
)

// pluginCustomAliasCases mirrors PLUGIN_CUSTOM_ALIAS_CASES: legacy plugin.*
// slugs that have since grown first-class canonical tool names.
var pluginCustomAliasCases = map[string]string{
	"plugin.extract-site":            observationCanonical,
	"plugin.data-parse-metal-price":  "data.parse.metal_price",
	"plugin.data-deliver-structured": deliverCanonical,
	"plugin.data-validate-target":    "data.validate-target",
	"plugin.data-validate-metal-price": "data.validate.metal_price",
	"plugin.data-parse.generic":      genericParseCanonical,
	"plugin.browser.search":          "browser.search",
	"plugin.close-modal":             "browser.close-modal",
	"plugin.send-esc":                "browser.send-esc",
}

// toolAliasCases mirrors canonical_tool_name's match arm: free-standing
// Custom-tool name aliases rewritten to their canonical spelling.
var toolAliasCases = map[string]string{
	"observe":                         observationCanonical,
	"page.observe":                    observationCanonical,
	"page.capture":                    observationCanonical,
	"data.observe":                    observationCanonical,
	"parse":                           genericParseCanonical,
	"github.extract-repo":             "data.parse.github-repo",
	"data.parse.github.extract-repo":  "data.parse.github-repo",
	"data.parse.twitter_feed":         "data.parse.twitter-feed",
	"data.parse.twitter.feed":         "data.parse.twitter-feed",
	"data.parse.facebook_feed":        "data.parse.facebook-feed",
	"data.parse.facebook.feed":        "data.parse.facebook-feed",
	"data.parse.linkedin_profile":     "data.parse.linkedin-profile",
	"data.parse.linkedin.profile":     "data.parse.linkedin-profile",
	"data.parse.hackernews_feed":      "data.parse.hackernews-feed",
	"data.parse.hackernews.feed":      "data.parse.hackernews-feed",
	"data.parse.news-brief":           "data.parse.news_brief",
	"data.parse.market-info":          "data.parse.market_info",
	"deliver":                 deliverCanonical,
	"deliver.structured":      deliverCanonical,
	"deliver_structured":      deliverCanonical,
	"data.deliver_structured": deliverCanonical,
	"data.deliver-structured": deliverCanonical,
	"data.deliver.json":       deliverCanonical,
}

// canonicalToolName returns the canonical spelling of a lowercased custom
// tool name, or ("", false) if name is not a known alias.
func canonicalToolName(name string) (string, bool) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", false
	}
	lowered := strings.ToLower(trimmed)
	if canonical, ok := pluginCustomAliasCases[lowered]; ok {
		return canonical, true
	}
	if canonical, ok := toolAliasCases[lowered]; ok {
		return canonical, true
	}
	return "", false
}

// browserToolFromAlias rewrites a well-formed browser.* Custom payload into
// its typed Tool variant. Returns (zero, false) when the alias is unknown
// or the payload is missing required fields.
func browserToolFromAlias(name string, payload map[string]any) (Tool, bool) {
	lowered := strings.ToLower(strings.TrimSpace(name))
	switch lowered {
	case "browser.navigate", "browser.goto", "browser.open":
		url, _ := payload["url"].(string)
		url = strings.TrimSpace(url)
		if url == "" {
			return Tool{}, false
		}
		return NavigateTool(url), true
	case "browser.click":
		loc, ok := locatorFromPayload(payload)
		if !ok {
			return Tool{}, false
		}
		return ClickTool(loc), true
	case "browser.type", "browser.fill", "browser.type_text", "browser.input":
		loc, ok := locatorFromPayload(payload)
		if !ok {
			return Tool{}, false
		}
		text, hasText := payload["text"].(string)
		if !hasText {
			return Tool{}, false
		}
		submit, _ := payload["submit"].(bool)
		return TypeTextTool(loc, text, submit), true
	case "browser.select":
		loc, ok := locatorFromPayload(payload)
		if !ok {
			return Tool{}, false
		}
		value, hasValue := payload["value"].(string)
		if !hasValue {
			return Tool{}, false
		}
		method, _ := payload["method"].(string)
		return SelectTool(loc, value, method), true
	case "browser.scroll":
		target, ok := scrollTargetFromPayload(payload)
		if !ok {
			return Tool{}, false
		}
		return ScrollTool(target), true
	case "plugin.auto-scroll":
		target, ok := scrollTargetFromPayload(payload)
		if !ok {
			target = ScrollTarget{Kind: ScrollBottom}
		}
		return ScrollTool(target), true
	case "browser.wait":
		condition, ok := waitConditionFromPayload(payload)
		if !ok {
			return Tool{}, false
		}
		return WaitTool(condition), true
	case "browser.extract", "browser.observe":
		return CustomTool(observationCanonical, payload), true
	default:
		return Tool{}, false
	}
}

// normalizeStepTool applies browserToolFromAlias then canonicalToolName to
// a Custom step's tool, mutating it in place. Returns true if the tool
// changed, mirroring normalize_step_tool.
func normalizeStepTool(step *Step) bool {
	if step.Tool.Kind != ToolCustom {
		return false
	}
	if newTool, ok := browserToolFromAlias(step.Tool.Name, step.Tool.Payload); ok {
		step.Tool = newTool
		return true
	}
	if canonical, ok := canonicalToolName(step.Tool.Name); ok && canonical != step.Tool.Name {
		step.Tool.Name = canonical
		return true
	}
	return false
}

func locatorFromPayload(payload map[string]any) (Locator, bool) {
	if raw, ok := payload["locator"]; ok {
		return locatorFromValue(raw)
	}
	if raw, ok := payload["selector"]; ok {
		return locatorFromValue(raw)
	}
	return Locator{}, false
}

func locatorFromValue(raw any) (Locator, bool) {
	switch v := raw.(type) {
	case string:
		return locatorFromString(v)
	case map[string]any:
		if css, ok := v["css"].(string); ok {
			return CssLocator(css), true
		}
		if text, ok := v["text"].(string); ok {
			exact, _ := v["exact"].(bool)
			return TextLocator(text, exact), true
		}
		role, hasRole := v["role"].(string)
		name, hasName := v["name"].(string)
		if hasRole && hasName {
			return AriaLocator(role, name), true
		}
		return Locator{}, false
	default:
		return Locator{}, false
	}
}

func locatorFromString(raw string) (Locator, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Locator{}, false
	}
	if rest, ok := strings.CutPrefix(trimmed, "css="); ok {
		return CssLocator(strings.TrimSpace(rest)), true
	}
	if rest, ok := strings.CutPrefix(trimmed, "text="); ok {
		return TextLocator(strings.TrimSpace(rest), false), true
	}
	if rest, ok := strings.CutPrefix(trimmed, "aria:"); ok {
		role, name, _ := strings.Cut(rest, "=")
		role = strings.TrimSpace(role)
		if role == "" {
			role = "button"
		}
		return AriaLocator(role, strings.TrimSpace(name)), true
	}
	return CssLocator(trimmed), true
}

func scrollTargetFromPayload(payload map[string]any) (ScrollTarget, bool) {
	raw, ok := payload["target"]
	if !ok {
		return ScrollTarget{}, false
	}
	switch v := raw.(type) {
	case string:
		return scrollTargetFromString(v)
	case map[string]any:
		kind, _ := v["kind"].(string)
		switch kind {
		case "top":
			return ScrollTarget{Kind: ScrollTop}, true
		case "bottom":
			return ScrollTarget{Kind: ScrollBottom}, true
		case "pixels":
			if amount, ok := asInt(v["value"]); ok {
				return ScrollTarget{Kind: ScrollPixels, Pixels: amount}, true
			}
		case "element":
			if anchor, ok := v["anchor"]; ok {
				if loc, ok := locatorFromValue(anchor); ok {
					return ScrollTarget{Kind: ScrollSelector, Selector: loc}, true
				}
			}
		}
		return ScrollTarget{}, false
	default:
		return ScrollTarget{}, false
	}
}

func scrollTargetFromString(value string) (ScrollTarget, bool) {
	trimmed := strings.TrimSpace(value)
	lowered := strings.ToLower(trimmed)
	switch lowered {
	case "top":
		return ScrollTarget{Kind: ScrollTop}, true
	case "bottom":
		return ScrollTarget{Kind: ScrollBottom}, true
	}
	if rest, ok := strings.CutPrefix(lowered, "pixels="); ok {
		if amount, ok := parseIntStrict(strings.TrimSpace(rest)); ok {
			return ScrollTarget{Kind: ScrollPixels, Pixels: amount}, true
		}
	}
	if loc, ok := locatorFromString(trimmed); ok {
		return ScrollTarget{Kind: ScrollSelector, Selector: loc}, true
	}
	return ScrollTarget{}, false
}

func waitConditionFromPayload(payload map[string]any) (WaitCondition, bool) {
	if ms, ok := asUint64(payload["duration_ms"]); ok {
		return DurationWait(ms), true
	}
	if ms, ok := asUint64(payload["network_idle_ms"]); ok {
		return NetworkIdleWait(ms), true
	}
	if loc, ok := locatorFromPayload(payload); ok {
		state, _ := payload["state"].(string)
		if strings.ToLower(strings.TrimSpace(state)) == "hidden" {
			return ElementHiddenWait(loc), true
		}
		return ElementVisibleWait(loc), true
	}
	return WaitCondition{}, false
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func asUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}

func parseIntStrict(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	neg := false
	i := 0
	if s[0] == '-' || s[0] == '+' {
		neg = s[0] == '-'
		i = 1
	}
	if i >= len(s) {
		return 0, false
	}
	n := 0
	for ; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n, true
}
