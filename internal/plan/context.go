package plan

import (
	"net/url"
	"strings"
)

// StageContext resolves the ambient facts a normalizer pass needs to fill
// gaps in a plan: which site the user prefers, what to search for absent a
// better idea, and the page they were already on. Grounded on
// ContextResolver::build() usage in agent/mod.rs (ContextResolver itself
// was not retained in the pack; this reconstructs its public surface from
// call sites: fallback_search_url(), best_known_url(), search_seed(),
// preferred_sites, search_terms).
type StageContext struct {
	PreferredSites []string
	SearchTerms    []string
	CurrentURL     string
	SearchEngine   string // base URL template, defaults to Baidu

	// GuardrailKeywords/GuardrailDomains back the stage auditor's
	// validate-stage placeholder and its guardrail overlay. Reconstructed
	// from request intent since guardrails.rs was not retained in the pack:
	// keywords are significant words pulled from the goal text, domains are
	// the request's preferred sites.
	GuardrailKeywords []string
	GuardrailDomains  []string
}

const defaultSearchEngine = "https://www.baidu.com/s"

// NewStageContext builds a StageContext from a Request.
func NewStageContext(request Request) StageContext {
	terms := make([]string, 0, 1)
	if goal := strings.TrimSpace(request.Goal); goal != "" {
		terms = append(terms, goal)
	}
	return StageContext{
		PreferredSites:    request.Intent.TargetSites,
		SearchTerms:       terms,
		CurrentURL:        request.Context.CurrentURL,
		SearchEngine:      defaultSearchEngine,
		GuardrailKeywords: deriveGuardrailKeywords(request),
		GuardrailDomains:  deriveGuardrailDomains(request),
	}
}

// deriveGuardrailKeywords pulls the significant words out of a request's
// goal text, capped at five, to seed a validate-stage keyword check.
func deriveGuardrailKeywords(request Request) []string {
	source := strings.TrimSpace(request.Intent.PrimaryGoal)
	if source == "" {
		source = strings.TrimSpace(request.Goal)
	}
	if source == "" {
		return nil
	}
	fields := strings.FieldsFunc(source, func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', ',', '.', '?', '!', '，', '。', '？', '！':
			return true
		default:
			return false
		}
	})
	seen := map[string]bool{}
	var keywords []string
	for _, word := range fields {
		word = strings.TrimSpace(word)
		if len([]rune(word)) < 2 {
			continue
		}
		lowered := strings.ToLower(word)
		if seen[lowered] {
			continue
		}
		seen[lowered] = true
		keywords = append(keywords, word)
		if len(keywords) >= 5 {
			break
		}
	}
	return keywords
}

// deriveGuardrailDomains returns the request's preferred sites as the
// domain allowlist a validate-stage placeholder should enforce.
func deriveGuardrailDomains(request Request) []string {
	if len(request.Intent.TargetSites) == 0 {
		return nil
	}
	domains := make([]string, 0, len(request.Intent.TargetSites))
	for _, site := range request.Intent.TargetSites {
		site = strings.TrimSpace(site)
		if site != "" {
			domains = append(domains, site)
		}
	}
	return domains
}

// SearchSeed is the best available search query: the first search term, or
// empty.
func (c StageContext) SearchSeed() string {
	if len(c.SearchTerms) == 0 {
		return ""
	}
	return c.SearchTerms[0]
}

// FallbackSearchURL builds a default search-engine URL for SearchSeed,
// preserving the query string the way build_url_wait_condition expects
// (a "wd" query parameter for the Baidu-style fallback).
func (c StageContext) FallbackSearchURL() string {
	engine := c.SearchEngine
	if engine == "" {
		engine = defaultSearchEngine
	}
	seed := c.SearchSeed()
	if seed == "" {
		return engine
	}
	values := url.Values{}
	values.Set("wd", seed)
	return engine + "?" + values.Encode()
}

// BestKnownURL returns the page the user was already on, if any.
func (c StageContext) BestKnownURL() (string, bool) {
	if strings.TrimSpace(c.CurrentURL) == "" {
		return "", false
	}
	return c.CurrentURL, true
}

// blockedSearchEngines names domains normalization retargets away from,
// matching the original's policy of steering legacy plans off engines the
// deployment doesn't support.
var blockedSearchEngines = []string{"google.com", "bing.com"}

// IsBlockedSearchEngine exports isBlockedSearchEngine for the stage
// auditor's own search-engine retargeting pass.
func IsBlockedSearchEngine(target string) bool { return isBlockedSearchEngine(target) }

// BuildURLWaitCondition exports buildURLWaitCondition for the stage
// auditor's own search-engine retargeting pass.
func BuildURLWaitCondition(rawURL string) WaitCondition { return buildURLWaitCondition(rawURL) }

func isBlockedSearchEngine(target string) bool {
	lowered := strings.ToLower(target)
	for _, engine := range blockedSearchEngines {
		if strings.Contains(lowered, engine) {
			return true
		}
	}
	return false
}

func domainFromURL(raw string) (string, bool) {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return "", false
	}
	return parsed.Hostname(), true
}

// normalizeDomainHintToURL turns a bare domain hint ("example.com") into a
// usable https URL, mirroring normalize_domain_hint_to_url.
func normalizeDomainHintToURL(domain string) string {
	trimmed := strings.TrimSpace(domain)
	trimmed = strings.TrimPrefix(trimmed, "*")
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return trimmed
	}
	return "https://" + trimmed
}

// buildDomainMatchPattern builds a regexp matching any URL under domain,
// mirroring build_domain_match_pattern.
func buildDomainMatchPattern(domain string) string {
	trimmed := strings.TrimSpace(domain)
	trimmed = strings.TrimPrefix(trimmed, "*")
	trimmed = strings.Trim(trimmed, "/")
	trimmed = strings.TrimPrefix(trimmed, ".")
	if trimmed == "" {
		return ".*"
	}
	return `^https?://[^/]*` + regexpQuoteMeta(trimmed) + `.*$`
}

// buildURLWaitCondition mirrors build_url_wait_condition: an exact
// UrlEquals for a plain URL, or a UrlMatches regexp preserving the query
// string's "wd" parameter (the search-result URL shape every fallback
// search engine here produces).
func buildURLWaitCondition(rawURL string) WaitCondition {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return UrlEqualsWait(rawURL)
	}
	base := parsed.Scheme + "://" + parsed.Host + parsed.Path
	query := parsed.Query()
	if wd := query.Get("wd"); wd != "" {
		pattern := "^" + regexpQuoteMeta(base) + ".*wd=" + regexpQuoteMeta(url.QueryEscape(wd)) + ".*$"
		return UrlMatchesWait(pattern)
	}
	return UrlEqualsWait(parsed.String())
}

func regexpQuoteMeta(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\', '.', '+', '*', '?', '(', ')', '|', '[', ']', '{', '}', '^', '$':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
