package stageauditor

import "github.com/soulbrowser/soulbrowser/internal/plan"

// StrategyInput is everything a strategy needs to decide whether it applies
// and, if so, what steps to contribute.
type StrategyInput struct {
	Plan    *plan.AgentPlan
	Request plan.Request
	Context plan.StageContext
}

// StrategyApplication is what a strategy hands back when it fires: the
// steps to splice in, plus optional bookkeeping the auditor folds into the
// plan's repair ledger and vendor context.
type StrategyApplication struct {
	Steps         []plan.Step
	Note          string
	Overlay       map[string]any
	VendorContext map[string]any
}

// Strategy is one named way to satisfy a stage. A chain tries its
// strategies in order; the first one to return ok=true wins.
type Strategy interface {
	ID() string
	Apply(input StrategyInput) (StrategyApplication, bool)
}

// StrategyRegistry looks strategies up by id for a stage's configured
// chain. Grounded on StrategyRegistry::builtin() in agent/mod.rs, whose
// concrete strategy catalogue lived in the unretained strategies.rs; only
// the "search" strategy survived by name (it's special-cased directly in
// agent/mod.rs's try_chain), so it's the only non-placeholder strategy
// reconstructed here. Every other stage chain is empty and falls straight
// to its placeholder synthesizer.
type StrategyRegistry struct {
	byID map[string]Strategy
}

func (r *StrategyRegistry) Get(id string) (Strategy, bool) {
	s, ok := r.byID[id]
	return s, ok
}

func (r *StrategyRegistry) register(s Strategy) {
	r.byID[s.ID()] = s
}

// BuiltinRegistry returns the registry every Auditor uses by default.
func BuiltinRegistry() *StrategyRegistry {
	r := &StrategyRegistry{byID: map[string]Strategy{}}
	r.register(searchStrategy{})
	return r
}

// stageChains is the configured strategy chain per stage, tried in order
// before the placeholder synthesizer runs. Only Navigate carries a
// strategy id here; it is additionally tried out-of-band first whenever
// shouldPrioritizeSearchNavigation holds (mirroring try_chain's special
// case for the "search" strategy).
var stageChains = map[Stage][]string{
	StageNavigate: {"search"},
}

// searchStrategy builds a browser.search step seeded from the request's
// best-known search term; it does not apply when there is no such term. Its
// payload may be partial (site omitted when no preferred site is known) —
// Normalizer's browser.search back-fill pass
// (ensure_browser_search_payloads) completes it afterward, the same
// division of labor the original relies on between stage audit and
// normalize_plan's later passes.
type searchStrategy struct{}

func (searchStrategy) ID() string { return "search" }

func (searchStrategy) Apply(input StrategyInput) (StrategyApplication, bool) {
	seed := input.Context.SearchSeed()
	if seed == "" {
		return StrategyApplication{}, false
	}
	payload := map[string]any{"query": seed}
	if len(input.Context.PreferredSites) > 0 {
		payload["site"] = input.Context.PreferredSites[0]
	}
	step := plan.NewStep("", "打开搜索页面", plan.CustomTool("browser.search", payload))
	step.Detail = "自动生成的搜索导航"
	return StrategyApplication{
		Steps: []plan.Step{step},
		Note:  "Navigate stage satisfied via search strategy",
	}, true
}
