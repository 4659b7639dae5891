// Package planrunner builds an AgentPlan for an incoming request: resolving
// a rule-based or LLM-backed planner (falling back from the latter to the
// former on failure), caching LLM plans by request digest, and offering
// RepairRawPlanJSON for malformed LLM JSON text (no planner here calls it).
// Grounded on ChatRunner,
// PlannerStrategy, LlmPlanner and cache_key_for_request in
// original_source/crates/soulbrowser-kernel/src/agent/mod.rs.
package planrunner

import (
	"context"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/soulbrowser/soulbrowser/internal/plan"
)

// PlannerKind is recorded onto a plan's vendor context as "planner_kind",
// mirroring annotate_plan_origin.
type PlannerKind string

const (
	PlannerKindRule         PlannerKind = "rule"
	PlannerKindLlm          PlannerKind = "llm"
	PlannerKindLlmFallback  PlannerKind = "rule_fallback"
)

// Planner produces a first-draft AgentPlan and, on a validation failure,
// revises it. Neither method needs to normalize or stage-audit its output:
// that happens once, centrally, in Runner.
type Planner interface {
	Plan(ctx context.Context, request plan.Request) (*plan.AgentPlan, []string, error)
	Replan(ctx context.Context, request plan.Request, prior *plan.AgentPlan, issue string) (*plan.AgentPlan, []string, error)
}

// LlmProvider is the external LLM planning dependency: given a request,
// return a draft plan and the model's own explanations for it. No concrete
// implementation ships in this repository.
type LlmProvider interface {
	Plan(ctx context.Context, request plan.Request) (*plan.AgentPlan, []string, error)
	Replan(ctx context.Context, request plan.Request, prior *plan.AgentPlan, issue string) (*plan.AgentPlan, []string, error)
}

// RuleBasedPlanner builds the thinnest plan that the stage auditor's fixed
// pipeline can always finish: a single seed step (browser.search when no
// preferred site is known, Navigate otherwise), leaving every other stage
// (Observe/Validate/Parse/Deliver/...) to the normalizer's stage-audit pass.
// Grounded on RuleBasedPlanner's role in PlannerStrategy::Rule -- its own
// body lives in the unretained planner/mod.rs, so this reconstructs only
// the minimal seed behavior implied by StageAuditor always being able to
// fill in everything after Navigate.
type RuleBasedPlanner struct{}

func NewRuleBasedPlanner() RuleBasedPlanner { return RuleBasedPlanner{} }

func (RuleBasedPlanner) Plan(ctx context.Context, request plan.Request) (*plan.AgentPlan, []string, error) {
	p := plan.NewAgentPlan(request.TaskID, planTitle(request))
	context := plan.NewStageContext(request)

	if len(context.PreferredSites) > 0 {
		p.Steps = append(p.Steps, plan.NewStep("seed-navigate", "Navigate", plan.NavigateTool(siteURL(context.PreferredSites[0]))))
	} else if seed := context.SearchSeed(); seed != "" {
		p.Steps = append(p.Steps, plan.NewStep("seed-search", "Search", plan.CustomTool("browser.search", map[string]any{
			"query": seed,
		})))
	}

	explanations := []string{"rule-based planner produced a minimal seed plan; stage auditor fills the rest"}
	return &p, explanations, nil
}

func (r RuleBasedPlanner) Replan(ctx context.Context, request plan.Request, prior *plan.AgentPlan, issue string) (*plan.AgentPlan, []string, error) {
	p, explanations, err := r.Plan(ctx, request)
	if err != nil {
		return nil, nil, err
	}
	explanations = append(explanations, fmt.Sprintf("replanned after: %s", issue))
	return p, explanations, nil
}

func planTitle(request plan.Request) string {
	goal := strings.TrimSpace(request.Intent.PrimaryGoal)
	if goal == "" {
		goal = strings.TrimSpace(request.Goal)
	}
	if goal == "" {
		return "untitled"
	}
	return goal
}

func siteURL(site string) string {
	site = strings.TrimSpace(site)
	if strings.HasPrefix(site, "http://") || strings.HasPrefix(site, "https://") {
		return site
	}
	return "https://" + site
}

// LlmPlanner plans through an LlmProvider, consulting cache before calling
// it and storing a successful result after. Replan never touches the cache,
// mirroring the original: a replan is context-specific (it carries the
// issue that triggered it) and isn't safe to key on the same digest as the
// original request.
type LlmPlanner struct {
	Provider LlmProvider
	Cache    PlanCache // nil disables caching
	Tenant   string
	Model    string
}

func NewLlmPlanner(provider LlmProvider, cache PlanCache, tenant, model string) *LlmPlanner {
	return &LlmPlanner{Provider: provider, Cache: cache, Tenant: tenant, Model: model}
}

func (l *LlmPlanner) Plan(ctx context.Context, request plan.Request) (*plan.AgentPlan, []string, error) {
	key, cacheable := l.cacheKey(request)
	if cacheable && l.Cache != nil {
		if cached, explanations, ok, err := l.Cache.Load(ctx, key); err == nil && ok {
			return cached, explanations, nil
		}
	}

	p, explanations, err := l.Provider.Plan(ctx, request)
	if err != nil {
		return nil, nil, err
	}

	if cacheable && l.Cache != nil {
		_ = l.Cache.Store(ctx, key, p, explanations)
	}
	return p, explanations, nil
}

func (l *LlmPlanner) Replan(ctx context.Context, request plan.Request, prior *plan.AgentPlan, issue string) (*plan.AgentPlan, []string, error) {
	return l.Provider.Replan(ctx, request, prior, issue)
}

func (l *LlmPlanner) cacheKey(request plan.Request) (string, bool) {
	return CacheKey(l.Tenant, "llm", l.Model, request)
}

// PlannerStrategy chooses between a rule-based planner and an LLM planner
// with rule-based fallback, annotating the resulting plan's vendor context
// with which path produced it. Grounded on the PlannerStrategy enum
// (Rule/Llm{planner, fallback}) in agent/mod.rs.
type PlannerStrategy struct {
	Rule     Planner
	Llm      Planner // nil means rule-only
	Fallback Planner // used when Llm fails; nil means no fallback (error propagates)
}

func NewRuleStrategy(rule Planner) PlannerStrategy {
	return PlannerStrategy{Rule: rule}
}

func NewLlmStrategy(llm Planner, fallback Planner) PlannerStrategy {
	return PlannerStrategy{Llm: llm, Fallback: fallback}
}

func (s PlannerStrategy) Plan(ctx context.Context, request plan.Request) (*plan.AgentPlan, []string, error) {
	if s.Llm == nil {
		return s.runAndAnnotate(ctx, s.Rule.Plan, PlannerKindRule, request)
	}
	p, explanations, err := s.Llm.Plan(ctx, request)
	if err == nil {
		annotatePlannerKind(p, PlannerKindLlm)
		return p, explanations, nil
	}
	if s.Fallback == nil {
		return nil, nil, err
	}
	p, explanations, ferr := s.Fallback.Plan(ctx, request)
	if ferr != nil {
		return nil, nil, ferr
	}
	annotatePlannerKind(p, PlannerKindLlmFallback)
	explanations = append(explanations, fmt.Sprintf("llm planner failed (%v), used rule fallback", err))
	return p, explanations, nil
}

func (s PlannerStrategy) Replan(ctx context.Context, request plan.Request, prior *plan.AgentPlan, issue string) (*plan.AgentPlan, []string, error) {
	if s.Llm == nil {
		return s.runAndAnnotateReplan(ctx, s.Rule, PlannerKindRule, request, prior, issue)
	}
	p, explanations, err := s.Llm.Replan(ctx, request, prior, issue)
	if err == nil {
		annotatePlannerKind(p, PlannerKindLlm)
		return p, explanations, nil
	}
	if s.Fallback == nil {
		return nil, nil, err
	}
	p, explanations, ferr := s.Fallback.Replan(ctx, request, prior, issue)
	if ferr != nil {
		return nil, nil, ferr
	}
	annotatePlannerKind(p, PlannerKindLlmFallback)
	explanations = append(explanations, fmt.Sprintf("llm replan failed (%v), used rule fallback", err))
	return p, explanations, nil
}

func (s PlannerStrategy) runAndAnnotate(ctx context.Context, planFn func(context.Context, plan.Request) (*plan.AgentPlan, []string, error), kind PlannerKind, request plan.Request) (*plan.AgentPlan, []string, error) {
	p, explanations, err := planFn(ctx, request)
	if err != nil {
		return nil, nil, err
	}
	annotatePlannerKind(p, kind)
	return p, explanations, nil
}

func (s PlannerStrategy) runAndAnnotateReplan(ctx context.Context, planner Planner, kind PlannerKind, request plan.Request, prior *plan.AgentPlan, issue string) (*plan.AgentPlan, []string, error) {
	p, explanations, err := planner.Replan(ctx, request, prior, issue)
	if err != nil {
		return nil, nil, err
	}
	annotatePlannerKind(p, kind)
	return p, explanations, nil
}

func annotatePlannerKind(p *plan.AgentPlan, kind PlannerKind) {
	if p.Meta.VendorContext == nil {
		p.Meta.VendorContext = map[string]any{}
	}
	p.Meta.VendorContext["planner_kind"] = string(kind)
}

// RepairRawPlanJSON fixes commonly malformed JSON an LLM emits (trailing
// commas, unquoted keys, unbalanced brackets) before it's unmarshaled, using
// the same class of recovery jsonrepair performs for its own callers.
// Returns raw unchanged if it already parses or jsonrepair can't help.
func RepairRawPlanJSON(raw string) string {
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return raw
	}
	return repaired
}
