package external

import (
	"context"
	"fmt"

	"github.com/soulbrowser/soulbrowser/internal/core"
	"github.com/soulbrowser/soulbrowser/internal/plan"
)

// ResolvedCandidate is one ranked match an anchor strategy found, paired
// with the Locator the caller can hand back to a Click/TypeText/Select/
// Scroll step.
type ResolvedCandidate struct {
	Locator plan.Locator
	Score   float64
}

// AnchorStrategy resolves one Locator kind against a page, each backed by a
// different external capability: CSS by the structural perceiver's DOM
// query, ARIA/AX by its accessibility tree, Text by semantic extraction.
// Each strategy is free to suggest fallback anchors for a kind it doesn't
// own ("Suggest"), mirroring spec.md §6's "each may suggest fallbacks for
// other anchor forms".
type AnchorStrategy interface {
	Kind() plan.LocatorKind
	Resolve(ctx context.Context, route core.ExecRoute, anchor Anchor) ([]ResolvedCandidate, error)
	Suggest(anchor Anchor) []Anchor
}

// ElementResolver composes a CSS → ARIA/AX → Text fallback chain: each
// strategy in order is given the current anchor (replaced by the first
// fallback anchor the previous strategy suggested, if it suggested any
// after an empty result) and the first one to return a non-empty,
// ranked candidate list wins. Grounded on spec.md §6's ElementResolver
// description; the per-kind strategies themselves are external collaborator
// code (backed by StructuralPerceiver/SemanticPerceiver), so this struct
// only owns the fallback ordering, not any actual DOM/AX/text lookup.
type ElementResolver struct {
	strategies []AnchorStrategy
}

// NewElementResolver orders strategies CSS, ARIA, Text as spec.md names the
// chain; strategies is deduplicated to one entry per Kind, first one wins.
func NewElementResolver(strategies ...AnchorStrategy) *ElementResolver {
	order := []plan.LocatorKind{plan.LocatorCss, plan.LocatorAria, plan.LocatorText}
	byKind := make(map[plan.LocatorKind]AnchorStrategy, len(strategies))
	for _, s := range strategies {
		if _, taken := byKind[s.Kind()]; !taken {
			byKind[s.Kind()] = s
		}
	}
	r := &ElementResolver{}
	for _, kind := range order {
		if s, ok := byKind[kind]; ok {
			r.strategies = append(r.strategies, s)
		}
	}
	return r
}

// Resolve walks the CSS → ARIA → Text chain, trying anchor against each
// wired strategy in order and falling through to the next on an empty
// result or error. After an empty (non-error) result, the first fallback
// anchor that strategy suggests, if any, replaces the anchor given to the
// next one; further suggestions are not used.
func (r *ElementResolver) Resolve(ctx context.Context, route core.ExecRoute, anchor Anchor) ([]ResolvedCandidate, error) {
	if len(r.strategies) == 0 {
		return nil, fmt.Errorf("external: element resolver has no anchor strategies wired")
	}

	current := anchor
	var lastErr error
	for i, strategy := range r.strategies {
		candidates, err := strategy.Resolve(ctx, route, current)
		if err != nil {
			lastErr = err
			continue
		}
		if len(candidates) > 0 {
			return candidates, nil
		}
		if i+1 < len(r.strategies) {
			if suggested := strategy.Suggest(current); len(suggested) > 0 {
				current = suggested[0]
			}
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("external: every anchor strategy failed, last error: %w", lastErr)
	}
	return nil, nil
}
