package external

import (
	"context"
	"fmt"
	"time"

	"github.com/soulbrowser/soulbrowser/internal/core"
)

// DomSnapshot is a structural perceiver's view of a frame's DOM/accessibility
// tree at one point in time. RawDom is left as an opaque payload since its
// shape is owned by the (external) perceiver implementation, not the core.
type DomSnapshot struct {
	ID     string
	RawDom map[string]any
}

// DomDiff is what changed between two DomSnapshots.
type DomDiff struct {
	NodesAdded   int
	NodesRemoved int
	NodesChanged int
}

// Anchor is what an element resolution request is looking for: a hint in
// one of the three forms a Locator can already take (see internal/plan's
// LocatorCss/LocatorAria/LocatorText), handed to whichever perceiver/
// resolver strategy claims it can resolve that form.
type Anchor struct {
	CSS  string
	Role string
	Name string
	Text string
}

// StructuralPerceiver resolves anchors against the DOM/accessibility tree
// and snapshots/diffs it. Grounded on perceiver-hub's StructuralPerceiver
// trait (resolve_anchor/snapshot_dom_ax/diff_dom_ax); only the trait
// contract is in scope here, per spec.md's Non-goals.
type StructuralPerceiver interface {
	ResolveAnchor(ctx context.Context, route core.ExecRoute, anchor Anchor) ([]Anchor, error)
	SnapshotDomAx(ctx context.Context, route core.ExecRoute) (DomSnapshot, error)
	DiffDomAx(ctx context.Context, before, after DomSnapshot) (DomDiff, error)
}

// Screenshot is one visual capture of a page.
type Screenshot struct {
	Format string
	Bytes  []byte
	Width  int
	Height int
}

// VisualDiff is the pixel-level delta between two screenshots.
type VisualDiff struct {
	ChangedPixels int
	ChangedRatio  float64
}

// VisualMetrics summarizes one screenshot (contrast, layout density, etc.);
// left as a free-form map since the metrics a real visual perceiver computes
// are its own concern, not the core's.
type VisualMetrics map[string]float64

// ScreenshotOptions controls a capture.
type ScreenshotOptions struct {
	FullPage bool
	Quality  int
}

// VisualPerceiver captures and analyzes screenshots. Grounded on
// perceiver-hub's VisualPerceiver trait (capture_screenshot/compute_diff/
// analyze_metrics).
type VisualPerceiver interface {
	CaptureScreenshot(ctx context.Context, route core.ExecRoute, opts ScreenshotOptions) (Screenshot, error)
	ComputeDiff(ctx context.Context, before, after Screenshot) (VisualDiff, error)
	AnalyzeMetrics(ctx context.Context, shot Screenshot) (VisualMetrics, error)
}

// SemanticAnalysis is a semantic perceiver's reading of extracted page text.
type SemanticAnalysis struct {
	ContentType string
	Summary     string
	Keywords    []string
}

// SemanticPerceiver extracts and analyzes page text. Grounded on
// perceiver-hub's SemanticPerceiver trait (extract_text/analyze).
type SemanticPerceiver interface {
	ExtractText(ctx context.Context, route core.ExecRoute) (string, error)
	Analyze(ctx context.Context, text string) (SemanticAnalysis, error)
}

// PerceptionOptions selects which of the three modalities a Perceive call
// runs, mirroring perceiver-hub's PerceptionOptions (enable_structural plus
// the optional visual/semantic toggles).
type PerceptionOptions struct {
	EnableStructural bool
	EnableVisual     bool
	EnableSemantic   bool
	CaptureScreen    bool
	Timeout          time.Duration
}

// MultiModalPerception is the combined result of one Perceive call.
type MultiModalPerception struct {
	Structural *DomSnapshot
	Visual     *VisualMetrics
	Semantic   *SemanticAnalysis
}

// PerceptionHub composes the perceiver trifecta into one call, the way
// PerceptionHubImpl does: structural perception is mandatory when enabled,
// visual and semantic are optional and silently skipped when their
// perceiver isn't wired or the option disables them. Unlike the three
// perceiver interfaces, this composition is not a perceiver implementation
// itself (it delegates every actual perception call), so it stays in the
// core rather than being treated as out-of-scope collaborator code.
type PerceptionHub struct {
	Structural StructuralPerceiver
	Visual     VisualPerceiver
	Semantic   SemanticPerceiver
}

func NewPerceptionHub(structural StructuralPerceiver) *PerceptionHub {
	return &PerceptionHub{Structural: structural}
}

func (h *PerceptionHub) WithVisual(visual VisualPerceiver) *PerceptionHub {
	h.Visual = visual
	return h
}

func (h *PerceptionHub) WithSemantic(semantic SemanticPerceiver) *PerceptionHub {
	h.Semantic = semantic
	return h
}

// Perceive runs the enabled modalities against route, each independently
// skippable, and returns whatever modalities actually ran.
func (h *PerceptionHub) Perceive(ctx context.Context, route core.ExecRoute, opts PerceptionOptions) (MultiModalPerception, error) {
	var result MultiModalPerception

	if opts.EnableStructural {
		if h.Structural == nil {
			return result, fmt.Errorf("external: structural perception requested but no StructuralPerceiver wired")
		}
		snapshot, err := h.Structural.SnapshotDomAx(ctx, route)
		if err != nil {
			return result, fmt.Errorf("external: structural snapshot failed: %w", err)
		}
		result.Structural = &snapshot
	}

	if opts.EnableVisual && opts.CaptureScreen && h.Visual != nil {
		shot, err := h.Visual.CaptureScreenshot(ctx, route, ScreenshotOptions{})
		if err != nil {
			return result, fmt.Errorf("external: screenshot capture failed: %w", err)
		}
		metrics, err := h.Visual.AnalyzeMetrics(ctx, shot)
		if err != nil {
			return result, fmt.Errorf("external: visual metrics failed: %w", err)
		}
		result.Visual = &metrics
	}

	if opts.EnableSemantic && h.Semantic != nil {
		text, err := h.Semantic.ExtractText(ctx, route)
		if err != nil {
			return result, fmt.Errorf("external: text extraction failed: %w", err)
		}
		analysis, err := h.Semantic.Analyze(ctx, text)
		if err != nil {
			return result, fmt.Errorf("external: semantic analysis failed: %w", err)
		}
		result.Semantic = &analysis
	}

	return result, nil
}
