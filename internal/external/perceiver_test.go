package external

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulbrowser/soulbrowser/internal/core"
)

type stubStructural struct {
	snapshot DomSnapshot
	err      error
}

func (s stubStructural) ResolveAnchor(context.Context, core.ExecRoute, Anchor) ([]Anchor, error) {
	return nil, nil
}
func (s stubStructural) SnapshotDomAx(context.Context, core.ExecRoute) (DomSnapshot, error) {
	return s.snapshot, s.err
}
func (s stubStructural) DiffDomAx(context.Context, DomSnapshot, DomSnapshot) (DomDiff, error) {
	return DomDiff{}, nil
}

type stubVisual struct{ called bool }

func (s *stubVisual) CaptureScreenshot(context.Context, core.ExecRoute, ScreenshotOptions) (Screenshot, error) {
	s.called = true
	return Screenshot{Format: "png"}, nil
}
func (s *stubVisual) ComputeDiff(context.Context, Screenshot, Screenshot) (VisualDiff, error) {
	return VisualDiff{}, nil
}
func (s *stubVisual) AnalyzeMetrics(context.Context, Screenshot) (VisualMetrics, error) {
	return VisualMetrics{"contrast": 1}, nil
}

type stubSemantic struct{}

func (stubSemantic) ExtractText(context.Context, core.ExecRoute) (string, error) { return "hello", nil }
func (stubSemantic) Analyze(context.Context, string) (SemanticAnalysis, error) {
	return SemanticAnalysis{ContentType: "article"}, nil
}

func TestPerceptionHubStructuralOnly(t *testing.T) {
	hub := NewPerceptionHub(stubStructural{snapshot: DomSnapshot{ID: "dom-1"}})

	result, err := hub.Perceive(context.Background(), testRoute(), PerceptionOptions{EnableStructural: true})
	require.NoError(t, err)
	require.NotNil(t, result.Structural)
	assert.Equal(t, "dom-1", result.Structural.ID)
	assert.Nil(t, result.Visual)
	assert.Nil(t, result.Semantic)
}

func TestPerceptionHubSkipsVisualWhenNotWired(t *testing.T) {
	hub := NewPerceptionHub(stubStructural{})
	result, err := hub.Perceive(context.Background(), testRoute(), PerceptionOptions{EnableVisual: true, CaptureScreen: true})
	require.NoError(t, err)
	assert.Nil(t, result.Visual)
}

func TestPerceptionHubRunsAllThreeWhenWired(t *testing.T) {
	visual := &stubVisual{}
	hub := NewPerceptionHub(stubStructural{snapshot: DomSnapshot{ID: "dom-2"}}).
		WithVisual(visual).
		WithSemantic(stubSemantic{})

	result, err := hub.Perceive(context.Background(), testRoute(), PerceptionOptions{
		EnableStructural: true,
		EnableVisual:     true,
		CaptureScreen:    true,
		EnableSemantic:   true,
	})
	require.NoError(t, err)
	assert.True(t, visual.called)
	require.NotNil(t, result.Visual)
	require.NotNil(t, result.Semantic)
	assert.Equal(t, "article", result.Semantic.ContentType)
}

func TestPerceptionHubStructuralRequiredButMissing(t *testing.T) {
	hub := &PerceptionHub{}
	_, err := hub.Perceive(context.Background(), testRoute(), PerceptionOptions{EnableStructural: true})
	assert.Error(t, err)
}
