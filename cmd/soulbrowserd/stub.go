package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/soulbrowser/soulbrowser/internal/core"
	"github.com/soulbrowser/soulbrowser/internal/orchestrator"
	"github.com/soulbrowser/soulbrowser/internal/scheduler"
)

// stubExecutor is the ToolExecutor used when the run command isn't given a
// live --cdp-url: it acknowledges every tool call without touching a real
// browser, recording the route it would have executed against so a dry run
// still exercises the scheduler, orchestrator and gate's full path. Useful
// the same way cklxx-elephant.ai's evaluation harness stubs a provider: to
// drive the pipeline without a live backend.
type stubExecutor struct {
	mu  sync.Mutex
	dom map[core.ExecRoute]string
}

func newStubExecutor() *stubExecutor {
	return &stubExecutor{dom: make(map[core.ExecRoute]string)}
}

func (s *stubExecutor) Execute(_ context.Context, request scheduler.DispatchRequest, route core.ExecRoute) (orchestrator.ToolResult, error) {
	s.mu.Lock()
	s.dom[route] = fmt.Sprintf("<html><body>stub output for %s</body></html>", request.ToolCall.Tool)
	s.mu.Unlock()

	out, err := json.Marshal(map[string]any{
		"ok":            true,
		"tool":          request.ToolCall.Tool,
		"current_url":   "https://example.invalid/stub",
		"current_title": "stub page",
	})
	if err != nil {
		return orchestrator.ToolResult{}, err
	}
	return orchestrator.ToolResult{Output: out}, nil
}

// EvaluateScript satisfies gate.ScriptEvaluator: every DOM probe reports its
// element as found and visible, since there's no live page behind a stub run.
func (s *stubExecutor) EvaluateScript(_ context.Context, _ core.ExecRoute, _ string) (json.RawMessage, error) {
	return json.RawMessage(`{"found":true,"visible":true}`), nil
}

// DomSnapshot satisfies gate.DomSnapshotSource from the last stubbed
// execution's recorded page body.
func (s *stubExecutor) DomSnapshot(route core.ExecRoute) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	html, ok := s.dom[route]
	return html, ok
}
