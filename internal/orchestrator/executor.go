// Package orchestrator drives the scheduler runtime: it pulls ready jobs,
// executes them through a ToolExecutor with a per-attempt timeout and
// linear retry backoff, and records every outcome (success, retry-exhausted
// failure, cancellation) to the state center. Grounded on
// original_source/crates/scheduler/src/orchestrator.rs.
package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/soulbrowser/soulbrowser/internal/core"
	"github.com/soulbrowser/soulbrowser/internal/scheduler"
)

// ToolResult is what a successful tool execution returns.
type ToolResult struct {
	Output json.RawMessage
}

// ToolExecutor invokes one tool call against a resolved route. Concrete
// implementations (CDP-backed tool dispatch) live outside the core; this
// package only depends on the contract.
type ToolExecutor interface {
	Execute(ctx context.Context, request scheduler.DispatchRequest, route core.ExecRoute) (ToolResult, error)
}

// ToolExecutorFunc adapts a plain function to ToolExecutor.
type ToolExecutorFunc func(ctx context.Context, request scheduler.DispatchRequest, route core.ExecRoute) (ToolResult, error)

func (f ToolExecutorFunc) Execute(ctx context.Context, request scheduler.DispatchRequest, route core.ExecRoute) (ToolResult, error) {
	return f(ctx, request, route)
}
