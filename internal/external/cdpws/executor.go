package cdpws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/soulbrowser/soulbrowser/internal/core"
	"github.com/soulbrowser/soulbrowser/internal/orchestrator"
	"github.com/soulbrowser/soulbrowser/internal/scheduler"
)

// routedParams is what a call sent over the bridge actually carries: the
// route it targets (so a single external bridge process can multiplex many
// session/page/frame combinations) plus the tool call's own payload.
type routedParams struct {
	Session string          `json:"session"`
	Page    string          `json:"page"`
	Frame   string          `json:"frame"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Executor adapts a Client to orchestrator.ToolExecutor: each DispatchRequest
// becomes one JSON-RPC call whose method is the tool id and whose params
// carry the resolved route plus the tool's own payload.
type Executor struct {
	client *Client
}

func NewExecutor(client *Client) *Executor { return &Executor{client: client} }

func (e *Executor) Execute(ctx context.Context, request scheduler.DispatchRequest, route core.ExecRoute) (orchestrator.ToolResult, error) {
	params := routedParams{
		Session: string(route.Session),
		Page:    string(route.Page),
		Frame:   string(route.Frame),
		Payload: request.ToolCall.Payload,
	}
	result, err := e.client.Call(ctx, request.ToolCall.Tool, params)
	if err != nil {
		return orchestrator.ToolResult{}, fmt.Errorf("cdpws: execute %s: %w", request.ToolCall.Tool, err)
	}
	return orchestrator.ToolResult{Output: result}, nil
}

// EvaluateScript implements gate.ScriptEvaluator, the CDP Adapter's
// evaluate_script(page_id, source) contract (spec.md §6), as one more
// JSON-RPC call over the same connection.
func (e *Executor) EvaluateScript(ctx context.Context, route core.ExecRoute, script string) (json.RawMessage, error) {
	params := routedParams{
		Session: string(route.Session),
		Page:    string(route.Page),
		Frame:   string(route.Frame),
		Payload: mustMarshal(map[string]any{"script": script}),
	}
	result, err := e.client.Call(ctx, "Runtime.evaluate", params)
	if err != nil {
		return nil, fmt.Errorf("cdpws: evaluate script: %w", err)
	}
	return result, nil
}

func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return raw
}
