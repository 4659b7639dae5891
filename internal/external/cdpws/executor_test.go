package cdpws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulbrowser/soulbrowser/internal/core"
	"github.com/soulbrowser/soulbrowser/internal/scheduler"
)

func TestExecutorExecuteRoutesToolCallOverBridge(t *testing.T) {
	ts, url, err := NewTestServer("", func(method string, params json.RawMessage) (json.RawMessage, error) {
		if method != "navigate-to-url" {
			return nil, assertErr("unexpected method " + method)
		}
		var decoded routedParams
		if err := json.Unmarshal(params, &decoded); err != nil {
			return nil, err
		}
		return json.RawMessage(`{"current_url":"https://example.com"}`), nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ts.Close() })

	client, err := Dial(context.Background(), url, ClientConfig{CallTimeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	executor := NewExecutor(client)
	route := core.NewExecRoute("sess-1", "page-1", "frame-1")
	request := scheduler.DispatchRequest{ToolCall: scheduler.ToolCall{Tool: "navigate-to-url", Payload: json.RawMessage(`{"url":"https://example.com"}`)}}

	result, err := executor.Execute(context.Background(), request, route)
	require.NoError(t, err)
	assert.Contains(t, string(result.Output), "example.com")
}

func TestExecutorEvaluateScript(t *testing.T) {
	ts, url, err := NewTestServer("", func(method string, params json.RawMessage) (json.RawMessage, error) {
		if method != "Runtime.evaluate" {
			return nil, assertErr("unexpected method " + method)
		}
		return json.RawMessage(`{"value":42}`), nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ts.Close() })

	client, err := Dial(context.Background(), url, ClientConfig{CallTimeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	executor := NewExecutor(client)
	route := core.NewExecRoute("sess-1", "page-1", "frame-1")
	result, err := executor.EvaluateScript(context.Background(), route, "document.title")
	require.NoError(t, err)
	assert.Contains(t, string(result), "42")
}
