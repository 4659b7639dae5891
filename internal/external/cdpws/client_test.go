package cdpws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientDialHandshakeAndCall(t *testing.T) {
	ts, url, err := NewTestServer("test-token", func(method string, params json.RawMessage) (json.RawMessage, error) {
		if method == "bridge.ping" {
			return json.RawMessage(`{"ok":true}`), nil
		}
		return nil, assertErr("unknown method")
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ts.Close() })

	client, err := Dial(context.Background(), url, ClientConfig{Token: "test-token", CallTimeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	raw, err := client.Call(context.Background(), "bridge.ping", nil)
	require.NoError(t, err)
	var payload struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.True(t, payload.OK)
}

func TestClientDialRejectsBadToken(t *testing.T) {
	ts, url, err := NewTestServer("expected", func(method string, params json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ts.Close() })

	_, err = Dial(context.Background(), url, ClientConfig{Token: "wrong", ConnectTimeout: time.Second})
	assert.Error(t, err)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
