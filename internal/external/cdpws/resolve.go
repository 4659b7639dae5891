package cdpws

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// ResolveCDPURL turns input into a websocket debugger URL: a ws:// URL is
// returned unchanged; anything else (a bare port, a host:port, or a full
// http(s):// base) is treated as a DevTools HTTP endpoint and resolved by
// fetching /json/version and reading webSocketDebuggerUrl from it. Grounded
// on resolveCDPURL's behavior as exercised by
// _examples/cklxx-elephant.ai/internal/tools/builtin/browser/cdp_url_test.go.
func ResolveCDPURL(ctx context.Context, input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", fmt.Errorf("cdpws: empty cdp endpoint")
	}
	if strings.HasPrefix(trimmed, "ws://") || strings.HasPrefix(trimmed, "wss://") {
		return trimmed, nil
	}

	base := trimmed
	switch {
	case strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://"):
		// already a full base URL
	case isBarePort(base):
		base = "http://127.0.0.1:" + base
	default:
		if _, _, err := net.SplitHostPort(base); err == nil {
			base = "http://" + base
		} else {
			return "", fmt.Errorf("cdpws: unrecognized cdp endpoint %q", input)
		}
	}

	versionURL := strings.TrimSuffix(base, "/") + "/json/version"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, versionURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("cdpws: fetch %s: %w", versionURL, err)
	}
	defer resp.Body.Close()

	var payload struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("cdpws: decode %s: %w", versionURL, err)
	}
	if strings.TrimSpace(payload.WebSocketDebuggerURL) == "" {
		return "", fmt.Errorf("cdpws: %s returned an empty webSocketDebuggerUrl", versionURL)
	}
	return payload.WebSocketDebuggerURL, nil
}

func isBarePort(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}
