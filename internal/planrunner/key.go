package planrunner

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/soulbrowser/soulbrowser/internal/plan"
)

// cacheKeyPayload is the canonical JSON shape hashed to produce a plan
// cache key, mirroring cache_key_for_request in original_source/crates/
// soulbrowser-kernel/src/agent/mod.rs: trimmed goal, the request's target
// sites as "constraints", the current url, and metadata sorted by key so
// map iteration order never perturbs the hash.
type cacheKeyPayload struct {
	Goal        string         `json:"goal"`
	Constraints []string       `json:"constraints,omitempty"`
	CurrentURL  string         `json:"current_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// RequestDigest hashes the semantically meaningful parts of a request,
// returning "" when the goal is empty (an empty goal never reaches a
// planner, so original_source never computes a key for it either).
func RequestDigest(request plan.Request) string {
	goal := strings.TrimSpace(request.Goal)
	if goal == "" {
		return ""
	}

	metadata := sortedMetadata(request.Metadata)
	payload := cacheKeyPayload{
		Goal:        goal,
		Constraints: request.Intent.TargetSites,
		CurrentURL:  request.Context.CurrentURL,
		Metadata:    metadata,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// sortedMetadata returns a copy of metadata whose JSON encoding is
// deterministic regardless of Go map iteration order. encoding/json already
// sorts object keys when marshaling a map, but building this explicitly
// keeps the derivation legible and documents the intent the original's own
// BTreeMap-backed serialization relied on.
func sortedMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]any, len(metadata))
	for _, k := range keys {
		out[k] = metadata[k]
	}
	return out
}

// CacheKey derives the full plan-cache key for request, namespaced by
// tenant/provider/model as spec.md §9's keying scheme describes: "(tenant,
// provider, model, hash(normalized_request))". An empty digest (empty goal)
// means the request is not cacheable at all; returns ("", false).
func CacheKey(tenant, provider, model string, request plan.Request) (string, bool) {
	digest := RequestDigest(request)
	if digest == "" {
		return "", false
	}
	return strings.Join([]string{tenant, provider, model, digest}, "/"), true
}
