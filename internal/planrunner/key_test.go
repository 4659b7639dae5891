package planrunner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulbrowser/soulbrowser/internal/plan"
)

func TestRequestDigestEmptyGoal(t *testing.T) {
	assert.Equal(t, "", RequestDigest(plan.Request{}))
}

func TestRequestDigestStableAcrossMetadataOrder(t *testing.T) {
	a := plan.Request{Goal: "check weather", Metadata: map[string]any{"a": 1, "b": 2}}
	b := plan.Request{Goal: "check weather", Metadata: map[string]any{"b": 2, "a": 1}}
	assert.Equal(t, RequestDigest(a), RequestDigest(b))
}

func TestRequestDigestDiffersOnGoal(t *testing.T) {
	a := plan.Request{Goal: "check weather"}
	b := plan.Request{Goal: "check news"}
	assert.NotEqual(t, RequestDigest(a), RequestDigest(b))
}

func TestCacheKeyNotCacheableOnEmptyGoal(t *testing.T) {
	key, ok := CacheKey("tenant-1", "llm", "gpt", plan.Request{})
	assert.False(t, ok)
	assert.Equal(t, "", key)
}

func TestCacheKeyJoinsNamespaceAndDigest(t *testing.T) {
	request := plan.Request{Goal: "check weather in boston"}
	key, ok := CacheKey("tenant-1", "llm", "gpt-4", request)
	require.True(t, ok)
	digest := RequestDigest(request)
	assert.Equal(t, "tenant-1/llm/gpt-4/"+digest, key)
}
