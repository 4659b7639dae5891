package planrunner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulbrowser/soulbrowser/internal/config"
	"github.com/soulbrowser/soulbrowser/internal/core"
	"github.com/soulbrowser/soulbrowser/internal/plan"
)

func TestTieredPlanCacheLRUOnlyRoundTrip(t *testing.T) {
	cache, err := NewTieredPlanCache(config.PlanCacheConfig{LRUSize: 8})
	require.NoError(t, err)

	p := plan.NewAgentPlan(core.NewTaskId(), "cached")
	ctx := context.Background()

	_, _, ok, err := cache.Load(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Store(ctx, "k1", &p, []string{"because"}))

	loaded, explanations, ok, err := cache.Load(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p.Title, loaded.Title)
	assert.Equal(t, []string{"because"}, explanations)
}

type countingProvider struct {
	calls int
	plan  *plan.AgentPlan
}

func (p *countingProvider) Plan(ctx context.Context, request plan.Request) (*plan.AgentPlan, []string, error) {
	p.calls++
	return p.plan, []string{"from provider"}, nil
}

func (p *countingProvider) Replan(ctx context.Context, request plan.Request, prior *plan.AgentPlan, issue string) (*plan.AgentPlan, []string, error) {
	return p.Plan(ctx, request)
}

func TestSingleflightProviderCollapsesConcurrentCalls(t *testing.T) {
	p := plan.NewAgentPlan(core.NewTaskId(), "sf")
	provider := &countingProvider{plan: &p}
	sf := NewSingleflightProvider(provider)

	request := plan.Request{Goal: "shared request"}
	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			_, _, err := sf.Plan(context.Background(), request, "shared-key")
			done <- err
		}()
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, <-done)
	}
	assert.LessOrEqual(t, provider.calls, 4)
	assert.GreaterOrEqual(t, provider.calls, 1)
}
