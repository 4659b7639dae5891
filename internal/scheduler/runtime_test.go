package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulbrowser/soulbrowser/internal/core"
)

func testConfig() Config {
	return Config{GlobalSlots: 1, DefaultPriority: PriorityStandard, DefaultMaxRetry: 0, DefaultBackoff: time.Millisecond, DefaultTimeout: time.Second}
}

func mockRoute() core.ExecRoute {
	return core.NewExecRoute(core.NewSessionId(), core.NewPageId(), core.NewFrameId())
}

func mockRequest(priority Priority) DispatchRequest {
	return DispatchRequest{
		ToolCall: ToolCall{Tool: "click"},
		Options:  CallOptions{Priority: priority, Timeout: time.Second},
	}
}

func TestEnqueueAndDrainSingleKey(t *testing.T) {
	rt := NewRuntime(testConfig())
	route := mockRoute()

	id, _ := rt.Enqueue(route.MutexKey, mockRequest(PriorityStandard), route)
	assert.Equal(t, 1, rt.Pending())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ready, ok := rt.NextJob(ctx)
	require.True(t, ok)
	assert.Equal(t, id, ready.ID())
	assert.Equal(t, 0, rt.Pending())
	assert.Equal(t, 0, rt.SlotsAvailable())

	timeline := rt.FinishJob(ready)
	require.NotNil(t, timeline.StartedAt)
	require.NotNil(t, timeline.FinishedAt)
	assert.Equal(t, 1, rt.SlotsAvailable())
}

func TestFIFOWithinSameMutexKey(t *testing.T) {
	rt := NewRuntime(testConfig())
	route := mockRoute()

	first, _ := rt.Enqueue(route.MutexKey, mockRequest(PriorityStandard), route)
	second, _ := rt.Enqueue(route.MutexKey, mockRequest(PriorityStandard), route)

	ctx := context.Background()
	ready1, ok := rt.NextJob(ctx)
	require.True(t, ok)
	assert.Equal(t, first, ready1.ID())

	// second job shares the mutex key, which is busy: it must not become
	// eligible until the first finishes.
	assert.Equal(t, 1, rt.Pending()) // second still queued behind the busy key

	rt.FinishJob(ready1)

	ready2, ok := rt.NextJob(ctx)
	require.True(t, ok)
	assert.Equal(t, second, ready2.ID())
	rt.FinishJob(ready2)
}

// TestFinishJobKeepsKeyBusyWhenPromotingQueuedJob guards against a window
// where FinishJob promoted a queued job onto the eligible heap but cleared
// keyBusy first: a concurrent Enqueue on the same key would see an idle key
// with an empty per-key queue and fast-path straight onto the heap,
// allowing two jobs for the same mutex key to be simultaneously eligible.
func TestFinishJobKeepsKeyBusyWhenPromotingQueuedJob(t *testing.T) {
	rt := NewRuntime(Config{GlobalSlots: 2, DefaultTimeout: time.Second})
	route := mockRoute()

	first, _ := rt.Enqueue(route.MutexKey, mockRequest(PriorityStandard), route)
	second, _ := rt.Enqueue(route.MutexKey, mockRequest(PriorityStandard), route)

	ctx := context.Background()
	ready1, ok := rt.NextJob(ctx)
	require.True(t, ok)
	assert.Equal(t, first, ready1.ID())

	rt.FinishJob(ready1)

	// second was promoted onto the heap by FinishJob above, but not yet
	// popped by NextJob: the key must still read busy, otherwise a fresh
	// Enqueue here would fast-path a third job alongside it.
	rt.mu.Lock()
	busy := rt.keyBusy[route.MutexKey]
	rt.mu.Unlock()
	assert.True(t, busy, "mutex key must stay busy while a promoted job awaits NextJob")

	third, _ := rt.Enqueue(route.MutexKey, mockRequest(PriorityStandard), route)

	rt.mu.Lock()
	queued := len(rt.keyQueues[route.MutexKey])
	rt.mu.Unlock()
	assert.Equal(t, 1, queued, "third job must queue behind the key, not join the heap directly")

	ready2, ok := rt.NextJob(ctx)
	require.True(t, ok)
	assert.Equal(t, second, ready2.ID())
	rt.FinishJob(ready2)

	ready3, ok := rt.NextJob(ctx)
	require.True(t, ok)
	assert.Equal(t, third, ready3.ID())
	rt.FinishJob(ready3)
}

func TestPriorityOrderingAcrossDistinctKeys(t *testing.T) {
	rt := NewRuntime(Config{GlobalSlots: 1, DefaultTimeout: time.Second})

	routeA := mockRoute()
	routeB := mockRoute()

	background, _ := rt.Enqueue(routeA.MutexKey, mockRequest(PriorityBackground), routeA)
	critical, _ := rt.Enqueue(routeB.MutexKey, mockRequest(PriorityCritical), routeB)

	ctx := context.Background()
	ready, ok := rt.NextJob(ctx)
	require.True(t, ok)
	assert.Equal(t, critical, ready.ID())
	rt.FinishJob(ready)

	ready, ok = rt.NextJob(ctx)
	require.True(t, ok)
	assert.Equal(t, background, ready.ID())
	rt.FinishJob(ready)
}

func TestCancelRemovesQueuedJob(t *testing.T) {
	rt := NewRuntime(Config{GlobalSlots: 1, DefaultTimeout: time.Second})
	route := mockRoute()

	running, _ := rt.Enqueue(route.MutexKey, mockRequest(PriorityStandard), route)
	queued, _ := rt.Enqueue(route.MutexKey, mockRequest(PriorityStandard), route)

	ctx := context.Background()
	ready, ok := rt.NextJob(ctx)
	require.True(t, ok)
	assert.Equal(t, running, ready.ID())

	_, _, cancelled := rt.Cancel(queued)
	assert.True(t, cancelled)
	assert.Equal(t, 0, rt.Pending())

	rt.FinishJob(ready)
}

func TestCancelTaskRemovesAllMatchingJobs(t *testing.T) {
	rt := NewRuntime(Config{GlobalSlots: 4, DefaultTimeout: time.Second})
	route := mockRoute()

	req := mockRequest(PriorityStandard)
	req.ToolCall.TaskID = "task-1"
	rt.Enqueue(mockRoute().MutexKey, req, route)
	rt.Enqueue(mockRoute().MutexKey, req, route)
	other := mockRequest(PriorityStandard)
	other.ToolCall.TaskID = "task-2"
	rt.Enqueue(mockRoute().MutexKey, other, route)

	cancelled := rt.CancelTask("task-1")
	assert.Len(t, cancelled, 2)
	assert.Equal(t, 1, rt.Pending())
}

func TestNextJobRespectsContextCancellation(t *testing.T) {
	rt := NewRuntime(testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok := rt.NextJob(ctx)
	assert.False(t, ok)
}
