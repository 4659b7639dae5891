package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulbrowser/soulbrowser/internal/core"
	"github.com/soulbrowser/soulbrowser/internal/scheduler"
	"github.com/soulbrowser/soulbrowser/internal/statecenter"
)

type mockRegistry struct {
	route core.ExecRoute

	mu    sync.Mutex
	calls []*core.RoutingHint
}

func (m *mockRegistry) RouteResolve(_ context.Context, hint *core.RoutingHint) (core.ExecRoute, error) {
	m.mu.Lock()
	m.calls = append(m.calls, hint)
	m.mu.Unlock()
	return m.route, nil
}

func (m *mockRegistry) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type countingExecutor struct {
	mu         sync.Mutex
	executions int
}

func (e *countingExecutor) Execute(context.Context, scheduler.DispatchRequest, core.ExecRoute) (ToolResult, error) {
	e.mu.Lock()
	e.executions++
	e.mu.Unlock()
	return ToolResult{}, nil
}

func (e *countingExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.executions
}

type failingExecutor struct {
	mu         sync.Mutex
	executions int
}

func (e *failingExecutor) Execute(context.Context, scheduler.DispatchRequest, core.ExecRoute) (ToolResult, error) {
	e.mu.Lock()
	e.executions++
	e.mu.Unlock()
	return ToolResult{}, core.New(core.KindInternal, "executor failure")
}

func (e *failingExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.executions
}

func mockRoute() core.ExecRoute {
	return core.NewExecRoute(core.NewSessionId(), core.NewPageId(), core.NewFrameId())
}

func mockRequest() scheduler.DispatchRequest {
	return scheduler.DispatchRequest{
		ToolCall: scheduler.ToolCall{Tool: "click"},
		Options: scheduler.CallOptions{
			Priority: scheduler.PriorityStandard,
			Retry:    scheduler.RetryPolicy{Max: 0, Backoff: time.Millisecond},
			Timeout:  time.Second,
		},
		RoutingHint: &core.RoutingHint{},
	}
}

func TestDispatchRecordsStateCenterEvents(t *testing.T) {
	registry := &mockRegistry{route: mockRoute()}
	runtime := scheduler.NewRuntime(scheduler.Config{GlobalSlots: 1, DefaultTimeout: time.Second})
	executor := &countingExecutor{}
	stateCenter := statecenter.NewInMemoryStateCenter(16, nil)
	orch := New(registry, runtime, executor, stateCenter, nil, nil)

	handle, err := orch.Submit(context.Background(), mockRequest())
	require.NoError(t, err)

	select {
	case <-handle.Result:
	case <-time.After(time.Second):
		t.Fatal("dispatch did not complete")
	}

	events := stateCenter.Snapshot()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, statecenter.EventDispatch, last.Kind)
	assert.Equal(t, "click", last.Dispatch.Tool)
	assert.Equal(t, statecenter.DispatchSuccess, last.Dispatch.Status)
}

func TestDispatchFailureRecordsErrorEvent(t *testing.T) {
	registry := &mockRegistry{route: mockRoute()}
	runtime := scheduler.NewRuntime(scheduler.Config{GlobalSlots: 1, DefaultTimeout: time.Second})
	executor := &failingExecutor{}
	stateCenter := statecenter.NewInMemoryStateCenter(8, nil)
	orch := New(registry, runtime, executor, stateCenter, nil, nil)

	handle, err := orch.Submit(context.Background(), mockRequest())
	require.NoError(t, err)

	var output scheduler.DispatchOutput
	select {
	case output = <-handle.Result:
	case <-time.After(time.Second):
		t.Fatal("dispatch did not complete")
	}
	require.Error(t, output.Err)

	events := stateCenter.Snapshot()
	var failure *statecenter.DispatchEvent
	for i := range events {
		if events[i].Kind == statecenter.EventDispatch && events[i].Dispatch.Status == statecenter.DispatchFailure {
			failure = &events[i].Dispatch
		}
	}
	require.NotNil(t, failure)
	assert.Equal(t, "click", failure.Tool)
	assert.Error(t, failure.Err)
}

func TestCancelRecordsEvent(t *testing.T) {
	registry := &mockRegistry{route: mockRoute()}
	runtime := scheduler.NewRuntime(scheduler.Config{GlobalSlots: 1, DefaultTimeout: time.Second})
	executor := &countingExecutor{}
	stateCenter := statecenter.NewInMemoryStateCenter(8, nil)
	orch := New(registry, runtime, executor, stateCenter, nil, nil)

	// Enqueue directly (bypassing Submit/Spawn) so no worker is racing to
	// dequeue the job before we cancel it.
	route := registry.route
	actionID, _ := runtime.Enqueue(route.MutexKey, mockRequest(), route)

	cancelled, err := orch.Cancel(context.Background(), actionID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	time.Sleep(20 * time.Millisecond)
	events := stateCenter.Snapshot()
	found := false
	for _, e := range events {
		if e.Kind == statecenter.EventDispatch && e.Dispatch.Err != nil && e.Dispatch.Err.Error() == core.Cancelled("cancelled").Error() {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSubmitEnqueuesAndWorkerDrains(t *testing.T) {
	registry := &mockRegistry{route: mockRoute()}
	runtime := scheduler.NewRuntime(scheduler.Config{GlobalSlots: 1, DefaultTimeout: time.Second})
	executor := &countingExecutor{}
	orch := New(registry, runtime, executor, statecenter.NoopStateCenter{}, nil, nil)

	handle, err := orch.Submit(context.Background(), mockRequest())
	require.NoError(t, err)

	var output scheduler.DispatchOutput
	select {
	case output = <-handle.Result:
	case <-time.After(time.Second):
		t.Fatal("dispatch did not complete")
	}

	assert.Equal(t, 0, runtime.Pending())
	assert.Equal(t, 1, registry.callCount())
	assert.Equal(t, registry.route.Session, output.Route.Session)
	require.NotNil(t, output.Timeline.StartedAt)
	require.NotNil(t, output.Timeline.FinishedAt)
	assert.Equal(t, 1, executor.count())
}

// Mirrors the always-erroring-executor, max_retries=2, 100ms-timeout
// end-to-end scenario: exactly three executions occur (the original attempt
// plus two retries) before the dispatch gives up with attempts=3.
func TestRetryExhaustionRunsExactlyMaxRetriesPlusOne(t *testing.T) {
	registry := &mockRegistry{route: mockRoute()}
	runtime := scheduler.NewRuntime(scheduler.Config{GlobalSlots: 1, DefaultTimeout: 100 * time.Millisecond})
	executor := &failingExecutor{}
	stateCenter := statecenter.NewInMemoryStateCenter(16, nil)
	orch := New(registry, runtime, executor, stateCenter, nil, nil)

	request := mockRequest()
	request.Options.Retry = scheduler.RetryPolicy{Max: 2, Backoff: time.Millisecond}
	request.Options.Timeout = 100 * time.Millisecond

	handle, err := orch.Submit(context.Background(), request)
	require.NoError(t, err)

	select {
	case output := <-handle.Result:
		require.Error(t, output.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not complete")
	}

	assert.Equal(t, 3, executor.count())

	events := stateCenter.Snapshot()
	var failure *statecenter.DispatchEvent
	for i := range events {
		if events[i].Kind == statecenter.EventDispatch && events[i].Dispatch.Status == statecenter.DispatchFailure {
			failure = &events[i].Dispatch
		}
	}
	require.NotNil(t, failure)
	assert.Equal(t, 3, failure.Attempts)
}
