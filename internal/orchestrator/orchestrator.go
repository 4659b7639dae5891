package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/soulbrowser/soulbrowser/internal/async"
	"github.com/soulbrowser/soulbrowser/internal/core"
	"github.com/soulbrowser/soulbrowser/internal/logging"
	"github.com/soulbrowser/soulbrowser/internal/scheduler"
	"github.com/soulbrowser/soulbrowser/internal/statecenter"
)

// Resolver is the subset of Registry the orchestrator depends on: turning a
// routing hint into a concrete ExecRoute.
type Resolver interface {
	RouteResolve(ctx context.Context, hint *core.RoutingHint) (core.ExecRoute, error)
}

// Orchestrator pulls ready jobs off a scheduler.Runtime and drives them
// through a ToolExecutor, retrying any failed attempt with linear backoff
// up to the request's retry policy and recording every outcome.
type Orchestrator struct {
	registry    Resolver
	runtime     *scheduler.Runtime
	executor    ToolExecutor
	stateCenter statecenter.StateCenter
	logger      *logging.ComponentLogger
	metrics     *Metrics
	tracer      trace.Tracer

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New builds an Orchestrator. metrics may be nil to skip Prometheus
// recording (tests typically pass nil or a throwaway registry's Metrics).
func New(registry Resolver, runtime *scheduler.Runtime, executor ToolExecutor, stateCenter statecenter.StateCenter, logger *logging.ComponentLogger, metrics *Metrics) *Orchestrator {
	return &Orchestrator{
		registry:    registry,
		runtime:     runtime,
		executor:    executor,
		stateCenter: stateCenter,
		logger:      logger,
		metrics:     metrics,
		tracer:      otel.Tracer("soulbrowser/orchestrator"),
	}
}

// Spawn starts the single background worker loop, if not already running.
// Only the first caller's context governs the worker's lifetime, mirroring
// the original's single-JoinHandle guard.
func (o *Orchestrator) Spawn(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return
	}
	o.running = true
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	async.Go(o.logger, "orchestrator-worker", func() {
		for {
			ready, ok := o.runtime.NextJob(workerCtx)
			if !ok {
				return
			}
			job := ready
			async.Go(o.logger, "orchestrator-dispatch", func() {
				if err := o.dispatchJob(workerCtx, job); err != nil && o.logger != nil {
					o.logger.Warn("scheduler dispatch failed: %v", err)
				}
			})
		}
	})
}

// Stop cancels the worker loop started by Spawn, if any.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
	o.running = false
}

// Submit resolves request's route, enqueues it, and starts the worker if
// it isn't already running.
func (o *Orchestrator) Submit(ctx context.Context, request scheduler.DispatchRequest) (scheduler.SubmitHandle, error) {
	o.Spawn(ctx)
	route, err := o.registry.RouteResolve(ctx, request.RoutingHint)
	if err != nil {
		return scheduler.SubmitHandle{}, err
	}
	actionID, result := o.runtime.Enqueue(route.MutexKey, request, route)
	if o.metrics != nil {
		// Counted as "started" only once actually dispatched; enqueue itself
		// isn't metered to avoid double counting against dispatch.
	}
	return scheduler.SubmitHandle{ActionID: actionID, Result: result}, nil
}

// Cancel removes a not-yet-started job by action id.
func (o *Orchestrator) Cancel(ctx context.Context, action core.ActionId) (bool, error) {
	request, route, ok := o.runtime.Cancel(action)
	if !ok {
		return false, nil
	}
	o.logCancelled(ctx, route, request, action)
	return true, nil
}

// CancelCall removes a not-yet-started job by its caller-supplied call id.
func (o *Orchestrator) CancelCall(ctx context.Context, callID string) (bool, error) {
	o.Spawn(ctx)
	actionID, request, route, ok := o.runtime.CancelCall(callID)
	if !ok {
		return false, nil
	}
	o.logCancelled(ctx, route, request, actionID)
	return true, nil
}

// CancelTask removes every not-yet-started job owned by taskID.
func (o *Orchestrator) CancelTask(ctx context.Context, taskID string) (int, error) {
	o.Spawn(ctx)
	cancelled := o.runtime.CancelTask(taskID)
	for _, c := range cancelled {
		o.logCancelled(ctx, c.Route, c.Request, c.ActionID)
	}
	return len(cancelled), nil
}

func (o *Orchestrator) dispatchJob(ctx context.Context, ready *scheduler.ReadyJob) error {
	request := ready.Request()
	route := ready.Route()
	mutexKey := ready.MutexKey()
	actionID := ready.ID()
	taskID := ready.TaskID()
	completion := ready.TakeCompletion()

	maxRetries := request.Options.Retry.Max
	backoff := request.Options.Retry.Backoff
	timeout := request.Options.Timeout
	toolName := request.ToolCall.Tool

	ctx, span := o.tracer.Start(ctx, "orchestrator.dispatch", trace.WithAttributes(
		attribute.String("tool", toolName),
		attribute.String("mutex_key", mutexKey),
	))
	defer span.End()

	if o.metrics != nil {
		o.metrics.recordStarted(toolName)
	}

	attempt := 0
	for {
		attemptCtx, cancelAttempt := context.WithTimeout(ctx, timeout)
		result, err := o.executor.Execute(attemptCtx, request, route)
		cancelAttempt()

		if attemptCtx.Err() != nil && err == nil {
			err = core.ToolTimeout(fmt.Sprintf("tool %s timed out after %s", toolName, timeout))
		} else if attemptCtx.Err() != nil {
			err = core.ToolTimeout(fmt.Sprintf("tool %s timed out after %s", toolName, timeout))
		}

		if err == nil {
			timeline := o.runtime.FinishJob(ready)
			if completion != nil {
				completion <- scheduler.DispatchOutput{Route: route, Timeline: timeline, Output: result.Output}
				close(completion)
			}
			o.logSuccess(ctx, route, toolName, mutexKey, timeline, attempt, actionID, taskID)
			span.SetStatus(codes.Ok, "")
			return nil
		}

		if attempt >= maxRetries {
			timeline := o.runtime.FinishJob(ready)
			if completion != nil {
				completion <- scheduler.DispatchOutput{Route: route, Timeline: timeline, Err: err}
				close(completion)
			}
			o.logFailure(ctx, route, toolName, mutexKey, timeline, err, attempt+1, actionID, taskID)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		attempt++
		select {
		case <-time.After(backoff * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (o *Orchestrator) logSuccess(ctx context.Context, route core.ExecRoute, tool, mutexKey string, timeline scheduler.DispatchTimeline, attempt int, actionID core.ActionId, taskID string) {
	waitMs, runMs := timeline.Durations()
	pending := o.runtime.Pending()
	slots := o.runtime.SlotsAvailable()
	if o.logger != nil {
		o.logger.Info("tool=%s mutex_key=%s attempts=%d wait_ms=%d run_ms=%d pending=%d slots_available=%d tool execution completed",
			tool, mutexKey, attempt+1, waitMs, runMs, pending, slots)
	}
	event := statecenter.DispatchEvent{
		ActionID: actionID, TaskID: taskID, Status: statecenter.DispatchSuccess,
		Route: route, Tool: tool, MutexKey: mutexKey, Attempts: attempt + 1,
		WaitMs: waitMs, RunMs: runMs, Pending: pending, SlotsAvailable: slots,
	}
	o.appendEvent(ctx, statecenter.DispatchStateEvent(event))
	if o.metrics != nil {
		o.metrics.recordSuccess(tool, waitMs, runMs)
		o.metrics.recordQueueState(pending, slots)
	}
}

func (o *Orchestrator) logFailure(ctx context.Context, route core.ExecRoute, tool, mutexKey string, timeline scheduler.DispatchTimeline, cause error, attempts int, actionID core.ActionId, taskID string) {
	waitMs, runMs := timeline.Durations()
	pending := o.runtime.Pending()
	slots := o.runtime.SlotsAvailable()
	if o.logger != nil {
		o.logger.Warn("tool=%s mutex_key=%s attempts=%d wait_ms=%d run_ms=%d pending=%d slots_available=%d error=%v tool execution failed",
			tool, mutexKey, attempts, waitMs, runMs, pending, slots, cause)
	}
	event := statecenter.DispatchEvent{
		ActionID: actionID, TaskID: taskID, Status: statecenter.DispatchFailure,
		Route: route, Tool: tool, MutexKey: mutexKey, Attempts: attempts,
		WaitMs: waitMs, RunMs: runMs, Pending: pending, SlotsAvailable: slots, Err: cause,
	}
	o.appendEvent(ctx, statecenter.DispatchStateEvent(event))
	if o.metrics != nil {
		o.metrics.recordFailure(tool, waitMs, runMs)
		o.metrics.recordQueueState(pending, slots)
	}
}

func (o *Orchestrator) logCancelled(ctx context.Context, route core.ExecRoute, request scheduler.DispatchRequest, actionID core.ActionId) {
	pending := o.runtime.Pending()
	slots := o.runtime.SlotsAvailable()
	tool := request.ToolCall.Tool
	if o.logger != nil {
		o.logger.Warn("tool=%s mutex_key=%s pending=%d slots_available=%d tool execution cancelled", tool, route.MutexKey, pending, slots)
	}
	event := statecenter.DispatchEvent{
		ActionID: actionID, TaskID: request.ToolCall.TaskID, Status: statecenter.DispatchFailure,
		Route: route, Tool: tool, MutexKey: route.MutexKey, Attempts: 0,
		Pending: pending, SlotsAvailable: slots, Err: core.Cancelled("cancelled"),
	}
	o.appendEvent(ctx, statecenter.DispatchStateEvent(event))
	if o.metrics != nil {
		o.metrics.recordCancelled(tool)
	}
}

func (o *Orchestrator) appendEvent(ctx context.Context, event statecenter.StateEvent) {
	if o.stateCenter == nil {
		return
	}
	if err := o.stateCenter.Append(ctx, event); err != nil && o.logger != nil {
		o.logger.Warn("state center append failed: %v", err)
	}
}
