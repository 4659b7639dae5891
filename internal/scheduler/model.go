// Package scheduler is the mutex-keyed, priority-aware job runtime: it
// holds pending work, enforces per-mutex-key serialization, gates global
// concurrency, and surfaces ready jobs in priority order. Grounded on
// spec.md §4.2 and the usage surface of
// original_source/crates/scheduler/src/orchestrator.rs (the runtime.rs
// module it depends on was not present in the retrieval pack, so the
// internal queue mechanics below are a from-spec reconstruction; see
// DESIGN.md).
package scheduler

import (
	"encoding/json"
	"time"

	"github.com/soulbrowser/soulbrowser/internal/core"
)

// Priority orders pending jobs; lower value dispatches first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityStandard
	PriorityBackground
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "Critical"
	case PriorityStandard:
		return "Standard"
	case PriorityBackground:
		return "Background"
	default:
		return "Unknown"
	}
}

// RetryPolicy bounds how many times and how slowly a failed dispatch retries.
type RetryPolicy struct {
	Max     int
	Backoff time.Duration
}

// CallOptions configures one dispatch: its priority, retry policy and
// per-attempt timeout.
type CallOptions struct {
	Priority Priority
	Retry    RetryPolicy
	Timeout  time.Duration
}

// ToolCall names the tool to invoke and carries its JSON payload.
type ToolCall struct {
	Tool    string
	TaskID  string // empty when the call has no owning task
	CallID  string // caller-supplied id used by CancelCall; may be empty
	Payload json.RawMessage
}

// DispatchRequest is everything the scheduler needs to route, queue and
// eventually execute one tool call.
type DispatchRequest struct {
	ToolCall    ToolCall
	Options     CallOptions
	RoutingHint *core.RoutingHint
}

// DispatchTimeline records when a job was enqueued, started and finished,
// the raw material for wait/run duration metrics.
type DispatchTimeline struct {
	EnqueuedAt time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// Durations derives (waitMs, runMs) from the timeline, treating an
// unstarted or unfinished job as contributing 0 for the missing leg.
func (t DispatchTimeline) Durations() (waitMs, runMs int64) {
	if t.StartedAt != nil {
		waitMs = t.StartedAt.Sub(t.EnqueuedAt).Milliseconds()
	}
	if t.StartedAt != nil && t.FinishedAt != nil {
		runMs = t.FinishedAt.Sub(*t.StartedAt).Milliseconds()
	}
	return waitMs, runMs
}

// DispatchOutput is what a submitter ultimately receives: either a
// successful tool output or an error, always with the resolved route and
// final timeline attached.
type DispatchOutput struct {
	Route    core.ExecRoute
	Timeline DispatchTimeline
	Output   json.RawMessage
	Err      error
}

// SubmitHandle is returned by Submit: the assigned action id plus a
// channel that receives exactly one DispatchOutput.
type SubmitHandle struct {
	ActionID core.ActionId
	Result   <-chan DispatchOutput
}

// Config seeds a Runtime's capacity and per-call defaults.
type Config struct {
	GlobalSlots     int
	DefaultPriority Priority
	DefaultMaxRetry int
	DefaultBackoff  time.Duration
	DefaultTimeout  time.Duration
}

// CancelledJob describes one job removed from the queue by a bulk cancel.
type CancelledJob struct {
	ActionID core.ActionId
	Request  DispatchRequest
	Route    core.ExecRoute
}
