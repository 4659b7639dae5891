// Package statecenter is the append-only, bounded-memory record of what the
// runtime has recently done: dispatch outcomes and registry lifecycle
// events, readable per scope (global, session, page, task, action) for
// diagnostics and replay. Grounded on original_source/crates/state-center.
package statecenter

import (
	"time"

	"github.com/soulbrowser/soulbrowser/internal/core"
)

// DispatchStatus is the terminal outcome of one dispatched tool call.
type DispatchStatus int

const (
	DispatchSuccess DispatchStatus = iota
	DispatchFailure
)

func (s DispatchStatus) String() string {
	if s == DispatchSuccess {
		return "success"
	}
	return "failure"
}

// DispatchEvent summarizes one finished orchestrator dispatch (all its
// attempts, counted in Attempts), success or failure, including the scheduling metrics needed to reconstruct queue
// pressure after the fact (pending, slots_available).
type DispatchEvent struct {
	ActionID       core.ActionId
	TaskID         string // empty when the dispatch had no owning task
	Status         DispatchStatus
	Route          core.ExecRoute
	Tool           string
	MutexKey       string
	Attempts       int
	WaitMs         int64
	RunMs          int64
	Pending        int
	SlotsAvailable int
	Err            error
	RecordedAt     time.Time
}

// RegistryAction enumerates the lifecycle transitions the Registry reports.
type RegistryAction int

const (
	SessionCreated RegistryAction = iota
	SessionClosed
	PageOpened
	PageClosed
	PageFocused
	FrameFocused
	FrameAttached
	FrameDetached
	HealthProbeTick
	PageHealthUpdated
)

func (a RegistryAction) String() string {
	switch a {
	case SessionCreated:
		return "SessionCreated"
	case SessionClosed:
		return "SessionClosed"
	case PageOpened:
		return "PageOpened"
	case PageClosed:
		return "PageClosed"
	case PageFocused:
		return "PageFocused"
	case FrameFocused:
		return "FrameFocused"
	case FrameAttached:
		return "FrameAttached"
	case FrameDetached:
		return "FrameDetached"
	case HealthProbeTick:
		return "HealthProbeTick"
	case PageHealthUpdated:
		return "PageHealthUpdated"
	default:
		return "Unknown"
	}
}

// RegistryEvent records one Registry lifecycle transition.
type RegistryEvent struct {
	Action     RegistryAction
	Session    *core.SessionId
	Page       *core.PageId
	Frame      *core.FrameId
	Note       string
	RecordedAt time.Time
}

// NewRegistryEvent stamps RecordedAt at construction time, mirroring the
// Rust constructor so callers never forget it.
func NewRegistryEvent(action RegistryAction, session *core.SessionId, page *core.PageId, frame *core.FrameId, note string) RegistryEvent {
	return RegistryEvent{
		Action:     action,
		Session:    session,
		Page:       page,
		Frame:      frame,
		Note:       note,
		RecordedAt: time.Now(),
	}
}

// EventKind distinguishes the two StateEvent variants without reflection.
type EventKind int

const (
	EventDispatch EventKind = iota
	EventRegistry
)

// StateEvent is a closed, two-variant union: exactly one of Dispatch/Registry
// is populated, selected by Kind.
type StateEvent struct {
	Kind     EventKind
	Dispatch DispatchEvent
	Registry RegistryEvent
}

func DispatchStateEvent(e DispatchEvent) StateEvent {
	return StateEvent{Kind: EventDispatch, Dispatch: e}
}

func RegistryStateEvent(e RegistryEvent) StateEvent {
	return StateEvent{Kind: EventRegistry, Registry: e}
}

// StateCenterStats tallies event volume since process start.
type StateCenterStats struct {
	TotalEvents     uint64 `json:"total_events"`
	DispatchSuccess uint64 `json:"dispatch_success"`
	DispatchFailure uint64 `json:"dispatch_failure"`
	RegistryEvents  uint64 `json:"registry_events"`
}
