package core

import "fmt"

// ExecRoute is the (session, page, frame) triple plus the derived mutex key
// that identifies where a tool call runs. Routes are immutable value types.
type ExecRoute struct {
	Session  SessionId
	Page     PageId
	Frame    FrameId
	MutexKey string
}

// NewExecRoute builds a route with the default mutex key derivation
// ("frame:{frame_id}").
func NewExecRoute(session SessionId, page PageId, frame FrameId) ExecRoute {
	return ExecRoute{
		Session:  session,
		Page:     page,
		Frame:    frame,
		MutexKey: DefaultMutexKey(frame),
	}
}

// DefaultMutexKey computes the default per-frame serialization key.
func DefaultMutexKey(frame FrameId) string {
	return fmt.Sprintf("frame:%s", frame)
}

// RoutePrefer selects which frame route_resolve should favor when a page
// (but not a frame) hint is given.
type RoutePrefer int

const (
	PreferFocused RoutePrefer = iota
	PreferMainFrame
	PreferRecentNav
)

// RoutingHint narrows route resolution to a session, page, and/or frame.
type RoutingHint struct {
	Session *SessionId
	Page    *PageId
	Frame   *FrameId
	Prefer  RoutePrefer
}
