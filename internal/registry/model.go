// Package registry is the authoritative session/page/frame store and the
// sole route resolver the scheduler depends on. Grounded on
// original_source/crates/registry/src/state.rs.
package registry

import (
	"time"

	"github.com/soulbrowser/soulbrowser/internal/core"
)

// LifeState is the coarse lifecycle stage shared by sessions and pages.
type LifeState int

const (
	Init LifeState = iota
	Ready
	Active
	Closing
)

func (s LifeState) String() string {
	switch s {
	case Init:
		return "Init"
	case Ready:
		return "Ready"
	case Active:
		return "Active"
	case Closing:
		return "Closing"
	default:
		return "Unknown"
	}
}

// HealthStatus is the simplified three-value page health signal. The real
// network snapshot that drives it lives outside the core (perceiver
// territory); the registry only records the resulting bucket.
type HealthStatus int

const (
	HealthIdle HealthStatus = iota
	HealthBusy
	HealthDegraded
)

func (h HealthStatus) String() string {
	switch h {
	case HealthIdle:
		return "Idle"
	case HealthBusy:
		return "Busy"
	case HealthDegraded:
		return "Degraded"
	default:
		return "Unknown"
	}
}

// Health is the page's observable activity signal.
type Health struct {
	Status        HealthStatus
	LastUpdatedAt time.Time
}

// SessionCtx is a snapshot of one browsing session.
type SessionCtx struct {
	ID           core.SessionId
	ProfileName  string
	State        LifeState
	FocusedPage  *core.PageId
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// PageCtx is a snapshot of one page (tab) within a session.
type PageCtx struct {
	ID           core.PageId
	Session      core.SessionId
	MainFrame    *core.FrameId
	FocusedFrame *core.FrameId
	URL          *string
	State        LifeState
	Health       Health
	LastActiveAt time.Time
}

// FrameCtx is a snapshot of one frame within a page's frame tree.
type FrameCtx struct {
	ID       core.FrameId
	Page     core.PageId
	Parent   *core.FrameId
	Children []core.FrameId
	IsMain   bool
	State    LifeState
}
