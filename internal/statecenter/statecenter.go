package statecenter

import (
	"context"
	"sync"

	"github.com/soulbrowser/soulbrowser/internal/core"
)

// StateCenter appends events for later reads. Implementations must never
// block the caller on anything but acquiring their own internal locks.
type StateCenter interface {
	Append(ctx context.Context, event StateEvent) error
}

// InMemoryStateCenter is the process-local StateCenter: a global ring plus
// per-scope rings for session, page, task and action, each sized off the
// configured global capacity the same way the reference runtime scales
// them (session/page halved, task/action quartered, with floors so small
// capacities don't starve a scope to zero).
type InMemoryStateCenter struct {
	global *boundedRing[StateEvent]

	sessionCapacity int
	pageCapacity    int
	taskCapacity    int
	actionCapacity  int

	mu       sync.Mutex
	sessions map[core.SessionId]*boundedRing[StateEvent]
	pages    map[core.PageId]*boundedRing[StateEvent]
	tasks    map[string]*boundedRing[StateEvent]
	actions  map[string]*boundedRing[StateEvent]

	statsMu sync.Mutex
	stats   StateCenterStats

	metrics *Metrics
}

// NewInMemoryStateCenter builds a StateCenter whose global ring holds
// `capacity` entries (minimum 1), scoped rings scaling off that per the
// ratios above.
func NewInMemoryStateCenter(capacity int, metrics *Metrics) *InMemoryStateCenter {
	if capacity < 1 {
		capacity = 1
	}
	return &InMemoryStateCenter{
		global:          newBoundedRing[StateEvent](capacity),
		sessionCapacity: max(capacity/2, 32),
		pageCapacity:    max(capacity/2, 32),
		taskCapacity:    max(capacity/4, 16),
		actionCapacity:  max(capacity/4, 16),
		sessions:        make(map[core.SessionId]*boundedRing[StateEvent]),
		pages:           make(map[core.PageId]*boundedRing[StateEvent]),
		tasks:           make(map[string]*boundedRing[StateEvent]),
		actions:         make(map[string]*boundedRing[StateEvent]),
		metrics:         metrics,
	}
}

func (c *InMemoryStateCenter) Append(_ context.Context, event StateEvent) error {
	c.global.push(event)
	c.pushScoped(event)
	c.updateStats(event)
	return nil
}

func (c *InMemoryStateCenter) pushScoped(event StateEvent) {
	switch event.Kind {
	case EventDispatch:
		d := event.Dispatch
		c.ringForSession(d.Route.Session, c.sessionCapacity).push(event)
		c.ringForPage(d.Route.Page, c.pageCapacity).push(event)
		if d.TaskID != "" {
			c.ringForTask(d.TaskID, c.taskCapacity).push(event)
		}
		c.ringForAction(string(d.ActionID), c.actionCapacity).push(event)
	case EventRegistry:
		r := event.Registry
		if r.Session != nil {
			c.ringForSession(*r.Session, c.sessionCapacity).push(event)
		}
		if r.Page != nil {
			c.ringForPage(*r.Page, c.pageCapacity).push(event)
		}
	}
}

func (c *InMemoryStateCenter) ringForSession(id core.SessionId, cap int) *boundedRing[StateEvent] {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.sessions[id]
	if !ok {
		r = newBoundedRing[StateEvent](cap)
		c.sessions[id] = r
	}
	return r
}

func (c *InMemoryStateCenter) ringForPage(id core.PageId, cap int) *boundedRing[StateEvent] {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.pages[id]
	if !ok {
		r = newBoundedRing[StateEvent](cap)
		c.pages[id] = r
	}
	return r
}

func (c *InMemoryStateCenter) ringForTask(id string, cap int) *boundedRing[StateEvent] {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.tasks[id]
	if !ok {
		r = newBoundedRing[StateEvent](cap)
		c.tasks[id] = r
	}
	return r
}

func (c *InMemoryStateCenter) ringForAction(id string, cap int) *boundedRing[StateEvent] {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.actions[id]
	if !ok {
		r = newBoundedRing[StateEvent](cap)
		c.actions[id] = r
	}
	return r
}

func (c *InMemoryStateCenter) updateStats(event StateEvent) {
	c.statsMu.Lock()
	c.stats.TotalEvents++
	switch event.Kind {
	case EventDispatch:
		if event.Dispatch.Status == DispatchSuccess {
			c.stats.DispatchSuccess++
		} else {
			c.stats.DispatchFailure++
		}
	case EventRegistry:
		c.stats.RegistryEvents++
	}
	snap := c.stats
	c.statsMu.Unlock()

	if c.metrics != nil {
		c.metrics.observe(event, snap)
	}
}

// Snapshot returns every event currently held in the global ring, oldest
// first.
func (c *InMemoryStateCenter) Snapshot() []StateEvent { return c.global.snapshot() }

// Stats returns a copy of the running counters.
func (c *InMemoryStateCenter) Stats() StateCenterStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

func (c *InMemoryStateCenter) RecentSession(id core.SessionId) []StateEvent {
	c.mu.Lock()
	r, ok := c.sessions[id]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return r.snapshot()
}

func (c *InMemoryStateCenter) RecentPage(id core.PageId) []StateEvent {
	c.mu.Lock()
	r, ok := c.pages[id]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return r.snapshot()
}

func (c *InMemoryStateCenter) RecentTask(id string) []StateEvent {
	c.mu.Lock()
	r, ok := c.tasks[id]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return r.snapshot()
}

func (c *InMemoryStateCenter) RecentAction(id string) []StateEvent {
	c.mu.Lock()
	r, ok := c.actions[id]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return r.snapshot()
}

// NoopStateCenter discards everything. Used in tests and benchmarks where
// event bookkeeping would only add noise.
type NoopStateCenter struct{}

func (NoopStateCenter) Append(context.Context, StateEvent) error { return nil }
