package statecenter

import (
	"encoding/json"
	"os"
)

// routeSnapshot is the JSON shape of an ExecRoute inside a serialized event.
type routeSnapshot struct {
	Session  string `json:"session"`
	Page     string `json:"page"`
	Frame    string `json:"frame"`
	MutexKey string `json:"mutex_key"`
}

type dispatchSnapshot struct {
	Status         string        `json:"status"`
	ActionID       string        `json:"action_id"`
	TaskID         *string       `json:"task_id,omitempty"`
	Route          routeSnapshot `json:"route"`
	Tool           string        `json:"tool"`
	MutexKey       string        `json:"mutex_key"`
	Attempts       int           `json:"attempts"`
	WaitMs         int64         `json:"wait_ms"`
	RunMs          int64         `json:"run_ms"`
	Pending        int           `json:"pending"`
	SlotsAvailable int           `json:"slots_available"`
	Error          *string       `json:"error,omitempty"`
	RecordedAtMs   int64         `json:"recorded_at_ms"`
}

type registrySnapshot struct {
	Action       string  `json:"action"`
	Session      *string `json:"session,omitempty"`
	Page         *string `json:"page,omitempty"`
	Frame        *string `json:"frame,omitempty"`
	Note         *string `json:"note,omitempty"`
	RecordedAtMs int64   `json:"recorded_at_ms"`
}

type eventSnapshot struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type scopeCount struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

type scopeCounters struct {
	Sessions []scopeCount `json:"sessions"`
	Pages    []scopeCount `json:"pages"`
	Tasks    []scopeCount `json:"tasks"`
	Actions  []scopeCount `json:"actions"`
}

type stateCenterSnapshot struct {
	Stats  StateCenterStats `json:"stats"`
	Events []eventSnapshot  `json:"events"`
	Scopes scopeCounters    `json:"scopes"`
}

func toEventSnapshot(e StateEvent) eventSnapshot {
	switch e.Kind {
	case EventDispatch:
		d := e.Dispatch
		var taskID *string
		if d.TaskID != "" {
			taskID = &d.TaskID
		}
		var errStr *string
		if d.Err != nil {
			s := d.Err.Error()
			errStr = &s
		}
		return eventSnapshot{Type: "dispatch", Data: dispatchSnapshot{
			Status:   d.Status.String(),
			ActionID: string(d.ActionID),
			TaskID:   taskID,
			Route: routeSnapshot{
				Session:  string(d.Route.Session),
				Page:     string(d.Route.Page),
				Frame:    string(d.Route.Frame),
				MutexKey: d.Route.MutexKey,
			},
			Tool:           d.Tool,
			MutexKey:       d.MutexKey,
			Attempts:       d.Attempts,
			WaitMs:         d.WaitMs,
			RunMs:          d.RunMs,
			Pending:        d.Pending,
			SlotsAvailable: d.SlotsAvailable,
			Error:          errStr,
			RecordedAtMs:   d.RecordedAt.UnixMilli(),
		}}
	default:
		r := e.Registry
		var session, page, frame, note *string
		if r.Session != nil {
			s := string(*r.Session)
			session = &s
		}
		if r.Page != nil {
			p := string(*r.Page)
			page = &p
		}
		if r.Frame != nil {
			f := string(*r.Frame)
			frame = &f
		}
		if r.Note != "" {
			n := r.Note
			note = &n
		}
		return eventSnapshot{Type: "registry", Data: registrySnapshot{
			Action:       r.Action.String(),
			Session:      session,
			Page:         page,
			Frame:        frame,
			Note:         note,
			RecordedAtMs: r.RecordedAt.UnixMilli(),
		}}
	}
}

// WriteSnapshot serializes the global ring, stats and per-scope counts to a
// pretty-printed JSON file, for the telemetry.json artifact.
func (c *InMemoryStateCenter) WriteSnapshot(path string) error {
	events := c.Snapshot()
	serialized := make([]eventSnapshot, 0, len(events))
	for _, e := range events {
		serialized = append(serialized, toEventSnapshot(e))
	}

	snapshot := stateCenterSnapshot{
		Stats:  c.Stats(),
		Events: serialized,
		Scopes: c.scopeCounters(),
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// WriteEventsSnapshot serializes just the global ring's events (no stats or
// scope counts) to a pretty-printed JSON file, for the optional
// state_events.json artifact.
func (c *InMemoryStateCenter) WriteEventsSnapshot(path string) error {
	events := c.Snapshot()
	serialized := make([]eventSnapshot, 0, len(events))
	for _, e := range events {
		serialized = append(serialized, toEventSnapshot(e))
	}

	data, err := json.MarshalIndent(serialized, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *InMemoryStateCenter) scopeCounters() scopeCounters {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := scopeCounters{}
	for id, r := range c.sessions {
		out.Sessions = append(out.Sessions, scopeCount{ID: string(id), Count: r.len()})
	}
	for id, r := range c.pages {
		out.Pages = append(out.Pages, scopeCount{ID: string(id), Count: r.len()})
	}
	for id, r := range c.tasks {
		out.Tasks = append(out.Tasks, scopeCount{ID: id, Count: r.len()})
	}
	for id, r := range c.actions {
		out.Actions = append(out.Actions, scopeCount{ID: id, Count: r.len()})
	}
	return out
}
