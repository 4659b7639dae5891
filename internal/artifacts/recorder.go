// Package artifacts persists one task's planning/execution run to
// <output_dir>/tasks/<task_id>/: plans.json (one snapshot per planning
// attempt), executions.json (one FlowExecutionReport per run), and,
// delegating to internal/statecenter, state_events.json and telemetry.json.
// Grounded on spec.md §6's "Persisted plan record" list.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/soulbrowser/soulbrowser/internal/core"
	"github.com/soulbrowser/soulbrowser/internal/plan"
	"github.com/soulbrowser/soulbrowser/internal/statecenter"
	"github.com/soulbrowser/soulbrowser/internal/toolflow"
)

// PlanAttempt is one planning attempt's snapshot, as stored in plans.json.
// ValidationIssue is empty when the attempt produced no PlanValidator
// complaint; it's a plain string (not a *planrunner.PlanValidationIssue) so
// this package doesn't need to depend on internal/planrunner to record one.
type PlanAttempt struct {
	Attempt         int               `json:"attempt"`
	PlannedAt       time.Time         `json:"planned_at"`
	Plan            plan.AgentPlan    `json:"plan"`
	Explanations    []string          `json:"explanations,omitempty"`
	Repairs         plan.RepairReport `json:"repairs"`
	ValidationIssue string            `json:"validation_issue,omitempty"`
}

// Recorder accumulates one task's plans and executions in memory and
// rewrites their JSON files on every record, so a crash mid-run leaves the
// most recently completed record durable rather than losing the whole
// array.
type Recorder struct {
	mu         sync.Mutex
	dir        string
	plans      []PlanAttempt
	executions []toolflow.FlowExecutionReport
}

// NewRecorder creates (if absent) <outputDir>/tasks/<taskID> and returns a
// Recorder scoped to it.
func NewRecorder(outputDir string, taskID core.TaskId) (*Recorder, error) {
	dir := filepath.Join(outputDir, "tasks", string(taskID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: create task dir: %w", err)
	}
	return &Recorder{dir: dir}, nil
}

// Dir returns the task's artifact directory.
func (r *Recorder) Dir() string { return r.dir }

// RecordPlan appends attempt to plans.json and rewrites the file.
func (r *Recorder) RecordPlan(attempt PlanAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.plans = append(r.plans, attempt)
	return writeJSON(filepath.Join(r.dir, "plans.json"), r.plans)
}

// RecordExecution appends report to executions.json and rewrites the file.
func (r *Recorder) RecordExecution(report toolflow.FlowExecutionReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.executions = append(r.executions, report)
	return writeJSON(filepath.Join(r.dir, "executions.json"), r.executions)
}

// WriteStateEvents dumps center's event ring to state_events.json, the
// "optional dump of state-center events" spec.md §6 names. Safe to call
// with a nil center: it's a no-op, since the dump is explicitly optional.
func (r *Recorder) WriteStateEvents(center *statecenter.InMemoryStateCenter) error {
	if center == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return center.WriteEventsSnapshot(filepath.Join(r.dir, "state_events.json"))
}

// WriteTelemetry dumps center's stats/events/scope-counts snapshot to
// telemetry.json.
func (r *Recorder) WriteTelemetry(center *statecenter.InMemoryStateCenter) error {
	if center == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return center.WriteSnapshot(filepath.Join(r.dir, "telemetry.json"))
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
