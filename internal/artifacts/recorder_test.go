package artifacts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulbrowser/soulbrowser/internal/core"
	"github.com/soulbrowser/soulbrowser/internal/plan"
	"github.com/soulbrowser/soulbrowser/internal/statecenter"
	"github.com/soulbrowser/soulbrowser/internal/toolflow"
)

func TestRecorderWritesPlansAndExecutions(t *testing.T) {
	dir := t.TempDir()
	taskID := core.NewTaskId()

	recorder, err := NewRecorder(dir, taskID)
	require.NoError(t, err)
	assert.DirExists(t, recorder.Dir())

	p := plan.NewAgentPlan(taskID, "find the weather")
	require.NoError(t, recorder.RecordPlan(PlanAttempt{
		Attempt:   1,
		PlannedAt: time.Now(),
		Plan:      p,
	}))
	require.NoError(t, recorder.RecordPlan(PlanAttempt{
		Attempt:         2,
		PlannedAt:       time.Now(),
		Plan:            p,
		ValidationIssue: "missing deliver schema",
	}))

	raw, err := os.ReadFile(filepath.Join(recorder.Dir(), "plans.json"))
	require.NoError(t, err)
	var decoded []PlanAttempt
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "missing deliver schema", decoded[1].ValidationIssue)

	require.NoError(t, recorder.RecordExecution(toolflow.FlowExecutionReport{
		TaskID:    taskID,
		PlanID:    "plan-1",
		Succeeded: true,
	}))

	rawExec, err := os.ReadFile(filepath.Join(recorder.Dir(), "executions.json"))
	require.NoError(t, err)
	var decodedExec []toolflow.FlowExecutionReport
	require.NoError(t, json.Unmarshal(rawExec, &decodedExec))
	require.Len(t, decodedExec, 1)
	assert.True(t, decodedExec[0].Succeeded)
}

func TestRecorderWritesStateEventsAndTelemetry(t *testing.T) {
	dir := t.TempDir()
	taskID := core.NewTaskId()

	recorder, err := NewRecorder(dir, taskID)
	require.NoError(t, err)

	center := statecenter.NewInMemoryStateCenter(16, statecenter.NewMetrics(prometheus.NewRegistry()))
	require.NoError(t, recorder.WriteStateEvents(center))
	require.NoError(t, recorder.WriteTelemetry(center))

	assert.FileExists(t, filepath.Join(recorder.Dir(), "state_events.json"))
	assert.FileExists(t, filepath.Join(recorder.Dir(), "telemetry.json"))
}

func TestRecorderNilCenterIsNoOp(t *testing.T) {
	dir := t.TempDir()
	recorder, err := NewRecorder(dir, core.NewTaskId())
	require.NoError(t, err)

	require.NoError(t, recorder.WriteStateEvents(nil))
	require.NoError(t, recorder.WriteTelemetry(nil))

	assert.NoFileExists(t, filepath.Join(recorder.Dir(), "state_events.json"))
	assert.NoFileExists(t, filepath.Join(recorder.Dir(), "telemetry.json"))
}
