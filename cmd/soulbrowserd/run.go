package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/soulbrowser/soulbrowser/internal/artifacts"
	"github.com/soulbrowser/soulbrowser/internal/config"
	"github.com/soulbrowser/soulbrowser/internal/core"
	"github.com/soulbrowser/soulbrowser/internal/external/cdpws"
	"github.com/soulbrowser/soulbrowser/internal/gate"
	"github.com/soulbrowser/soulbrowser/internal/logging"
	"github.com/soulbrowser/soulbrowser/internal/orchestrator"
	"github.com/soulbrowser/soulbrowser/internal/plan"
	"github.com/soulbrowser/soulbrowser/internal/planrunner"
	"github.com/soulbrowser/soulbrowser/internal/registry"
	"github.com/soulbrowser/soulbrowser/internal/scheduler"
	"github.com/soulbrowser/soulbrowser/internal/stageauditor"
	"github.com/soulbrowser/soulbrowser/internal/statecenter"
	"github.com/soulbrowser/soulbrowser/internal/toolflow"
)

type runOptions struct {
	goal       string
	outputDir  string
	tenant     string
	cdpURL     string
	configPath string
	strict     bool
}

func newRunCommand() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Plan and execute one task through the full pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd.Context(), opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.goal, "goal", "", "natural-language task goal (required)")
	flags.StringVar(&opts.outputDir, "output-dir", "./soulbrowser-output", "directory artifacts are written under")
	flags.StringVar(&opts.tenant, "tenant", "demo", "tenant label attached to the session profile")
	flags.StringVar(&opts.cdpURL, "cdp-url", "", "CDP websocket/devtools endpoint; omit to run against an in-process stub")
	flags.StringVar(&opts.configPath, "config", "", "optional YAML config file overriding the built-in defaults")
	flags.BoolVar(&opts.strict, "strict", false, "run the stricter plan validator")
	_ = cmd.MarkFlagRequired("goal")
	return cmd
}

func runTask(ctx context.Context, opts *runOptions) error {
	loader, err := config.NewLoader(opts.configPath, "SOULBROWSER")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("resolve config: %w", err)
	}

	logger := logging.NewComponentLogger(logging.ComponentLoggerConfig{
		ComponentName: "soulbrowserd",
		EnabledLevels: logging.DefaultLevels(),
	})

	promReg := prometheus.NewRegistry()
	stateCenter := statecenter.NewInMemoryStateCenter(cfg.StateCenter.GlobalCapacity, statecenter.NewMetrics(promReg))

	policy := registry.NewPolicyView(registry.Policy{AllowMultiplePages: cfg.Policy.AllowMultiplePages})
	reg := registry.New(policy, stateCenter, logging.NewComponentLogger(logging.ComponentLoggerConfig{
		ComponentName: "registry", EnabledLevels: logging.DefaultLevels(),
	}))

	sessionID, err := reg.SessionCreate(ctx, opts.tenant)
	if err != nil {
		return fmt.Errorf("bootstrap session: %w", err)
	}
	if _, err := reg.PageOpen(ctx, sessionID); err != nil {
		return fmt.Errorf("bootstrap page: %w", err)
	}

	runtime := scheduler.NewRuntime(scheduler.Config{
		GlobalSlots:     cfg.Scheduler.GlobalSlots,
		DefaultPriority: parsePriority(cfg.Scheduler.DefaultPriority),
		DefaultMaxRetry: cfg.Scheduler.DefaultMaxRetry,
		DefaultBackoff:  cfg.Scheduler.DefaultBackoff,
		DefaultTimeout:  cfg.Scheduler.DefaultTimeout,
	})

	executor, scriptEvaluator, snapshots, closeExecutor, err := buildExecutor(ctx, opts.cdpURL)
	if err != nil {
		return err
	}
	defer closeExecutor()

	orch := orchestrator.New(reg, runtime, executor, stateCenter,
		logging.NewComponentLogger(logging.ComponentLoggerConfig{ComponentName: "orchestrator", EnabledLevels: logging.DefaultLevels()}),
		orchestrator.NewMetrics(promReg))

	evidence := gate.NewDefaultEvidenceCollector(snapshots)
	validator := gate.NewDefaultGateValidator(scriptEvaluator, evidence)

	auditor := stageauditor.NewAuditor()

	planValidator := planrunner.DefaultPlanValidator()
	if opts.strict {
		planValidator = planrunner.StrictPlanValidator()
	}

	strategy := planrunner.NewRuleStrategy(planrunner.NewRuleBasedPlanner())
	runner := planrunner.NewRunner(strategy, auditor, planValidator, toolflow.Options{
		DefaultTimeout:   cfg.Scheduler.DefaultTimeout,
		DefaultRetry:     scheduler.RetryPolicy{Max: cfg.Scheduler.DefaultMaxRetry, Backoff: cfg.Scheduler.DefaultBackoff},
		DefaultPriority:  parsePriority(cfg.Scheduler.DefaultPriority),
		StrictValidation: opts.strict,
	})

	taskID := core.NewTaskId()
	request := plan.Request{
		TaskID: taskID,
		Goal:   opts.goal,
		Intent: plan.Intent{PrimaryGoal: opts.goal},
	}

	recorder, err := artifacts.NewRecorder(opts.outputDir, taskID)
	if err != nil {
		return fmt.Errorf("create recorder: %w", err)
	}

	outcome, err := runner.Plan(ctx, request)
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}

	attempt := artifacts.PlanAttempt{
		Attempt:      1,
		PlannedAt:    time.Now(),
		Plan:         outcome.Plan,
		Explanations: outcome.Explanations,
		Repairs:      outcome.Repairs,
	}
	if outcome.ValidationIssue != nil {
		attempt.ValidationIssue = outcome.ValidationIssue.Error()
	}
	if err := recorder.RecordPlan(attempt); err != nil {
		return fmt.Errorf("record plan: %w", err)
	}

	report, err := runner.Execute(ctx, orch, validator, outcome)
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	if err := recorder.RecordExecution(report); err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	if err := recorder.WriteStateEvents(stateCenter); err != nil {
		return fmt.Errorf("write state events: %w", err)
	}
	if err := recorder.WriteTelemetry(stateCenter); err != nil {
		return fmt.Errorf("write telemetry: %w", err)
	}

	logger.Info("task=%s succeeded=%v steps=%d artifacts=%s", taskID, report.Succeeded, len(report.Steps), recorder.Dir())
	return nil
}

// buildExecutor wires either a live cdpws-backed tool executor or an
// in-process stub, matching both roles a single ToolExecutor/ScriptEvaluator
// implementation must play in this binary.
func buildExecutor(ctx context.Context, cdpURL string) (orchestrator.ToolExecutor, gate.ScriptEvaluator, gate.DomSnapshotSource, func(), error) {
	if cdpURL == "" {
		stub := newStubExecutor()
		return stub, stub, stub, func() {}, nil
	}

	client, err := cdpws.Dial(ctx, cdpURL, cdpws.ClientConfig{})
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("dial cdp: %w", err)
	}
	executor := cdpws.NewExecutor(client)
	closeFn := func() { _ = client.Close() }
	return executor, executor, nil, closeFn, nil
}

func parsePriority(label string) scheduler.Priority {
	switch label {
	case "critical":
		return scheduler.PriorityCritical
	case "background":
		return scheduler.PriorityBackground
	default:
		return scheduler.PriorityStandard
	}
}
