package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/soulbrowser/soulbrowser/internal/artifacts"
	"github.com/soulbrowser/soulbrowser/internal/toolflow"
)

func newInspectCommand() *cobra.Command {
	var outputDir string
	cmd := &cobra.Command{
		Use:   "inspect <task-id>",
		Short: "Print a summary of a previously recorded task run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspectTask(outputDir, args[0])
		},
	}
	cmd.Flags().StringVar(&outputDir, "output-dir", "./soulbrowser-output", "directory the run command wrote artifacts under")
	return cmd
}

func inspectTask(outputDir, taskID string) error {
	dir := filepath.Join(outputDir, "tasks", taskID)

	plans, err := readPlans(filepath.Join(dir, "plans.json"))
	if err != nil {
		return err
	}
	executions, err := readExecutions(filepath.Join(dir, "executions.json"))
	if err != nil {
		return err
	}

	fmt.Printf("task %s: %d planning attempt(s), %d execution run(s)\n", taskID, len(plans), len(executions))
	for _, attempt := range plans {
		fmt.Printf("  attempt %d: %d step(s), %d repair(s)", attempt.Attempt, len(attempt.Plan.Steps), attempt.Repairs.TotalRepairs)
		if attempt.ValidationIssue != "" {
			fmt.Printf(", validation issue: %s", attempt.ValidationIssue)
		}
		fmt.Println()
	}
	for i, report := range executions {
		fmt.Printf("  execution %d: succeeded=%v steps=%d\n", i+1, report.Succeeded, len(report.Steps))
		for _, step := range report.Steps {
			fmt.Printf("    %s: %s\n", step.StepID, step.Status)
		}
	}
	return nil
}

func readPlans(path string) ([]artifacts.PlanAttempt, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var plans []artifacts.PlanAttempt
	if err := json.Unmarshal(raw, &plans); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return plans, nil
}

func readExecutions(path string) ([]toolflow.FlowExecutionReport, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var executions []toolflow.FlowExecutionReport
	if err := json.Unmarshal(raw, &executions); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return executions, nil
}
