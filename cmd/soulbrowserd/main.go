// Command soulbrowserd is a demo/manual-testing binary: it assembles the
// full dependency graph (registry, scheduler, orchestrator, gate validator,
// stage auditor, plan runner) and drives one plan through it end to end,
// or inspects a previously persisted run. The CLI layer proper -- the rich
// TUI and chat surface cklxx-elephant.ai's cmd/cobra_cli.go builds -- is out
// of scope here; this binary exists only so the core packages have
// something to prove them out manually, following the teacher's cobra
// wiring shape (NewRootCommand, one Command per verb).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCommand builds the soulbrowserd command tree, mirroring the
// teacher's NewRootCommand/CLI.rootCmd split but with a far smaller verb
// set: run (plan + execute one task), inspect (read back a persisted
// run's artifacts) and config.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "soulbrowserd",
		Short: "SoulBrowser core pipeline demo runner",
	}
	root.AddCommand(newRunCommand())
	root.AddCommand(newInspectCommand())
	root.AddCommand(newConfigCommand())
	return root
}
