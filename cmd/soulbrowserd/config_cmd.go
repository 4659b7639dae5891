package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soulbrowser/soulbrowser/internal/config"
)

// newConfigCommand exposes the built-in defaults as YAML, so an operator
// can write them out, edit the parts they want to change, and hand the
// result back to `run --config`. Named after the teacher's own
// newConfigCommand (cmd/cobra_cli.go), though it prints runtime defaults
// here rather than agent/provider settings.
func newConfigCommand() *cobra.Command {
	var writeTo string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print or write the default runtime configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			if writeTo != "" {
				return config.WriteDefault(writeTo)
			}
			out, err := config.Render(config.Defaults())
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&writeTo, "write", "", "write defaults to this path instead of stdout")
	return cmd
}
