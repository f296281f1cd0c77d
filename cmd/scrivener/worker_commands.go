package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Control the background transcription worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	for _, action := range []struct {
		use   string
		short string
		tool  string
	}{
		{"status", "Show worker state", "worker_status"},
		{"start", "Start the worker", "worker_start"},
		{"stop", "Stop the worker after the in-flight item", "worker_stop"},
		{"restart", "Restart the worker", "worker_restart"},
	} {
		tool := action.tool
		workerCmd.AddCommand(&cobra.Command{
			Use:   action.use,
			Short: action.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(ctx, func(c *client) error {
					payload, err := c.callTool(tool, map[string]any{})
					if err != nil {
						return err
					}
					if ctx.jsonOutput() {
						return writeJSON(cmd, payload)
					}

					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "Running:   %v\n", payload["running"])
					if current := stringField(payload, "current_item_id"); current != "" {
						fmt.Fprintf(out, "Current:   %s (%s)\n", current, stringField(payload, "current_phase"))
					}
					fmt.Fprintf(out, "Processed: %v\n", payload["processed"])
					fmt.Fprintf(out, "Failed:    %v\n", payload["failed"])
					if uptime := stringField(payload, "uptime"); uptime != "" {
						fmt.Fprintf(out, "Uptime:    %s\n", uptime)
					}
					return nil
				})
			},
		})
	}
	return workerCmd
}
