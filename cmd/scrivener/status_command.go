package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon health",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := ctx.daemonAddr()
			if err != nil {
				return err
			}

			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Get("http://" + addr + "/healthz")
			if err != nil {
				return fmt.Errorf("daemon not reachable at %s: %w", addr, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("daemon unhealthy: HTTP %d", resp.StatusCode)
			}

			var health map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
				return fmt.Errorf("decode health: %w", err)
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, health)
			}

			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Field", "Value"})
			t.AppendRow(table.Row{"status", stringField(health, "status")})
			t.AppendRow(table.Row{"uptime", stringField(health, "uptime")})
			if worker, ok := health["worker"].(map[string]any); ok {
				t.AppendRow(table.Row{"worker running", worker["running"]})
				t.AppendRow(table.Row{"items processed", worker["processed"]})
			}
			if queue, ok := health["queue"].(map[string]any); ok {
				t.AppendRow(table.Row{"queue pending", queue["pending"]})
				t.AppendRow(table.Row{"queue processing", queue["processing"]})
				t.AppendRow(table.Row{"queue errored", queue["errored"]})
			}
			t.AppendRow(table.Row{"sessions", health["sessions"]})
			t.Render()
			return nil
		},
	}
}
