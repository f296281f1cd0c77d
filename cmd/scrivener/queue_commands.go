package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and control the transcription queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueCancelCommand(ctx))
	return queueCmd
}

func withClient(ctx *commandContext, run func(*client) error) error {
	addr, err := ctx.daemonAddr()
	if err != nil {
		return err
	}
	c, err := dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()
	return run(c)
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending, processing, and recently concluded items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(ctx, func(c *client) error {
				payload, err := c.callTool("queue_status", map[string]any{})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, payload)
				}

				t := newTable(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"ID", "Title", "Status", "Error"})
				for _, section := range []string{"pending", "processing", "recently_concluded"} {
					items, _ := payload[section].([]any)
					for _, raw := range items {
						item := raw.(map[string]any)
						id := stringField(item, "id")
						if len(id) > 8 {
							id = id[:8]
						}
						t.AppendRow(table.Row{
							id,
							stringField(item, "title"),
							stringField(item, "status"),
							stringField(item, "error_message"),
						})
					}
				}
				t.Render()

				if counts, ok := payload["counts"].(map[string]any); ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%v total, %v pending, %v processing, %v errored\n",
						counts["total"], counts["pending"], counts["processing"], counts["errored"])
				}
				return nil
			})
		},
	}
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one item with its status history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(ctx, func(c *client) error {
				payload, err := c.callTool("queue_lookup", map[string]any{"id": args[0]})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, payload)
				}
				if payload["ambiguous"] == true {
					return fmt.Errorf("id prefix %q matches multiple items", args[0])
				}
				if payload["found"] != true {
					return fmt.Errorf("no item matches %q", args[0])
				}

				item := payload["item"].(map[string]any)
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:      %s\n", stringField(item, "id"))
				fmt.Fprintf(out, "Title:   %s\n", stringField(item, "title"))
				fmt.Fprintf(out, "Status:  %s\n", stringField(item, "status"))
				if msg := stringField(item, "error_message"); msg != "" {
					fmt.Fprintf(out, "Error:   %s\n", msg)
				}
				if path := stringField(item, "audio_path"); path != "" {
					fmt.Fprintf(out, "Audio:   %s\n", path)
				}

				if history, ok := payload["history"].([]any); ok && len(history) > 0 {
					fmt.Fprintln(out, "History:")
					for _, raw := range history {
						entry := raw.(map[string]any)
						from := stringField(entry, "from")
						if from == "" {
							from = "(new)"
						}
						fmt.Fprintf(out, "  %s -> %s at %s\n",
							from, stringField(entry, "to"), stringField(entry, "changed_at"))
					}
				}
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Requeue an errored item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(ctx, func(c *client) error {
				payload, err := c.callTool("queue_retry", map[string]any{"id": args[0]})
				if err != nil {
					return err
				}
				return printAction(cmd, ctx, payload, "requeued")
			})
		},
	}
}

func newQueueCancelCommand(ctx *commandContext) *cobra.Command {
	var hard bool
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending or processing item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(ctx, func(c *client) error {
				payload, err := c.callTool("queue_cancel", map[string]any{"id": args[0], "hard": hard})
				if err != nil {
					return err
				}
				verb := "cancelled"
				if hard {
					verb = "removed"
				}
				return printAction(cmd, ctx, payload, verb)
			})
		},
	}
	cmd.Flags().BoolVar(&hard, "hard", false, "Delete the item instead of parking it in error")
	return cmd
}

func printAction(cmd *cobra.Command, ctx *commandContext, payload map[string]any, verb string) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, payload)
	}
	if payload["ok"] != true {
		return fmt.Errorf("%s", stringField(payload, "reason"))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Item %s %s\n", stringField(payload, "item_id"), verb)
	return nil
}
