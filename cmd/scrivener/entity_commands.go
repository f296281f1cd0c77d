package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newEntityCommand(ctx *commandContext) *cobra.Command {
	entityCmd := &cobra.Command{
		Use:   "entity",
		Short: "Manage shared context entities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var attrs []string
	setCmd := &cobra.Command{
		Use:   "set <type> <name>",
		Short: "Create or update an entity (person, project, term, company)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			attributes := make(map[string]string, len(attrs))
			for _, attr := range attrs {
				key, value, ok := strings.Cut(attr, "=")
				if !ok || key == "" {
					return fmt.Errorf("attribute %q must be key=value", attr)
				}
				attributes[key] = value
			}

			return withClient(ctx, func(c *client) error {
				payload, err := c.callTool("entity_update", map[string]any{
					"type":       args[0],
					"name":       args[1],
					"attributes": attributes,
				})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, payload)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Entity %s/%s saved\n",
					stringField(payload, "type"), stringField(payload, "name"))
				return nil
			})
		},
	}
	setCmd.Flags().StringArrayVar(&attrs, "attr", nil, "Attribute as key=value (repeatable)")

	entityCmd.AddCommand(setCmd)
	return entityCmd
}

func newReviewCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "review <id> <action>",
		Short: "Advance a transcript: reviewed, in_progress, closed, archived",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(ctx, func(c *client) error {
				payload, err := c.callTool("transcript_review", map[string]any{
					"id":     args[0],
					"action": args[1],
				})
				if err != nil {
					return err
				}
				return printAction(cmd, ctx, payload, "moved to "+args[1])
			})
		},
	}
}
