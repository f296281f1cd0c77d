package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scrivener/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage scrivener configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *ctx.configFlag
			if path == "" {
				var err error
				path, err = config.DefaultConfigPath()
				if err != nil {
					return err
				}
			}
			if err := config.WriteSample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", path)
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, cfg)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Upload dir:     %s\n", cfg.UploadDir)
			fmt.Fprintf(out, "Transcript dir: %s\n", cfg.TranscriptDir)
			fmt.Fprintf(out, "Log dir:        %s\n", cfg.LogDir)
			fmt.Fprintf(out, "Entities:       %s\n", cfg.EntitiesPath)
			fmt.Fprintf(out, "Weight model:   %s\n", cfg.WeightModelPath)
			fmt.Fprintf(out, "Bind address:   %s\n", cfg.APIBind)
			fmt.Fprintf(out, "Engine:         %s (model %s)\n", cfg.Pipeline.Binary, cfg.Pipeline.Model)
			return nil
		},
	})

	return configCmd
}
