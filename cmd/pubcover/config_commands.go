package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eringen/pubcover"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand(ctx))
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				target = pubcover.DefaultConfigFile
			}
			if err := pubcover.WriteSampleConfig(target, overwrite); err != nil {
				if !overwrite {
					return fmt.Errorf("%w (use --overwrite to replace it)", err)
				}
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintf(out, "Set store.url and store.token (or export %s and %s) before publishing.\n",
				pubcover.EnvStoreURL, pubcover.EnvStoreToken)
			return nil
		},
	}
	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if _, err := newRenderer(cfg); err != nil {
				return fmt.Errorf("renderer: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Configuration valid")
			fmt.Fprintf(out, "Canvas: %dx%d at (%d, %d)\n", cfg.Canvas.Width, cfg.Canvas.Height, cfg.Canvas.X0, cfg.Canvas.Y0)
			fmt.Fprintf(out, "Output: %s x%d -> %s\n", cfg.Output.Format, cfg.Output.Density, cfg.Output.Dir)
			if cfg.Store.URL != "" {
				fmt.Fprintf(out, "Store: %s\n", cfg.Store.URL)
			}
			return nil
		},
	}
}
