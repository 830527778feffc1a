package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/touchsung/trading-bot/config"
)

func newConfigCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or inspect configuration files",
		Long: `Manage trader configuration files.

Subcommands:
  init - Generate a default configuration file
  show - Print the effective configuration (file, environment and flags applied)

Examples:
  trader config init -o trader.yaml
  trader config show --config trader.yaml`,
	}

	var output string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if err := cfg.SaveToFile(output); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created default configuration: %s\n", output)
			fmt.Fprintln(out, "\nEdit the file and run with:")
			fmt.Fprintf(out, "  trader backtest --config %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "trader.yaml", "output config file path")

	var format string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Validate and print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := rc.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			data, err := cfg.Marshal("out." + format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	showCmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml|json")

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
