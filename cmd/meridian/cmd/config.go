package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"meridian/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage meridian configuration files.

Subcommands:
  init     - write a configuration file holding the defaults
  validate - load a configuration file and report every invalid field

Examples:
  meridian config init -o config/meridian.yaml
  meridian config validate -c config/meridian.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE:  runConfigValidate,
}

var (
	configInitOutput  string
	configInitSymbols []string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "meridian.yaml", "output config file path")
	configInitCmd.Flags().StringSliceVar(&configInitSymbols, "symbols", []string{"AAPL", "MSFT"}, "backtest.symbols to write")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	cfg.Backtest.Symbols = configInitSymbols
	if err := config.Write(configInitOutput, cfg); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created default configuration: %s\n", configInitOutput)
	fmt.Fprintf(out, "Edit the file and run with:\n  meridian backtest -c %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration valid: %s\n", cfgPath)
	fmt.Fprintf(out, "  Symbols:  %v\n", cfg.Backtest.Symbols)
	fmt.Fprintf(out, "  Capital:  $%.2f\n", cfg.Backtest.InitialCapital)
	fmt.Fprintf(out, "  Strategy: %s (%d/%d)\n", cfg.Strategy.Name, cfg.Strategy.ShortWindow, cfg.Strategy.LongWindow)
	fmt.Fprintf(out, "  Data:     %s\n", cfg.Backtest.DataSource)
	return nil
}
