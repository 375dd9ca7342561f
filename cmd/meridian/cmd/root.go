// Package cmd holds the cobra commands of the meridian binary.
package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"meridian/internal/config"
	"meridian/internal/util"
)

var rootCmd = &cobra.Command{
	Use:   "meridian",
	Short: "Event-driven portfolio ledger with backtest and live engines",
	Long: `Meridian replays historical bars or polls Alpaca through one event loop:
market data, strategy signals, orders and fills flow through a shared queue
into a portfolio ledger that tracks positions, cash, commission and equity.

Commands:
  backtest    replay CSV, Parquet or Alpaca bars through a strategy
  live        trade a strategy through Alpaca and serve the monitor API
  gather      download daily bars from Alpaca into the Parquet store
  import-csv  copy CSV bars into the Parquet store
  status      query a running live monitor
  config      generate or validate a configuration file`,
	SilenceUsage: true,
}

var (
	cfgPath   string
	logLevel  string
	logFormat string
)

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	defaultCfg := "config/meridian.yaml"
	if p := os.Getenv("MERIDIAN_CONFIG"); p != "" {
		defaultCfg = p
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultCfg, "path to YAML config (env MERIDIAN_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override logging.format (json, text)")
}

// loadConfig reads the config file and installs the configured logger as
// the slog default.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))
	slog.Debug("config loaded", "path", cfgPath, "symbols", cfg.Backtest.Symbols, "strategy", cfg.Strategy.Name)
	return cfg, nil
}

func requireAlpacaKeys(cfg *config.Config) error {
	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		return errors.New("alpaca credentials missing: set alpaca.api_key/api_secret or APCA_API_KEY_ID/APCA_API_SECRET_KEY")
	}
	return nil
}
