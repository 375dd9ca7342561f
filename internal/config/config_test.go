package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meridian.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"DATA_DIR", "SQLITE_PATH", "ALPACA_BASE_URL", "ALPACA_DATA_URL",
		"LOG_LEVEL", "MERIDIAN_SYMBOLS", "APCA_API_KEY_ID", "APCA_API_SECRET_KEY"} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/meridian/data"
  sqlite_path: "/tmp/meridian/meridian.db"
server:
  host: "0.0.0.0"
  port: 9000
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  base_url: "https://paper-api.alpaca.markets"
logging:
  level: "debug"
  format: "text"
backtest:
  symbols: ["AAPL", "MSFT"]
  initial_capital: 50000
  start_date: "2024-01-02"
  lot_size: 10
  heartbeat: 30s
  data_source: parquet
  order_timeout: 2m
strategy:
  name: sma_cross
  short_window: 5
  long_window: 20
gather:
  us_daily:
    start_date: "2019-01-01"
    batch_size: 500
    rate_limit_per_min: 150
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/tmp/meridian/data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/tmp/meridian/data")
	}
	if cfg.Storage.ReportDir != "reports" {
		t.Errorf("Storage.ReportDir = %q, want default %q", cfg.Storage.ReportDir, "reports")
	}

	// -- Server --
	if got := cfg.Server.Addr(); got != "0.0.0.0:9000" {
		t.Errorf("Server.Addr() = %q, want %q", got, "0.0.0.0:9000")
	}

	// -- Alpaca --
	if cfg.Alpaca.APIKey != "test-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q", cfg.Alpaca.APIKey, "test-key")
	}
	if cfg.Alpaca.Feed != "iex" {
		t.Errorf("Alpaca.Feed = %q, want default %q", cfg.Alpaca.Feed, "iex")
	}

	// -- Logging --
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want debug/text", cfg.Logging)
	}

	// -- Backtest --
	if len(cfg.Backtest.Symbols) != 2 || cfg.Backtest.Symbols[1] != "MSFT" {
		t.Errorf("Backtest.Symbols = %v, want [AAPL MSFT]", cfg.Backtest.Symbols)
	}
	if cfg.Backtest.InitialCapital != 50000 {
		t.Errorf("Backtest.InitialCapital = %v, want 50000", cfg.Backtest.InitialCapital)
	}
	if cfg.Backtest.Heartbeat != 30*time.Second {
		t.Errorf("Backtest.Heartbeat = %s, want 30s", cfg.Backtest.Heartbeat)
	}
	if cfg.Backtest.OrderTimeout != 2*time.Minute {
		t.Errorf("Backtest.OrderTimeout = %s, want 2m", cfg.Backtest.OrderTimeout)
	}
	if cfg.Backtest.PeriodsPerYear != 252 {
		t.Errorf("Backtest.PeriodsPerYear = %d, want default 252", cfg.Backtest.PeriodsPerYear)
	}
	start, err := cfg.Backtest.Start()
	if err != nil || !start.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Backtest.Start() = %s, %v; want 2024-01-02", start, err)
	}

	// -- Strategy --
	if cfg.Strategy.Name != "sma_cross" || cfg.Strategy.LongWindow != 20 {
		t.Errorf("Strategy = %+v, want sma_cross 5/20", cfg.Strategy)
	}

	// -- Gather --
	if cfg.Gather.USDaily.BatchSize != 500 {
		t.Errorf("Gather.USDaily.BatchSize = %d, want %d", cfg.Gather.USDaily.BatchSize, 500)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
backtest:
  symbols: ["SPY"]
`)

	t.Setenv("APCA_API_KEY_ID", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("MERIDIAN_SYMBOLS", "aapl, msft,,")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if strings.Join(cfg.Backtest.Symbols, ",") != "AAPL,MSFT" {
		t.Errorf("Backtest.Symbols = %v, want [AAPL MSFT]", cfg.Backtest.Symbols)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"no symbols", func(c *Config) { c.Backtest.Symbols = nil }, "symbols must not be empty"},
		{"duplicate symbol", func(c *Config) { c.Backtest.Symbols = []string{"A", "A"} }, "duplicate symbol"},
		{"zero capital", func(c *Config) { c.Backtest.InitialCapital = 0 }, "initial_capital"},
		{"bad source", func(c *Config) { c.Backtest.DataSource = "ftp" }, "data_source"},
		{"bad date", func(c *Config) { c.Backtest.StartDate = "01/02/2024" }, "start_date"},
		{"windows", func(c *Config) { c.Strategy.LongWindow = 3 }, "strategy windows"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Backtest.Symbols = []string{"AAPL"}
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}

	cfg := Default()
	cfg.Backtest.Symbols = []string{"AAPL"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults = %v, want nil", err)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.Backtest.Symbols = []string{"SPY"}
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := Write(path, cfg); err != nil {
		t.Fatalf("Write() returned error: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if got.Backtest.Heartbeat != cfg.Backtest.Heartbeat || got.Strategy.Name != cfg.Strategy.Name {
		t.Errorf("round trip = %+v, want %+v", got.Backtest, cfg.Backtest)
	}
}
