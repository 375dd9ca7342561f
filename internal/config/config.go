// Package config loads meridian's YAML configuration and applies defaults
// and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for meridian.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Server   Server         `yaml:"server"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Logging  Logging        `yaml:"logging"`
	Backtest BacktestConfig `yaml:"backtest"`
	Strategy StrategyConfig `yaml:"strategy"`
	Gather   GatherConfig   `yaml:"gather"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
	ReportDir  string `yaml:"report_dir"`
}

// Server holds the HTTP listener configuration for the live monitor API.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Alpaca holds credentials and endpoints for the Alpaca broker API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Data sources accepted by BacktestConfig.DataSource.
const (
	SourceCSV     = "csv"
	SourceParquet = "parquet"
	SourceAlpaca  = "alpaca"
)

// BacktestConfig holds the portfolio and driver parameters shared by the
// backtest and live commands.
type BacktestConfig struct {
	Symbols        []string      `yaml:"symbols"`
	InitialCapital float64       `yaml:"initial_capital"`
	StartDate      string        `yaml:"start_date"`
	EndDate        string        `yaml:"end_date"`
	LotSize        int64         `yaml:"lot_size"`
	Heartbeat      time.Duration `yaml:"heartbeat"`
	DataSource     string        `yaml:"data_source"`
	CSVDir         string        `yaml:"csv_dir"`
	OrderTimeout   time.Duration `yaml:"order_timeout"`
	PeriodsPerYear int           `yaml:"periods_per_year"`
}

// Start parses StartDate (YYYY-MM-DD) as a UTC date.
func (b BacktestConfig) Start() (time.Time, error) {
	return parseDate(b.StartDate)
}

// End parses EndDate; an empty EndDate yields the zero time.
func (b BacktestConfig) End() (time.Time, error) {
	if b.EndDate == "" {
		return time.Time{}, nil
	}
	return parseDate(b.EndDate)
}

// StrategyConfig selects a registered strategy and its parameters.
type StrategyConfig struct {
	Name        string `yaml:"name"`
	ShortWindow int    `yaml:"short_window"`
	LongWindow  int    `yaml:"long_window"`
}

// GatherConfig controls historical bar gathering.
type GatherConfig struct {
	USDaily GatherJobConfig `yaml:"us_daily"`
}

// GatherJobConfig holds parameters for a single data gathering job.
type GatherJobConfig struct {
	// Symbols to gather; empty means backtest.symbols.
	Symbols         []string `yaml:"symbols"`
	StartDate       string   `yaml:"start_date"`
	BatchSize       int      `yaml:"batch_size"`
	Workers         int      `yaml:"workers"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
}

// ---------------------------------------------------------------------------
// Defaults and validation
// ---------------------------------------------------------------------------

// Default returns a Config populated with the values used when a field is
// absent from the YAML file.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/meridian.db",
			ReportDir:  "reports",
		},
		Server: Server{Host: "127.0.0.1", Port: 8080},
		Alpaca: Alpaca{
			BaseURL: "https://paper-api.alpaca.markets",
			DataURL: "https://data.alpaca.markets",
			Feed:    "iex",
		},
		Logging: Logging{Level: "info", Format: "json"},
		Backtest: BacktestConfig{
			InitialCapital: 100000,
			StartDate:      "2020-01-01",
			LotSize:        100,
			Heartbeat:      time.Minute,
			DataSource:     SourceCSV,
			CSVDir:         "data/csv",
			OrderTimeout:   5 * time.Minute,
			PeriodsPerYear: 252,
		},
		Strategy: StrategyConfig{
			Name:        "buy_and_hold",
			ShortWindow: 10,
			LongWindow:  30,
		},
		Gather: GatherConfig{
			USDaily: GatherJobConfig{
				StartDate:       "2020-01-01",
				BatchSize:       100,
				Workers:         4,
				RateLimitPerMin: 200,
			},
		},
	}
}

// Validate reports every invalid field in one joined error.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Backtest.Symbols) == 0 {
		errs = append(errs, errors.New("backtest.symbols must not be empty"))
	}
	seen := make(map[string]bool, len(c.Backtest.Symbols))
	for _, s := range c.Backtest.Symbols {
		if s == "" {
			errs = append(errs, errors.New("backtest.symbols contains an empty symbol"))
			continue
		}
		if seen[s] {
			errs = append(errs, fmt.Errorf("backtest.symbols: duplicate symbol %q", s))
		}
		seen[s] = true
	}
	if c.Backtest.InitialCapital <= 0 {
		errs = append(errs, fmt.Errorf("backtest.initial_capital must be positive, got %v", c.Backtest.InitialCapital))
	}
	if c.Backtest.LotSize <= 0 {
		errs = append(errs, fmt.Errorf("backtest.lot_size must be positive, got %d", c.Backtest.LotSize))
	}
	if c.Backtest.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("backtest.heartbeat must not be negative, got %s", c.Backtest.Heartbeat))
	}
	if _, err := c.Backtest.Start(); err != nil {
		errs = append(errs, fmt.Errorf("backtest.start_date: %w", err))
	}
	if _, err := c.Backtest.End(); err != nil {
		errs = append(errs, fmt.Errorf("backtest.end_date: %w", err))
	}
	switch c.Backtest.DataSource {
	case SourceCSV, SourceParquet, SourceAlpaca:
	default:
		errs = append(errs, fmt.Errorf("backtest.data_source %q: want csv, parquet or alpaca", c.Backtest.DataSource))
	}
	if c.Strategy.Name == "" {
		errs = append(errs, errors.New("strategy.name must not be empty"))
	}
	if c.Strategy.ShortWindow <= 0 || c.Strategy.LongWindow <= c.Strategy.ShortWindow {
		errs = append(errs, fmt.Errorf("strategy windows: need 0 < short_window < long_window, got %d/%d",
			c.Strategy.ShortWindow, c.Strategy.LongWindow))
	}
	return errors.Join(errs...)
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path over Default(),
// applies environment variable overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Write marshals cfg as YAML to path.
func Write(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MERIDIAN_SYMBOLS"); v != "" {
		cfg.Backtest.Symbols = splitSymbols(v)
	}

	// Canonical names read by the Alpaca SDK.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

func splitSymbols(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}
