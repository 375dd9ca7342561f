package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"meridian/internal/broker"
	"meridian/internal/config"
	"meridian/internal/domain"
	"meridian/internal/engine"
	"meridian/internal/event"
	"meridian/internal/gather"
	"meridian/internal/gather/us"
	"meridian/internal/market"
	"meridian/internal/performance"
	"meridian/internal/portfolio"
	"meridian/internal/report"
	"meridian/internal/store"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay historical bars through a strategy",
	Long: `Backtest replays daily bars for backtest.symbols through the configured
strategy, fills orders at the latest close with IB commission, records the
run in the SQLite journal and writes an equity CSV and HTML chart.

Data sources (backtest.data_source):
  csv      <csv_dir>/<SYMBOL>.csv
  parquet  bars previously written by "gather" or "import-csv"
  alpaca   gather the date range from Alpaca into Parquet first

Example:
  meridian backtest -c config/meridian.yaml --strategy sma_cross`,
	RunE: runBacktest,
}

var (
	btStrategy string
	btSource   string
	btNoReport bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btStrategy, "strategy", "s", "", "override strategy.name (buy_and_hold, sma_cross)")
	backtestCmd.Flags().StringVar(&btSource, "source", "", "override backtest.data_source (csv, parquet, alpaca)")
	backtestCmd.Flags().BoolVar(&btNoReport, "no-report", false, "skip writing the equity CSV and chart")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if btStrategy != "" {
		cfg.Strategy.Name = btStrategy
	}
	if btSource != "" {
		cfg.Backtest.DataSource = btSource
	}
	ctx := cmd.Context()

	start, err := cfg.Backtest.Start()
	if err != nil {
		return err
	}
	end, err := cfg.Backtest.End()
	if err != nil {
		return err
	}

	bars, err := loadBacktestBars(ctx, cfg, start, end)
	if err != nil {
		return fmt.Errorf("load bars: %w", err)
	}

	q := event.NewQueue()
	data, err := market.NewHistoricHandler(q, cfg.Backtest.Symbols, bars)
	if err != nil {
		return err
	}
	strat, err := newStrategy(cfg)
	if err != nil {
		return err
	}
	pf, err := newPortfolio(cfg, data, q, start)
	if err != nil {
		return err
	}
	eng, err := engine.NewEngine(engine.Config{Mode: engine.ModeBacktest}, data, strat, pf, broker.NewSimulator(data, q), q)
	if err != nil {
		return err
	}

	journal, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer journal.Close()

	runID, err := journal.StartRun(ctx, store.Run{
		Mode:           string(engine.ModeBacktest),
		Strategy:       strat.Name(),
		Symbols:        cfg.Backtest.Symbols,
		InitialCapital: cfg.Backtest.InitialCapital,
	})
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	eng.AddObserver(engine.NewJournalRecorder(ctx, journal, runID))

	log := slog.Default().With("run", runID)
	log.Info("backtest starting",
		"strategy", strat.Name(), "symbols", cfg.Backtest.Symbols, "heartbeats", data.Len(),
		"source", cfg.Backtest.DataSource)

	stats, runErr := eng.Run(ctx)
	curve, curveErr := pf.EquityCurve()
	var rows []store.EquityRow
	if curveErr == nil {
		rows = engine.EquityRows(curve)
	}
	if err := finishRun(ctx, journal, runID, rows, runErr); err != nil {
		log.Error("finish run", "error", err)
	}
	if runErr != nil {
		return fmt.Errorf("backtest %s: %w", runID, runErr)
	}
	if curveErr != nil {
		return fmt.Errorf("equity curve: %w", curveErr)
	}

	if !btNoReport {
		if err := writeReports(cfg, runID, curve); err != nil {
			return err
		}
	}

	sum := performance.Summarize(curve, cfg.Backtest.PeriodsPerYear)
	printSummary(cmd.OutOrStdout(), runID, stats, sum)
	return nil
}

func loadBacktestBars(ctx context.Context, cfg *config.Config, start, end time.Time) (map[string][]domain.Bar, error) {
	switch cfg.Backtest.DataSource {
	case config.SourceCSV:
		bars, err := market.LoadCSVDir(cfg.Backtest.CSVDir, cfg.Backtest.Symbols)
		if err != nil {
			return nil, err
		}
		return clip(bars, start, end), nil

	case config.SourceParquet:
		return market.LoadStore(ctx, store.NewParquetStore(cfg.Storage.DataDir), domain.MarketUS, cfg.Backtest.Symbols, start, end)

	case config.SourceAlpaca:
		if err := requireAlpacaKeys(cfg); err != nil {
			return nil, err
		}
		if end.IsZero() {
			var err error
			if end, err = us.LatestFinishedTradingDay(newTradingClient(cfg), time.Now()); err != nil {
				return nil, err
			}
		}
		return gatherThenLoad(ctx, cfg, start, end)
	}
	return nil, fmt.Errorf("unknown data source %q", cfg.Backtest.DataSource)
}

// gatherThenLoad fills the Parquet store from Alpaca for [start, end] and
// reads the range back.
func gatherThenLoad(ctx context.Context, cfg *config.Config, start, end time.Time) (map[string][]domain.Bar, error) {
	bs := store.NewParquetStore(cfg.Storage.DataDir)
	g, err := us.NewDailyBarGatherer(newMarketDataClient(cfg), bs, us.DailyBarConfig{
		Symbols:     cfg.Backtest.Symbols,
		Range:       gather.DateRange{Start: start, End: end},
		BatchSize:   cfg.Gather.USDaily.BatchSize,
		Workers:     cfg.Gather.USDaily.Workers,
		Feed:        cfg.Alpaca.Feed,
		Limiter:     newLimiter(cfg.Gather.USDaily.RateLimitPerMin),
		ProgressDir: filepath.Join(cfg.Storage.DataDir, "us", "progress", "backtest"),
	})
	if err != nil {
		return nil, err
	}
	if err := g.Run(ctx); err != nil {
		return nil, err
	}
	return market.LoadStore(ctx, bs, domain.MarketUS, cfg.Backtest.Symbols, start, end)
}

func writeReports(cfg *config.Config, runID string, curve []portfolio.EquityPoint) error {
	if err := os.MkdirAll(cfg.Storage.ReportDir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	csvPath := filepath.Join(cfg.Storage.ReportDir, runID+"-equity.csv")
	if err := writeFile(csvPath, func(w io.Writer) error {
		return report.WriteEquityCSV(w, cfg.Backtest.Symbols, curve)
	}); err != nil {
		return err
	}
	htmlPath := filepath.Join(cfg.Storage.ReportDir, runID+"-equity.html")
	if err := writeFile(htmlPath, func(w io.Writer) error {
		return report.WriteEquityChart(w, fmt.Sprintf("%s %s", cfg.Strategy.Name, runID), curve)
	}); err != nil {
		return err
	}
	slog.Info("reports written", "csv", csvPath, "chart", htmlPath)
	return nil
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func printSummary(w io.Writer, runID string, stats engine.Stats, sum performance.Summary) {
	fmt.Fprintf(w, "Backtest complete: %s\n", runID)
	fmt.Fprintf(w, "  Period:         %s .. %s\n", sum.Start.Format(time.DateOnly), sum.End.Format(time.DateOnly))
	fmt.Fprintf(w, "  Heartbeats:     %s (signals %d, orders %d, fills %d)\n",
		report.FormatInt(int64(stats.Heartbeats)), stats.Signals, stats.Orders, stats.Fills)
	fmt.Fprintf(w, "  Initial equity: %s\n", report.FormatMoney(sum.InitialEquity))
	fmt.Fprintf(w, "  Final equity:   %s\n", report.FormatMoney(sum.FinalEquity))
	fmt.Fprintf(w, "  Total return:   %s\n", report.FormatPercent(sum.TotalReturn))
	fmt.Fprintf(w, "  Sharpe:         %.2f\n", sum.Sharpe)
	fmt.Fprintf(w, "  Max drawdown:   %s (%d periods)\n", report.FormatPercent(-sum.MaxDrawdown), sum.DrawdownDuration)
	fmt.Fprintf(w, "  Commission:     %s\n", report.FormatMoney(sum.Commission))
}
