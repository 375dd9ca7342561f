package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"meridian/internal/domain"
	"meridian/internal/gather"
	"meridian/internal/gather/us"
	"meridian/internal/store"
)

var gatherCmd = &cobra.Command{
	Use:   "gather",
	Short: "Download daily bars from Alpaca into the Parquet store",
	Long: `Gather fetches daily bars for gather.us_daily.symbols (or backtest.symbols)
from gather.us_daily.start_date through the latest finished trading day and
merges them into <data_dir>/us. Progress is kept on disk so an interrupted
gather resumes and a finished one is a no-op.`,
	RunE: runGather,
}

var (
	gatherStart string
	gatherEnd   string
)

func init() {
	rootCmd.AddCommand(gatherCmd)

	gatherCmd.Flags().StringVar(&gatherStart, "start", "", "override gather.us_daily.start_date (YYYY-MM-DD)")
	gatherCmd.Flags().StringVar(&gatherEnd, "end", "", "end date (YYYY-MM-DD); default is the latest finished trading day")
}

func runGather(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := requireAlpacaKeys(cfg); err != nil {
		return err
	}
	job := cfg.Gather.USDaily

	startStr := job.StartDate
	if gatherStart != "" {
		startStr = gatherStart
	}
	start, err := time.Parse(time.DateOnly, startStr)
	if err != nil {
		return fmt.Errorf("start date: %w", err)
	}

	var end time.Time
	if gatherEnd != "" {
		if end, err = time.Parse(time.DateOnly, gatherEnd); err != nil {
			return fmt.Errorf("end date: %w", err)
		}
	} else if end, err = us.LatestFinishedTradingDay(newTradingClient(cfg), time.Now()); err != nil {
		return err
	}

	symbols := job.Symbols
	if len(symbols) == 0 {
		symbols = cfg.Backtest.Symbols
	}

	g, err := us.NewDailyBarGatherer(newMarketDataClient(cfg), store.NewParquetStore(cfg.Storage.DataDir), us.DailyBarConfig{
		Symbols:     symbols,
		Range:       gather.DateRange{Start: start, End: end},
		BatchSize:   job.BatchSize,
		Workers:     job.Workers,
		Feed:        cfg.Alpaca.Feed,
		Limiter:     newLimiter(job.RateLimitPerMin),
		ProgressDir: filepath.Join(cfg.Storage.DataDir, string(domain.MarketUS), "progress", "daily"),
	})
	if err != nil {
		return err
	}
	slog.Info("gather starting", "gatherer", g.Name(), "symbols", len(symbols),
		"start", start.Format(time.DateOnly), "end", end.Format(time.DateOnly))
	return g.Run(cmd.Context())
}
