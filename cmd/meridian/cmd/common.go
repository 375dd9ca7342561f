package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"meridian/internal/config"
	"meridian/internal/domain"
	"meridian/internal/event"
	"meridian/internal/gather"
	"meridian/internal/market"
	"meridian/internal/portfolio"
	"meridian/internal/store"
	"meridian/internal/strategy"
	"meridian/internal/strategy/builtins"
	"meridian/internal/util"
)

func newTradingClient(cfg *config.Config) *alpaca.Client {
	return alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    cfg.Alpaca.APIKey,
		APISecret: cfg.Alpaca.APISecret,
		BaseURL:   cfg.Alpaca.BaseURL,
	})
}

func newMarketDataClient(cfg *config.Config) *marketdata.Client {
	return marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    cfg.Alpaca.APIKey,
		APISecret: cfg.Alpaca.APISecret,
		BaseURL:   cfg.Alpaca.DataURL,
	})
}

func openJournal(cfg *config.Config) (*store.SQLiteStore, error) {
	if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	return store.NewSQLiteStore(cfg.Storage.SQLitePath)
}

func newStrategy(cfg *config.Config) (strategy.Strategy, error) {
	return builtins.Default().New(cfg.Strategy.Name, strategy.Params{
		Symbols:     cfg.Backtest.Symbols,
		ShortWindow: cfg.Strategy.ShortWindow,
		LongWindow:  cfg.Strategy.LongWindow,
	})
}

func newPortfolio(cfg *config.Config, bars market.BarReader, q *event.Queue, start time.Time) (*portfolio.Portfolio, error) {
	return portfolio.New(bars, q, portfolio.Config{
		Symbols:        cfg.Backtest.Symbols,
		InitialCapital: cfg.Backtest.InitialCapital,
		Start:          start,
		Sizer:          portfolio.FixedLot{Lot: cfg.Backtest.LotSize},
	})
}

// clip keeps the bars of every symbol inside [start, end]. A zero end
// keeps everything from start on.
func clip(bars map[string][]domain.Bar, start, end time.Time) map[string][]domain.Bar {
	r := gather.DateRange{Start: start, End: end}
	out := make(map[string][]domain.Bar, len(bars))
	for sym, bs := range bars {
		var kept []domain.Bar
		for _, b := range bs {
			if r.Contains(b.Timestamp) {
				kept = append(kept, b)
			}
		}
		out[sym] = kept
	}
	return out
}

// finishRun stores the equity curve and closes the journal row. It runs
// with a context detached from cancellation so an interrupted run is still
// recorded.
func finishRun(ctx context.Context, journal store.Journal, runID string, rows []store.EquityRow, runErr error) error {
	ctx = context.WithoutCancel(ctx)
	if len(rows) > 0 {
		if err := journal.RecordEquity(ctx, runID, rows); err != nil {
			return fmt.Errorf("record equity: %w", err)
		}
	}
	return journal.FinishRun(ctx, runID, runErr)
}

// newLimiter returns nil, meaning unthrottled, when perMinute is not
// positive.
func newLimiter(perMinute int) *util.RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return util.NewRateLimiter(perMinute)
}
