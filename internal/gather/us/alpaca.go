// Package us gathers US equity daily bars from Alpaca into the bar store.
package us

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"golang.org/x/sync/errgroup"

	"meridian/internal/domain"
	"meridian/internal/gather"
	"meridian/internal/store"
	"meridian/internal/util"
)

// MultiBarsClient is the slice of the Alpaca market-data client used for
// historical bars.
type MultiBarsClient interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

// Compile-time interface checks.
var (
	_ gather.Gatherer = (*DailyBarGatherer)(nil)
	_ MultiBarsClient = (*marketdata.Client)(nil)
)

// DailyBarConfig configures a DailyBarGatherer.
type DailyBarConfig struct {
	Symbols     []string
	Range       gather.DateRange
	BatchSize   int    // symbols per API call
	Workers     int    // concurrent batches
	Feed        string // "iex" or "sip"
	Limiter     *util.RateLimiter
	ProgressDir string // where resume state is kept
}

// DailyBarGatherer fetches daily bars for a configured symbol list in
// batches and writes them to a BarStore. It is resumable and idempotent for
// a given end date.
type DailyBarGatherer struct {
	client MultiBarsClient
	store  store.BarStore
	cfg    DailyBarConfig
	log    *slog.Logger
}

// NewDailyBarGatherer creates a DailyBarGatherer.
func NewDailyBarGatherer(client MultiBarsClient, s store.BarStore, cfg DailyBarConfig) (*DailyBarGatherer, error) {
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("us-daily: no symbols")
	}
	if cfg.Range.End.IsZero() || cfg.Range.End.Before(cfg.Range.Start) {
		return nil, fmt.Errorf("us-daily: invalid range %s..%s", cfg.Range.Start.Format(time.DateOnly), cfg.Range.End.Format(time.DateOnly))
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Feed == "" {
		cfg.Feed = "iex"
	}
	return &DailyBarGatherer{
		client: client,
		store:  s,
		cfg:    cfg,
		log:    slog.Default().With("gatherer", "us-daily"),
	}, nil
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "us-daily" }

// Run fetches every configured symbol not already known to be empty for
// this end date. A failed batch is logged and left for the next run.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	endStr := g.cfg.Range.End.Format(time.DateOnly)

	tracker, err := loadProgress(g.cfg.ProgressDir)
	if err != nil {
		return err
	}
	if tracker.IsCompleted(endStr) {
		g.log.Info("already completed", "endDate", endStr)
		return nil
	}
	// A new end date makes the old empty set stale.
	if last := tracker.LastCompleted(); last != "" && last != endStr {
		if err := tracker.Reset(); err != nil {
			return fmt.Errorf("resetting progress: %w", err)
		}
	}

	var remaining []string
	for _, sym := range g.cfg.Symbols {
		sym = strings.ToUpper(sym)
		if !tracker.IsEmpty(sym) {
			remaining = append(remaining, sym)
		}
	}
	sort.Strings(remaining)

	var batches [][]string
	for i := 0; i < len(remaining); i += g.cfg.BatchSize {
		batches = append(batches, remaining[i:min(i+g.cfg.BatchSize, len(remaining))])
	}
	g.log.Info("starting us-daily",
		"endDate", endStr,
		"symbols", len(remaining),
		"batches", len(batches),
	)

	var (
		hits, misses, failed atomic.Int64
		runStart             = time.Now()
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Workers)
	for i, batch := range batches {
		eg.Go(func() error {
			h, m, err := g.runBatch(egCtx, batch, tracker)
			if err != nil {
				if egCtx.Err() != nil {
					return egCtx.Err()
				}
				failed.Add(1)
				g.log.Error("batch failed", "batch", fmt.Sprintf("%d/%d", i+1, len(batches)), "err", err)
				return nil
			}
			hits.Add(int64(h))
			misses.Add(int64(m))
			g.log.Info("batch done",
				"batch", fmt.Sprintf("%d/%d", i+1, len(batches)),
				"hits", h,
				"empty", m,
				"elapsed", time.Since(runStart).Round(time.Second),
			)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("us-daily: %d of %d batches failed", n, len(batches))
	}
	if err := tracker.MarkCompleted(endStr); err != nil {
		return fmt.Errorf("marking completed: %w", err)
	}
	g.log.Info("complete",
		"hits", hits.Load(),
		"empty", misses.Load(),
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	return nil
}

func (g *DailyBarGatherer) runBatch(ctx context.Context, batch []string, tracker *progressTracker) (hits, misses int, err error) {
	if g.cfg.Limiter != nil {
		if err := g.cfg.Limiter.Wait(ctx); err != nil {
			return 0, 0, err
		}
	}

	var bars []domain.Bar
	err = util.Retry(ctx, 3, time.Second, func() error {
		var err error
		bars, err = g.fetchMultiBars(batch)
		return err
	})
	if err != nil {
		return 0, 0, err
	}

	seen := make(map[string]struct{})
	for _, b := range bars {
		seen[b.Symbol] = struct{}{}
	}
	var empty []string
	for _, sym := range batch {
		if _, ok := seen[sym]; !ok {
			empty = append(empty, sym)
		}
	}

	if len(bars) > 0 {
		if err := g.store.WriteBars(ctx, domain.MarketUS, bars); err != nil {
			return 0, 0, fmt.Errorf("writing bars: %w", err)
		}
	}
	if len(empty) > 0 {
		if err := tracker.MarkEmpty(empty); err != nil {
			return 0, 0, fmt.Errorf("marking empty: %w", err)
		}
	}
	return len(seen), len(empty), nil
}

// fetchMultiBars fetches daily bars for multiple symbols in a single API call.
func (g *DailyBarGatherer) fetchMultiBars(symbols []string) ([]domain.Bar, error) {
	multiBars, err := g.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     g.cfg.Range.Start,
		End:       g.cfg.Range.End,
		Feed:      marketdata.Feed(g.cfg.Feed),
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol:     strings.ToUpper(symbol),
				Timestamp:  ab.Timestamp,
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     int64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
			})
		}
	}
	return bars, nil
}
