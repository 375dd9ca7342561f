package market

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"meridian/internal/domain"
	"meridian/internal/event"
	"meridian/internal/util"
)

// LatestBarsClient is the slice of the Alpaca market-data client used for
// live polling.
type LatestBarsClient interface {
	GetLatestBars(symbols []string, req marketdata.GetLatestBarRequest) (map[string]marketdata.Bar, error)
}

// MarketHours reports whether polling is worthwhile at a given instant.
type MarketHours interface {
	IsMarketOpen(t time.Time) bool
}

// Compile-time interface checks.
var (
	_ DataHandler      = (*AlpacaHandler)(nil)
	_ LatestBarsClient = (*marketdata.Client)(nil)
	_ MarketHours      = (*util.TradingCalendar)(nil)
)

// AlpacaHandlerConfig configures an AlpacaHandler.
type AlpacaHandlerConfig struct {
	Symbols []string
	Feed    string
	Limiter *util.RateLimiter
	Hours   MarketHours // nil polls around the clock
}

// AlpacaHandler polls the latest bar of every symbol on each heartbeat.
// Only bars strictly newer than the last observed one are kept, so a
// heartbeat without new data pushes no Market event.
type AlpacaHandler struct {
	client  LatestBarsClient
	queue   *event.Queue
	win     *window
	feed    marketdata.Feed
	limiter *util.RateLimiter
	hours   MarketHours
	now     func() time.Time
	log     *slog.Logger
}

// NewAlpacaHandler creates a live handler backed by client.
func NewAlpacaHandler(client LatestBarsClient, q *event.Queue, cfg AlpacaHandlerConfig) (*AlpacaHandler, error) {
	win, err := newWindow(cfg.Symbols)
	if err != nil {
		return nil, fmt.Errorf("alpaca handler: %w", err)
	}
	feed := cfg.Feed
	if feed == "" {
		feed = "iex"
	}
	return &AlpacaHandler{
		client:  client,
		queue:   q,
		win:     win,
		feed:    marketdata.Feed(feed),
		limiter: cfg.Limiter,
		hours:   cfg.Hours,
		now:     time.Now,
		log:     slog.Default().With("component", "alpaca-data"),
	}, nil
}

// Seed preloads history so that strategies with long lookbacks can trade
// from the first live heartbeat. Bars for untracked symbols are ignored.
func (h *AlpacaHandler) Seed(history map[string][]domain.Bar) {
	for _, sym := range h.win.symbols {
		s := NewSeries(history[sym])
		for {
			b, ok := s.Next()
			if !ok {
				break
			}
			b.Symbol = sym
			h.observe(b)
		}
	}
}

// Symbols returns the tracked symbols.
func (h *AlpacaHandler) Symbols() []string {
	return append([]string(nil), h.win.symbols...)
}

// LatestBars returns up to n of the most recent observed bars for symbol.
func (h *AlpacaHandler) LatestBars(symbol string, n int) ([]domain.Bar, error) {
	return h.win.latest(symbol, n)
}

// Advance polls once. It never reports exhaustion; the engine stops a live
// run through its context.
func (h *AlpacaHandler) Advance(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if h.hours != nil && !h.hours.IsMarketOpen(h.now()) {
		h.log.Debug("market closed, skipping poll")
		return true, nil
	}
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return false, err
		}
	}

	var latest map[string]marketdata.Bar
	err := util.Retry(ctx, 3, 500*time.Millisecond, func() error {
		var err error
		latest, err = h.client.GetLatestBars(h.win.symbols, marketdata.GetLatestBarRequest{Feed: h.feed})
		return err
	})
	if err != nil {
		return false, fmt.Errorf("GetLatestBars: %w", err)
	}

	var newest time.Time
	symbols := make([]string, 0, len(latest))
	for sym := range latest {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	for _, sym := range symbols {
		ab := latest[sym]
		b := domain.Bar{
			Symbol:     strings.ToUpper(sym),
			Timestamp:  ab.Timestamp,
			Open:       ab.Open,
			High:       ab.High,
			Low:        ab.Low,
			Close:      ab.Close,
			Volume:     int64(ab.Volume),
			TradeCount: int64(ab.TradeCount),
			VWAP:       ab.VWAP,
		}
		if h.observe(b) && b.Timestamp.After(newest) {
			newest = b.Timestamp
		}
	}

	if newest.IsZero() {
		return true, nil
	}
	h.queue.Push(event.Market{Time: newest})
	return true, nil
}

// observe appends b if it is strictly newer than the symbol's last bar.
func (h *AlpacaHandler) observe(b domain.Bar) bool {
	if _, tracked := h.win.bars[b.Symbol]; !tracked {
		return false
	}
	if last, ok := h.win.last(b.Symbol); ok && !b.Timestamp.After(last.Timestamp) {
		return false
	}
	h.win.append(b)
	return true
}
