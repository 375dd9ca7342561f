package market

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"meridian/internal/domain"
	"meridian/internal/event"
)

// Compile-time interface check.
var _ DataHandler = (*HistoricHandler)(nil)

// HistoricHandler replays in-memory bars. The heartbeat timeline is the
// sorted union of every symbol's timestamps; a symbol without a bar at a
// heartbeat repeats its previous bar (with zero volume) so that all symbols
// advance together. Symbols that have not started trading yet stay empty.
type HistoricHandler struct {
	queue    *event.Queue
	win      *window
	series   map[string]*Series
	timeline []time.Time
	pos      int
	log      *slog.Logger
}

// NewHistoricHandler builds a handler over bars for the given symbols. Every
// symbol must have at least one bar.
func NewHistoricHandler(q *event.Queue, symbols []string, bars map[string][]domain.Bar) (*HistoricHandler, error) {
	win, err := newWindow(symbols)
	if err != nil {
		return nil, fmt.Errorf("historic handler: %w", err)
	}

	h := &HistoricHandler{
		queue:  q,
		win:    win,
		series: make(map[string]*Series, len(symbols)),
		log:    slog.Default().With("component", "historic"),
	}

	seen := make(map[int64]time.Time)
	for _, sym := range symbols {
		sb := bars[sym]
		if len(sb) == 0 {
			return nil, fmt.Errorf("historic handler: no bars for %s", sym)
		}
		for i := range sb {
			if sb[i].Symbol == "" {
				sb[i].Symbol = sym
			}
			seen[sb[i].Timestamp.UnixNano()] = sb[i].Timestamp
		}
		h.series[sym] = NewSeries(sb)
	}

	h.timeline = make([]time.Time, 0, len(seen))
	for _, t := range seen {
		h.timeline = append(h.timeline, t)
	}
	sort.Slice(h.timeline, func(i, j int) bool { return h.timeline[i].Before(h.timeline[j]) })
	return h, nil
}

// Symbols returns the tracked symbols in construction order.
func (h *HistoricHandler) Symbols() []string {
	return append([]string(nil), h.win.symbols...)
}

// LatestBars returns up to n of the most recent observed bars for symbol.
func (h *HistoricHandler) LatestBars(symbol string, n int) ([]domain.Bar, error) {
	return h.win.latest(symbol, n)
}

// Len returns the number of heartbeats in the replay.
func (h *HistoricHandler) Len() int { return len(h.timeline) }

// Advance observes the bars stamped with the next timeline entry.
func (h *HistoricHandler) Advance(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if h.pos >= len(h.timeline) {
		return false, nil
	}
	now := h.timeline[h.pos]
	h.pos++

	for _, sym := range h.win.symbols {
		s := h.series[sym]
		var (
			cur domain.Bar
			got bool
		)
		// Consume every bar up to now; of duplicates stamped now, the last wins.
		for {
			b, ok := s.Peek()
			if !ok || b.Timestamp.After(now) {
				break
			}
			s.Next()
			cur, got = b, true
		}
		if got {
			h.win.append(cur)
			continue
		}
		if prev, ok := h.win.last(sym); ok {
			prev.Timestamp = now
			prev.Volume, prev.TradeCount = 0, 0
			h.win.append(prev)
			h.log.Debug("forward-filled bar", "symbol", sym, "time", now)
		}
	}

	h.queue.Push(event.Market{Time: now})
	return true, nil
}
