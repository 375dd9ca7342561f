// Package market provides the data handlers that drip-feed bars into the
// engine and expose a bounded, look-ahead free view of recent history.
package market

import (
	"context"
	"errors"
	"fmt"

	"meridian/internal/domain"
)

// ErrUnknownSymbol is returned when a caller asks for a symbol the handler
// does not track.
var ErrUnknownSymbol = errors.New("unknown symbol")

// BarReader is the read-only view strategies and the portfolio use.
type BarReader interface {
	// LatestBars returns up to n of the most recent bars observed for
	// symbol, oldest first. A tracked symbol with no bars yet yields an empty
	// slice and no error.
	LatestBars(symbol string, n int) ([]domain.Bar, error)
}

// DataHandler is a BarReader that the engine advances one heartbeat at a
// time.
type DataHandler interface {
	BarReader

	// Symbols returns the tracked symbols in a stable order.
	Symbols() []string

	// Advance observes the next bar for every symbol and pushes one Market
	// event. It returns false once the data is exhausted.
	Advance(ctx context.Context) (bool, error)
}

// window holds the observed bars per symbol. It is owned by one handler and
// never shared.
type window struct {
	symbols []string
	bars    map[string][]domain.Bar
}

func newWindow(symbols []string) (*window, error) {
	if len(symbols) == 0 {
		return nil, errors.New("no symbols")
	}
	w := &window{
		symbols: append([]string(nil), symbols...),
		bars:    make(map[string][]domain.Bar, len(symbols)),
	}
	for _, s := range symbols {
		if _, dup := w.bars[s]; dup {
			return nil, fmt.Errorf("duplicate symbol %q", s)
		}
		w.bars[s] = nil
	}
	return w, nil
}

func (w *window) latest(symbol string, n int) ([]domain.Bar, error) {
	bars, ok := w.bars[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	if n <= 0 {
		return nil, nil
	}
	if n > len(bars) {
		n = len(bars)
	}
	out := make([]domain.Bar, n)
	copy(out, bars[len(bars)-n:])
	return out, nil
}

func (w *window) last(symbol string) (domain.Bar, bool) {
	bars := w.bars[symbol]
	if len(bars) == 0 {
		return domain.Bar{}, false
	}
	return bars[len(bars)-1], true
}

func (w *window) append(b domain.Bar) {
	w.bars[b.Symbol] = append(w.bars[b.Symbol], b)
}
