// Package portfolio is the position and holdings ledger. It turns signals
// into orders, applies fills, snapshots mark-to-market value on every
// heartbeat and derives the equity curve.
//
// A Portfolio is not safe for concurrent use; the engine serialises every
// call into it.
package portfolio

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"meridian/internal/domain"
	"meridian/internal/event"
	"meridian/internal/market"
)

// Positions is a snapshot of signed share quantities per tracked symbol.
type Positions struct {
	Time     time.Time
	Quantity map[string]int64
}

func (p Positions) clone() Positions {
	return Positions{Time: p.Time, Quantity: maps.Clone(p.Quantity)}
}

// Holdings is a snapshot of mark-to-market values. Total always equals
// Cash plus the sum of Value.
type Holdings struct {
	Time       time.Time
	Value      map[string]float64
	Cash       float64
	Commission float64
	Total      float64
}

func (h Holdings) clone() Holdings {
	h.Value = maps.Clone(h.Value)
	return h
}

// Config holds the construction parameters of a Portfolio.
type Config struct {
	Symbols        []string
	InitialCapital float64
	Start          time.Time
	Sizer          Sizer // nil means FixedLot{DefaultLot}
}

// Portfolio owns the current ledgers and their append-only history.
type Portfolio struct {
	bars    market.BarReader
	queue   *event.Queue
	symbols []string
	sizer   Sizer
	capital float64

	positions Positions
	holdings  Holdings

	positionHistory []Positions
	holdingsHistory []Holdings

	log *slog.Logger
}

// New creates a Portfolio with InitialCapital in cash, flat positions in
// every symbol and one initial snapshot stamped cfg.Start.
func New(bars market.BarReader, q *event.Queue, cfg Config) (*Portfolio, error) {
	if bars == nil || q == nil {
		return nil, errors.New("portfolio: nil bar reader or queue")
	}
	if !(cfg.InitialCapital > 0) {
		return nil, fmt.Errorf("portfolio: initial capital must be positive, got %v", cfg.InitialCapital)
	}
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("portfolio: no symbols")
	}

	qty := make(map[string]int64, len(cfg.Symbols))
	val := make(map[string]float64, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		if _, dup := qty[s]; dup {
			return nil, fmt.Errorf("portfolio: duplicate symbol %q", s)
		}
		qty[s] = 0
		val[s] = 0
	}

	sizer := cfg.Sizer
	if sizer == nil {
		sizer = FixedLot{Lot: DefaultLot}
	}

	p := &Portfolio{
		bars:      bars,
		queue:     q,
		symbols:   append([]string(nil), cfg.Symbols...),
		sizer:     sizer,
		capital:   cfg.InitialCapital,
		positions: Positions{Time: cfg.Start, Quantity: qty},
		holdings: Holdings{
			Time:  cfg.Start,
			Value: val,
			Cash:  cfg.InitialCapital,
			Total: cfg.InitialCapital,
		},
		log: slog.Default().With("component", "portfolio"),
	}
	p.positionHistory = []Positions{p.positions.clone()}
	p.holdingsHistory = []Holdings{p.holdings.clone()}
	return p, nil
}

// ---------------------------------------------------------------------------
// Event handlers
// ---------------------------------------------------------------------------

// OnMarket marks every position at the close of its latest observed bar and
// appends a snapshot stamped with the newest bar timestamp. Nothing is
// changed when any symbol has no bar yet.
func (p *Portfolio) OnMarket(_ event.Market) error {
	closes := make(map[string]float64, len(p.symbols))
	var now time.Time
	for _, sym := range p.symbols {
		b, err := p.lastBar(sym)
		if err != nil {
			return err
		}
		closes[sym] = b.Close
		if b.Timestamp.After(now) {
			now = b.Timestamp
		}
	}

	p.positions.Time = now
	p.holdings.Time = now
	for _, sym := range p.symbols {
		p.holdings.Value[sym] = float64(p.positions.Quantity[sym]) * closes[sym]
	}
	p.retotal()

	p.positionHistory = append(p.positionHistory, p.positions.clone())
	p.holdingsHistory = append(p.holdingsHistory, p.holdings.clone())
	return nil
}

// OnSignal sizes sig against the current position and pushes the resulting
// order, if any. It never changes the ledgers.
func (p *Portfolio) OnSignal(sig event.Signal) error {
	current, ok := p.positions.Quantity[sig.Symbol]
	if !ok {
		return &UnknownSymbolError{Symbol: sig.Symbol}
	}
	order, ok, err := p.sizer.Size(current, sig)
	if err != nil {
		return fmt.Errorf("size %s: %w", sig, err)
	}
	if !ok {
		p.log.Debug("signal ignored", "symbol", sig.Symbol, "direction", sig.Direction, "position", current)
		return nil
	}
	p.queue.Push(order)
	return nil
}

// OnFill applies f to the current ledgers. Cash moves by the realised
// notional plus commission; the position is re-marked at the last observed
// close, not at the fill price.
func (p *Portfolio) OnFill(f event.Fill) error {
	if _, ok := p.positions.Quantity[f.Symbol]; !ok {
		return &UnknownSymbolError{Symbol: f.Symbol}
	}
	b, err := p.lastBar(f.Symbol)
	if err != nil {
		return err
	}

	qty := p.positions.Quantity[f.Symbol] + f.Side.Sign()*f.Quantity
	p.positions.Quantity[f.Symbol] = qty

	p.holdings.Cash -= f.Notional() + f.Commission
	p.holdings.Commission += f.Commission
	p.holdings.Value[f.Symbol] = float64(qty) * b.Close
	p.retotal()

	p.log.Debug("fill applied",
		"symbol", f.Symbol,
		"side", f.Side,
		"qty", f.Quantity,
		"price", f.FillPrice,
		"commission", f.Commission,
		"position", qty,
		"cash", p.holdings.Cash,
	)
	return nil
}

// lastBar returns the most recent bar observed for sym.
func (p *Portfolio) lastBar(sym string) (domain.Bar, error) {
	bars, err := p.bars.LatestBars(sym, 1)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("latest bar for %s: %w", sym, err)
	}
	if len(bars) == 0 {
		return domain.Bar{}, &MissingMarketDataError{Symbol: sym}
	}
	return bars[len(bars)-1], nil
}

// retotal recomputes Total from scratch so it can never drift.
func (p *Portfolio) retotal() {
	total := p.holdings.Cash
	for _, sym := range p.symbols {
		total += p.holdings.Value[sym]
	}
	p.holdings.Total = total
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Symbols returns the tracked symbols in construction order.
func (p *Portfolio) Symbols() []string { return append([]string(nil), p.symbols...) }

// InitialCapital returns the starting cash.
func (p *Portfolio) InitialCapital() float64 { return p.capital }

// CurrentPositions returns a copy of the live positions ledger.
func (p *Portfolio) CurrentPositions() Positions { return p.positions.clone() }

// CurrentHoldings returns a copy of the live holdings ledger.
func (p *Portfolio) CurrentHoldings() Holdings { return p.holdings.clone() }

// PositionHistory returns copies of every positions snapshot.
func (p *Portfolio) PositionHistory() []Positions {
	out := make([]Positions, len(p.positionHistory))
	for i, s := range p.positionHistory {
		out[i] = s.clone()
	}
	return out
}

// HoldingsHistory returns copies of every holdings snapshot.
func (p *Portfolio) HoldingsHistory() []Holdings {
	out := make([]Holdings, len(p.holdingsHistory))
	for i, s := range p.holdingsHistory {
		out[i] = s.clone()
	}
	return out
}
