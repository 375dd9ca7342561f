// Package event defines the closed set of events that flow through the
// engine and the FIFO queue that carries them.
//
// Events are values. Constructors validate their fields once; nothing
// mutates an event after it has been pushed.
package event

import (
	"errors"
	"fmt"
	"time"

	"meridian/internal/domain"
	"meridian/internal/id"
)

// ErrInvalid is wrapped by constructor errors for malformed events.
var ErrInvalid = errors.New("invalid event")

// Kind discriminates the concrete event types.
type Kind string

const (
	KindMarket Kind = "MARKET"
	KindSignal Kind = "SIGNAL"
	KindOrder  Kind = "ORDER"
	KindFill   Kind = "FILL"
)

// Event is implemented by Market, Signal, Order and Fill only.
type Event interface {
	Kind() Kind
	isEvent()
}

// Compile-time interface checks.
var (
	_ Event = Market{}
	_ Event = Signal{}
	_ Event = Order{}
	_ Event = Fill{}
)

// ---------------------------------------------------------------------------
// Market
// ---------------------------------------------------------------------------

// Market announces that a new bar is available for every tracked symbol.
// Time is informational; valuation reads bar timestamps from the data
// handler.
type Market struct {
	Time time.Time
}

func (Market) Kind() Kind { return KindMarket }
func (Market) isEvent()   {}

// ---------------------------------------------------------------------------
// Signal
// ---------------------------------------------------------------------------

// Signal is a strategy's advice to go long, go short or exit a symbol.
type Signal struct {
	StrategyID string
	Symbol     string
	Time       time.Time
	Direction  domain.Direction
	Strength   float64
}

// NewSignal validates and builds a Signal.
func NewSignal(strategyID, symbol string, t time.Time, dir domain.Direction, strength float64) (Signal, error) {
	if symbol == "" {
		return Signal{}, fmt.Errorf("signal: empty symbol: %w", ErrInvalid)
	}
	if !dir.Valid() {
		return Signal{}, fmt.Errorf("signal %s: direction %q: %w", symbol, dir, ErrInvalid)
	}
	if !(strength > 0) {
		return Signal{}, fmt.Errorf("signal %s: strength %v must be positive: %w", symbol, strength, ErrInvalid)
	}
	return Signal{
		StrategyID: strategyID,
		Symbol:     symbol,
		Time:       t,
		Direction:  dir,
		Strength:   strength,
	}, nil
}

func (Signal) Kind() Kind { return KindSignal }
func (Signal) isEvent()   {}

func (s Signal) String() string {
	return fmt.Sprintf("Signal{%s %s %s x%.2f}", s.StrategyID, s.Symbol, s.Direction, s.Strength)
}

// ---------------------------------------------------------------------------
// Order
// ---------------------------------------------------------------------------

// Order is a request to trade Quantity shares of Symbol. ID is unique per
// process and is used to deduplicate broker fills.
type Order struct {
	ID         string
	Symbol     string
	Type       domain.OrderType
	Quantity   int64
	Side       domain.Side
	LimitPrice float64
}

// NewOrder validates and builds a market Order with a fresh ID.
func NewOrder(symbol string, qty int64, side domain.Side) (Order, error) {
	return newOrder(symbol, domain.OrderTypeMarket, qty, side, 0)
}

// NewLimitOrder validates and builds a limit Order with a fresh ID.
func NewLimitOrder(symbol string, qty int64, side domain.Side, limit float64) (Order, error) {
	if !(limit > 0) {
		return Order{}, fmt.Errorf("order %s: limit price %v must be positive: %w", symbol, limit, ErrInvalid)
	}
	return newOrder(symbol, domain.OrderTypeLimit, qty, side, limit)
}

func newOrder(symbol string, typ domain.OrderType, qty int64, side domain.Side, limit float64) (Order, error) {
	if symbol == "" {
		return Order{}, fmt.Errorf("order: empty symbol: %w", ErrInvalid)
	}
	if qty < 0 {
		return Order{}, fmt.Errorf("order %s: negative quantity %d: %w", symbol, qty, ErrInvalid)
	}
	if !side.Valid() {
		return Order{}, fmt.Errorf("order %s: side %q: %w", symbol, side, ErrInvalid)
	}
	return Order{
		ID:         id.New(),
		Symbol:     symbol,
		Type:       typ,
		Quantity:   qty,
		Side:       side,
		LimitPrice: limit,
	}, nil
}

func (Order) Kind() Kind { return KindOrder }
func (Order) isEvent()   {}

func (o Order) String() string {
	return fmt.Sprintf("Order{%s %s %s %d %s}", o.ID, o.Symbol, o.Type, o.Quantity, o.Side)
}

// ---------------------------------------------------------------------------
// Fill
// ---------------------------------------------------------------------------

// Fill reports an executed order. Commission is always populated.
type Fill struct {
	OrderID    string
	Time       time.Time
	Symbol     string
	Venue      string
	Quantity   int64
	Side       domain.Side
	FillPrice  float64
	Commission float64
}

// NewFill validates and builds a Fill. A nil commission is replaced by
// IBCommission(qty, price).
func NewFill(orderID string, t time.Time, symbol, venue string, qty int64, side domain.Side, price float64, commission *float64) (Fill, error) {
	if symbol == "" {
		return Fill{}, fmt.Errorf("fill: empty symbol: %w", ErrInvalid)
	}
	if qty < 0 {
		return Fill{}, fmt.Errorf("fill %s: negative quantity %d: %w", symbol, qty, ErrInvalid)
	}
	if !side.Valid() {
		return Fill{}, fmt.Errorf("fill %s: side %q: %w", symbol, side, ErrInvalid)
	}
	if price < 0 {
		return Fill{}, fmt.Errorf("fill %s: negative price %v: %w", symbol, price, ErrInvalid)
	}

	c := IBCommission(qty, price)
	if commission != nil {
		if *commission < 0 {
			return Fill{}, fmt.Errorf("fill %s: negative commission %v: %w", symbol, *commission, ErrInvalid)
		}
		c = *commission
	}

	return Fill{
		OrderID:    orderID,
		Time:       t,
		Symbol:     symbol,
		Venue:      venue,
		Quantity:   qty,
		Side:       side,
		FillPrice:  price,
		Commission: c,
	}, nil
}

func (Fill) Kind() Kind { return KindFill }
func (Fill) isEvent()   {}

// Notional returns the signed cash value of the fill: positive for buys.
func (f Fill) Notional() float64 {
	return float64(f.Side.Sign()*f.Quantity) * f.FillPrice
}

func (f Fill) String() string {
	return fmt.Sprintf("Fill{%s %s %d %s @ %.4f fee %.4f}", f.OrderID, f.Symbol, f.Quantity, f.Side, f.FillPrice, f.Commission)
}
