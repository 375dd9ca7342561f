// Package domain defines the core value types shared across meridian: bars,
// order sides, order types and signal directions.
package domain

import "time"

// Market identifies the exchange region a symbol trades in. It is used as a
// path segment by the bar store.
type Market string

const (
	MarketUS Market = "us"
)

// Bar is one OHLCV sample for a symbol over a fixed interval.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// Side is the direction of an order or fill.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Sign returns +1 for BUY and -1 for SELL.
func (s Side) Sign() int64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// Direction is the intent carried by a strategy signal.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionExit  Direction = "EXIT"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	switch d {
	case DirectionLong, DirectionShort, DirectionExit:
		return true
	}
	return false
}

// PositionState classifies a signed position quantity.
type PositionState string

const (
	PositionFlat  PositionState = "FLAT"
	PositionLong  PositionState = "LONG"
	PositionShort PositionState = "SHORT"
)

// StateOf returns the position state for a signed quantity.
func StateOf(qty int64) PositionState {
	switch {
	case qty > 0:
		return PositionLong
	case qty < 0:
		return PositionShort
	}
	return PositionFlat
}
