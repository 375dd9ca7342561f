package portfolio

import (
	"errors"
	"fmt"
)

// Sentinels wrapped by the typed ledger errors, for errors.Is.
var (
	ErrMissingMarketData = errors.New("missing market data")
	ErrUnknownSymbol     = errors.New("unknown symbol")
)

// ErrInsufficientHistory is returned by EquityCurve before two snapshots
// exist.
var ErrInsufficientHistory = errors.New("insufficient history: need at least 2 snapshots")

// MissingMarketDataError reports a tracked symbol that has not received a
// bar yet. Valuing it would silently price the position at zero.
type MissingMarketDataError struct {
	Symbol string
}

func (e *MissingMarketDataError) Error() string {
	return fmt.Sprintf("missing market data for %s", e.Symbol)
}

func (e *MissingMarketDataError) Unwrap() error { return ErrMissingMarketData }

// UnknownSymbolError reports a signal or fill for a symbol outside the
// tracked set.
type UnknownSymbolError struct {
	Symbol string
}

func (e *UnknownSymbolError) Error() string {
	return fmt.Sprintf("unknown symbol %s", e.Symbol)
}

func (e *UnknownSymbolError) Unwrap() error { return ErrUnknownSymbol }
