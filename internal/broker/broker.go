// Package broker defines the ExecutionHandler interface and its
// implementations: an in-process simulator for backtests and an Alpaca
// adapter for live trading.
package broker

import (
	"context"

	"meridian/internal/event"
)

// ExecutionHandler turns orders into fills. Implementations push at most one
// Fill per order ID onto the shared event queue, either synchronously
// (simulator) or later from a brokerage callback (live).
type ExecutionHandler interface {
	// Name returns the handler identifier (e.g. "alpaca", "simulator").
	Name() string

	// Execute submits order for execution. A submission the venue refuses
	// is not an error; the order simply never produces a fill.
	Execute(ctx context.Context, order event.Order) error
}
