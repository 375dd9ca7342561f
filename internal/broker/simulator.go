package broker

import (
	"context"
	"fmt"
	"log/slog"

	"meridian/internal/domain"
	"meridian/internal/event"
	"meridian/internal/market"
)

// SimulatorVenue is the venue stamped on simulated fills.
const SimulatorVenue = "SIM"

// Compile-time interface check.
var _ ExecutionHandler = (*Simulator)(nil)

// Simulator fills every order immediately at the close of the latest
// observed bar, for the full quantity and with no slippage. Commission is
// left to the default schedule.
type Simulator struct {
	bars  market.BarReader
	queue *event.Queue
	log   *slog.Logger
}

// NewSimulator creates a Simulator pricing against bars and pushing fills
// onto q.
func NewSimulator(bars market.BarReader, q *event.Queue) *Simulator {
	return &Simulator{
		bars:  bars,
		queue: q,
		log:   slog.Default().With("component", "simulator"),
	}
}

// Name returns "simulator".
func (s *Simulator) Name() string {
	return "simulator"
}

// Execute fills order at the latest close. A limit order whose limit is not
// reached by the close is dropped without a fill.
func (s *Simulator) Execute(_ context.Context, order event.Order) error {
	bars, err := s.bars.LatestBars(order.Symbol, 1)
	if err != nil {
		return fmt.Errorf("simulator: %w", err)
	}
	if len(bars) == 0 {
		return fmt.Errorf("simulator: no bar observed for %s", order.Symbol)
	}
	bar := bars[len(bars)-1]

	if order.Type == domain.OrderTypeLimit && !marketable(order, bar.Close) {
		s.log.Info("limit not reached, order dropped",
			"order", order.ID, "symbol", order.Symbol, "limit", order.LimitPrice, "close", bar.Close)
		return nil
	}

	fill, err := event.NewFill(order.ID, bar.Timestamp, order.Symbol, SimulatorVenue,
		order.Quantity, order.Side, bar.Close, nil)
	if err != nil {
		return fmt.Errorf("simulator: %w", err)
	}
	s.queue.Push(fill)
	return nil
}

func marketable(order event.Order, price float64) bool {
	if order.Side == domain.SideBuy {
		return price <= order.LimitPrice
	}
	return price >= order.LimitPrice
}
