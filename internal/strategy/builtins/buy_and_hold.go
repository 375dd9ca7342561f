package builtins

import (
	"context"
	"errors"

	"meridian/internal/domain"
	"meridian/internal/event"
	"meridian/internal/market"
	"meridian/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*BuyAndHold)(nil)

// BuyAndHold emits a single LONG signal per symbol on its first bar.
type BuyAndHold struct {
	symbols []string
	bars    market.BarReader
	bought  map[string]bool
}

// NewBuyAndHold creates a BuyAndHold strategy over symbols.
func NewBuyAndHold(symbols []string) (*BuyAndHold, error) {
	if len(symbols) == 0 {
		return nil, errors.New("buy_and_hold: no symbols")
	}
	return &BuyAndHold{
		symbols: append([]string(nil), symbols...),
		bought:  make(map[string]bool, len(symbols)),
	}, nil
}

func (s *BuyAndHold) Name() string { return "buy_and_hold" }

func (s *BuyAndHold) Init(_ context.Context, bars market.BarReader) error {
	s.bars = bars
	return nil
}

func (s *BuyAndHold) OnMarket(_ context.Context, _ event.Market) ([]event.Signal, error) {
	if s.bars == nil {
		return nil, errors.New("buy_and_hold: OnMarket before Init")
	}
	var signals []event.Signal
	for _, sym := range s.symbols {
		if s.bought[sym] {
			continue
		}
		bars, err := s.bars.LatestBars(sym, 1)
		if err != nil {
			return nil, err
		}
		if len(bars) == 0 {
			continue
		}
		sig, err := event.NewSignal(s.Name(), sym, bars[0].Timestamp, domain.DirectionLong, 1.0)
		if err != nil {
			return nil, err
		}
		signals = append(signals, sig)
		s.bought[sym] = true
	}
	return signals, nil
}
