// Package builtins provides the strategies that ship with meridian.
package builtins

import (
	"context"
	"errors"
	"fmt"

	talib "github.com/markcheno/go-talib"

	"meridian/internal/domain"
	"meridian/internal/event"
	"meridian/internal/market"
	"meridian/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross goes long when the short simple moving average of closes crosses
// above the long one and exits when it crosses back below.
type SMACross struct {
	symbols     []string
	shortPeriod int
	longPeriod  int
	bars        market.BarReader
	bought      map[string]bool
}

// NewSMACross creates a new SMACross strategy with the specified short and
// long moving average periods.
func NewSMACross(symbols []string, short, long int) (*SMACross, error) {
	if short < 1 || long <= short {
		return nil, fmt.Errorf("sma_cross: need 1 <= short < long, got %d/%d", short, long)
	}
	if len(symbols) == 0 {
		return nil, errors.New("sma_cross: no symbols")
	}
	return &SMACross{
		symbols:     append([]string(nil), symbols...),
		shortPeriod: short,
		longPeriod:  long,
		bought:      make(map[string]bool, len(symbols)),
	}, nil
}

// Name returns "sma_cross".
func (s *SMACross) Name() string { return "sma_cross" }

// Init binds the bar reader.
func (s *SMACross) Init(_ context.Context, bars market.BarReader) error {
	s.bars = bars
	return nil
}

// OnMarket compares the last two values of both averages. It needs
// longPeriod+1 observed bars before it can signal.
func (s *SMACross) OnMarket(_ context.Context, _ event.Market) ([]event.Signal, error) {
	if s.bars == nil {
		return nil, errors.New("sma_cross: OnMarket before Init")
	}

	var signals []event.Signal
	for _, sym := range s.symbols {
		bars, err := s.bars.LatestBars(sym, s.longPeriod+1)
		if err != nil {
			return nil, err
		}
		n := len(bars)
		if n < s.longPeriod+1 {
			continue
		}
		closes := make([]float64, n)
		for i, b := range bars {
			closes[i] = b.Close
		}
		short := talib.Sma(closes, s.shortPeriod)
		long := talib.Sma(closes, s.longPeriod)

		prevDiff := short[n-2] - long[n-2]
		curDiff := short[n-1] - long[n-1]
		now := bars[n-1].Timestamp

		var dir domain.Direction
		switch {
		case prevDiff <= 0 && curDiff > 0 && !s.bought[sym]:
			dir = domain.DirectionLong
			s.bought[sym] = true
		case prevDiff >= 0 && curDiff < 0 && s.bought[sym]:
			dir = domain.DirectionExit
			s.bought[sym] = false
		default:
			continue
		}

		sig, err := event.NewSignal(s.Name(), sym, now, dir, 1.0)
		if err != nil {
			return nil, err
		}
		signals = append(signals, sig)
	}
	return signals, nil
}
