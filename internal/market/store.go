package market

import (
	"context"
	"fmt"
	"time"

	"meridian/internal/domain"
	"meridian/internal/store"
)

// LoadStore reads each symbol's bars in [start, end] from bs. A zero end
// reads to the last stored bar.
func LoadStore(ctx context.Context, bs store.BarStore, market domain.Market, symbols []string, start, end time.Time) (map[string][]domain.Bar, error) {
	out := make(map[string][]domain.Bar, len(symbols))
	for _, sym := range symbols {
		bars, err := bs.ReadBars(ctx, market, sym, start, end)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", sym, err)
		}
		out[sym] = bars
	}
	return out, nil
}
