package gather

import (
	"context"
	"fmt"
	"log/slog"

	"meridian/internal/domain"
	"meridian/internal/market"
	"meridian/internal/store"
)

// Compile-time interface check.
var _ Gatherer = (*CSVImporter)(nil)

// CSVImporter copies <Dir>/<SYMBOL>.csv files into a BarStore so that
// backtests can run from the parquet source.
type CSVImporter struct {
	Dir     string
	Symbols []string
	Market  domain.Market
	Store   store.BarStore
}

// Name returns the gatherer identifier.
func (c *CSVImporter) Name() string { return "csv-import" }

// Run loads every symbol's CSV file and writes its bars.
func (c *CSVImporter) Run(ctx context.Context) error {
	bars, err := market.LoadCSVDir(c.Dir, c.Symbols)
	if err != nil {
		return err
	}
	mkt := c.Market
	if mkt == "" {
		mkt = domain.MarketUS
	}
	log := slog.Default().With("gatherer", c.Name())
	for _, sym := range c.Symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.Store.WriteBars(ctx, mkt, bars[sym]); err != nil {
			return fmt.Errorf("import %s: %w", sym, err)
		}
		log.Info("imported", "symbol", sym, "bars", len(bars[sym]))
	}
	return nil
}
