package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"meridian/internal/domain"
)

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	bp := ps.barPath(domain.MarketUS, "aapl", 2024)
	want := filepath.Join("/data", "us", "daily", "AAPL", "2024.parquet")
	if bp != want {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", bp, want)
	}
}

func sampleBars() []domain.Bar {
	return []domain.Bar{
		{
			Symbol:     "AAPL",
			Timestamp:  time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC),
			Open:       193.9,
			High:       194.4,
			Low:        191.7,
			Close:      192.5,
			Volume:     42000000,
			TradeCount: 410000,
			VWAP:       192.9,
		},
		{
			Symbol:     "AAPL",
			Timestamp:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			Open:       185.0,
			High:       186.5,
			Low:        184.0,
			Close:      185.5,
			Volume:     50000000,
			TradeCount: 500000,
			VWAP:       185.25,
		},
		{
			Symbol:     "AAPL",
			Timestamp:  time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
			Open:       185.5,
			High:       187.0,
			Low:        185.0,
			Close:      186.0,
			Volume:     45000000,
			TradeCount: 450000,
			VWAP:       185.75,
		},
	}
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	if err := ps.WriteBars(ctx, domain.MarketUS, sampleBars()); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadBars(ctx, domain.MarketUS, "AAPL", start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars, want 2", len(got))
	}
	if got[0].Close != 185.5 || got[1].Close != 186.0 {
		t.Errorf("closes = %v, %v; want 185.5, 186.0", got[0].Close, got[1].Close)
	}
	if !got[0].Timestamp.Equal(start.AddDate(0, 0, 1)) {
		t.Errorf("first timestamp = %s, want 2024-01-02", got[0].Timestamp)
	}
	if got[1].Volume != 45000000 || got[1].VWAP != 185.75 {
		t.Errorf("second bar = %+v, want volume 45000000 vwap 185.75", got[1])
	}

	// Open-ended reads span every year file.
	all, err := ps.ReadBars(ctx, domain.MarketUS, "AAPL", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ReadBars unbounded: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("unbounded ReadBars returned %d bars, want 3", len(all))
	}
}

func TestParquetStoreMergeOverwrites(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	if err := ps.WriteBars(ctx, domain.MarketUS, sampleBars()); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	revised := sampleBars()[2]
	revised.Close = 190
	if err := ps.WriteBars(ctx, domain.MarketUS, []domain.Bar{revised}); err != nil {
		t.Fatalf("WriteBars revised: %v", err)
	}

	got, err := ps.ReadBars(ctx, domain.MarketUS, "AAPL", revised.Timestamp, revised.Timestamp)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 1 || got[0].Close != 190 {
		t.Errorf("ReadBars = %+v, want one bar closing at 190", got)
	}
}

func TestParquetStoreListSymbols(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	syms, err := ps.ListSymbols(ctx, domain.MarketUS)
	if err != nil || len(syms) != 0 {
		t.Fatalf("ListSymbols on empty store = %v, %v; want none", syms, err)
	}

	bars := append(sampleBars(), domain.Bar{Symbol: "msft", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 370})
	if err := ps.WriteBars(ctx, domain.MarketUS, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	syms, err = ps.ListSymbols(ctx, domain.MarketUS)
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(syms) != 2 || syms[0] != "AAPL" || syms[1] != "MSFT" {
		t.Errorf("ListSymbols = %v, want [AAPL MSFT]", syms)
	}
}

func TestParquetStoreMissingSymbol(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	got, err := ps.ReadBars(context.Background(), domain.MarketUS, "NOPE",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil || len(got) != 0 {
		t.Errorf("ReadBars(NOPE) = %v, %v; want no bars and no error", got, err)
	}
}
