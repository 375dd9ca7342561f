package market

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meridian/internal/domain"
	"meridian/internal/event"
	"meridian/internal/store"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func bar(sym string, d int, close float64) domain.Bar {
	return domain.Bar{Symbol: sym, Timestamp: day(d), Open: close, High: close, Low: close, Close: close, Volume: 1000}
}

func TestSeriesOrdersAndEnds(t *testing.T) {
	s := NewSeries([]domain.Bar{bar("A", 3, 3), bar("A", 1, 1), bar("A", 2, 2)})
	assert.Equal(t, 3, s.Remaining())

	var closes []float64
	for {
		b, ok := s.Next()
		if !ok {
			break
		}
		closes = append(closes, b.Close)
	}
	assert.Equal(t, []float64{1, 2, 3}, closes)

	_, ok := s.Next()
	assert.False(t, ok, "Next after end")
	_, ok = s.Peek()
	assert.False(t, ok, "Peek after end")
}

func TestHistoricHandlerAdvance(t *testing.T) {
	q := event.NewQueue()
	h, err := NewHistoricHandler(q, []string{"AAPL", "MSFT"}, map[string][]domain.Bar{
		"AAPL": {bar("AAPL", 2, 50), bar("AAPL", 3, 51), bar("AAPL", 4, 52)},
		"MSFT": {bar("MSFT", 3, 300), bar("MSFT", 5, 305)},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, h.Len())
	ctx := context.Background()

	// Heartbeat 1: MSFT has not traded yet.
	ok, err := h.Advance(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, q.Len())
	ev, _ := q.TryPop()
	assert.Equal(t, event.Market{Time: day(2)}, ev)
	msft, err := h.LatestBars("MSFT", 1)
	require.NoError(t, err)
	assert.Empty(t, msft)

	// Heartbeat 2: both symbols have a bar.
	_, err = h.Advance(ctx)
	require.NoError(t, err)
	msft, _ = h.LatestBars("MSFT", 5)
	require.Len(t, msft, 1)
	assert.Equal(t, 300.0, msft[0].Close)

	// Heartbeat 3: MSFT is forward-filled with zero volume.
	_, err = h.Advance(ctx)
	require.NoError(t, err)
	msft, _ = h.LatestBars("MSFT", 1)
	assert.Equal(t, day(4), msft[0].Timestamp)
	assert.Equal(t, 300.0, msft[0].Close)
	assert.Zero(t, msft[0].Volume)

	// Heartbeat 4: AAPL forward-filled, MSFT real.
	_, err = h.Advance(ctx)
	require.NoError(t, err)
	aapl, _ := h.LatestBars("AAPL", 10)
	require.Len(t, aapl, 4)
	assert.Equal(t, 52.0, aapl[3].Close)
	assert.Equal(t, day(5), aapl[3].Timestamp)

	ok, err = h.Advance(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "Advance after last heartbeat")
	assert.Equal(t, 4, q.Len())
}

func TestHistoricHandlerNoLookAhead(t *testing.T) {
	q := event.NewQueue()
	bars := []domain.Bar{bar("A", 1, 1), bar("A", 2, 2), bar("A", 3, 3), bar("A", 4, 4)}
	h, err := NewHistoricHandler(q, []string{"A"}, map[string][]domain.Bar{"A": bars})
	require.NoError(t, err)

	for i := 1; i <= len(bars); i++ {
		_, err := h.Advance(context.Background())
		require.NoError(t, err)
		ev, ok := q.TryPop()
		require.True(t, ok)
		now := ev.(event.Market).Time

		seen, err := h.LatestBars("A", 100)
		require.NoError(t, err)
		assert.Len(t, seen, i)
		for _, b := range seen {
			assert.False(t, b.Timestamp.After(now), "bar %s visible at %s", b.Timestamp, now)
		}
	}
}

func TestHistoricHandlerErrors(t *testing.T) {
	q := event.NewQueue()
	_, err := NewHistoricHandler(q, []string{"A"}, map[string][]domain.Bar{})
	assert.Error(t, err)
	_, err = NewHistoricHandler(q, []string{"A", "A"}, map[string][]domain.Bar{"A": {bar("A", 1, 1)}})
	assert.Error(t, err)

	h, err := NewHistoricHandler(q, []string{"A"}, map[string][]domain.Bar{"A": {bar("A", 1, 1)}})
	require.NoError(t, err)
	_, err = h.LatestBars("ZZZ", 1)
	assert.True(t, errors.Is(err, ErrUnknownSymbol))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.Advance(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadCSV(t *testing.T) {
	in := `Date,Open,High,Low,Close,Volume,Adj Close
2024-01-02,187.15,188.44,183.89,185.64,82488700,185.40
2024-01-03,184.22,185.88,183.43,184.25,58414500,184.01
`
	bars, err := ReadCSV(strings.NewReader(in), "AAPL")
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "AAPL", bars[0].Symbol)
	assert.Equal(t, day(2), bars[0].Timestamp)
	assert.Equal(t, 185.64, bars[0].Close)
	assert.Equal(t, int64(58414500), bars[1].Volume)

	_, err = ReadCSV(strings.NewReader("datetime,open,close\n"), "AAPL")
	assert.ErrorContains(t, err, "missing column")

	_, err = ReadCSV(strings.NewReader("datetime,open,high,low,close,volume\nyesterday,1,1,1,1,1\n"), "AAPL")
	assert.ErrorContains(t, err, "line 2")
}

func TestLoadCSVDir(t *testing.T) {
	dir := t.TempDir()
	content := "datetime,open,high,low,close,volume\n2024-01-02 16:00:00,1,2,0.5,1.5,100\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SPY.csv"), []byte(content), 0o644))

	got, err := LoadCSVDir(dir, []string{"SPY"})
	require.NoError(t, err)
	require.Len(t, got["SPY"], 1)
	assert.Equal(t, 1.5, got["SPY"][0].Close)

	_, err = LoadCSVDir(dir, []string{"QQQ"})
	assert.Error(t, err)
}

func TestLoadStore(t *testing.T) {
	ps := store.NewParquetStore(t.TempDir())
	ctx := context.Background()
	require.NoError(t, ps.WriteBars(ctx, domain.MarketUS, []domain.Bar{bar("AAPL", 2, 50), bar("AAPL", 3, 51)}))

	got, err := LoadStore(ctx, ps, domain.MarketUS, []string{"AAPL"}, day(1), time.Time{})
	require.NoError(t, err)
	require.Len(t, got["AAPL"], 2)
	assert.Equal(t, 51.0, got["AAPL"][1].Close)
}
