package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"meridian/internal/domain"
	"meridian/internal/event"
)

type mockBarsClient struct {
	mock.Mock
}

func (m *mockBarsClient) GetLatestBars(symbols []string, req marketdata.GetLatestBarRequest) (map[string]marketdata.Bar, error) {
	args := m.Called(symbols, req)
	bars, _ := args.Get(0).(map[string]marketdata.Bar)
	return bars, args.Error(1)
}

type fixedHours bool

func (f fixedHours) IsMarketOpen(time.Time) bool { return bool(f) }

func minute(m int) time.Time {
	return time.Date(2024, 1, 2, 15, m, 0, 0, time.UTC)
}

func TestAlpacaHandlerKeepsOnlyNewerBars(t *testing.T) {
	client := &mockBarsClient{}
	q := event.NewQueue()
	h, err := NewAlpacaHandler(client, q, AlpacaHandlerConfig{Symbols: []string{"AAPL", "MSFT"}})
	require.NoError(t, err)
	ctx := context.Background()

	client.On("GetLatestBars", []string{"AAPL", "MSFT"}, mock.Anything).Return(map[string]marketdata.Bar{
		"AAPL": {Timestamp: minute(30), Close: 185},
		"MSFT": {Timestamp: minute(30), Close: 370, Volume: 10},
	}, nil).Once()
	ok, err := h.Advance(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, q.Len())

	// Same bars again: nothing new, no Market event.
	client.On("GetLatestBars", mock.Anything, mock.Anything).Return(map[string]marketdata.Bar{
		"AAPL": {Timestamp: minute(30), Close: 185},
		"MSFT": {Timestamp: minute(30), Close: 370},
	}, nil).Once()
	_, err = h.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, q.Len())

	client.On("GetLatestBars", mock.Anything, mock.Anything).Return(map[string]marketdata.Bar{
		"AAPL": {Timestamp: minute(31), Close: 186},
	}, nil).Once()
	_, err = h.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, q.Len())

	aapl, err := h.LatestBars("AAPL", 5)
	require.NoError(t, err)
	require.Len(t, aapl, 2)
	assert.Equal(t, 186.0, aapl[1].Close)
	msft, _ := h.LatestBars("MSFT", 5)
	assert.Len(t, msft, 1)
	assert.Equal(t, int64(10), msft[0].Volume)

	client.AssertExpectations(t)
}

func TestAlpacaHandlerSkipsClosedMarket(t *testing.T) {
	client := &mockBarsClient{}
	q := event.NewQueue()
	h, err := NewAlpacaHandler(client, q, AlpacaHandlerConfig{Symbols: []string{"AAPL"}, Hours: fixedHours(false)})
	require.NoError(t, err)

	ok, err := h.Advance(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, q.Len())
	client.AssertNotCalled(t, "GetLatestBars", mock.Anything, mock.Anything)
}

func TestAlpacaHandlerSeedAndErrors(t *testing.T) {
	client := &mockBarsClient{}
	q := event.NewQueue()
	h, err := NewAlpacaHandler(client, q, AlpacaHandlerConfig{Symbols: []string{"AAPL"}})
	require.NoError(t, err)

	h.Seed(map[string][]domain.Bar{
		"AAPL": {bar("AAPL", 3, 3), bar("AAPL", 2, 2)},
		"XYZ":  {bar("XYZ", 2, 9)},
	})
	seeded, err := h.LatestBars("AAPL", 10)
	require.NoError(t, err)
	require.Len(t, seeded, 2)
	assert.Equal(t, 3.0, seeded[1].Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.Advance(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	down := errors.New("503")
	client.On("GetLatestBars", mock.Anything, mock.Anything).Return(nil, down)
	tctx, tcancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer tcancel()
	_, err = h.Advance(tctx)
	assert.Error(t, err)
}
