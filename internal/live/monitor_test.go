package live

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meridian/internal/domain"
	"meridian/internal/engine"
	"meridian/internal/event"
	"meridian/internal/portfolio"
)

var t0 = time.Date(2024, 5, 1, 14, 30, 0, 0, time.UTC)

func snapshot(at time.Time, qty int64, value, cash float64) engine.Snapshot {
	return engine.Snapshot{
		Time:      at,
		State:     engine.StateRunning,
		Stats:     engine.Stats{Heartbeats: 1},
		Positions: portfolio.Positions{Time: at, Quantity: map[string]int64{"MSFT": 0, "AAPL": qty}},
		Holdings: portfolio.Holdings{
			Time:  at,
			Value: map[string]float64{"MSFT": 0, "AAPL": value},
			Cash:  cash,
			Total: cash + value,
		},
	}
}

func TestMonitorHeartbeat(t *testing.T) {
	m := NewMonitor(Info{RunID: "r1", Mode: "live", Strategy: "sma_cross", Symbols: []string{"AAPL", "MSFT"}})
	m.now = func() time.Time { return t0 }
	assert.Equal(t, "IDLE", m.Status().State)

	m.OnHeartbeat(snapshot(t0, 100, 5000, 94998.7))
	m.OnHeartbeat(snapshot(t0, 100, 5000, 94998.7))
	m.OnHeartbeat(snapshot(t0.Add(time.Minute), 100, 5100, 94998.7))

	s := m.Status()
	assert.Equal(t, "r1", s.RunID)
	assert.Equal(t, "RUNNING", s.State)
	assert.InDelta(t, 100098.7, s.Total, 1e-9)
	assert.Equal(t, t0, s.UpdatedAt)

	pos := m.Positions()
	require.Len(t, pos, 2)
	assert.Equal(t, Position{Symbol: "AAPL", Quantity: 100, Value: 5100}, pos[0])
	assert.Equal(t, "MSFT", pos[1].Symbol)

	eq := m.Equity()
	require.Len(t, eq, 2, "repeated heartbeat time is not a new point")
	assert.InDelta(t, 100098.7, eq[1].Total, 1e-9)

	m.SetState(engine.StateStopped)
	assert.Equal(t, "STOPPED", m.Status().State)
}

func TestMonitorOrdersAndFills(t *testing.T) {
	m := NewMonitor(Info{RunID: "r1"})
	id, ch := m.Subscribe(8)

	o, err := event.NewOrder("AAPL", 100, domain.SideBuy)
	require.NoError(t, err)
	m.OnOrder(o)
	f, err := event.NewFill(o.ID, t0, "AAPL", "SIM", 100, domain.SideBuy, 50, nil)
	require.NoError(t, err)
	m.OnFill(f)
	m.OnFill(f)

	require.Len(t, m.Orders(), 1)
	require.Len(t, m.Fills(), 1)
	assert.Equal(t, 50.0, m.Fills()[0].Price)
	assert.Equal(t, "MARKET", m.Orders()[0].Type)

	u := <-ch
	assert.Equal(t, UpdateOrder, u.Type)
	require.NotNil(t, u.Order)
	u = <-ch
	assert.Equal(t, UpdateFill, u.Type)
	assert.Equal(t, o.ID, u.Fill.OrderID)
	select {
	case extra := <-ch:
		t.Fatalf("duplicate fill published: %+v", extra)
	default:
	}

	m.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)
}

func TestMonitorSlowSubscriberDoesNotBlock(t *testing.T) {
	m := NewMonitor(Info{})
	_, ch := m.Subscribe(1)
	for i := 0; i < 10; i++ {
		m.OnHeartbeat(snapshot(t0.Add(time.Duration(i)*time.Minute), 0, 0, 1000))
	}
	assert.Len(t, ch, 1)
	assert.Len(t, m.Equity(), 10)
}

func TestMonitorBoundsLogs(t *testing.T) {
	m := NewMonitor(Info{})
	for i := 0; i < maxRecent+20; i++ {
		o, err := event.NewOrder("AAPL", int64(i+1), domain.SideBuy)
		require.NoError(t, err)
		m.OnOrder(o)
	}
	orders := m.Orders()
	require.Len(t, orders, maxRecent)
	assert.Equal(t, int64(21), orders[0].Quantity)
	assert.Equal(t, int64(maxRecent+20), orders[maxRecent-1].Quantity)
}
