package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meridian/internal/domain"
	"meridian/internal/engine"
	"meridian/internal/event"
	"meridian/internal/live"
	"meridian/internal/portfolio"
	"meridian/internal/store"
)

var t0 = time.Date(2024, 5, 1, 14, 30, 0, 0, time.UTC)

func newMonitor() *live.Monitor {
	m := live.NewMonitor(live.Info{RunID: "run-1", Mode: "live", Strategy: "sma_cross", Symbols: []string{"AAPL"}})
	m.OnHeartbeat(engine.Snapshot{
		Time:      t0,
		State:     engine.StateRunning,
		Stats:     engine.Stats{Heartbeats: 1, Fills: 1},
		Positions: portfolio.Positions{Time: t0, Quantity: map[string]int64{"AAPL": 100}},
		Holdings: portfolio.Holdings{
			Time:  t0,
			Value: map[string]float64{"AAPL": 5000},
			Cash:  94998.7, Commission: 1.3, Total: 99998.7,
		},
	})
	return m
}

func get(t *testing.T, h http.Handler, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestNewServerRequiresMonitor(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)

	s, err := NewServer(ServerConfig{Monitor: newMonitor()})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", s.Addr())
}

func TestLiveEndpoints(t *testing.T) {
	s, err := NewServer(ServerConfig{Monitor: newMonitor()})
	require.NoError(t, err)
	h := s.Handler()

	var status live.Status
	require.Equal(t, http.StatusOK, get(t, h, "/api/v1/status", &status))
	assert.Equal(t, "run-1", status.RunID)
	assert.Equal(t, "RUNNING", status.State)
	assert.Equal(t, 1, status.Stats.Fills)

	var positions struct{ Data []live.Position }
	require.Equal(t, http.StatusOK, get(t, h, "/api/v1/positions", &positions))
	require.Len(t, positions.Data, 1)
	assert.Equal(t, int64(100), positions.Data[0].Quantity)

	var holdings Holdings
	require.Equal(t, http.StatusOK, get(t, h, "/api/v1/holdings", &holdings))
	assert.InDelta(t, 94998.7, holdings.Cash, 1e-9)
	assert.InDelta(t, 5000, holdings.Values["AAPL"], 1e-9)
	assert.InDelta(t, holdings.Cash+holdings.Values["AAPL"], holdings.Total, 1e-9)

	var equity struct{ Data []live.EquityPoint }
	require.Equal(t, http.StatusOK, get(t, h, "/api/v1/equity", &equity))
	require.Len(t, equity.Data, 1)
	assert.True(t, equity.Data[0].Time.Equal(t0))

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz", nil))
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/runs", nil), "no journal configured")
}

func TestRunEndpoints(t *testing.T) {
	journal, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "meridian.db"))
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	ctx := context.Background()
	runID, err := journal.StartRun(ctx, store.Run{Mode: "backtest", Strategy: "buy_and_hold", Symbols: []string{"AAPL"}, InitialCapital: 1000, StartedAt: t0})
	require.NoError(t, err)
	require.NoError(t, journal.RecordEquity(ctx, runID, []store.EquityRow{
		{Time: t0, Cash: 1000, Total: 1000, Growth: 1},
		{Time: t0.AddDate(0, 0, 1), Cash: 1000, Total: 1010, Returns: 0.01, Growth: 1.01},
	}))
	require.NoError(t, journal.FinishRun(ctx, runID, nil))

	s, err := NewServer(ServerConfig{Monitor: newMonitor(), Journal: journal})
	require.NoError(t, err)
	h := s.Handler()

	var runs struct{ Data []store.Run }
	require.Equal(t, http.StatusOK, get(t, h, "/api/v1/runs?limit=5", &runs))
	require.Len(t, runs.Data, 1)
	assert.Equal(t, runID, runs.Data[0].ID)
	assert.Equal(t, store.RunFinished, runs.Data[0].Status)

	var run store.Run
	require.Equal(t, http.StatusOK, get(t, h, "/api/v1/runs/"+runID, &run))
	assert.Equal(t, "buy_and_hold", run.Strategy)

	var equity struct{ Data []store.EquityRow }
	require.Equal(t, http.StatusOK, get(t, h, "/api/v1/runs/"+runID+"/equity", &equity))
	require.Len(t, equity.Data, 2)
	assert.InDelta(t, 1.01, equity.Data[1].Growth, 1e-12)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/runs/nope", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/runs?limit=-1", nil))
}

func TestWebSocketStreamsUpdates(t *testing.T) {
	m := newMonitor()
	s, err := NewServer(ServerConfig{Monitor: m})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx, m)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	order, err := event.NewOrder("AAPL", 100, domain.SideSell)
	require.NoError(t, err)

	// Registration is asynchronous; publish until the client sees it.
	got := make(chan live.Update, 1)
	go func() {
		var u live.Update
		if err := conn.ReadJSON(&u); err == nil {
			got <- u
		}
	}()
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case u := <-got:
			assert.Equal(t, live.UpdateOrder, u.Type)
			require.NotNil(t, u.Order)
			assert.Equal(t, "SELL", u.Order.Side)
			return
		case <-tick.C:
			m.OnOrder(order)
		case <-deadline:
			t.Fatal("no update received over websocket")
		}
	}
}

func TestWebSocketClosedOnShutdown(t *testing.T) {
	m := newMonitor()
	s, err := NewServer(ServerConfig{Monitor: m})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.hub.Run(ctx, m)
		close(stopped)
	}()

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("hub did not stop")
	}

	// The connected client is closed and later connections are turned away.
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) {
				assert.False(t, netErr.Timeout(), "client connection left open")
			}
			break
		}
	}

	late, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		_ = late.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, _, err = late.ReadMessage()
		late.Close()
	}
	assert.Error(t, err)

	// Publishing after shutdown does not block.
	done := make(chan struct{})
	go func() {
		m.OnOrder(event.Order{ID: "o-1", Symbol: "AAPL", Quantity: 1, Side: domain.SideBuy})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("monitor publish blocked after hub shutdown")
	}
}
