// Package live keeps an in-memory view of a running engine for the HTTP API,
// with pub/sub for websocket streaming. The engine publishes copies into the
// Monitor; readers never touch the portfolio.
package live

import (
	"sort"
	"sync"
	"time"

	"meridian/internal/engine"
	"meridian/internal/event"
)

// maxRecent bounds the order and fill logs kept for the API.
const maxRecent = 500

// Info describes the run being monitored.
type Info struct {
	RunID    string   `json:"run_id"`
	Mode     string   `json:"mode"`
	Strategy string   `json:"strategy"`
	Symbols  []string `json:"symbols"`
}

// Status is the headline state of the run.
type Status struct {
	Info
	State      string       `json:"state"`
	Stats      engine.Stats `json:"stats"`
	Time       time.Time    `json:"time"`
	Cash       float64      `json:"cash"`
	Commission float64      `json:"commission"`
	Total      float64      `json:"total"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Position is one row of the positions view.
type Position struct {
	Symbol   string  `json:"symbol"`
	Quantity int64   `json:"quantity"`
	Value    float64 `json:"value"`
}

// EquityPoint is one heartbeat's total equity.
type EquityPoint struct {
	Time  time.Time `json:"time"`
	Total float64   `json:"total"`
}

// Order is the API view of a submitted order.
type Order struct {
	ID         string  `json:"id"`
	Symbol     string  `json:"symbol"`
	Type       string  `json:"type"`
	Quantity   int64   `json:"quantity"`
	Side       string  `json:"side"`
	LimitPrice float64 `json:"limit_price,omitempty"`
}

// Fill is the API view of an applied fill.
type Fill struct {
	OrderID    string    `json:"order_id"`
	Time       time.Time `json:"time"`
	Symbol     string    `json:"symbol"`
	Venue      string    `json:"venue"`
	Quantity   int64     `json:"quantity"`
	Side       string    `json:"side"`
	Price      float64   `json:"price"`
	Commission float64   `json:"commission"`
}

// Update kinds.
const (
	UpdateHeartbeat = "heartbeat"
	UpdateOrder     = "order"
	UpdateFill      = "fill"
)

// Update is pushed to subscribers on every change.
type Update struct {
	Type      string     `json:"type"`
	Status    *Status    `json:"status,omitempty"`
	Positions []Position `json:"positions,omitempty"`
	Order     *Order     `json:"order,omitempty"`
	Fill      *Fill      `json:"fill,omitempty"`
}

// Compile-time interface check.
var _ engine.Observer = (*Monitor)(nil)

// Monitor is an engine.Observer holding the latest published state.
type Monitor struct {
	mu        sync.RWMutex
	status    Status
	positions []Position
	equity    []EquityPoint
	orders    []Order
	fills     []Fill
	seenFills map[string]bool // by order ID
	now       func() time.Time

	subsMu    sync.Mutex
	nextSubID int
	subs      map[int]chan Update
}

// NewMonitor creates a Monitor for the run described by info.
func NewMonitor(info Info) *Monitor {
	return &Monitor{
		status:    Status{Info: info, State: string(engine.StateIdle)},
		seenFills: make(map[string]bool),
		now:       time.Now,
		subs:      make(map[int]chan Update),
	}
}

// OnOrder records a submitted order.
func (m *Monitor) OnOrder(o event.Order) {
	v := Order{
		ID:         o.ID,
		Symbol:     o.Symbol,
		Type:       string(o.Type),
		Quantity:   o.Quantity,
		Side:       string(o.Side),
		LimitPrice: o.LimitPrice,
	}
	m.mu.Lock()
	m.orders = appendBounded(m.orders, v)
	m.mu.Unlock()
	m.publish(Update{Type: UpdateOrder, Order: &v})
}

// OnFill records an applied fill. A repeated order ID is ignored.
func (m *Monitor) OnFill(f event.Fill) {
	v := Fill{
		OrderID:    f.OrderID,
		Time:       f.Time,
		Symbol:     f.Symbol,
		Venue:      f.Venue,
		Quantity:   f.Quantity,
		Side:       string(f.Side),
		Price:      f.FillPrice,
		Commission: f.Commission,
	}
	m.mu.Lock()
	if m.seenFills[f.OrderID] {
		m.mu.Unlock()
		return
	}
	m.seenFills[f.OrderID] = true
	m.fills = appendBounded(m.fills, v)
	m.mu.Unlock()
	m.publish(Update{Type: UpdateFill, Fill: &v})
}

// OnHeartbeat replaces the status and positions with s.
func (m *Monitor) OnHeartbeat(s engine.Snapshot) {
	symbols := make([]string, 0, len(s.Positions.Quantity))
	for sym := range s.Positions.Quantity {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	positions := make([]Position, len(symbols))
	for i, sym := range symbols {
		positions[i] = Position{Symbol: sym, Quantity: s.Positions.Quantity[sym], Value: s.Holdings.Value[sym]}
	}

	m.mu.Lock()
	m.status.State = string(s.State)
	m.status.Stats = s.Stats
	m.status.Time = s.Time
	m.status.Cash = s.Holdings.Cash
	m.status.Commission = s.Holdings.Commission
	m.status.Total = s.Holdings.Total
	m.status.UpdatedAt = m.now()
	m.positions = positions
	if n := len(m.equity); n == 0 || !m.equity[n-1].Time.Equal(s.Time) {
		m.equity = append(m.equity, EquityPoint{Time: s.Time, Total: s.Holdings.Total})
	}
	status := m.status
	m.mu.Unlock()

	m.publish(Update{Type: UpdateHeartbeat, Status: &status, Positions: positions})
}

// SetState records a lifecycle change outside a heartbeat, such as the
// final STOPPED.
func (m *Monitor) SetState(state engine.State) {
	m.mu.Lock()
	m.status.State = string(state)
	m.status.UpdatedAt = m.now()
	status := m.status
	m.mu.Unlock()
	m.publish(Update{Type: UpdateHeartbeat, Status: &status})
}

// Status returns the latest status.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.status
	s.Symbols = append([]string(nil), s.Symbols...)
	return s
}

// Positions returns a copy of the latest positions.
func (m *Monitor) Positions() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Position(nil), m.positions...)
}

// Equity returns a copy of the equity points published so far.
func (m *Monitor) Equity() []EquityPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]EquityPoint(nil), m.equity...)
}

// Orders returns the most recent orders, oldest first.
func (m *Monitor) Orders() []Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Order(nil), m.orders...)
}

// Fills returns the most recent fills, oldest first.
func (m *Monitor) Fills() []Fill {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Fill(nil), m.fills...)
}

// Subscribe creates a new subscription channel for updates.
func (m *Monitor) Subscribe(bufSize int) (id int, ch <-chan Update) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	id = m.nextSubID
	m.nextSubID++
	c := make(chan Update, bufSize)
	m.subs[id] = c
	return id, c
}

// Unsubscribe removes a subscription and closes its channel.
func (m *Monitor) Unsubscribe(id int) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if ch, ok := m.subs[id]; ok {
		close(ch)
		delete(m.subs, id)
	}
}

func (m *Monitor) publish(u Update) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- u:
		default:
			// Slow subscriber, drop update.
		}
	}
}

func appendBounded[T any](s []T, v T) []T {
	s = append(s, v)
	if len(s) > maxRecent {
		s = append(s[:0], s[len(s)-maxRecent:]...)
	}
	return s
}
