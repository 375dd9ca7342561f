package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"meridian/internal/domain"
	"meridian/internal/event"
	"meridian/internal/util"
)

// AlpacaVenue is the venue stamped on fills reported by Alpaca.
const AlpacaVenue = "ALPACA"

// TradingClient is the slice of the Alpaca trading client used by the
// execution handler.
type TradingClient interface {
	PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error)
	CancelOrder(orderID string) error
	StreamTradeUpdatesInBackground(ctx context.Context, handler func(alpaca.TradeUpdate))
}

// Compile-time interface checks.
var (
	_ ExecutionHandler = (*Alpaca)(nil)
	_ TradingClient    = (*alpaca.Client)(nil)
)

// Trade update kinds handled by the dispatch table. Anything else is logged
// and ignored.
const (
	updateNew         = "new"
	updateFill        = "fill"
	updatePartialFill = "partial_fill"
	updateCanceled    = "canceled"
	updateRejected    = "rejected"
	updateExpired     = "expired"
)

// AlpacaConfig configures the Alpaca execution handler.
type AlpacaConfig struct {
	// OrderTimeout is how long an order may stay unfilled before Sweep
	// cancels it. Zero disables the sweep.
	OrderTimeout time.Duration
	// MaxAttempts bounds submission retries. Zero means 3.
	MaxAttempts int
	// RetryDelay is the first backoff between attempts. Zero means 500ms.
	RetryDelay time.Duration
}

// pendingOrder is an order submitted to the venue that has not reached a
// terminal state.
type pendingOrder struct {
	order     event.Order
	venueID   string
	submitted time.Time
	filled    int64 // cumulative quantity from partial fills
}

// Alpaca submits orders through the Alpaca trading API and converts trade
// updates into fills. Exactly one Fill is pushed per order ID no matter how
// many times the venue repeats a notification. Updates for orders it did not
// submit, such as manual trades on the same account, are ignored.
type Alpaca struct {
	client TradingClient
	queue  *event.Queue
	cfg    AlpacaConfig
	now    func() time.Time
	log    *slog.Logger

	handlers map[string]func(alpaca.TradeUpdate)

	mu        sync.Mutex
	submitted map[string]struct{}      // every order ID this handler sent
	pending   map[string]*pendingOrder // by order ID
	emitted   map[string]struct{}      // order IDs that already produced a fill
}

// NewAlpaca creates an Alpaca execution handler pushing fills onto q.
func NewAlpaca(client TradingClient, q *event.Queue, cfg AlpacaConfig) *Alpaca {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	a := &Alpaca{
		client:  client,
		queue:   q,
		cfg:     cfg,
		now:     time.Now,
		log:     slog.Default().With("component", "alpaca-exec"),
		submitted: make(map[string]struct{}),
		pending:   make(map[string]*pendingOrder),
		emitted:   make(map[string]struct{}),
	}
	a.handlers = map[string]func(alpaca.TradeUpdate){
		updateNew:         a.onNew,
		updateFill:        a.onFill,
		updatePartialFill: a.onPartialFill,
		updateCanceled:    a.onClosed,
		updateRejected:    a.onClosed,
		updateExpired:     a.onClosed,
	}
	return a
}

// Name returns "alpaca".
func (a *Alpaca) Name() string {
	return "alpaca"
}

// Start subscribes to trade updates. The stream runs in the background
// until ctx is cancelled.
func (a *Alpaca) Start(ctx context.Context) {
	a.client.StreamTradeUpdatesInBackground(ctx, a.HandleTradeUpdate)
}

// Execute translates order into an Alpaca order request and submits it.
// Transient failures are retried; a rejected or failed submission is logged
// and produces no fill.
func (a *Alpaca) Execute(ctx context.Context, order event.Order) error {
	req, err := placeOrderRequest(order)
	if err != nil {
		return err
	}

	// Registered before submission so a stream update racing the response
	// is still recognised. Sweep never removes it, so late fills land.
	a.mu.Lock()
	a.submitted[order.ID] = struct{}{}
	a.mu.Unlock()

	var placed *alpaca.Order
	err = util.Retry(ctx, a.cfg.MaxAttempts, a.cfg.RetryDelay, func() error {
		var err error
		placed, err = a.client.PlaceOrder(req)
		if isRejection(err) {
			return util.Permanent(err)
		}
		return err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		a.log.Error("order submission failed",
			"order", order.ID, "symbol", order.Symbol, "side", order.Side, "qty", order.Quantity, "error", err)
		return nil
	}

	a.mu.Lock()
	if _, done := a.emitted[order.ID]; !done {
		a.pending[order.ID] = &pendingOrder{
			order:     order,
			venueID:   placed.ID,
			submitted: a.now(),
		}
	}
	a.mu.Unlock()

	a.log.Info("order submitted",
		"order", order.ID, "venue_id", placed.ID, "symbol", order.Symbol, "side", order.Side, "qty", order.Quantity)
	return nil
}

// HandleTradeUpdate routes one trade update to its typed handler. It is
// called from the stream goroutine.
func (a *Alpaca) HandleTradeUpdate(tu alpaca.TradeUpdate) {
	h, ok := a.handlers[tu.Event]
	if !ok {
		a.log.Debug("trade update ignored", "event", tu.Event, "order", tu.Order.ClientOrderID)
		return
	}
	h(tu)
}

// Sweep cancels every pending order older than the configured timeout and
// forgets it. A cancelled order produces no fill unless the venue reports
// one before the cancel lands. It returns the number of orders swept.
func (a *Alpaca) Sweep(_ context.Context, now time.Time) int {
	if a.cfg.OrderTimeout <= 0 {
		return 0
	}

	a.mu.Lock()
	var stale []*pendingOrder
	for id, p := range a.pending {
		if now.Sub(p.submitted) >= a.cfg.OrderTimeout {
			stale = append(stale, p)
			delete(a.pending, id)
		}
	}
	a.mu.Unlock()

	for _, p := range stale {
		if err := a.client.CancelOrder(p.venueID); err != nil {
			a.log.Warn("cancel of timed-out order failed",
				"order", p.order.ID, "venue_id", p.venueID, "error", err)
			continue
		}
		a.log.Info("timed-out order cancelled",
			"order", p.order.ID, "venue_id", p.venueID, "age", now.Sub(p.submitted))
	}
	return len(stale)
}

// Pending returns the number of orders awaiting a terminal update.
func (a *Alpaca) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// ---------------------------------------------------------------------------
// Trade update handlers
// ---------------------------------------------------------------------------

func (a *Alpaca) onNew(tu alpaca.TradeUpdate) {
	a.log.Debug("order accepted", "order", tu.Order.ClientOrderID, "venue_id", tu.Order.ID)
}

func (a *Alpaca) onPartialFill(tu alpaca.TradeUpdate) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.pending[tu.Order.ClientOrderID]; ok {
		p.filled = tu.Order.FilledQty.IntPart()
	}
	a.log.Info("partial fill", "order", tu.Order.ClientOrderID, "filled", tu.Order.FilledQty.String())
}

// onFill emits the single fill for an order using the venue's cumulative
// filled quantity and average price.
func (a *Alpaca) onFill(tu alpaca.TradeUpdate) {
	a.emit(tu, "fill")
}

// onClosed handles terminal updates without a full fill. Any quantity the
// venue did fill before closing the order is still reported once.
func (a *Alpaca) onClosed(tu alpaca.TradeUpdate) {
	if tu.Order.FilledQty.IsPositive() {
		a.emit(tu, tu.Event)
		return
	}
	a.mu.Lock()
	delete(a.pending, tu.Order.ClientOrderID)
	a.mu.Unlock()
	a.log.Info("order closed without fill", "order", tu.Order.ClientOrderID, "event", tu.Event)
}

func (a *Alpaca) emit(tu alpaca.TradeUpdate, reason string) {
	orderID := tu.Order.ClientOrderID

	a.mu.Lock()
	if _, ours := a.submitted[orderID]; !ours {
		a.mu.Unlock()
		a.log.Warn("fill for unknown order ignored",
			"order", orderID, "venue_id", tu.Order.ID, "symbol", tu.Order.Symbol, "event", tu.Event)
		return
	}
	if _, dup := a.emitted[orderID]; dup {
		a.mu.Unlock()
		a.log.Debug("duplicate fill suppressed", "order", orderID, "event", tu.Event)
		return
	}
	fill, err := fillFromUpdate(tu)
	if err != nil {
		a.mu.Unlock()
		a.log.Error("unusable fill update", "order", orderID, "event", tu.Event, "error", err)
		return
	}
	a.emitted[orderID] = struct{}{}
	delete(a.pending, orderID)
	a.mu.Unlock()

	a.queue.Push(fill)
	a.log.Info("fill received",
		"order", orderID, "reason", reason, "symbol", fill.Symbol, "side", fill.Side,
		"qty", fill.Quantity, "price", fill.FillPrice)
}

// ---------------------------------------------------------------------------
// Translation
// ---------------------------------------------------------------------------

func placeOrderRequest(order event.Order) (alpaca.PlaceOrderRequest, error) {
	if order.Quantity <= 0 {
		return alpaca.PlaceOrderRequest{}, fmt.Errorf("alpaca: order %s has quantity %d", order.ID, order.Quantity)
	}
	qty := decimal.NewFromInt(order.Quantity)
	req := alpaca.PlaceOrderRequest{
		Symbol:        order.Symbol,
		Qty:           &qty,
		Side:          alpaca.Buy,
		Type:          alpaca.Market,
		TimeInForce:   alpaca.Day,
		ClientOrderID: order.ID,
	}
	if order.Side == domain.SideSell {
		req.Side = alpaca.Sell
	}
	if order.Type == domain.OrderTypeLimit {
		limit := decimal.NewFromFloat(order.LimitPrice)
		req.Type = alpaca.Limit
		req.LimitPrice = &limit
	}
	return req, nil
}

func fillFromUpdate(tu alpaca.TradeUpdate) (event.Fill, error) {
	o := tu.Order
	if o.ClientOrderID == "" {
		return event.Fill{}, errors.New("missing client order id")
	}

	qty := o.FilledQty.IntPart()
	var price float64
	switch {
	case o.FilledAvgPrice != nil:
		price = o.FilledAvgPrice.InexactFloat64()
	case tu.Price != nil:
		price = tu.Price.InexactFloat64()
	default:
		return event.Fill{}, errors.New("no fill price")
	}

	side := domain.SideBuy
	if o.Side == alpaca.Sell {
		side = domain.SideSell
	}

	at := tu.At
	if tu.Timestamp != nil {
		at = *tu.Timestamp
	}
	return event.NewFill(o.ClientOrderID, at, strings.ToUpper(o.Symbol), AlpacaVenue, qty, side, price, nil)
}

// isRejection reports a 4xx API error, which a retry cannot fix.
func isRejection(err error) bool {
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusBadRequest && apiErr.StatusCode < http.StatusInternalServerError
	}
	return false
}
