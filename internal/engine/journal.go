package engine

import (
	"context"
	"log/slog"

	"meridian/internal/event"
	"meridian/internal/portfolio"
	"meridian/internal/store"
)

// Compile-time interface check.
var _ Observer = (*JournalRecorder)(nil)

// JournalRecorder persists orders and fills of one run as they happen.
// Journal failures are logged and never halt trading.
type JournalRecorder struct {
	ctx     context.Context
	journal store.Journal
	runID   string
	log     *slog.Logger
}

// NewJournalRecorder creates a recorder writing to runID in journal.
func NewJournalRecorder(ctx context.Context, journal store.Journal, runID string) *JournalRecorder {
	return &JournalRecorder{
		ctx:     ctx,
		journal: journal,
		runID:   runID,
		log:     slog.Default().With("component", "journal", "run", runID),
	}
}

func (r *JournalRecorder) OnOrder(o event.Order) {
	if err := r.journal.RecordOrder(r.ctx, r.runID, o); err != nil {
		r.log.Warn("record order failed", "order", o.ID, "error", err)
	}
}

func (r *JournalRecorder) OnFill(f event.Fill) {
	if err := r.journal.RecordFill(r.ctx, r.runID, f); err != nil {
		r.log.Warn("record fill failed", "order", f.OrderID, "error", err)
	}
}

func (r *JournalRecorder) OnHeartbeat(Snapshot) {}

// EquityRows converts an equity curve to journal rows.
func EquityRows(curve []portfolio.EquityPoint) []store.EquityRow {
	rows := make([]store.EquityRow, len(curve))
	for i, pt := range curve {
		rows[i] = store.EquityRow{
			Time:       pt.Time,
			Cash:       pt.Cash,
			Commission: pt.Commission,
			Total:      pt.Total,
			Returns:    pt.Returns,
			Growth:     pt.Growth,
		}
	}
	return rows
}
