// Package store defines storage interfaces for historical bars and for the
// run journal, with Parquet and SQLite implementations.
package store

import (
	"context"
	"errors"
	"time"

	"meridian/internal/domain"
	"meridian/internal/event"
)

// ErrRunNotFound is returned when a journal lookup names an unknown run.
var ErrRunNotFound = errors.New("run not found")

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars for market, merging with any bars
	// already stored for the same symbol and timestamp.
	WriteBars(ctx context.Context, market domain.Market, bars []domain.Bar) error

	// ReadBars returns bars for symbol in market within [start, end], sorted
	// by timestamp.
	ReadBars(ctx context.Context, market domain.Market, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in market.
	ListSymbols(ctx context.Context, market domain.Market) ([]string, error)
}

// Run describes one backtest or live session.
type Run struct {
	ID             string    `json:"id"`
	Mode           string    `json:"mode"`
	Strategy       string    `json:"strategy"`
	Symbols        []string  `json:"symbols"`
	InitialCapital float64   `json:"initial_capital"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
}

// Run statuses.
const (
	RunRunning  = "running"
	RunFinished = "finished"
	RunFailed   = "failed"
)

// EquityRow is one point of a run's equity curve.
type EquityRow struct {
	Time       time.Time `json:"time"`
	Cash       float64   `json:"cash"`
	Commission float64   `json:"commission"`
	Total      float64   `json:"total"`
	Returns    float64   `json:"returns"`
	Growth     float64   `json:"growth"`
}

// Journal records what happened during a run.
type Journal interface {
	// StartRun inserts a new run and returns its generated ID.
	StartRun(ctx context.Context, run Run) (string, error)

	// FinishRun marks the run finished, or failed when runErr is non-nil.
	FinishRun(ctx context.Context, runID string, runErr error) error

	RecordOrder(ctx context.Context, runID string, o event.Order) error
	RecordFill(ctx context.Context, runID string, f event.Fill) error

	// RecordEquity replaces the stored equity curve of the run.
	RecordEquity(ctx context.Context, runID string, rows []EquityRow) error

	GetRun(ctx context.Context, runID string) (Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	ListFills(ctx context.Context, runID string) ([]event.Fill, error)
	ListEquity(ctx context.Context, runID string) ([]EquityRow, error)
}
