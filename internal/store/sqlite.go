package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"meridian/internal/domain"
	"meridian/internal/event"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ Journal = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	mode            TEXT NOT NULL,
	strategy        TEXT NOT NULL,
	symbols         TEXT NOT NULL,
	initial_capital REAL NOT NULL,
	started_at      TEXT NOT NULL,
	finished_at     TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	error           TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS orders (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	symbol      TEXT NOT NULL,
	type        TEXT NOT NULL,
	quantity    INTEGER NOT NULL,
	side        TEXT NOT NULL,
	limit_price REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS fills (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	order_id   TEXT NOT NULL,
	time       TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	venue      TEXT NOT NULL,
	quantity   INTEGER NOT NULL,
	side       TEXT NOT NULL,
	price      REAL NOT NULL,
	commission REAL NOT NULL,
	PRIMARY KEY (run_id, order_id)
);

CREATE TABLE IF NOT EXISTS equity (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	seq        INTEGER NOT NULL,
	time       TEXT NOT NULL,
	cash       REAL NOT NULL,
	commission REAL NOT NULL,
	total      REAL NOT NULL,
	returns    REAL NOT NULL,
	growth     REAL NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_orders_run ON orders(run_id);
`

// SQLiteStore implements Journal backed by a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and applies
// the journal schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// A single connection serialises writers and keeps :memory: databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

// StartRun inserts run with a fresh UUID and status running.
func (s *SQLiteStore) StartRun(ctx context.Context, run Run) (string, error) {
	runID := uuid.NewString()
	started := run.StartedAt
	if started.IsZero() {
		started = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, mode, strategy, symbols, initial_capital, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, run.Mode, run.Strategy, strings.Join(run.Symbols, ","),
		run.InitialCapital, formatTime(started), RunRunning,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return runID, nil
}

// FinishRun stamps finished_at and the final status.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, runErr error) error {
	status, msg := RunFinished, ""
	if runErr != nil {
		status, msg = RunFailed, runErr.Error()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE id = ?`,
		formatTime(s.now()), status, msg, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// GetRun returns a single run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, mode, strategy, symbols, initial_capital, started_at, finished_at, status, error
		FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %s: %w", runID, ErrRunNotFound)
	}
	return run, err
}

// ListRuns returns up to limit runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, strategy, symbols, initial_capital, started_at, finished_at, status, error
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run              Run
		symbols          string
		started, finished string
	)
	if err := sc.Scan(&run.ID, &run.Mode, &run.Strategy, &symbols, &run.InitialCapital,
		&started, &finished, &run.Status, &run.Error); err != nil {
		return Run{}, err
	}
	if symbols != "" {
		run.Symbols = strings.Split(symbols, ",")
	}
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished)
	return run, nil
}

// ---------------------------------------------------------------------------
// Orders and fills
// ---------------------------------------------------------------------------

// RecordOrder inserts an order; recording the same order twice is a no-op.
func (s *SQLiteStore) RecordOrder(ctx context.Context, runID string, o event.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO orders (id, run_id, symbol, type, quantity, side, limit_price)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ID, runID, o.Symbol, string(o.Type), o.Quantity, string(o.Side), o.LimitPrice,
	)
	if err != nil {
		return fmt.Errorf("record order %s: %w", o.ID, err)
	}
	return nil
}

// RecordFill inserts a fill; a second fill for the same order is ignored.
func (s *SQLiteStore) RecordFill(ctx context.Context, runID string, f event.Fill) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO fills (run_id, order_id, time, symbol, venue, quantity, side, price, commission)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, f.OrderID, formatTime(f.Time), f.Symbol, f.Venue, f.Quantity, string(f.Side),
		f.FillPrice, f.Commission,
	)
	if err != nil {
		return fmt.Errorf("record fill %s: %w", f.OrderID, err)
	}
	return nil
}

// ListFills returns the run's fills in time order.
func (s *SQLiteStore) ListFills(ctx context.Context, runID string) ([]event.Fill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, time, symbol, venue, quantity, side, price, commission
		FROM fills WHERE run_id = ? ORDER BY time, order_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list fills: %w", err)
	}
	defer rows.Close()

	var fills []event.Fill
	for rows.Next() {
		var (
			f    event.Fill
			ts   string
			side string
		)
		if err := rows.Scan(&f.OrderID, &ts, &f.Symbol, &f.Venue, &f.Quantity, &side,
			&f.FillPrice, &f.Commission); err != nil {
			return nil, err
		}
		f.Time = parseTime(ts)
		f.Side = domain.Side(side)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// ---------------------------------------------------------------------------
// Equity
// ---------------------------------------------------------------------------

// RecordEquity replaces the run's equity curve in one transaction.
func (s *SQLiteStore) RecordEquity(ctx context.Context, runID string, curve []EquityRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin equity tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM equity WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("clear equity: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO equity (run_id, seq, time, cash, commission, total, returns, growth)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare equity insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range curve {
		if _, err := stmt.ExecContext(ctx, runID, i, formatTime(r.Time), r.Cash, r.Commission,
			r.Total, r.Returns, r.Growth); err != nil {
			return fmt.Errorf("insert equity row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// ListEquity returns the run's equity curve in order.
func (s *SQLiteStore) ListEquity(ctx context.Context, runID string) ([]EquityRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT time, cash, commission, total, returns, growth
		FROM equity WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("list equity: %w", err)
	}
	defer rows.Close()

	var curve []EquityRow
	for rows.Next() {
		var (
			r  EquityRow
			ts string
		)
		if err := rows.Scan(&ts, &r.Cash, &r.Commission, &r.Total, &r.Returns, &r.Growth); err != nil {
			return nil, err
		}
		r.Time = parseTime(ts)
		curve = append(curve, r)
	}
	return curve, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
