// Package engine drives the event loop: it advances the data handler one
// heartbeat at a time, drains the event queue through the strategy,
// portfolio and execution handler, and stops on data exhaustion or
// cancellation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"meridian/internal/broker"
	"meridian/internal/event"
	"meridian/internal/market"
	"meridian/internal/portfolio"
	"meridian/internal/strategy"
)

// Mode selects how the engine paces heartbeats.
type Mode string

const (
	ModeBacktest Mode = "backtest"
	ModeLive     Mode = "live"
)

// State is the lifecycle state of a run.
type State string

const (
	StateIdle     State = "IDLE"
	StateRunning  State = "RUNNING"
	StateDraining State = "DRAINING"
	StateStopped  State = "STOPPED"
)

// Config controls the driver loop.
type Config struct {
	Mode Mode
	// Heartbeat is the pause between data pulls in live mode. Backtests
	// never sleep.
	Heartbeat time.Duration
}

// Stats counts what a run processed.
type Stats struct {
	Heartbeats int `json:"heartbeats"`
	Markets    int `json:"markets"`
	Signals    int `json:"signals"`
	Orders     int `json:"orders"`
	Fills      int `json:"fills"`
}

// Snapshot is what observers see after every drained heartbeat.
type Snapshot struct {
	Time      time.Time
	State     State
	Stats     Stats
	Positions portfolio.Positions
	Holdings  portfolio.Holdings
}

// Observer is notified from the engine goroutine. Implementations must not
// block for long; they receive copies and never the portfolio itself.
type Observer interface {
	OnOrder(o event.Order)
	OnFill(f event.Fill)
	OnHeartbeat(s Snapshot)
}

// Engine wires one data handler, strategy, portfolio and execution handler
// around a shared queue. An Engine runs once.
type Engine struct {
	cfg       Config
	data      market.DataHandler
	strategy  strategy.Strategy
	portfolio *portfolio.Portfolio
	exec      broker.ExecutionHandler
	queue     *event.Queue
	observers []Observer
	log       *slog.Logger

	mu    sync.RWMutex
	state State
	stats Stats
}

// NewEngine creates an Engine wired with the given dependencies.
func NewEngine(
	cfg Config,
	data market.DataHandler,
	strat strategy.Strategy,
	pf *portfolio.Portfolio,
	exec broker.ExecutionHandler,
	q *event.Queue,
) (*Engine, error) {
	if data == nil || strat == nil || pf == nil || exec == nil || q == nil {
		return nil, errors.New("engine: missing dependency")
	}
	switch cfg.Mode {
	case ModeBacktest:
	case ModeLive:
		if cfg.Heartbeat <= 0 {
			return nil, fmt.Errorf("engine: live mode needs a positive heartbeat, got %s", cfg.Heartbeat)
		}
	default:
		return nil, fmt.Errorf("engine: unknown mode %q", cfg.Mode)
	}
	return &Engine{
		cfg:       cfg,
		data:      data,
		strategy:  strat,
		portfolio: pf,
		exec:      exec,
		queue:     q,
		state:     StateIdle,
		log:       slog.Default().With("component", "engine", "mode", string(cfg.Mode)),
	}, nil
}

// AddObserver registers o. It must be called before Run.
func (e *Engine) AddObserver(o Observer) {
	e.observers = append(e.observers, o)
}

// State returns the current lifecycle state. Safe for concurrent use.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Stats returns the counters so far. Safe for concurrent use.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// Run drives the loop until the data is exhausted or ctx is cancelled,
// both of which are clean stops. Any component error halts the run and is
// returned.
func (e *Engine) Run(ctx context.Context) (Stats, error) {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return Stats{}, errors.New("engine: already run")
	}
	e.state = StateRunning
	e.mu.Unlock()
	defer e.setState(StateStopped)

	if err := e.strategy.Init(ctx, e.data); err != nil {
		return e.Stats(), fmt.Errorf("init strategy %s: %w", e.strategy.Name(), err)
	}

	e.log.Info("run started", "strategy", e.strategy.Name(), "executor", e.exec.Name(), "symbols", e.data.Symbols())
	for {
		if ctx.Err() != nil {
			return e.stop("cancelled")
		}

		more, err := e.data.Advance(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return e.stop("cancelled")
			}
			return e.Stats(), fmt.Errorf("advance data: %w", err)
		}
		if !more {
			return e.stop("data exhausted")
		}
		e.count(func(s *Stats) { s.Heartbeats++ })

		e.setState(StateDraining)
		if err := e.drain(ctx); err != nil {
			e.log.Error("run halted", "error", err)
			return e.Stats(), err
		}
		e.setState(StateRunning)
		e.notifyHeartbeat()

		if e.cfg.Mode == ModeLive {
			select {
			case <-ctx.Done():
				return e.stop("cancelled")
			case <-time.After(e.cfg.Heartbeat):
			}
		}
	}
}

// drain dispatches queued events until the queue is empty.
func (e *Engine) drain(ctx context.Context) error {
	for {
		ev, ok := e.queue.TryPop()
		if !ok {
			return nil
		}
		if err := e.dispatch(ctx, ev); err != nil {
			return fmt.Errorf("handle %s event: %w", ev.Kind(), err)
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, ev event.Event) error {
	switch ev := ev.(type) {
	case event.Market:
		e.count(func(s *Stats) { s.Markets++ })
		signals, err := e.strategy.OnMarket(ctx, ev)
		if err != nil {
			return fmt.Errorf("strategy %s: %w", e.strategy.Name(), err)
		}
		for _, sig := range signals {
			e.queue.Push(sig)
		}
		return e.portfolio.OnMarket(ev)

	case event.Signal:
		e.count(func(s *Stats) { s.Signals++ })
		return e.portfolio.OnSignal(ev)

	case event.Order:
		e.count(func(s *Stats) { s.Orders++ })
		for _, o := range e.observers {
			o.OnOrder(ev)
		}
		return e.exec.Execute(ctx, ev)

	case event.Fill:
		e.count(func(s *Stats) { s.Fills++ })
		if err := e.portfolio.OnFill(ev); err != nil {
			return err
		}
		for _, o := range e.observers {
			o.OnFill(ev)
		}
		return nil
	}
	return fmt.Errorf("unexpected event %T", ev)
}

func (e *Engine) notifyHeartbeat() {
	if len(e.observers) == 0 {
		return
	}
	h := e.portfolio.CurrentHoldings()
	snap := Snapshot{
		Time:      h.Time,
		State:     e.State(),
		Stats:     e.Stats(),
		Positions: e.portfolio.CurrentPositions(),
		Holdings:  h,
	}
	for _, o := range e.observers {
		o.OnHeartbeat(snap)
	}
}

func (e *Engine) stop(reason string) (Stats, error) {
	e.setState(StateStopped)
	stats := e.Stats()
	e.log.Info("run stopped",
		"reason", reason,
		"heartbeats", stats.Heartbeats,
		"signals", stats.Signals,
		"orders", stats.Orders,
		"fills", stats.Fills,
	)
	return stats, nil
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) count(f func(*Stats)) {
	e.mu.Lock()
	f(&e.stats)
	e.mu.Unlock()
}
