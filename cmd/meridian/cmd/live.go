package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"meridian/internal/api"
	"meridian/internal/broker"
	"meridian/internal/config"
	"meridian/internal/domain"
	"meridian/internal/engine"
	"meridian/internal/event"
	"meridian/internal/live"
	"meridian/internal/market"
	"meridian/internal/store"
	"meridian/internal/util"
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Trade a strategy through Alpaca and serve the monitor API",
	Long: `Live polls the latest Alpaca bars every backtest.heartbeat during market
hours, submits orders through the Alpaca trading API and applies fills from
the trade-update stream. Orders unfilled after backtest.order_timeout are
cancelled. The monitor API and websocket stream listen on server.host:port.

Bars already in the Parquet store seed the strategy's lookback.`,
	RunE: runLive,
}

var liveNoServer bool

func init() {
	rootCmd.AddCommand(liveCmd)

	liveCmd.Flags().BoolVar(&liveNoServer, "no-server", false, "do not start the monitor API")
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := requireAlpacaKeys(cfg); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	q := event.NewQueue()
	cal := util.NewTradingCalendar(domain.MarketUS)
	data, err := market.NewAlpacaHandler(newMarketDataClient(cfg), q, market.AlpacaHandlerConfig{
		Symbols: cfg.Backtest.Symbols,
		Feed:    cfg.Alpaca.Feed,
		Limiter: newLimiter(cfg.Gather.USDaily.RateLimitPerMin),
		Hours:   cal,
	})
	if err != nil {
		return err
	}
	seedHistory(ctx, cfg, data)

	strat, err := newStrategy(cfg)
	if err != nil {
		return err
	}
	pf, err := newPortfolio(cfg, data, q, time.Now().UTC())
	if err != nil {
		return err
	}
	exec := broker.NewAlpaca(newTradingClient(cfg), q, broker.AlpacaConfig{OrderTimeout: cfg.Backtest.OrderTimeout})
	eng, err := engine.NewEngine(engine.Config{Mode: engine.ModeLive, Heartbeat: cfg.Backtest.Heartbeat}, data, strat, pf, exec, q)
	if err != nil {
		return err
	}

	journal, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer journal.Close()
	runID, err := journal.StartRun(ctx, store.Run{
		Mode:           string(engine.ModeLive),
		Strategy:       strat.Name(),
		Symbols:        cfg.Backtest.Symbols,
		InitialCapital: cfg.Backtest.InitialCapital,
	})
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}

	monitor := live.NewMonitor(live.Info{
		RunID:    runID,
		Mode:     string(engine.ModeLive),
		Strategy: strat.Name(),
		Symbols:  cfg.Backtest.Symbols,
	})
	eng.AddObserver(monitor)
	eng.AddObserver(engine.NewJournalRecorder(ctx, journal, runID))

	log := slog.Default().With("run", runID)
	log.Info("live trading starting",
		"strategy", strat.Name(), "symbols", cfg.Backtest.Symbols,
		"heartbeat", cfg.Backtest.Heartbeat, "next_open", cal.NextOpen(time.Now()))

	exec.Start(ctx)

	var runErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		_, runErr = eng.Run(gctx)
		monitor.SetState(eng.State())
		return runErr
	})
	if !liveNoServer {
		srv, err := api.NewServer(api.ServerConfig{Addr: cfg.Server.Addr(), Monitor: monitor, Journal: journal})
		if err != nil {
			return err
		}
		g.Go(func() error { return srv.ListenAndServe(gctx) })
	}
	g.Go(func() error {
		sweepLoop(gctx, exec, cfg.Backtest.OrderTimeout)
		return nil
	})
	waitErr := g.Wait()

	var rows []store.EquityRow
	if curve, err := pf.EquityCurve(); err == nil {
		rows = engine.EquityRows(curve)
	}
	if err := finishRun(ctx, journal, runID, rows, runErr); err != nil {
		log.Error("finish run", "error", err)
	}
	log.Info("live trading stopped", "stats", eng.Stats(), "pending_orders", exec.Pending())
	return waitErr
}

// seedHistory preloads stored daily bars so lookback strategies can trade
// from the first heartbeat. Missing history is not fatal.
func seedHistory(ctx context.Context, cfg *config.Config, h *market.AlpacaHandler) {
	from := time.Now().AddDate(0, 0, -3*cfg.Strategy.LongWindow)
	bars, err := market.LoadStore(ctx, store.NewParquetStore(cfg.Storage.DataDir), domain.MarketUS, cfg.Backtest.Symbols, from, time.Time{})
	if err != nil {
		slog.Warn("no stored history to seed", "error", err)
		return
	}
	h.Seed(bars)
}

// sweepLoop cancels timed-out orders until ctx is done.
func sweepLoop(ctx context.Context, exec *broker.Alpaca, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	interval := max(timeout/4, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := exec.Sweep(ctx, now); n > 0 {
				slog.Info("swept timed-out orders", "count", n)
			}
		}
	}
}
