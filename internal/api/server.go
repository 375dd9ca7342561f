// Package api serves the live monitor over HTTP: JSON endpoints under
// /api/v1 and a websocket stream of updates at /ws.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"meridian/internal/live"
	"meridian/internal/store"
)

// ServerConfig describes the API server dependencies.
type ServerConfig struct {
	Addr    string
	Monitor *live.Monitor
	// Journal is optional; without it the run history endpoints return 404.
	Journal store.Journal
}

// Server is the HTTP API server.
type Server struct {
	addr    string
	router  *gin.Engine
	monitor *live.Monitor
	journal store.Journal
	hub     *Hub
	log     *slog.Logger
}

// NewServer creates a Server with all routes registered.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Monitor == nil {
		return nil, errors.New("api: monitor is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8080"
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		addr:    cfg.Addr,
		router:  gin.New(),
		monitor: cfg.Monitor,
		journal: cfg.Journal,
		hub:     NewHub(),
		log:     slog.Default().With("component", "api"),
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.router.Group("/api/v1")
	v1.GET("/status", s.handleStatus)
	v1.GET("/positions", s.handlePositions)
	v1.GET("/holdings", s.handleHoldings)
	v1.GET("/equity", s.handleEquity)
	v1.GET("/orders", s.handleOrders)
	v1.GET("/fills", s.handleFills)
	v1.GET("/runs", s.handleRuns)
	v1.GET("/runs/:id", s.handleRun)
	v1.GET("/runs/:id/equity", s.handleRunEquity)

	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.ServeWS(c.Writer, c.Request)
	})
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Addr returns the listen address.
func (s *Server) Addr() string { return s.addr }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
// It also pumps monitor updates to websocket clients.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.hub.Run(ctx, s.monitor)

	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("api listening", "addr", s.addr)

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"ip", c.ClientIP(),
			"dur", time.Since(start),
		)
	}
}
