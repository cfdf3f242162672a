package adminapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pixeljoin/logjoin/internal/httpmiddleware"
	"github.com/pixeljoin/logjoin/internal/logjoin"
)

// Server is the operator-facing admin HTTP surface: liveness, stats, and
// deadline diagnostics, with Prometheus scraping bolted on for anything
// that wires a *metrics.Counters registry.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	config     Config
	startTime  time.Time

	stats     logjoin.Stats
	deadlines *logjoin.DeadlineIndex
	registry  *prometheus.Registry
}

// NewServer builds the admin server. registry may be nil, in which case
// /metrics answers 404 — wiring a metrics backend is optional.
func NewServer(cfg Config, stats logjoin.Stats, deadlines *logjoin.DeadlineIndex, registry *prometheus.Registry) *Server {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	s := &Server{
		logger:    logger,
		config:    cfg,
		stats:     stats,
		deadlines: deadlines,
		registry:  registry,
	}

	router := s.routes()

	s.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(httpmiddleware.CorrelationID())
	r.Use(httpmiddleware.Recovery(s.logger))
	r.Use(httpmiddleware.RequestLogger(s.logger))

	r.Get("/healthz", s.handleHealthz)

	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Group(func(protected chi.Router) {
		protected.Use(requireBearer(s.config.JWTSigningKey))
		protected.Get("/statsz", s.handleStatsz)
		protected.Get("/debug/deadlines", s.handleDebugDeadlines)
	})

	return r
}

// Start serves until the process receives SIGINT/SIGTERM, then drains
// in-flight requests within the configured shutdown timeout.
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid admin server configuration: %w", err)
	}

	s.startTime = time.Now()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("starting admin server", slog.String("address", s.config.Address()))

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("admin server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case sig := <-stop:
		s.logger.Info("received shutdown signal", slog.String("signal", sig.String()))

		return s.shutdown()
	}
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("admin server shutdown failed: %w", err)
	}

	return nil
}
