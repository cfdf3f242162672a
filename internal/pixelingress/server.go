package pixelingress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	bolt "go.etcd.io/bbolt"

	"github.com/pixeljoin/logjoin/internal/httpmiddleware"
	"github.com/pixeljoin/logjoin/internal/logjoin"
)

// Server wraps Handler with the ambient HTTP stack: correlation ids,
// recovery, request logging, and a global+per-source rate limiter.
type Server struct {
	httpServer  *http.Server
	logger      *slog.Logger
	config      Config
	rateLimiter *httpmiddleware.InMemoryRateLimiter
}

// NewServer builds the pixelingress server around db and core.
func NewServer(db *bolt.DB, core *logjoin.LogJoin, cfg Config) *Server {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	handler := NewHandler(db, core, logger, cfg)

	limiter := httpmiddleware.NewInMemoryRateLimiter(cfg.GlobalRPS, cfg.SourceRPS)

	r := chi.NewRouter()
	r.Use(httpmiddleware.CorrelationID())
	r.Use(httpmiddleware.Recovery(logger))
	r.Use(httpmiddleware.RequestLogger(logger))
	r.Use(httpmiddleware.RateLimit(limiter))
	r.Get("/px", handler.ServeHTTP)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Address(),
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger:      logger,
		config:      cfg,
		rateLimiter: limiter,
	}
}

// Address returns the listener address in host:port form.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Start serves until the process receives SIGINT/SIGTERM, then drains
// in-flight requests within the configured shutdown timeout.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("starting pixel ingress server", slog.String("address", s.config.Address()))

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("pixel ingress server failed to start: %w", err)
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

	s.rateLimiter.Close()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("pixel ingress server shutdown failed: %w", err)
	}

	return nil
}
