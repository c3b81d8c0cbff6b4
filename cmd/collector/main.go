package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/PratikDhanave/event-pipeline/internal/bus"
	"github.com/PratikDhanave/event-pipeline/internal/config"
	"github.com/PratikDhanave/event-pipeline/internal/httpserver"
	"github.com/PratikDhanave/event-pipeline/internal/metrics"
	"github.com/PratikDhanave/event-pipeline/internal/store"
)

const shutdownTimeout = 10 * time.Second

// main boots the collector: config → DB → schema → bus → HTTP server.
func main() {
	// Load runtime config from environment (DB_URL, API_KEYS, ...).
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("collector exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	// Connect to durable storage (Postgres) using a connection pool.
	db, err := store.NewPostgresStore(ctx, cfg.DBURL)
	if err != nil {
		return err
	}
	defer db.Close()

	// Ensure required tables/indexes exist before serving.
	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}

	var publisher bus.Publisher
	if cfg.NATSURL != "" {
		pub, err := bus.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return err
		}
		publisher = pub
		logger.Info("event fan-out enabled", "nats_url", cfg.NATSURL, "subject", cfg.NATSSubject)
	} else {
		publisher = &bus.NoopPublisher{}
		logger.Info("event fan-out disabled (NATS_URL not set)")
	}
	defer publisher.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.RegisterCollector(reg)

	// Build HTTP router (public health + authenticated APIs).
	router := httpserver.NewRouter(cfg, httpserver.Deps{
		Store:     db,
		Publisher: publisher,
		Logger:    logger,
		Gatherer:  reg,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("collector listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down collector")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
