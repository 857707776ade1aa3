// Package main provides the outbox relay entry point.
// Ships committed domain events from the outbox table to the bus.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/config"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/infrastructure/postgres"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/infrastructure/redpanda"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/observability/metrics"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/observability/tracing"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if cfg.Store != config.StorePostgres {
		logger.Fatal("the outbox relay needs STORE=postgres")
	}

	ctx := context.Background()
	tp, err := tracing.Init(ctx, tracing.FromConfig("outbox-relay", cfg))
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}
	defer tp.Shutdown(context.Background())

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()
	logger.Info("connected to database")

	producer, err := redpanda.NewProducer(redpanda.DefaultProducerConfig(cfg.Brokers()), logger)
	if err != nil {
		logger.Fatal("producer creation failed", zap.Error(err))
	}
	defer producer.Close()
	logger.Info("connected to Redpanda", zap.Strings("brokers", cfg.Brokers()))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	outboxCfg := postgres.DefaultOutboxConfig()
	outboxCfg.DeadLetterTopic = redpanda.TopicDeadLetter
	outbox := postgres.NewOutbox(pool, producer, outboxCfg, m, logger)
	outbox.Start()

	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", metrics.Handler(reg))
	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := outbox.GetStats(r.Context())
		if err != nil {
			http.Error(w, `{"error":"stats unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"outbox": stats, "producer": producer.Stats()})
	})
	server := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	outbox.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	if err := producer.Flush(shutdownCtx); err != nil {
		logger.Warn("producer flush failed", zap.Error(err))
	}
	logger.Info("outbox relay stopped")
}
