// Package main provides the check-in consumer entry point.
// Consumes check-in events and opens the outpatient treatment of every
// completed check-in.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/apperr"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/config"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/episode"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/infrastructure/postgres"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/infrastructure/redpanda"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/observability/metrics"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/observability/tracing"
	"github.com/skyleedevzero86/Health-mr-sub001/pkg/circuitbreaker"
	"github.com/skyleedevzero86/Health-mr-sub001/pkg/idempotency"
	"github.com/skyleedevzero86/Health-mr-sub001/pkg/workerpool"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if cfg.Store != config.StorePostgres {
		logger.Fatal("the check-in consumer needs STORE=postgres")
	}
	episodeCfg, err := cfg.EpisodeConfig()
	if err != nil {
		logger.Fatal("invalid episode config", zap.Error(err))
	}

	ctx := context.Background()
	tp, err := tracing.Init(ctx, tracing.FromConfig("checkin-consumer", cfg))
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

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	coordinator := episode.New(postgres.NewStore(pool, logger), postgres.NewDirectory(pool), nil, episodeCfg, logger,
		episode.WithMetrics(m))

	inboxCfg := idempotency.DefaultInboxConfig()
	inboxCfg.Terminal = func(err error) bool {
		return !errors.Is(err, circuitbreaker.ErrOpen) && apperr.KindOf(err) != apperr.Internal
	}
	inbox := idempotency.NewInbox(pool, inboxCfg, logger)
	inbox.StartCleanup()
	defer inbox.Stop()

	breakers := circuitbreaker.NewRegistry(logger)
	breakerCfg := circuitbreaker.DefaultConfig("treatment-open")
	breakerCfg.Permanent = domainRejection
	breaker, err := breakers.Get("treatment-open", breakerCfg)
	if err != nil {
		logger.Fatal("breaker creation failed", zap.Error(err))
	}

	handler, err := newCheckInHandler(inbox, coordinator, breaker, workerpool.DefaultConfig("checkin-consumer"), m, logger)
	if err != nil {
		logger.Fatal("worker pool creation failed", zap.Error(err))
	}
	defer handler.Stop()

	consumer, err := redpanda.NewConsumer(
		redpanda.DefaultConsumerConfig(cfg.Brokers(), cfg.KafkaConsumerGroup, redpanda.TopicCheckInEvents),
		handler.Handle, logger)
	if err != nil {
		logger.Fatal("consumer creation failed", zap.Error(err))
	}
	consumer.Start()
	logger.Info("check-in consumer started",
		zap.Strings("brokers", cfg.Brokers()),
		zap.String("group", cfg.KafkaConsumerGroup))

	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", metrics.Handler(reg))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if breaker.State() == circuitbreaker.StateOpen {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"degraded","breaker":"open"}`))
			return
		}
		w.Write([]byte(`{"status":"healthy"}`))
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
	consumer.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	logger.Info("check-in consumer stopped", zap.Any("consumer", consumer.Stats()))
}
