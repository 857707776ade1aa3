package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/api"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/api/handlers"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/config"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/directory"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/event"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/episode"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/infrastructure/memory"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/infrastructure/postgres"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/infrastructure/redpanda"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/notification"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/observability/metrics"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/observability/tracing"
	"github.com/skyleedevzero86/Health-mr-sub001/pkg/circuitbreaker"
	"github.com/skyleedevzero86/Health-mr-sub001/pkg/workerpool"
)

const serviceName = "episode-api"

type serveOptions struct {
	directorySeed string
	publishEvents bool
}

func runServer(opts serveOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	episodeCfg, err := cfg.EpisodeConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	tp, err := tracing.Init(ctx, tracing.FromConfig(serviceName, cfg))
	if err != nil {
		return fmt.Errorf("tracing init failed: %w", err)
	}
	defer tp.Shutdown(context.Background())

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	breakers := circuitbreaker.NewRegistry(logger)

	var checks []handlers.Check
	checks = append(checks, handlers.Check{Name: "breakers", Run: func(context.Context) (any, error) {
		return breakers.Health(), nil
	}})

	needBus := cfg.NotificationsEnabled && cfg.NotificationSink == config.SinkKafka ||
		cfg.Store == config.StoreMemory && opts.publishEvents
	var producer *redpanda.Producer
	if needBus {
		producer, err = redpanda.NewProducer(redpanda.DefaultProducerConfig(cfg.Brokers()), logger)
		if err != nil {
			return fmt.Errorf("producer creation failed: %w", err)
		}
		defer producer.Close()
		checks = append(checks, handlers.Check{Name: "kafka", Run: func(ctx context.Context) (any, error) {
			return producer.Stats(), producer.Ping(ctx)
		}})
	}

	var (
		store episode.Store
		dir   directory.Directory
	)
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, postgres.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer pool.Close()
		logger.Info("connected to database")
		checks = append(checks, databaseCheck(pool))
		store = postgres.NewStore(pool, logger)
		dir = postgres.NewDirectory(pool)
	default:
		dir, err = loadDirectory(opts.directorySeed)
		if err != nil {
			return err
		}
		var publisher event.Publisher
		if producer != nil {
			publisher = event.PublisherFunc(producer.PublishEvent)
		}
		store = memory.NewStore(publisher, logger)
		logger.Warn("using the in-memory store; state is lost on restart")
	}

	notifier, stopNotifier, err := buildNotifier(cfg, producer, breakers, logger)
	if err != nil {
		return err
	}
	defer stopNotifier()

	coordinator := episode.New(store, dir, notifier, episodeCfg, logger, episode.WithMetrics(m))

	router := api.NewRouter(coordinator, api.RouterConfig{
		Service:        serviceName,
		APIKeys:        cfg.Keys(),
		Checks:         checks,
		Metrics:        m,
		MetricsHandler: metrics.Handler(reg),
	}, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting episode API",
		zap.String("port", cfg.Port),
		zap.String("store", cfg.Store),
		zap.Bool("auto_create_checkin", episodeCfg.AutoCreateCheckIn),
		zap.Bool("auto_complete_reservation", episodeCfg.AutoCompleteReservation),
		zap.Bool("auto_create_treatment", episodeCfg.AutoCreateTreatmentOnCheckIn))
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDev() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func databaseCheck(pool *pgxpool.Pool) handlers.Check {
	return handlers.Check{Name: "database", Run: func(ctx context.Context) (any, error) {
		return postgres.Stats(pool), pool.Ping(ctx)
	}}
}

func loadDirectory(path string) (directory.Directory, error) {
	if path == "" {
		return directory.NewStatic(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open directory seed: %w", err)
	}
	defer f.Close()
	return directory.LoadStatic(f)
}

// buildNotifier assembles sender, breaker and the async pool according to
// the notification settings
func buildNotifier(cfg *config.Config, producer *redpanda.Producer, breakers *circuitbreaker.Registry, logger *zap.Logger) (notification.Dispatcher, func(), error) {
	if !cfg.NotificationsEnabled {
		return notification.Nop{}, func() {}, nil
	}

	var sender notification.Sender
	switch cfg.NotificationSink {
	case config.SinkKafka:
		sender = notification.NewKafkaSender(producer)
	default:
		sender = notification.NewLogSender(logger)
	}

	breaker, err := breakers.Get("notification", circuitbreaker.DefaultConfig("notification"))
	if err != nil {
		return nil, nil, fmt.Errorf("breaker creation failed: %w", err)
	}
	svc := notification.NewService(notification.NewEngine(), sender, breaker, logger)

	poolCfg := workerpool.DefaultConfig("notification")
	poolCfg.Workers = cfg.NotificationWorkers
	poolCfg.QueueSize = cfg.NotificationQueue
	async, err := notification.NewAsync(svc, poolCfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("notification pool creation failed: %w", err)
	}
	return async, async.Stop, nil
}
