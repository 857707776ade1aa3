package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/domain/event"
)

// relayLockID serialises relays so entries leave in commit order
const relayLockID = int64(0x6570697364)

// OutboxEntry is one event waiting to be published
type OutboxEntry struct {
	ID            int64
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       json.RawMessage
	KafkaTopic    string
	KafkaKey      string
	CreatedAt     time.Time
	ProcessedAt   *time.Time
	RetryCount    int
	LastError     *string
}

// NewOutboxEntry wraps a domain event. The full envelope is the payload,
// the aggregate id is the partition key.
func NewOutboxEntry(e *event.Event) (*OutboxEntry, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.EventType, err)
	}
	return &OutboxEntry{
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		EventType:     string(e.EventType),
		Payload:       payload,
		KafkaTopic:    e.Topic(),
		KafkaKey:      e.AggregateID,
	}, nil
}

// WriteEntry writes an outbox entry. q must be the transaction that
// writes the aggregate the event belongs to.
func WriteEntry(ctx context.Context, q querier, entry *OutboxEntry) error {
	query := `
		INSERT INTO outbox (aggregate_id, aggregate_type, event_type, payload, kafka_topic, kafka_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := q.QueryRow(ctx, query,
		entry.AggregateID,
		entry.AggregateType,
		entry.EventType,
		entry.Payload,
		entry.KafkaTopic,
		entry.KafkaKey,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to write outbox entry: %w", err)
	}
	return nil
}

// OutboxConfig holds configuration for the relay
type OutboxConfig struct {
	// BatchSize is the number of entries to process per batch
	BatchSize int
	// PollInterval is how often to poll for new entries
	PollInterval time.Duration
	// MaxRetries is the number of failed publishes before an entry is dead-lettered
	MaxRetries int
	// MaintenanceInterval is how often dead-lettering and cleanup run
	MaintenanceInterval time.Duration
	// Retention is how long processed entries are kept
	Retention time.Duration
	// DeadLetterTopic receives entries that ran out of retries
	DeadLetterTopic string
}

// DefaultOutboxConfig returns sensible defaults
func DefaultOutboxConfig() OutboxConfig {
	return OutboxConfig{
		BatchSize:           100,
		PollInterval:        100 * time.Millisecond,
		MaxRetries:          5,
		MaintenanceInterval: time.Minute,
		Retention:           72 * time.Hour,
		DeadLetterTopic:     "episode.dead-letter",
	}
}

// OutboxPublisher sends entries to the bus
type OutboxPublisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// OutboxMetrics receives relay outcomes
type OutboxMetrics interface {
	ObserveOutbox(topic, outcome string)
	SetOutboxPending(n int64)
}

type nopOutboxMetrics struct{}

func (nopOutboxMetrics) ObserveOutbox(string, string) {}
func (nopOutboxMetrics) SetOutboxPending(int64)       {}

// Outbox relays committed outbox entries to the bus
type Outbox struct {
	pool      *pgxpool.Pool
	config    OutboxConfig
	publisher OutboxPublisher
	metrics   OutboxMetrics
	logger    *zap.Logger
	tracer    trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewOutbox creates a relay. metrics may be nil.
func NewOutbox(pool *pgxpool.Pool, publisher OutboxPublisher, cfg OutboxConfig, metrics OutboxMetrics, logger *zap.Logger) *Outbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopOutboxMetrics{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Outbox{
		pool:      pool,
		config:    cfg,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		tracer:    otel.Tracer("outbox"),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Start begins polling
func (o *Outbox) Start() {
	go o.processLoop()
	o.logger.Info("outbox relay started",
		zap.Int("batch_size", o.config.BatchSize),
		zap.Duration("poll_interval", o.config.PollInterval))
}

// Stop waits for the current batch and stops polling
func (o *Outbox) Stop() {
	o.cancel()
	<-o.done
	o.logger.Info("outbox relay stopped")
}

func (o *Outbox) processLoop() {
	defer close(o.done)

	ticker := time.NewTicker(o.config.PollInterval)
	defer ticker.Stop()
	maintenance := time.NewTicker(o.config.MaintenanceInterval)
	defer maintenance.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.ProcessBatch(o.ctx); err != nil {
				o.logger.Error("outbox batch failed", zap.Error(err))
			}
		case <-maintenance.C:
			o.maintain(o.ctx)
		}
	}
}

func (o *Outbox) maintain(ctx context.Context) {
	if n, err := o.MoveToDeadLetter(ctx); err != nil {
		o.logger.Error("outbox dead-letter pass failed", zap.Error(err))
	} else if n > 0 {
		o.logger.Warn("outbox entries dead-lettered", zap.Int64("count", n))
	}
	if n, err := o.CleanupProcessed(ctx, o.config.Retention); err != nil {
		o.logger.Error("outbox cleanup failed", zap.Error(err))
	} else if n > 0 {
		o.logger.Info("outbox cleanup completed", zap.Int64("deleted", n))
	}
	if stats, err := o.GetStats(ctx); err == nil {
		o.metrics.SetOutboxPending(stats.Pending)
	}
}

// ProcessBatch publishes one batch in a transaction holding the relay
// lock. It returns how many entries were published; zero when another
// relay holds the lock.
func (o *Outbox) ProcessBatch(ctx context.Context) (int, error) {
	ctx, span := o.tracer.Start(ctx, "outbox_process_batch")
	defer span.End()

	published := 0
	err := pgx.BeginFunc(ctx, o.pool, func(tx pgx.Tx) error {
		var acquired bool
		if err := tx.QueryRow(ctx, "SELECT pg_try_advisory_xact_lock($1)", relayLockID).Scan(&acquired); err != nil {
			return fmt.Errorf("acquire relay lock: %w", err)
		}
		if !acquired {
			return nil
		}

		entries, err := o.fetchUnprocessed(ctx, tx)
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.Int("batch_size", len(entries)))

		for _, entry := range entries {
			if err := o.processEntry(ctx, tx, entry); err != nil {
				o.logger.Error("failed to process outbox entry",
					zap.Int64("id", entry.ID),
					zap.String("event_type", entry.EventType),
					zap.Error(err))
				// Later entries of the same aggregate would overtake this one.
				break
			}
			published++
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
	}
	return published, err
}

func (o *Outbox) fetchUnprocessed(ctx context.Context, tx pgx.Tx) ([]*OutboxEntry, error) {
	query := `
		SELECT id, aggregate_id, aggregate_type, event_type, payload,
		       kafka_topic, kafka_key, created_at, retry_count, last_error
		FROM outbox
		WHERE processed_at IS NULL
		  AND retry_count < $1
		ORDER BY id
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`

	rows, err := tx.Query(ctx, query, o.config.MaxRetries, o.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var entries []*OutboxEntry
	for rows.Next() {
		entry := &OutboxEntry{}
		err := rows.Scan(
			&entry.ID, &entry.AggregateID, &entry.AggregateType,
			&entry.EventType, &entry.Payload, &entry.KafkaTopic,
			&entry.KafkaKey, &entry.CreatedAt, &entry.RetryCount, &entry.LastError,
		)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// processEntry publishes a single entry and marks it processed
func (o *Outbox) processEntry(ctx context.Context, tx pgx.Tx, entry *OutboxEntry) error {
	ctx, span := o.tracer.Start(ctx, "outbox_process_entry",
		trace.WithAttributes(
			attribute.Int64("entry_id", entry.ID),
			attribute.String("event_type", entry.EventType),
			attribute.String("aggregate_id", entry.AggregateID),
		))
	defer span.End()

	if err := o.publisher.Publish(ctx, entry.KafkaTopic, entry.KafkaKey, entry.Payload); err != nil {
		updateQuery := `
			UPDATE outbox
			SET retry_count = retry_count + 1, last_error = $1, updated_at = NOW()
			WHERE id = $2
		`
		if _, updateErr := tx.Exec(ctx, updateQuery, err.Error(), entry.ID); updateErr != nil {
			o.logger.Error("failed to update retry count", zap.Error(updateErr))
		}
		o.metrics.ObserveOutbox(entry.KafkaTopic, "failed")
		span.RecordError(err)
		return fmt.Errorf("publish failed: %w", err)
	}

	markQuery := `
		UPDATE outbox
		SET processed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, markQuery, entry.ID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to mark processed: %w", err)
	}
	o.metrics.ObserveOutbox(entry.KafkaTopic, "published")

	o.logger.Debug("outbox entry processed",
		zap.Int64("id", entry.ID),
		zap.String("topic", entry.KafkaTopic))
	return nil
}

// CleanupProcessed removes processed entries older than olderThan
func (o *Outbox) CleanupProcessed(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM outbox
		WHERE processed_at IS NOT NULL
		  AND processed_at < $1
	`
	result, err := o.pool.Exec(ctx, query, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("cleanup failed: %w", err)
	}
	return result.RowsAffected(), nil
}

// deadLetter is the record published for an exhausted entry
type deadLetter struct {
	OriginalTopic string          `json:"original_topic"`
	EventType     string          `json:"event_type"`
	AggregateID   string          `json:"aggregate_id"`
	Payload       json.RawMessage `json:"payload"`
	RetryCount    int             `json:"retry_count"`
	LastError     *string         `json:"last_error"`
	CreatedAt     time.Time       `json:"created_at"`
}

// MoveToDeadLetter publishes exhausted entries to the dead-letter topic and
// marks them processed
func (o *Outbox) MoveToDeadLetter(ctx context.Context) (int64, error) {
	var count int64
	err := pgx.BeginFunc(ctx, o.pool, func(tx pgx.Tx) error {
		query := `
			SELECT id, aggregate_id, aggregate_type, event_type, payload,
			       kafka_topic, kafka_key, created_at, retry_count, last_error
			FROM outbox
			WHERE processed_at IS NULL
			  AND retry_count >= $1
			ORDER BY id
			FOR UPDATE SKIP LOCKED
		`
		rows, err := tx.Query(ctx, query, o.config.MaxRetries)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*OutboxEntry, error) {
			entry := &OutboxEntry{}
			err := row.Scan(
				&entry.ID, &entry.AggregateID, &entry.AggregateType,
				&entry.EventType, &entry.Payload, &entry.KafkaTopic, &entry.KafkaKey,
				&entry.CreatedAt, &entry.RetryCount, &entry.LastError,
			)
			return entry, err
		})
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		for _, entry := range entries {
			dlPayload, err := json.Marshal(deadLetter{
				OriginalTopic: entry.KafkaTopic,
				EventType:     entry.EventType,
				AggregateID:   entry.AggregateID,
				Payload:       entry.Payload,
				RetryCount:    entry.RetryCount,
				LastError:     entry.LastError,
				CreatedAt:     entry.CreatedAt,
			})
			if err != nil {
				return err
			}
			if err := o.publisher.Publish(ctx, o.config.DeadLetterTopic, entry.KafkaKey, dlPayload); err != nil {
				o.logger.Error("failed to publish to dead letter", zap.Int64("id", entry.ID), zap.Error(err))
				continue
			}
			if _, err := tx.Exec(ctx, "UPDATE outbox SET processed_at = NOW(), updated_at = NOW() WHERE id = $1", entry.ID); err != nil {
				return fmt.Errorf("mark dead-lettered entry %d: %w", entry.ID, err)
			}
			o.metrics.ObserveOutbox(entry.KafkaTopic, "dead_lettered")
			count++
		}
		return nil
	})
	return count, err
}

// OutboxStats summarises the outbox table
type OutboxStats struct {
	Pending       int64      `json:"pending"`
	Processed     int64      `json:"processed_24h"`
	Failed        int64      `json:"failed"`
	OldestPending *time.Time `json:"oldest_pending,omitempty"`
}

// GetStats returns current outbox statistics
func (o *Outbox) GetStats(ctx context.Context) (*OutboxStats, error) {
	stats := &OutboxStats{}
	err := o.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE processed_at IS NULL AND retry_count < $1),
			COUNT(*) FILTER (WHERE processed_at > NOW() - INTERVAL '24 hours'),
			COUNT(*) FILTER (WHERE processed_at IS NULL AND retry_count >= $1),
			MIN(created_at) FILTER (WHERE processed_at IS NULL)
		FROM outbox`, o.config.MaxRetries).
		Scan(&stats.Pending, &stats.Processed, &stats.Failed, &stats.OldestPending)
	if err != nil {
		return nil, fmt.Errorf("outbox stats: %w", err)
	}
	return stats, nil
}
