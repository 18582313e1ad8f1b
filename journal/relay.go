package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/db"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/obs"
)

// Publisher delivers an outbox message downstream.
type Publisher interface {
	Publish(ctx context.Context, msg OutboxMessage) error
}

// LogPublisher writes each message to the structured log. It is the default
// sink until a broker is configured.
type LogPublisher struct {
	Logger *obs.Logger
}

func (p LogPublisher) Publish(_ context.Context, msg OutboxMessage) error {
	p.Logger.Info(map[string]any{
		"op":       "outbox_publish",
		"id":       msg.ID,
		"topic":    msg.Topic,
		"payload":  string(msg.Payload),
		"attempts": msg.Attempts,
	})
	return nil
}

// Relay drains pending outbox rows with FOR UPDATE SKIP LOCKED so several
// relays can run side by side.
type Relay struct {
	pool        db.TxBeginner
	pub         Publisher
	logger      *obs.Logger
	metrics     *obs.Metrics
	interval    time.Duration
	batchSize   int
	maxAttempts int
}

type RelayConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

func NewRelay(pool db.TxBeginner, pub Publisher, logger *obs.Logger, metrics *obs.Metrics, cfg RelayConfig) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Relay{
		pool:        pool,
		pub:         pub,
		logger:      logger,
		metrics:     metrics,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
	}
}

// Run drains until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		if _, err := r.DrainOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error(map[string]any{"op": "outbox_drain", "error": err})
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// DrainOnce handles at most one batch and returns how many rows it touched.
func (r *Relay) DrainOnce(ctx context.Context) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("journal: begin relay tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const pick = `
SELECT id::text, topic, payload, status, attempts, created_at
FROM outbox
WHERE status = 'pending'
ORDER BY created_at
LIMIT $1
FOR UPDATE SKIP LOCKED
`
	rows, err := tx.Query(ctx, pick, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("journal: pick outbox: %w", err)
	}
	batch := make([]OutboxMessage, 0, r.batchSize)
	for rows.Next() {
		var m OutboxMessage
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.Status, &m.Attempts, &m.CreatedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("journal: scan outbox: %w", err)
		}
		batch = append(batch, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("journal: iterate outbox: %w", err)
	}

	for _, m := range batch {
		result := "processed"
		pubErr := r.pub.Publish(ctx, m)
		switch {
		case pubErr == nil:
			_, err = tx.Exec(ctx, `UPDATE outbox SET status='processed', attempts=attempts+1, last_attempt=NOW() WHERE id=$1`, m.ID)
		case m.Attempts+1 >= r.maxAttempts:
			result = "dead"
			_, err = tx.Exec(ctx, `UPDATE outbox SET status='dead', attempts=attempts+1, last_attempt=NOW() WHERE id=$1`, m.ID)
		default:
			result = "retry"
			_, err = tx.Exec(ctx, `UPDATE outbox SET attempts=attempts+1, last_attempt=NOW() WHERE id=$1`, m.ID)
		}
		if err != nil {
			return 0, fmt.Errorf("journal: mark outbox %s: %w", m.ID, err)
		}
		if pubErr != nil {
			r.logger.Error(map[string]any{"op": "outbox_publish", "id": m.ID, "topic": m.Topic, "result": result, "error": pubErr})
		}
		if r.metrics != nil {
			r.metrics.OutboxRelayed.WithLabelValues(result).Inc()
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("journal: commit relay tx: %w", err)
	}
	return len(batch), nil
}
