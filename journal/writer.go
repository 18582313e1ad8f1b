package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Writer appends timeline events and outbox messages inside the caller's
// transaction, so they commit or roll back with the state change they describe.
type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) Append(ctx context.Context, tx pgx.Tx, e Entry) error {
	if e.Type == "" {
		return fmt.Errorf("journal: event type required")
	}
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("journal: marshal timeline payload: %w", err)
	}
	const q = `
INSERT INTO timeline_events (dog_id, request_id, capture_id, type, actor_id, payload)
VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5::uuid, $6::jsonb)
`
	if _, err := tx.Exec(ctx, q,
		nullable(e.DogID),
		nullable(e.RequestID),
		nullable(e.CaptureID),
		e.Type,
		nullable(e.ActorID),
		body,
	); err != nil {
		return fmt.Errorf("journal: insert timeline event: %w", err)
	}
	return nil
}

func (w *Writer) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	if topic == "" {
		return fmt.Errorf("journal: outbox topic required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("journal: marshal outbox payload: %w", err)
	}
	const q = `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`
	if _, err := tx.Exec(ctx, q, topic, body); err != nil {
		return fmt.Errorf("journal: enqueue outbox: %w", err)
	}
	return nil
}

// Reader serves timeline history.
type Reader struct {
	pool *pgxpool.Pool
}

func NewReader(pool *pgxpool.Pool) *Reader {
	return &Reader{pool: pool}
}

// DogHistory returns every event recorded against a dog, oldest first.
func (r *Reader) DogHistory(ctx context.Context, dogID string) ([]Event, error) {
	const q = `
SELECT id, dog_id::text, request_id::text, capture_id::text, type, actor_id::text, payload, created_at
FROM timeline_events
WHERE dog_id = $1
ORDER BY id ASC
`
	rows, err := r.pool.Query(ctx, q, dogID)
	if err != nil {
		return nil, fmt.Errorf("journal: dog history: %w", err)
	}
	defer rows.Close()

	out := make([]Event, 0, 16)
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.DogID, &ev.RequestID, &ev.CaptureID, &ev.Type, &ev.ActorID, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("journal: scan event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate events: %w", err)
	}
	return out, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
