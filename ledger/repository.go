package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/db"
)

type Repository interface {
	Insert(ctx context.Context, tx pgx.Tx, rec Record) (Record, error)
	HasActive(ctx context.Context, tx pgx.Tx, dogID, userID string, kind Kind) (bool, error)
	GetByID(ctx context.Context, id string) (Record, error)
	LockForDog(ctx context.Context, tx pgx.Tx, dogID string) ([]Record, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status Status, resolvedBy string, resolvedAt time.Time) (Record, error)
	ListForDog(ctx context.Context, dogID string, kind *Kind) ([]Record, error)
	ListForUser(ctx context.Context, userID string, kind *Kind) ([]Record, error)
	PendingCounts(ctx context.Context) (map[string]int, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const selectColumns = `id::text, dog_id::text, user_id::text, kind, status, message, evidence_refs, created_at, resolved_at, resolved_by::text`

func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, rec Record) (Record, error) {
	query := `
		INSERT INTO custody_requests (id, dog_id, user_id, kind, status, message, evidence_refs, created_at)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + selectColumns

	evidence := rec.EvidenceRefs
	if evidence == nil {
		evidence = []string{}
	}
	out, err := scanRecord(tx.QueryRow(ctx, query,
		rec.ID,
		rec.DogID,
		rec.UserID,
		rec.Kind,
		rec.Status,
		rec.Message,
		evidence,
		rec.CreatedAt,
	))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Record{}, ErrDuplicateRequest
		}
		return Record{}, fmt.Errorf("ledger: insert: %w", err)
	}
	return out, nil
}

func (r *PGRepository) HasActive(ctx context.Context, tx pgx.Tx, dogID, userID string, kind Kind) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM custody_requests
			WHERE dog_id = $1 AND user_id = $2 AND kind = $3 AND status <> 'rejected'
		)`
	var exists bool
	if err := tx.QueryRow(ctx, query, dogID, userID, kind).Scan(&exists); err != nil {
		return false, fmt.Errorf("ledger: check active: %w", err)
	}
	return exists, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM custody_requests WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || db.IsInvalidText(err) {
			return Record{}, ErrRequestNotFound
		}
		return Record{}, fmt.Errorf("ledger: get: %w", err)
	}
	return rec, nil
}

// LockForDog locks and returns every request for a dog in creation order.
// Callers must already hold the dog row lock.
func (r *PGRepository) LockForDog(ctx context.Context, tx pgx.Tx, dogID string) ([]Record, error) {
	rows, err := tx.Query(ctx, `SELECT `+selectColumns+` FROM custody_requests WHERE dog_id = $1 ORDER BY created_at, id FOR UPDATE`, dogID)
	if err != nil {
		return nil, fmt.Errorf("ledger: lock requests: %w", err)
	}
	return collect(rows)
}

func (r *PGRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status Status, resolvedBy string, resolvedAt time.Time) (Record, error) {
	query := `
		UPDATE custody_requests
		SET status = $2, resolved_by = NULLIF($3, '')::uuid, resolved_at = $4
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + selectColumns

	rec, err := scanRecord(tx.QueryRow(ctx, query, id, status, resolvedBy, resolvedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fmt.Errorf("ledger: request %s is no longer pending", id)
		}
		return Record{}, fmt.Errorf("ledger: update status: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) ListForDog(ctx context.Context, dogID string, kind *Kind) ([]Record, error) {
	return r.list(ctx, "dog_id", dogID, kind)
}

func (r *PGRepository) ListForUser(ctx context.Context, userID string, kind *Kind) ([]Record, error) {
	return r.list(ctx, "user_id", userID, kind)
}

func (r *PGRepository) list(ctx context.Context, column, value string, kind *Kind) ([]Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM custody_requests WHERE %s = $1`, selectColumns, column)
	args := []any{value}
	if kind != nil {
		query += ` AND kind = $2`
		args = append(args, *kind)
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		if db.IsInvalidText(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("ledger: list: %w", err)
	}
	return collect(rows)
}

// PendingCounts maps dog id to its number of pending requests.
func (r *PGRepository) PendingCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT dog_id::text, COUNT(*) FROM custody_requests WHERE status = 'pending' GROUP BY dog_id`)
	if err != nil {
		return nil, fmt.Errorf("ledger: pending counts: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			dogID string
			n     int
		)
		if err := rows.Scan(&dogID, &n); err != nil {
			return nil, fmt.Errorf("ledger: scan pending count: %w", err)
		}
		out[dogID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate pending counts: %w", err)
	}
	return out, nil
}

func collect(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()
	out := make([]Record, 0, 8)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID,
		&rec.DogID,
		&rec.UserID,
		&rec.Kind,
		&rec.Status,
		&rec.Message,
		&rec.EvidenceRefs,
		&rec.CreatedAt,
		&rec.ResolvedAt,
		&rec.ResolvedBy,
	)
	return rec, err
}
