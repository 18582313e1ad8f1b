package capture

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
	Create(ctx context.Context, tx pgx.Tx, rec Record) (Record, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Record, error)
	Resolve(ctx context.Context, tx pgx.Tx, params ResolveRow) (Record, error)
	List(ctx context.Context, userID string, status Status) ([]Record, error)
}

// ResolveRow is the persisted shape of a decision.
type ResolveRow struct {
	ID            string
	Status        Status
	AdminID       string
	ScheduledDate *time.Time
	Message       string
	ResolvedAt    time.Time
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const columns = `id::text, user_id::text, reason, description, latitude, longitude, image_ref, status,
	assigned_admin::text, scheduled_date, admin_message, created_at, updated_at, resolved_at`

func (r *PGRepository) Create(ctx context.Context, tx pgx.Tx, rec Record) (Record, error) {
	query := `
		INSERT INTO capture_requests (id, user_id, reason, description, latitude, longitude, image_ref, status, created_at)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + columns

	out, err := scan(tx.QueryRow(ctx, query,
		rec.ID,
		rec.UserID,
		rec.Reason,
		rec.Description,
		rec.Latitude,
		rec.Longitude,
		rec.ImageRef,
		rec.Status,
		rec.CreatedAt,
	))
	if err != nil {
		return Record{}, fmt.Errorf("capture: create: %w", err)
	}
	return out, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Record, error) {
	out, err := scan(tx.QueryRow(ctx, `SELECT `+columns+` FROM capture_requests WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || db.IsInvalidText(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("capture: get for update: %w", err)
	}
	return out, nil
}

func (r *PGRepository) Resolve(ctx context.Context, tx pgx.Tx, p ResolveRow) (Record, error) {
	query := `
		UPDATE capture_requests
		SET status = $2,
		    assigned_admin = NULLIF($3, '')::uuid,
		    scheduled_date = $4,
		    admin_message = $5,
		    resolved_at = $6,
		    updated_at = $6
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + columns

	out, err := scan(tx.QueryRow(ctx, query, p.ID, p.Status, p.AdminID, p.ScheduledDate, p.Message, p.ResolvedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrAlreadyResolved
		}
		return Record{}, fmt.Errorf("capture: resolve: %w", err)
	}
	return out, nil
}

// List returns newest first. Empty userID or status means no filter on it.
func (r *PGRepository) List(ctx context.Context, userID string, status Status) ([]Record, error) {
	query := `SELECT ` + columns + ` FROM capture_requests WHERE 1=1`
	args := []any{}
	if userID != "" {
		args = append(args, userID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("capture: list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("capture: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("capture: iterate: %w", err)
	}
	return out, nil
}

func scan(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Reason,
		&rec.Description,
		&rec.Latitude,
		&rec.Longitude,
		&rec.ImageRef,
		&rec.Status,
		&rec.AssignedAdmin,
		&rec.ScheduledDate,
		&rec.AdminMessage,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.ResolvedAt,
	)
	return rec, err
}
