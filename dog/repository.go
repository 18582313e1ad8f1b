package dog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/db"
)

type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, rec Record) (Record, error)
	GetByID(ctx context.Context, id string) (Record, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Record, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status Status) (Record, error)
	List(ctx context.Context, filters Filters) ([]Record, int, error)
	ListAll(ctx context.Context) ([]Record, error)
}

// Filters narrows admin listings. Zero values mean no filter.
type Filters struct {
	Status   Status
	Page     int
	PageSize int
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const selectColumns = `id::text, caption, location, violations, image_refs, status, intake_time, claim_window_days, created_by::text, updated_at`

func (r *PGRepository) Create(ctx context.Context, tx pgx.Tx, rec Record) (Record, error) {
	query := `
		INSERT INTO dogs (id, caption, location, violations, image_refs, status, intake_time, claim_window_days, created_by)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9::uuid)
		RETURNING ` + selectColumns

	row := tx.QueryRow(ctx, query,
		rec.ID,
		rec.Caption,
		rec.Location,
		violationStrings(rec.Violations),
		nonNil(rec.ImageRefs),
		rec.Status,
		rec.IntakeTime,
		rec.ClaimWindowDays,
		rec.CreatedBy,
	)
	out, err := scanRecord(row)
	if err != nil {
		return Record{}, fmt.Errorf("dog: insert: %w", err)
	}
	return out, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM dogs WHERE id = $1`, id)
	return mapNotFound(scanRecord(row))
}

// GetForUpdate takes the per-dog row lock every mutation of the dog or its
// requests serializes on.
func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Record, error) {
	row := tx.QueryRow(ctx, `SELECT `+selectColumns+` FROM dogs WHERE id = $1 FOR UPDATE`, id)
	return mapNotFound(scanRecord(row))
}

// UpdateStatus refuses to move a row that is already terminal, matching
// Record.TransitionTo.
func (r *PGRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status Status) (Record, error) {
	query := `
		UPDATE dogs
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('rescued', 'under_care')
		RETURNING ` + selectColumns

	out, err := scanRecord(tx.QueryRow(ctx, query, id, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fmt.Errorf("%w: dog %s is not open", ErrInvalidTransition, id)
		}
		return Record{}, fmt.Errorf("dog: update status: %w", err)
	}
	return out, nil
}

func (r *PGRepository) List(ctx context.Context, filters Filters) ([]Record, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	where := []string{"1=1"}
	args := []any{}
	if filters.Status != "" {
		where = append(where, fmt.Sprintf("status=$%d", len(args)+1))
		args = append(args, filters.Status)
	}
	whereClause := " WHERE " + strings.Join(where, " AND ")

	offset := (filters.Page - 1) * filters.PageSize
	query := fmt.Sprintf(`SELECT %s FROM dogs%s ORDER BY intake_time DESC, id DESC LIMIT %d OFFSET %d`,
		selectColumns, whereClause, filters.PageSize, offset)

	list, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM dogs"+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("dog: count list: %w", err)
	}
	return list, total, nil
}

// ListAll feeds the listing projection.
func (r *PGRepository) ListAll(ctx context.Context) ([]Record, error) {
	return r.query(ctx, `SELECT `+selectColumns+` FROM dogs ORDER BY intake_time DESC, id DESC`)
}

func (r *PGRepository) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dog: query list: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 16)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("dog: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dog: iterate: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec        Record
		violations []string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Caption,
		&rec.Location,
		&violations,
		&rec.ImageRefs,
		&rec.Status,
		&rec.IntakeTime,
		&rec.ClaimWindowDays,
		&rec.CreatedBy,
		&rec.UpdatedAt,
	); err != nil {
		return Record{}, err
	}
	rec.Violations = make([]Violation, 0, len(violations))
	for _, v := range violations {
		rec.Violations = append(rec.Violations, Violation(v))
	}
	return rec, nil
}

func mapNotFound(rec Record, err error) (Record, error) {
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, pgx.ErrNoRows), db.IsInvalidText(err):
		return Record{}, ErrNotFound
	default:
		return Record{}, fmt.Errorf("dog: get: %w", err)
	}
}

func violationStrings(vs []Violation) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, string(v))
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
