package capture

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/db"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/journal"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/obs"
)

type TimelineWriter interface {
	Append(ctx context.Context, tx pgx.Tx, e journal.Entry) error
}

type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

type Service struct {
	pool        db.TxBeginner
	repo        Repository
	timeline    TimelineWriter
	outbox      OutboxWriter
	metrics     *obs.Metrics
	idGenerator func() string
	now         func() time.Time
}

type FileParams struct {
	UserID      string
	Reason      Reason
	Description string
	Latitude    *float64
	Longitude   *float64
	ImageRef    string
}

type ResolveParams struct {
	CaptureID     string
	AdminID       string
	Decision      Decision
	ScheduledDate *time.Time
	Message       string
}

func NewService(pool db.TxBeginner, repo Repository, timeline TimelineWriter, outbox OutboxWriter) *Service {
	return &Service{
		pool:        pool,
		repo:        repo,
		timeline:    timeline,
		outbox:      outbox,
		idGenerator: func() string { return uuid.NewString() },
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithMetrics(m *obs.Metrics) *Service {
	s.metrics = m
	return s
}

// File records a citizen's request to have a dog picked up.
func (s *Service) File(ctx context.Context, params FileParams) (Record, error) {
	if params.UserID == "" {
		return Record{}, ErrMissingRequester
	}
	if !params.Reason.Valid() {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidReason, params.Reason)
	}
	if (params.Latitude == nil) != (params.Longitude == nil) {
		return Record{}, fmt.Errorf("%w: latitude and longitude go together", ErrInvalidLocation)
	}
	if params.Latitude != nil && (*params.Latitude < -90 || *params.Latitude > 90) {
		return Record{}, fmt.Errorf("%w: latitude %v", ErrInvalidLocation, *params.Latitude)
	}
	if params.Longitude != nil && (*params.Longitude < -180 || *params.Longitude > 180) {
		return Record{}, fmt.Errorf("%w: longitude %v", ErrInvalidLocation, *params.Longitude)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("capture: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := s.repo.Create(ctx, tx, Record{
		ID:          s.idGenerator(),
		UserID:      params.UserID,
		Reason:      params.Reason,
		Description: strings.TrimSpace(params.Description),
		Latitude:    params.Latitude,
		Longitude:   params.Longitude,
		ImageRef:    params.ImageRef,
		Status:      StatusPending,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return Record{}, err
	}

	if s.timeline != nil {
		entry := journal.Entry{
			CaptureID: created.ID,
			Type:      journal.EventCaptureFiled,
			ActorID:   created.UserID,
			Payload:   map[string]any{"reason": created.Reason},
		}
		if err := s.timeline.Append(ctx, tx, entry); err != nil {
			return Record{}, fmt.Errorf("capture: append timeline: %w", err)
		}
	}
	if s.outbox != nil {
		payload := map[string]any{
			"capture_id": created.ID,
			"user_id":    created.UserID,
			"reason":     created.Reason,
			"latitude":   created.Latitude,
			"longitude":  created.Longitude,
		}
		if err := s.outbox.Enqueue(ctx, tx, journal.TopicCaptureFiled, payload); err != nil {
			return Record{}, fmt.Errorf("capture: enqueue outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("capture: commit tx: %w", err)
	}
	if s.metrics != nil {
		s.metrics.CapturesFiled.Inc()
	}
	return created, nil
}

// Resolve accepts or declines a pending capture request. Accepting assigns
// the resolving admin and needs a scheduled pickup date.
func (s *Service) Resolve(ctx context.Context, params ResolveParams) (Record, error) {
	var status Status
	switch params.Decision {
	case Accept:
		status = StatusAccepted
		if params.ScheduledDate == nil {
			return Record{}, ErrMissingSchedule
		}
	case Decline:
		status = StatusDeclined
	default:
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidDecision, params.Decision)
	}
	if params.CaptureID == "" {
		return Record{}, ErrNotFound
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("capture: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.repo.GetForUpdate(ctx, tx, params.CaptureID)
	if err != nil {
		return Record{}, err
	}
	if current.Status != StatusPending {
		return Record{}, fmt.Errorf("%w: %s", ErrAlreadyResolved, current.Status)
	}

	row := ResolveRow{
		ID:         current.ID,
		Status:     status,
		AdminID:    params.AdminID,
		Message:    strings.TrimSpace(params.Message),
		ResolvedAt: s.now(),
	}
	if status == StatusAccepted {
		row.ScheduledDate = params.ScheduledDate
	}
	updated, err := s.repo.Resolve(ctx, tx, row)
	if err != nil {
		return Record{}, err
	}

	if s.timeline != nil {
		entry := journal.Entry{
			CaptureID: updated.ID,
			Type:      journal.EventCaptureResolved,
			ActorID:   params.AdminID,
			Payload:   map[string]any{"status": updated.Status, "scheduled_date": updated.ScheduledDate},
		}
		if err := s.timeline.Append(ctx, tx, entry); err != nil {
			return Record{}, fmt.Errorf("capture: append timeline: %w", err)
		}
	}
	if s.outbox != nil {
		payload := map[string]any{
			"capture_id":     updated.ID,
			"user_id":        updated.UserID,
			"status":         updated.Status,
			"scheduled_date": updated.ScheduledDate,
			"message":        updated.AdminMessage,
		}
		if err := s.outbox.Enqueue(ctx, tx, journal.TopicCaptureResolved, payload); err != nil {
			return Record{}, fmt.Errorf("capture: enqueue outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("capture: commit tx: %w", err)
	}
	return updated, nil
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]Record, error) {
	if userID == "" {
		return nil, ErrMissingRequester
	}
	return s.repo.List(ctx, userID, "")
}

// ListAll is the admin queue; an empty status lists everything.
func (s *Service) ListAll(ctx context.Context, status Status) ([]Record, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("capture: invalid status filter %q", status)
	}
	return s.repo.List(ctx, "", status)
}
