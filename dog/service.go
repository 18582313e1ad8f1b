package dog

import (
	"context"
	"fmt"
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

// DefaultClaimWindowDays applies when intake does not name a window.
const DefaultClaimWindowDays = 3

type Service struct {
	pool          db.TxBeginner
	repo          Repository
	timeline      TimelineWriter
	outbox        OutboxWriter
	metrics       *obs.Metrics
	idGenerator   func() string
	now           func() time.Time
	defaultWindow int
}

type CreateParams struct {
	AdminID         string
	Caption         string
	Location        string
	Violations      []Violation
	ImageRefs       []string
	// ClaimWindowDays falls back to the service default when nil. An explicit
	// value below 1 is rejected.
	ClaimWindowDays *int
	// IntakeTime defaults to the service clock.
	IntakeTime    time.Time
	InitialStatus Status
}

type TransitionParams struct {
	DogID   string
	Status  Status
	AdminID string
}

type ListResult struct {
	Items []Record
	Total int
}

func NewService(pool db.TxBeginner, repo Repository, timeline TimelineWriter, outbox OutboxWriter) *Service {
	return &Service{
		pool:          pool,
		repo:          repo,
		timeline:      timeline,
		outbox:        outbox,
		idGenerator:   func() string { return uuid.NewString() },
		now:           func() time.Time { return time.Now().UTC() },
		defaultWindow: DefaultClaimWindowDays,
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

func (s *Service) WithDefaultClaimWindow(days int) *Service {
	if days > 0 {
		s.defaultWindow = days
	}
	return s
}

func (s *Service) WithMetrics(m *obs.Metrics) *Service {
	s.metrics = m
	return s
}

// Create records a dog at intake.
func (s *Service) Create(ctx context.Context, params CreateParams) (Record, error) {
	start := time.Now()
	window := s.defaultWindow
	if params.ClaimWindowDays != nil {
		window = *params.ClaimWindowDays
	}
	intake := params.IntakeTime
	if intake.IsZero() {
		intake = s.now()
	}
	if params.InitialStatus.Terminal() {
		return Record{}, fmt.Errorf("%w: intake status %q is terminal", ErrInvalidConfiguration, params.InitialStatus)
	}

	var createdBy *string
	if params.AdminID != "" {
		createdBy = &params.AdminID
	}
	rec, err := New(NewParams{
		ID:              s.idGenerator(),
		IntakeTime:      intake,
		ClaimWindowDays: window,
		InitialStatus:   params.InitialStatus,
		Caption:         params.Caption,
		Location:        params.Location,
		Violations:      params.Violations,
		ImageRefs:       params.ImageRefs,
		CreatedBy:       createdBy,
	})
	if err != nil {
		return Record{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("dog: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := s.repo.Create(ctx, tx, rec)
	if err != nil {
		return Record{}, err
	}

	if s.timeline != nil {
		entry := journal.Entry{
			DogID:   created.ID,
			Type:    journal.EventDogIntake,
			ActorID: params.AdminID,
			Payload: map[string]any{
				"status":            created.Status,
				"intake_time":       created.IntakeTime,
				"claim_window_days": created.ClaimWindowDays,
				"deadline":          created.Deadline(),
			},
		}
		if err := s.timeline.Append(ctx, tx, entry); err != nil {
			return Record{}, fmt.Errorf("dog: append timeline: %w", err)
		}
	}
	if s.outbox != nil {
		payload := map[string]any{
			"dog_id":   created.ID,
			"status":   created.Status,
			"deadline": created.Deadline(),
		}
		if err := s.outbox.Enqueue(ctx, tx, journal.TopicDogCreated, payload); err != nil {
			return Record{}, fmt.Errorf("dog: enqueue outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("dog: commit tx: %w", err)
	}
	s.observe("intake", start)
	return created, nil
}

func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	if id == "" {
		return Record{}, ErrNotFound
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filters Filters) (ListResult, error) {
	if filters.Status != "" && !filters.Status.Valid() {
		return ListResult{}, fmt.Errorf("%w: %q", ErrInvalidStatus, filters.Status)
	}
	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: items, Total: total}, nil
}

// Transition applies an administrative status change, for example moving a
// rescued dog under care. Pending requests are left untouched.
func (s *Service) Transition(ctx context.Context, params TransitionParams) (Record, error) {
	start := time.Now()
	if params.DogID == "" {
		return Record{}, ErrNotFound
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("dog: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.repo.GetForUpdate(ctx, tx, params.DogID)
	if err != nil {
		return Record{}, err
	}
	from := current.Status
	if err := current.TransitionTo(params.Status); err != nil {
		return Record{}, err
	}

	updated, err := s.repo.UpdateStatus(ctx, tx, current.ID, current.Status)
	if err != nil {
		return Record{}, err
	}

	if s.timeline != nil {
		entry := journal.Entry{
			DogID:   updated.ID,
			Type:    journal.EventDogStatusChanged,
			ActorID: params.AdminID,
			Payload: map[string]any{"from": from, "to": updated.Status},
		}
		if err := s.timeline.Append(ctx, tx, entry); err != nil {
			return Record{}, fmt.Errorf("dog: append timeline: %w", err)
		}
	}
	if s.outbox != nil {
		payload := map[string]any{"dog_id": updated.ID, "from": from, "to": updated.Status}
		if err := s.outbox.Enqueue(ctx, tx, journal.TopicDogStatusChanged, payload); err != nil {
			return Record{}, fmt.Errorf("dog: enqueue outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("dog: commit tx: %w", err)
	}
	s.observe("transition", start)
	return updated, nil
}

func (s *Service) observe(op string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.OpLatencyMS.WithLabelValues(op).Observe(float64(time.Since(start).Milliseconds()))
}
