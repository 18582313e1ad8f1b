package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/db"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/dog"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/journal"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/obs"
)

// DogLocker takes the per-dog row lock.
type DogLocker interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (dog.Record, error)
}

type TimelineWriter interface {
	Append(ctx context.Context, tx pgx.Tx, e journal.Entry) error
}

type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

type Service struct {
	pool        db.TxBeginner
	repo        Repository
	dogs        DogLocker
	timeline    TimelineWriter
	outbox      OutboxWriter
	metrics     *obs.Metrics
	idGenerator func() string
	now         func() time.Time
}

type SubmitParams struct {
	DogID        string
	UserID       string
	Kind         Kind
	Message      string
	EvidenceRefs []string
}

func NewService(pool db.TxBeginner, repo Repository, dogs DogLocker, timeline TimelineWriter, outbox OutboxWriter) *Service {
	return &Service{
		pool:        pool,
		repo:        repo,
		dogs:        dogs,
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

// Submit files a pending claim or adoption request. The dog row stays locked
// from the availability check through the insert, so a concurrent resolution
// cannot close the dog in between.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (Record, error) {
	start := time.Now()
	rec, err := s.submit(ctx, params)
	s.record(params.Kind, err, start)
	return rec, err
}

func (s *Service) submit(ctx context.Context, params SubmitParams) (Record, error) {
	if !params.Kind.Valid() {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidKind, params.Kind)
	}
	if params.UserID == "" {
		return Record{}, fmt.Errorf("ledger: missing user id")
	}
	if params.DogID == "" {
		return Record{}, dog.ErrNotFound
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.dogs.GetForUpdate(ctx, tx, params.DogID)
	if err != nil {
		return Record{}, err
	}
	now := s.now()
	if !d.IsOpenForResolution(now) {
		if d.Status.Terminal() {
			return Record{}, fmt.Errorf("%w: dog is %s", ErrDogUnavailable, d.Status)
		}
		return Record{}, fmt.Errorf("%w: window closed at %s", ErrDogUnavailable, d.Deadline().Format(time.RFC3339))
	}

	active, err := s.repo.HasActive(ctx, tx, params.DogID, params.UserID, params.Kind)
	if err != nil {
		return Record{}, err
	}
	if active {
		return Record{}, ErrDuplicateRequest
	}

	created, err := s.repo.Insert(ctx, tx, Record{
		ID:           s.idGenerator(),
		DogID:        params.DogID,
		UserID:       params.UserID,
		Kind:         params.Kind,
		Status:       StatusPending,
		Message:      strings.TrimSpace(params.Message),
		EvidenceRefs: params.EvidenceRefs,
		CreatedAt:    now,
	})
	if err != nil {
		return Record{}, err
	}

	if s.timeline != nil {
		entry := journal.Entry{
			DogID:     created.DogID,
			RequestID: created.ID,
			Type:      journal.EventRequestSubmitted,
			ActorID:   created.UserID,
			Payload:   map[string]any{"kind": created.Kind},
		}
		if err := s.timeline.Append(ctx, tx, entry); err != nil {
			return Record{}, fmt.Errorf("ledger: append timeline: %w", err)
		}
	}
	if s.outbox != nil {
		payload := map[string]any{
			"request_id": created.ID,
			"dog_id":     created.DogID,
			"user_id":    created.UserID,
			"kind":       created.Kind,
		}
		if err := s.outbox.Enqueue(ctx, tx, journal.TopicRequestSubmitted, payload); err != nil {
			return Record{}, fmt.Errorf("ledger: enqueue outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if db.IsUniqueViolation(err) {
			return Record{}, ErrDuplicateRequest
		}
		return Record{}, fmt.Errorf("ledger: commit tx: %w", err)
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	if id == "" {
		return Record{}, ErrRequestNotFound
	}
	return s.repo.GetByID(ctx, id)
}

// ListForDog returns requests oldest first. A nil kind lists both kinds.
func (s *Service) ListForDog(ctx context.Context, dogID string, kind *Kind) ([]Record, error) {
	if kind != nil && !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, *kind)
	}
	return s.repo.ListForDog(ctx, dogID, kind)
}

func (s *Service) ListForUser(ctx context.Context, userID string, kind *Kind) ([]Record, error) {
	if kind != nil && !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, *kind)
	}
	return s.repo.ListForUser(ctx, userID, kind)
}

func (s *Service) record(kind Kind, err error, start time.Time) {
	if s.metrics == nil {
		return
	}
	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrDogUnavailable):
		result = "unavailable"
	case errors.Is(err, ErrDuplicateRequest):
		result = "duplicate"
	default:
		result = "error"
	}
	s.metrics.RequestsSubmitted.WithLabelValues(string(kind), result).Inc()
	s.metrics.OpLatencyMS.WithLabelValues("submit").Observe(float64(time.Since(start).Milliseconds()))
}
