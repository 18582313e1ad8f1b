package resolution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/db"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/dog"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/journal"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/ledger"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/obs"
)

type DogStore interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (dog.Record, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status dog.Status) (dog.Record, error)
}

type RequestStore interface {
	GetByID(ctx context.Context, id string) (ledger.Record, error)
	LockForDog(ctx context.Context, tx pgx.Tx, dogID string) ([]ledger.Record, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status ledger.Status, resolvedBy string, resolvedAt time.Time) (ledger.Record, error)
}

type TimelineWriter interface {
	Append(ctx context.Context, tx pgx.Tx, e journal.Entry) error
}

type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

type Service struct {
	pool     db.TxBeginner
	dogs     DogStore
	requests RequestStore
	timeline TimelineWriter
	outbox   OutboxWriter
	logger   *obs.Logger
	metrics  *obs.Metrics
	now      func() time.Time
}

type ResolveParams struct {
	RequestID string
	Decision  Decision
	AdminID   string
}

func NewService(pool db.TxBeginner, dogs DogStore, requests RequestStore, timeline TimelineWriter, outbox OutboxWriter) *Service {
	return &Service{
		pool:     pool,
		dogs:     dogs,
		requests: requests,
		timeline: timeline,
		outbox:   outbox,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithLogger(l *obs.Logger) *Service {
	s.logger = l
	return s
}

func (s *Service) WithMetrics(m *obs.Metrics) *Service {
	s.metrics = m
	return s
}

// Resolve applies an administrator's decision in a single transaction.
//
// Locks are always taken dog first, then the dog's requests in creation
// order, the same order Submit uses, so resolutions racing on sibling
// requests queue behind each other instead of deadlocking. The loser re-reads
// its target under the lock and sees it already resolved.
func (s *Service) Resolve(ctx context.Context, params ResolveParams) (Outcome, error) {
	start := time.Now()
	out, err := s.resolve(ctx, params)
	s.record(params, out, err, start)
	return out, err
}

func (s *Service) resolve(ctx context.Context, params ResolveParams) (Outcome, error) {
	if !params.Decision.Valid() {
		return Outcome{}, fmt.Errorf("%w: %q", ErrInvalidDecision, params.Decision)
	}
	if params.RequestID == "" {
		return Outcome{}, ledger.ErrRequestNotFound
	}

	// Unlocked read only to learn which dog to lock.
	probe, err := s.requests.GetByID(ctx, params.RequestID)
	if err != nil {
		return Outcome{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolution: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.dogs.GetForUpdate(ctx, tx, probe.DogID)
	if err != nil {
		return Outcome{}, err
	}
	siblings, err := s.requests.LockForDog(ctx, tx, d.ID)
	if err != nil {
		return Outcome{}, err
	}
	target, ok := find(siblings, params.RequestID)
	if !ok {
		return Outcome{}, ledger.ErrRequestNotFound
	}

	now := s.now()
	planned, err := Decide(d, target, siblings, params.Decision, now, params.AdminID)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Dog: planned.Dog, DogChanged: planned.DogChanged}
	out.Request, err = s.requests.UpdateStatus(ctx, tx, planned.Request.ID, planned.Request.Status, params.AdminID, now)
	if err != nil {
		return Outcome{}, err
	}
	if planned.DogChanged {
		out.Dog, err = s.dogs.UpdateStatus(ctx, tx, d.ID, planned.Dog.Status)
		if err != nil {
			return Outcome{}, err
		}
	}
	for _, c := range planned.CascadeRejected {
		rejected, err := s.requests.UpdateStatus(ctx, tx, c.ID, ledger.StatusRejected, params.AdminID, now)
		if err != nil {
			return Outcome{}, err
		}
		out.CascadeRejected = append(out.CascadeRejected, rejected)
	}

	if err := s.journal(ctx, tx, d.Status, out, params.AdminID); err != nil {
		return Outcome{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Outcome{}, fmt.Errorf("resolution: commit tx: %w", err)
	}
	return out, nil
}

func (s *Service) journal(ctx context.Context, tx pgx.Tx, from dog.Status, out Outcome, adminID string) error {
	if s.timeline != nil {
		eventType := journal.EventRequestRejected
		if out.Request.Status == ledger.StatusAccepted {
			eventType = journal.EventRequestAccepted
		}
		entries := []journal.Entry{{
			DogID:     out.Request.DogID,
			RequestID: out.Request.ID,
			Type:      eventType,
			ActorID:   adminID,
			Payload:   map[string]any{"kind": out.Request.Kind, "user_id": out.Request.UserID},
		}}
		for _, c := range out.CascadeRejected {
			entries = append(entries, journal.Entry{
				DogID:     c.DogID,
				RequestID: c.ID,
				Type:      journal.EventRequestCascaded,
				ActorID:   adminID,
				Payload:   map[string]any{"kind": c.Kind, "accepted_request_id": out.Request.ID},
			})
		}
		if out.DogChanged {
			entries = append(entries, journal.Entry{
				DogID:   out.Dog.ID,
				Type:    journal.EventDogStatusChanged,
				ActorID: adminID,
				Payload: map[string]any{"from": from, "to": out.Dog.Status, "request_id": out.Request.ID},
			})
		}
		for _, e := range entries {
			if err := s.timeline.Append(ctx, tx, e); err != nil {
				return fmt.Errorf("resolution: append timeline: %w", err)
			}
		}
	}

	if s.outbox != nil {
		cascaded := make([]string, 0, len(out.CascadeRejected))
		for _, c := range out.CascadeRejected {
			cascaded = append(cascaded, c.ID)
		}
		payload := map[string]any{
			"request_id":        out.Request.ID,
			"dog_id":            out.Request.DogID,
			"user_id":           out.Request.UserID,
			"kind":              out.Request.Kind,
			"status":            out.Request.Status,
			"cascade_rejected":  cascaded,
			"dog_status":        out.Dog.Status,
			"dog_status_change": out.DogChanged,
		}
		if err := s.outbox.Enqueue(ctx, tx, journal.TopicRequestResolved, payload); err != nil {
			return fmt.Errorf("resolution: enqueue outbox: %w", err)
		}
		if out.DogChanged {
			payload := map[string]any{"dog_id": out.Dog.ID, "from": from, "to": out.Dog.Status}
			if err := s.outbox.Enqueue(ctx, tx, journal.TopicDogStatusChanged, payload); err != nil {
				return fmt.Errorf("resolution: enqueue outbox: %w", err)
			}
		}
	}
	return nil
}

func (s *Service) record(params ResolveParams, out Outcome, err error, start time.Time) {
	if errors.Is(err, dog.ErrInvalidTransition) {
		// Reachable only when an admin closed the dog directly while requests
		// were still pending.
		s.logger.Error(map[string]any{
			"op":         "resolve",
			"request_id": params.RequestID,
			"decision":   params.Decision,
			"admin_id":   params.AdminID,
			"error":      err,
			"msg":        "unexpected dog transition failure",
		})
	}
	if s.metrics == nil {
		return
	}
	result := "success"
	switch {
	case err == nil:
		if n := len(out.CascadeRejected); n > 0 {
			s.metrics.CascadeRejections.Add(float64(n))
		}
	case errors.Is(err, ErrAlreadyResolved):
		result = "already_resolved"
	case errors.Is(err, ledger.ErrRequestNotFound), errors.Is(err, dog.ErrNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	s.metrics.Resolutions.WithLabelValues(string(params.Decision), result).Inc()
	s.metrics.OpLatencyMS.WithLabelValues("resolve").Observe(float64(time.Since(start).Milliseconds()))
}

func find(records []ledger.Record, id string) (ledger.Record, bool) {
	for _, r := range records {
		if r.ID == id {
			return r, true
		}
	}
	return ledger.Record{}, false
}
