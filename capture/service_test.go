package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/db/dbtest"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/journal"
)

var now = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func newTestService() (*Service, *dbtest.Pool, *memRepo, *recorder) {
	pool := &dbtest.Pool{}
	repo := &memRepo{rows: map[string]Record{}}
	rec := &recorder{}
	svc := NewService(pool, repo, rec, rec).
		WithClock(func() time.Time { return now }).
		WithIDGenerator(func() string { return "cap-1" })
	return svc, pool, repo, rec
}

func ptr(f float64) *float64 { return &f }

func TestFile_Valid(t *testing.T) {
	svc, pool, _, rec := newTestService()

	got, err := svc.File(context.Background(), FileParams{
		UserID:      "u1",
		Reason:      ReasonBiting,
		Description: " bit a child near the market ",
		Latitude:    ptr(10.3),
		Longitude:   ptr(123.9),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusPending || got.Description != "bit a child near the market" {
		t.Errorf("unexpected record %+v", got)
	}
	if !pool.Last().Committed {
		t.Errorf("expected commit")
	}
	if len(rec.types) != 1 || rec.types[0] != journal.EventCaptureFiled {
		t.Errorf("unexpected timeline %v", rec.types)
	}
}

func TestFile_Validation(t *testing.T) {
	svc, pool, _, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		name   string
		params FileParams
		want   error
	}{
		{"reason", FileParams{UserID: "u", Reason: "noisy"}, ErrInvalidReason},
		{"latitude", FileParams{UserID: "u", Reason: ReasonStray, Latitude: ptr(91), Longitude: ptr(0)}, ErrInvalidLocation},
		{"longitude", FileParams{UserID: "u", Reason: ReasonStray, Latitude: ptr(0), Longitude: ptr(-180.5)}, ErrInvalidLocation},
		{"half location", FileParams{UserID: "u", Reason: ReasonStray, Latitude: ptr(0)}, ErrInvalidLocation},
		{"requester", FileParams{Reason: ReasonStray}, ErrMissingRequester},
	}
	for _, tc := range cases {
		if _, err := svc.File(ctx, tc.params); !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if len(pool.Txs) != 0 {
		t.Errorf("validation failures must not open a transaction")
	}

	if _, err := svc.File(ctx, FileParams{UserID: "u", Reason: ReasonSick, Latitude: ptr(-90), Longitude: ptr(180)}); err != nil {
		t.Errorf("boundary coordinates should be accepted: %v", err)
	}
}

func TestResolve_AcceptThenAlreadyResolved(t *testing.T) {
	svc, _, repo, rec := newTestService()
	repo.rows["cap-1"] = Record{ID: "cap-1", UserID: "u1", Reason: ReasonStray, Status: StatusPending}
	when := now.Add(48 * time.Hour)
	ctx := context.Background()

	got, err := svc.Resolve(ctx, ResolveParams{CaptureID: "cap-1", AdminID: "admin", Decision: Accept, ScheduledDate: &when, Message: "team dispatched"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusAccepted || got.AssignedAdmin == nil || *got.AssignedAdmin != "admin" {
		t.Errorf("unexpected record %+v", got)
	}
	if got.ScheduledDate == nil || !got.ScheduledDate.Equal(when) {
		t.Errorf("scheduled date not stored")
	}
	if len(rec.topics) != 1 || rec.topics[0] != journal.TopicCaptureResolved {
		t.Errorf("unexpected outbox %v", rec.topics)
	}

	if _, err := svc.Resolve(ctx, ResolveParams{CaptureID: "cap-1", AdminID: "admin", Decision: Decline}); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
}

func TestResolve_DeclineRecordsAdmin(t *testing.T) {
	svc, _, repo, _ := newTestService()
	repo.rows["cap-1"] = Record{ID: "cap-1", Status: StatusPending}

	got, err := svc.Resolve(context.Background(), ResolveParams{CaptureID: "cap-1", AdminID: "admin", Decision: Decline, Message: "not in our area"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusDeclined || got.AssignedAdmin == nil || *got.AssignedAdmin != "admin" || got.AdminMessage != "not in our area" {
		t.Errorf("unexpected record %+v", got)
	}
	if got.ScheduledDate != nil {
		t.Errorf("decline must not carry a schedule, got %v", got.ScheduledDate)
	}
}

func TestResolve_Validation(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Resolve(ctx, ResolveParams{CaptureID: "cap-1", Decision: Accept}); !errors.Is(err, ErrMissingSchedule) {
		t.Errorf("expected ErrMissingSchedule, got %v", err)
	}
	if _, err := svc.Resolve(ctx, ResolveParams{CaptureID: "cap-1", Decision: "ignore"}); !errors.Is(err, ErrInvalidDecision) {
		t.Errorf("expected ErrInvalidDecision, got %v", err)
	}
	if _, err := svc.Resolve(ctx, ResolveParams{CaptureID: "missing", Decision: Decline}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

type memRepo struct {
	rows map[string]Record
}

func (m *memRepo) Create(ctx context.Context, tx pgx.Tx, rec Record) (Record, error) {
	m.rows[rec.ID] = rec
	return rec, nil
}

func (m *memRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Record, error) {
	rec, ok := m.rows[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *memRepo) Resolve(ctx context.Context, tx pgx.Tx, p ResolveRow) (Record, error) {
	rec := m.rows[p.ID]
	if rec.Status != StatusPending {
		return Record{}, ErrAlreadyResolved
	}
	rec.Status = p.Status
	if p.AdminID != "" {
		admin := p.AdminID
		rec.AssignedAdmin = &admin
	}
	rec.ScheduledDate = p.ScheduledDate
	rec.AdminMessage = p.Message
	at := p.ResolvedAt
	rec.ResolvedAt = &at
	m.rows[p.ID] = rec
	return rec, nil
}

func (m *memRepo) List(ctx context.Context, userID string, status Status) ([]Record, error) {
	out := []Record{}
	for _, r := range m.rows {
		if (userID == "" || r.UserID == userID) && (status == "" || r.Status == status) {
			out = append(out, r)
		}
	}
	return out, nil
}

type recorder struct {
	types  []string
	topics []string
}

func (r *recorder) Append(ctx context.Context, tx pgx.Tx, e journal.Entry) error {
	r.types = append(r.types, e.Type)
	return nil
}

func (r *recorder) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	r.topics = append(r.topics, topic)
	return nil
}
