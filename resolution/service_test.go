package resolution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/db/dbtest"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/dog"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/journal"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/ledger"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/obs"
)

func TestResolve_AcceptPersistsEverythingInOneTx(t *testing.T) {
	d, reqs := fixture()
	st := newStore(d, reqs)
	pool := &dbtest.Pool{}
	j := &recordingJournal{}
	m := obs.NewMetrics(prometheus.NewRegistry())
	svc := NewService(pool, dogSide{st}, requestSide{st}, j, j).
		WithClock(func() time.Time { return t0.Add(5 * time.Hour) }).
		WithMetrics(m)

	out, err := svc.Resolve(context.Background(), ResolveParams{RequestID: "r1", Decision: Accept, AdminID: "admin"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pool.Txs) != 1 || !pool.Last().Committed {
		t.Fatalf("expected exactly one committed tx")
	}
	if st.dog.Status != dog.StatusReunited {
		t.Errorf("dog status not persisted: %s", st.dog.Status)
	}
	if st.reqs["r1"].Status != ledger.StatusAccepted || st.reqs["r2"].Status != ledger.StatusRejected {
		t.Errorf("request statuses not persisted: %+v", st.reqs)
	}
	if st.reqs["r3"].ResolvedAt != nil {
		t.Errorf("already rejected request must not be rewritten")
	}
	if len(out.CascadeRejected) != 1 {
		t.Errorf("expected one cascade, got %d", len(out.CascadeRejected))
	}
	if st.order[0] != "lock dog" || st.order[1] != "lock requests" {
		t.Errorf("lock order must be dog then requests, got %v", st.order)
	}

	wantTypes := []string{journal.EventRequestAccepted, journal.EventRequestCascaded, journal.EventDogStatusChanged}
	if len(j.entries) != len(wantTypes) {
		t.Fatalf("expected %d timeline entries, got %d", len(wantTypes), len(j.entries))
	}
	for i, typ := range wantTypes {
		if j.entries[i].Type != typ {
			t.Errorf("entry %d: got %s, want %s", i, j.entries[i].Type, typ)
		}
	}
	if got := testutil.ToFloat64(m.CascadeRejections); got != 1 {
		t.Errorf("cascade counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Resolutions.WithLabelValues("accept", "success")); got != 1 {
		t.Errorf("resolution counter = %v, want 1", got)
	}
}

func TestResolve_SecondAcceptSeesResolved(t *testing.T) {
	d, reqs := fixture()
	st := newStore(d, reqs)
	svc := NewService(&dbtest.Pool{}, dogSide{st}, requestSide{st}, nil, nil)
	ctx := context.Background()

	if _, err := svc.Resolve(ctx, ResolveParams{RequestID: "r1", Decision: Accept}); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if _, err := svc.Resolve(ctx, ResolveParams{RequestID: "r2", Decision: Accept}); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("sibling accept after cascade: expected ErrAlreadyResolved, got %v", err)
	}
	if st.dog.Status != dog.StatusReunited {
		t.Errorf("dog must stay reunited, got %s", st.dog.Status)
	}
}

func TestResolve_FailureRollsBack(t *testing.T) {
	d, reqs := fixture()
	st := newStore(d, reqs)
	st.dogUpdateErr = errors.New("boom")
	pool := &dbtest.Pool{}
	svc := NewService(pool, dogSide{st}, requestSide{st}, nil, nil)

	if _, err := svc.Resolve(context.Background(), ResolveParams{RequestID: "r1", Decision: Accept}); err == nil {
		t.Fatalf("expected error")
	}
	if pool.Last().Committed || !pool.Last().Rolled {
		t.Errorf("expected rollback without commit")
	}
}

func TestResolve_InvalidTransitionLogged(t *testing.T) {
	d, reqs := fixture()
	d.Status = dog.StatusAdopted
	st := newStore(d, reqs)
	var buf bytes.Buffer
	svc := NewService(&dbtest.Pool{}, dogSide{st}, requestSide{st}, nil, nil).WithLogger(obs.NewLoggerTo(&buf))

	_, err := svc.Resolve(context.Background(), ResolveParams{RequestID: "r1", Decision: Accept, AdminID: "admin"})
	if !errors.Is(err, dog.ErrInvalidTransition) {
		t.Fatalf("expected dog.ErrInvalidTransition, got %v", err)
	}
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Errorf("expected error log, got %q", buf.String())
	}
}

func TestSubmitResolveSubmit_ClosesDogOnAccept(t *testing.T) {
	d := dog.Record{ID: "D", Status: dog.StatusRescued, IntakeTime: t0, ClaimWindowDays: 3}
	st := newStore(d, nil)
	pool := &dbtest.Pool{}
	ctx := context.Background()

	now := t0.Add(48 * time.Hour)
	clock := func() time.Time { return now }
	n := 0
	requests := ledger.NewService(pool, ledgerSide{requestSide{st}}, dogSide{st}, nil, nil).
		WithClock(clock).
		WithIDGenerator(func() string { n++; return fmt.Sprintf("req-%d", n) })
	svc := NewService(pool, dogSide{st}, requestSide{st}, nil, nil).WithClock(clock)

	claim, err := requests.Submit(ctx, ledger.SubmitParams{DogID: "D", UserID: "A", Kind: ledger.KindClaim})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	now = now.Add(time.Hour)
	adopt, err := requests.Submit(ctx, ledger.SubmitParams{DogID: "D", UserID: "B", Kind: ledger.KindAdopt})
	if err != nil {
		t.Fatalf("adopt: %v", err)
	}

	now = now.Add(time.Hour)
	out, err := svc.Resolve(ctx, ResolveParams{RequestID: claim.ID, Decision: Accept, AdminID: "admin"})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if out.Dog.Status != dog.StatusReunited || len(out.CascadeRejected) != 1 || out.CascadeRejected[0].ID != adopt.ID {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if st.reqs[adopt.ID].Status != ledger.StatusRejected || !st.reqs[adopt.ID].ResolvedAt.Equal(now) {
		t.Errorf("adopt request not cascaded at resolution time: %+v", st.reqs[adopt.ID])
	}

	now = now.Add(time.Hour)
	if _, err := requests.Submit(ctx, ledger.SubmitParams{DogID: "D", UserID: "C", Kind: ledger.KindAdopt}); !errors.Is(err, ledger.ErrDogUnavailable) {
		t.Fatalf("expected ErrDogUnavailable after reunion, got %v", err)
	}
	if len(st.ids) != 2 {
		t.Errorf("refused submission must not insert, have %v", st.ids)
	}
}

func TestResolve_Validation(t *testing.T) {
	d, reqs := fixture()
	st := newStore(d, reqs)
	pool := &dbtest.Pool{}
	svc := NewService(pool, dogSide{st}, requestSide{st}, nil, nil)
	ctx := context.Background()

	if _, err := svc.Resolve(ctx, ResolveParams{RequestID: "r1", Decision: "skip"}); !errors.Is(err, ErrInvalidDecision) {
		t.Errorf("expected ErrInvalidDecision, got %v", err)
	}
	if _, err := svc.Resolve(ctx, ResolveParams{RequestID: "missing", Decision: Reject}); !errors.Is(err, ledger.ErrRequestNotFound) {
		t.Errorf("expected ErrRequestNotFound, got %v", err)
	}
	if len(pool.Txs) != 0 {
		t.Errorf("validation failures must not open a transaction")
	}
}

type store struct {
	dog          dog.Record
	reqs         map[string]ledger.Record
	ids          []string
	order        []string
	dogUpdateErr error
}

func newStore(d dog.Record, reqs []ledger.Record) *store {
	s := &store{dog: d, reqs: map[string]ledger.Record{}}
	for _, r := range reqs {
		s.reqs[r.ID] = r
		s.ids = append(s.ids, r.ID)
	}
	return s
}

type dogSide struct{ *store }

type requestSide struct{ *store }

func (s dogSide) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (dog.Record, error) {
	if id != s.dog.ID {
		return dog.Record{}, dog.ErrNotFound
	}
	s.order = append(s.order, "lock dog")
	return s.dog, nil
}

func (s dogSide) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status dog.Status) (dog.Record, error) {
	if s.dogUpdateErr != nil {
		return dog.Record{}, s.dogUpdateErr
	}
	s.dog.Status = status
	return s.dog, nil
}

func (s requestSide) GetByID(ctx context.Context, id string) (ledger.Record, error) {
	r, ok := s.reqs[id]
	if !ok {
		return ledger.Record{}, ledger.ErrRequestNotFound
	}
	return r, nil
}

func (s requestSide) LockForDog(ctx context.Context, tx pgx.Tx, dogID string) ([]ledger.Record, error) {
	s.order = append(s.order, "lock requests")
	out := make([]ledger.Record, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.reqs[id])
	}
	return out, nil
}

func (s requestSide) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status ledger.Status, by string, at time.Time) (ledger.Record, error) {
	r := s.reqs[id]
	if r.Status != ledger.StatusPending {
		return ledger.Record{}, errors.New("not pending")
	}
	r.Status = status
	r.ResolvedBy = &by
	r.ResolvedAt = &at
	s.reqs[id] = r
	return r, nil
}

// ledgerSide lets ledger.Service file requests into the same store the
// resolver reads.
type ledgerSide struct{ requestSide }

func (s ledgerSide) Insert(ctx context.Context, tx pgx.Tx, rec ledger.Record) (ledger.Record, error) {
	s.reqs[rec.ID] = rec
	s.ids = append(s.ids, rec.ID)
	return rec, nil
}

func (s ledgerSide) HasActive(ctx context.Context, tx pgx.Tx, dogID, userID string, kind ledger.Kind) (bool, error) {
	for _, r := range s.reqs {
		if r.DogID == dogID && r.UserID == userID && r.Kind == kind && r.Status != ledger.StatusRejected {
			return true, nil
		}
	}
	return false, nil
}

func (s ledgerSide) ListForDog(ctx context.Context, dogID string, kind *ledger.Kind) ([]ledger.Record, error) {
	return s.LockForDog(ctx, nil, dogID)
}

func (s ledgerSide) ListForUser(ctx context.Context, userID string, kind *ledger.Kind) ([]ledger.Record, error) {
	return nil, nil
}

func (s ledgerSide) PendingCounts(ctx context.Context) (map[string]int, error) {
	return map[string]int{}, nil
}

type recordingJournal struct {
	entries []journal.Entry
	topics  []string
}

func (r *recordingJournal) Append(ctx context.Context, tx pgx.Tx, e journal.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

func (r *recordingJournal) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	r.topics = append(r.topics, topic)
	return nil
}
