package test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/auth"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/capture"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/dog"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/journal"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/ledger"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/listing"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/obs"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/resolution"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/test/oracles"
)

func TestAcceptCascadesOnPostgres(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	h := newHarness(t, ctx)
	metrics := obs.NewMetrics(prometheus.NewRegistry())
	svc := h.Services(metrics, obs.Nop())

	adminID := mustUser(t, ctx, h, "admin", auth.RoleAdmin)
	owner := mustUser(t, ctx, h, "owner", auth.RoleUser)
	adopter := mustUser(t, ctx, h, "adopter", auth.RoleUser)
	other := mustUser(t, ctx, h, "other", auth.RoleUser)

	d, err := svc.Dogs.Create(ctx, dog.CreateParams{
		AdminID:    adminID,
		Caption:    "tan aspin with red collar",
		Violations: []dog.Violation{dog.ViolationNoLeash},
	})
	if err != nil {
		t.Fatalf("create dog: %v", err)
	}
	if d.ClaimWindowDays != dog.DefaultClaimWindowDays || d.Status != dog.StatusRescued {
		t.Fatalf("unexpected defaults %+v", d)
	}

	submit := func(user string, kind ledger.Kind) ledger.Record {
		t.Helper()
		rec, err := svc.Requests.Submit(ctx, ledger.SubmitParams{DogID: d.ID, UserID: user, Kind: kind})
		if err != nil {
			t.Fatalf("submit %s/%s: %v", user, kind, err)
		}
		return rec
	}
	claim := submit(owner, ledger.KindClaim)
	adopt := submit(adopter, ledger.KindAdopt)
	submit(other, ledger.KindAdopt)

	if _, err := svc.Requests.Submit(ctx, ledger.SubmitParams{DogID: d.ID, UserID: owner, Kind: ledger.KindClaim}); !errors.Is(err, ledger.ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}

	entries, err := svc.Listing.Query(ctx, listing.Query{})
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(entries) != 1 || entries[0].Bucket != listing.BucketOpenPendingDecision || entries[0].PendingRequests != 3 {
		t.Fatalf("unexpected listing %+v", entries)
	}

	if _, err := svc.Resolver.Resolve(ctx, resolution.ResolveParams{RequestID: adopt.ID, Decision: resolution.Reject, AdminID: adminID}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	out, err := svc.Resolver.Resolve(ctx, resolution.ResolveParams{RequestID: claim.ID, Decision: resolution.Accept, AdminID: adminID})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if out.Dog.Status != dog.StatusReunited || !out.DogChanged || len(out.CascadeRejected) != 1 {
		t.Fatalf("unexpected outcome %+v", out)
	}

	if _, err := svc.Resolver.Resolve(ctx, resolution.ResolveParams{RequestID: claim.ID, Decision: resolution.Reject, AdminID: adminID}); !errors.Is(err, resolution.ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
	if _, err := svc.Requests.Submit(ctx, ledger.SubmitParams{DogID: d.ID, UserID: adopter, Kind: ledger.KindAdopt}); !errors.Is(err, ledger.ErrDogUnavailable) {
		t.Fatalf("expected ErrDogUnavailable after reunion, got %v", err)
	}

	recs, err := svc.Requests.ListForDog(ctx, d.ID, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, r := range recs {
		if r.Status == ledger.StatusPending {
			t.Errorf("request %s still pending after accept", r.ID)
		}
	}

	history, err := svc.History.DogHistory(ctx, d.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	counts := map[string]int{}
	for _, e := range history {
		counts[e.Type]++
	}
	want := map[string]int{
		journal.EventDogIntake:        1,
		journal.EventRequestSubmitted: 3,
		journal.EventRequestRejected:  1,
		journal.EventRequestAccepted:  1,
		journal.EventRequestCascaded:  1,
		journal.EventDogStatusChanged: 1,
	}
	for typ, n := range want {
		if counts[typ] != n {
			t.Errorf("timeline %s: want %d, got %d", typ, n, counts[typ])
		}
	}

	drained, err := svc.Relay.DrainOnce(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if drained == 0 {
		t.Fatalf("expected outbox rows to relay")
	}
	if got := testutil.ToFloat64(metrics.OutboxRelayed.WithLabelValues("processed")); int(got) != drained {
		t.Errorf("relayed metric %v, drained %d", got, drained)
	}

	if name, row, err := oracles.Run(ctx, h.Pool()); err != nil || name != "" {
		t.Fatalf("oracle %s failed: %s %v", name, row, err)
	}
}

func TestExpiredDogRefusesSubmissionsOnPostgres(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	h := newHarness(t, ctx)
	svc := h.Services(nil, obs.Nop())
	adminID := mustUser(t, ctx, h, "admin", auth.RoleAdmin)
	user := mustUser(t, ctx, h, "late", auth.RoleUser)

	d, err := svc.Dogs.Create(ctx, dog.CreateParams{
		AdminID:         adminID,
		ClaimWindowDays: windowDays(1),
		IntakeTime:      time.Now().UTC().Add(-25 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create dog: %v", err)
	}

	if _, err := svc.Requests.Submit(ctx, ledger.SubmitParams{DogID: d.ID, UserID: user, Kind: ledger.KindAdopt}); !errors.Is(err, ledger.ErrDogUnavailable) {
		t.Fatalf("expected ErrDogUnavailable, got %v", err)
	}

	bucket := listing.BucketExpiredUnresolved
	entries, err := svc.Listing.Query(ctx, listing.Query{Bucket: &bucket})
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(entries) != 1 || entries[0].Dog.ID != d.ID || entries[0].TimeRemaining != 0 {
		t.Fatalf("unexpected expired listing %+v", entries)
	}
}

func TestCaptureLifecycleOnPostgres(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	h := newHarness(t, ctx)
	svc := h.Services(nil, obs.Nop())
	adminID := mustUser(t, ctx, h, "admin", auth.RoleAdmin)
	user := mustUser(t, ctx, h, "reporter", auth.RoleUser)

	lat, long := 10.31, 123.89
	c, err := svc.Captures.File(ctx, capture.FileParams{UserID: user, Reason: capture.ReasonAggressive, Latitude: &lat, Longitude: &long})
	if err != nil {
		t.Fatalf("file: %v", err)
	}

	when := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	resolved, err := svc.Captures.Resolve(ctx, capture.ResolveParams{CaptureID: c.ID, AdminID: adminID, Decision: capture.Accept, ScheduledDate: &when})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != capture.StatusAccepted || resolved.AssignedAdmin == nil || *resolved.AssignedAdmin != adminID {
		t.Fatalf("unexpected capture %+v", resolved)
	}
	if _, err := svc.Captures.Resolve(ctx, capture.ResolveParams{CaptureID: c.ID, AdminID: adminID, Decision: capture.Decline}); !errors.Is(err, capture.ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}

	mine, err := svc.Captures.ListForUser(ctx, user)
	if err != nil || len(mine) != 1 {
		t.Fatalf("list for user: %v %+v", err, mine)
	}
	pending, err := svc.Captures.ListAll(ctx, capture.StatusPending)
	if err != nil || len(pending) != 0 {
		t.Fatalf("pending queue: %v %+v", err, pending)
	}
}
