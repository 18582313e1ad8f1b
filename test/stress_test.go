package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/auth"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/dog"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/obs"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/test/actors"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/test/chaos"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/test/infra"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 30*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent submitters")
	flDogs        = flag.Int("dogs", 6, "dogs contended for")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
	flChaos       = flag.Bool("chaos", true, "terminate random backends while running")
)

// newHarness skips unless a database is reachable.
func newHarness(t *testing.T, ctx context.Context) *infra.Harness {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres tests skipped in -short mode")
	}
	if *flDSN == "" && os.Getenv(infra.DSNEnv) == "" && !dockerAvailable(ctx) {
		t.Skipf("no docker and neither -dsn nor %s set", infra.DSNEnv)
	}
	h, err := infra.NewHarness(ctx, *flDSN)
	if err != nil {
		t.Fatalf("harness: %v", err)
	}
	t.Cleanup(func() { h.Close(context.Background()) })
	return h
}

func TestCustodyConcurrency(t *testing.T) {
	rand.Seed(*flSeed)
	seed := *flSeed

	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+90*time.Second)
	defer cancel()

	h := newHarness(t, ctx)
	pool := h.Pool()
	svc := h.Services(nil, obs.Nop())

	adminID := mustUser(t, ctx, h, "stress-admin", auth.RoleAdmin)
	dogIDs := make([]string, 0, *flDogs)
	for i := 0; i < *flDogs; i++ {
		d, err := svc.Dogs.Create(ctx, dog.CreateParams{
			AdminID:         adminID,
			Caption:         fmt.Sprintf("stress dog %d", i),
			ClaimWindowDays: windowDays(7),
		})
		if err != nil {
			t.Fatalf("seed dog: %v", err)
		}
		dogIDs = append(dogIDs, d.ID)
	}

	var stats actors.Stats
	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	for i := 0; i < *flConcurrency; i++ {
		userID := mustUser(t, ctx, h, fmt.Sprintf("stress-user-%d", i), auth.RoleUser)
		g.Go(func() error { return actors.Submitter(ctx2, svc.Requests, userID, dogIDs, &stats, stop) })
	}
	for i := 0; i < 3; i++ {
		g.Go(func() error {
			return actors.Resolver(ctx2, svc.Requests, svc.Resolver, adminID, dogIDs, 15, &stats, stop)
		})
	}
	g.Go(func() error { return actors.Transitioner(ctx2, svc.Dogs, adminID, dogIDs, &stats, stop) })
	for i := 0; i < 2; i++ {
		g.Go(func() error { return actors.OutboxWorker(ctx2, svc.Relay, &stats, stop) })
	}

	killed := make(chan int64, 1)
	if *flChaos {
		go func() { killed <- chaos.TerminateRandomBackends(ctx2, pool, 2*time.Second, stop) }()
	} else {
		killed <- 0
	}

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			if checkOracles(t, ctx, pool, seed) {
				break loop
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("actors errored: %v", err)
	}
	checkOracles(t, ctx, pool, seed)

	t.Logf("seed=%d submitted=%d accepted=%d rejected=%d contention=%d transient=%d killed=%d",
		seed, stats.Submitted.Load(), stats.Accepted.Load(), stats.Rejected.Load(),
		stats.Contention.Load(), stats.Transient.Load(), <-killed)
	if n := stats.Unexpected.Load(); n > 0 {
		t.Fatalf("%d unexpected database errors, last: %v (seed=%d)", n, stats.LastErr.Load(), seed)
	}
	if stats.Submitted.Load() == 0 {
		t.Fatalf("no request was ever submitted (seed=%d)", seed)
	}
}

// checkOracles reports whether an oracle failed.
func checkOracles(t *testing.T, ctx context.Context, pool *pgxpool.Pool, seed int64) bool {
	t.Helper()
	name, row, err := oracles.Run(ctx, pool)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		t.Errorf("oracle error: %v", err)
		return true
	}
	if name != "" {
		dumpRecent(t, ctx, pool)
		t.Errorf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
		return true
	}
	return false
}

func mustUser(t *testing.T, ctx context.Context, h *infra.Harness, name string, role auth.Role) string {
	t.Helper()
	id, err := h.SeedUser(ctx, fmt.Sprintf("%s-%d", name, rand.Int63()), role)
	if err != nil {
		t.Fatalf("%v", err)
	}
	return id
}

func windowDays(n int) *int { return &n }

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"dogs", `SELECT id, status, intake_time, claim_window_days, updated_at FROM dogs ORDER BY updated_at DESC LIMIT 20`},
		{"custody_requests", `SELECT id, dog_id, user_id, kind, status, created_at, resolved_at FROM custody_requests ORDER BY created_at DESC LIMIT 50`},
		{"timeline_events", `SELECT id, dog_id, request_id, type, created_at FROM timeline_events ORDER BY id DESC LIMIT 50`},
		{"outbox", `SELECT id, topic, status, attempts, created_at FROM outbox ORDER BY created_at DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
