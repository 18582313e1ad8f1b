package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/auth"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/capture"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/dog"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/journal"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/ledger"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/listing"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/obs"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/resolution"
)

// Harness owns the lifecycle of the Postgres test database and pgx pool.
type Harness struct {
	container *PGContainer
	pool      *pgxpool.Pool
	dsn       string
	teardown  func(context.Context) error
}

// NewHarness starts (or reuses) Postgres and applies migrations. A reused
// database gets its own schema so concurrent runs do not collide.
func NewHarness(ctx context.Context, overrideDSN string) (*Harness, error) {
	c, dsn, err := StartPostgres(ctx, overrideDSN)
	if err != nil {
		return nil, fmt.Errorf("start postgres: %w", err)
	}
	pool, teardown, err := OpenMigrated(ctx, dsn, c.Shared())
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, err
	}
	return &Harness{container: c, pool: pool, dsn: dsn, teardown: teardown}, nil
}

func (h *Harness) Pool() *pgxpool.Pool {
	return h.pool
}

// DSN returns the connection string for direct connections (e.g., chaos).
func (h *Harness) DSN() string {
	return h.dsn
}

// Close tears down resources.
func (h *Harness) Close(ctx context.Context) {
	if h.pool != nil {
		h.pool.Close()
	}
	if h.teardown != nil {
		_ = h.teardown(ctx)
	}
	_ = h.container.Terminate(ctx)
}

// Reset truncates mutable tables between scenarios.
func (h *Harness) Reset(ctx context.Context) error {
	_, err := h.pool.Exec(ctx, `TRUNCATE TABLE outbox, timeline_events, capture_requests, custody_requests, dogs, users CASCADE`)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// SeedUser inserts an account directly; the hash is never checked by tests.
func (h *Harness) SeedUser(ctx context.Context, username string, role auth.Role) (string, error) {
	u, err := auth.NewRepository(h.pool).CreateUser(ctx, auth.CreateUserParams{
		Username:     username,
		PasswordHash: "x",
		Role:         role,
	})
	if err != nil {
		return "", fmt.Errorf("seed user %s: %w", username, err)
	}
	return u.ID, nil
}

// Services is the production wiring over the harness pool.
type Services struct {
	Dogs     *dog.Service
	Requests *ledger.Service
	Resolver *resolution.Service
	Listing  *listing.Service
	Captures *capture.Service
	History  *journal.Reader
	Relay    *journal.Relay
	Metrics  *obs.Metrics
}

// Services builds every domain service the way cmd/api does. metrics may be
// nil.
func (h *Harness) Services(metrics *obs.Metrics, logger *obs.Logger) Services {
	writer := journal.NewWriter()
	dogRepo := dog.NewRepository(h.pool)
	requestRepo := ledger.NewRepository(h.pool)

	return Services{
		Dogs:     dog.NewService(h.pool, dogRepo, writer, writer).WithMetrics(metrics),
		Requests: ledger.NewService(h.pool, requestRepo, dogRepo, writer, writer).WithMetrics(metrics),
		Resolver: resolution.NewService(h.pool, dogRepo, requestRepo, writer, writer).WithLogger(logger).WithMetrics(metrics),
		Listing:  listing.NewService(dogRepo, requestRepo),
		Captures: capture.NewService(h.pool, capture.NewRepository(h.pool), writer, writer).WithMetrics(metrics),
		History:  journal.NewReader(h.pool),
		Relay:    journal.NewRelay(h.pool, journal.LogPublisher{Logger: logger}, logger, metrics, journal.RelayConfig{BatchSize: 50}),
		Metrics:  metrics,
	}
}
