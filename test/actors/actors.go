package actors

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/dog"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/journal"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/ledger"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/resolution"
)

// Stats counts outcomes across all actors. Unexpected holds errors that are
// neither contention outcomes nor connection churn from chaos.
type Stats struct {
	Submitted  atomic.Int64
	Rejected   atomic.Int64
	Accepted   atomic.Int64
	Contention atomic.Int64
	Transient  atomic.Int64
	Unexpected atomic.Int64
	LastErr    atomic.Value
}

func (s *Stats) record(err error, expected ...error) {
	for _, e := range expected {
		if errors.Is(err, e) {
			s.Contention.Add(1)
			return
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	s.LastErr.Store(err.Error())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && !strings.HasPrefix(pgErr.Code, "57") && !strings.HasPrefix(pgErr.Code, "08") {
		s.Unexpected.Add(1)
		return
	}
	// Connection churn from chaos; oracles decide whether it left bad state.
	s.Transient.Add(1)
}

func stopped(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return true
	case <-stop:
		return true
	default:
		return false
	}
}

func pause(lo, spread int) {
	time.Sleep(time.Duration(lo+rand.Intn(spread)) * time.Millisecond)
}

// Submitter files claim and adoption requests from one user against random
// dogs until stopped.
func Submitter(ctx context.Context, svc *ledger.Service, userID string, dogIDs []string, stats *Stats, stop <-chan struct{}) error {
	kinds := []ledger.Kind{ledger.KindClaim, ledger.KindAdopt}
	for !stopped(ctx, stop) {
		_, err := svc.Submit(ctx, ledger.SubmitParams{
			DogID:  dogIDs[rand.Intn(len(dogIDs))],
			UserID: userID,
			Kind:   kinds[rand.Intn(len(kinds))],
		})
		if err == nil {
			stats.Submitted.Add(1)
		} else {
			stats.record(err, ledger.ErrDogUnavailable, ledger.ErrDuplicateRequest)
		}
		pause(5, 20)
	}
	return nil
}

// Resolver picks a pending request on a random dog and decides it. Several
// resolvers racing on the same dog is the point.
func Resolver(ctx context.Context, requests *ledger.Service, svc *resolution.Service, adminID string, dogIDs []string, acceptOdds int, stats *Stats, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		recs, err := requests.ListForDog(ctx, dogIDs[rand.Intn(len(dogIDs))], nil)
		if err != nil {
			stats.record(err)
			pause(10, 20)
			continue
		}
		pending := make([]ledger.Record, 0, len(recs))
		for _, r := range recs {
			if r.Status == ledger.StatusPending {
				pending = append(pending, r)
			}
		}
		if len(pending) == 0 {
			pause(10, 20)
			continue
		}

		decision := resolution.Reject
		if rand.Intn(100) < acceptOdds {
			decision = resolution.Accept
		}
		out, err := svc.Resolve(ctx, resolution.ResolveParams{
			RequestID: pending[rand.Intn(len(pending))].ID,
			Decision:  decision,
			AdminID:   adminID,
		})
		switch {
		case err != nil:
			stats.record(err, resolution.ErrAlreadyResolved)
		case out.Request.Status == ledger.StatusAccepted:
			stats.Accepted.Add(1)
			stats.Rejected.Add(int64(len(out.CascadeRejected)))
		default:
			stats.Rejected.Add(1)
		}
		pause(10, 30)
	}
	return nil
}

// Transitioner moves dogs between the two open statuses to contend for the
// dog row lock with submitters and resolvers.
func Transitioner(ctx context.Context, svc *dog.Service, adminID string, dogIDs []string, stats *Stats, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		target := dog.StatusUnderCare
		if rand.Intn(2) == 0 {
			target = dog.StatusRescued
		}
		_, err := svc.Transition(ctx, dog.TransitionParams{
			DogID:   dogIDs[rand.Intn(len(dogIDs))],
			Status:  target,
			AdminID: adminID,
		})
		if err != nil {
			stats.record(err, dog.ErrInvalidTransition)
		}
		pause(20, 40)
	}
	return nil
}

// OutboxWorker drains the outbox alongside its siblings; SKIP LOCKED keeps
// them from double-publishing.
func OutboxWorker(ctx context.Context, relay *journal.Relay, stats *Stats, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		if _, err := relay.DrainOnce(ctx); err != nil {
			stats.record(err)
		}
		pause(50, 50)
	}
	return nil
}
