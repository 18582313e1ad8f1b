// Package resolution turns an administrator's decision on one request into
// the full set of state changes it implies for the dog and its other requests.
package resolution

import (
	"errors"
	"fmt"
	"time"

	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/dog"
	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/ledger"
)

type Decision string

const (
	Accept Decision = "accept"
	Reject Decision = "reject"
)

var (
	ErrAlreadyResolved = errors.New("resolution: request already resolved")
	ErrInvalidDecision = errors.New("resolution: invalid decision")
)

func (d Decision) Valid() bool {
	return d == Accept || d == Reject
}

// Outcome is every change a decision produces. Nothing is persisted by Decide.
type Outcome struct {
	Request         ledger.Record
	Dog             dog.Record
	DogChanged      bool
	CascadeRejected []ledger.Record
}

// Decide applies decision to target. siblings is every request on the same
// dog; target may appear in it and is skipped.
//
// Accepting moves the dog to its terminal disposition and rejects every other
// pending request of either kind. The claim window is not consulted, so an
// administrator may still accept a request filed in time after it closes.
func Decide(d dog.Record, target ledger.Record, siblings []ledger.Record, decision Decision, now time.Time, adminID string) (Outcome, error) {
	if !decision.Valid() {
		return Outcome{}, fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}
	if target.Status != ledger.StatusPending {
		return Outcome{}, fmt.Errorf("%w: request %s is %s", ErrAlreadyResolved, target.ID, target.Status)
	}
	if target.DogID != d.ID {
		return Outcome{}, fmt.Errorf("resolution: request %s belongs to dog %s, not %s", target.ID, target.DogID, d.ID)
	}

	out := Outcome{Dog: d}
	if decision == Reject {
		out.Request = resolve(target, ledger.StatusRejected, now, adminID)
		return out, nil
	}

	if err := out.Dog.TransitionTo(target.Kind.Disposition()); err != nil {
		return Outcome{}, err
	}
	out.DogChanged = true
	out.Request = resolve(target, ledger.StatusAccepted, now, adminID)

	for _, s := range siblings {
		if s.ID == target.ID || s.Status != ledger.StatusPending {
			continue
		}
		out.CascadeRejected = append(out.CascadeRejected, resolve(s, ledger.StatusRejected, now, adminID))
	}
	return out, nil
}

func resolve(r ledger.Record, status ledger.Status, now time.Time, adminID string) ledger.Record {
	r.Status = status
	at := now
	r.ResolvedAt = &at
	if adminID != "" {
		by := adminID
		r.ResolvedBy = &by
	}
	return r
}
