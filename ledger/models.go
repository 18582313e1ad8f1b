package ledger

import (
	"errors"
	"time"

	"github.com/Guevarra-Alpie01/Capstone-DogAdoption/dog"
)

// Kind distinguishes an owner reclaiming a dog from a stranger adopting it.
type Kind string

const (
	KindClaim Kind = "claim"
	KindAdopt Kind = "adopt"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

var (
	ErrDogUnavailable   = errors.New("ledger: dog is not open for requests")
	ErrDuplicateRequest = errors.New("ledger: an active request already exists")
	ErrRequestNotFound  = errors.New("ledger: request not found")
	ErrInvalidKind      = errors.New("ledger: invalid request kind")
)

// Record is one user's claim or adoption request against a dog. Records are
// never deleted; rejection is the only way out of the active set.
type Record struct {
	ID           string
	DogID        string
	UserID       string
	Kind         Kind
	Status       Status
	Message      string
	EvidenceRefs []string
	CreatedAt    time.Time
	ResolvedAt   *time.Time
	ResolvedBy   *string
}

func (k Kind) Valid() bool {
	return k == KindClaim || k == KindAdopt
}

// Disposition is the dog status an accepted request of this kind produces.
func (k Kind) Disposition() dog.Status {
	if k == KindClaim {
		return dog.StatusReunited
	}
	return dog.StatusAdopted
}

// Active reports whether the request still counts toward the one-per-user rule.
func (r Record) Active() bool {
	return r.Status != StatusRejected
}
