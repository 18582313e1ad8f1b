package capture

import (
	"errors"
	"time"
)

// Reason is why a citizen wants a dog picked up.
type Reason string

const (
	ReasonBiting     Reason = "biting"
	ReasonAggressive Reason = "aggressive"
	ReasonInjured    Reason = "injured"
	ReasonSick       Reason = "sick"
	ReasonStray      Reason = "stray"
	ReasonOther      Reason = "other"
)

// Status represents the lifecycle of a capture request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
)

type Decision string

const (
	Accept  Decision = "accept"
	Decline Decision = "decline"
)

var (
	ErrNotFound         = errors.New("capture: not found")
	ErrAlreadyResolved  = errors.New("capture: request already resolved")
	ErrInvalidReason    = errors.New("capture: invalid reason")
	ErrInvalidLocation  = errors.New("capture: invalid location")
	ErrInvalidDecision  = errors.New("capture: invalid decision")
	ErrMissingSchedule  = errors.New("capture: accepted requests need a scheduled date")
	ErrMissingRequester = errors.New("capture: requester required")
)

// Record mirrors the capture_requests table.
type Record struct {
	ID            string
	UserID        string
	Reason        Reason
	Description   string
	Latitude      *float64
	Longitude     *float64
	ImageRef      string
	Status        Status
	AssignedAdmin *string
	ScheduledDate *time.Time
	AdminMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ResolvedAt    *time.Time
}

func (r Reason) Valid() bool {
	switch r {
	case ReasonBiting, ReasonAggressive, ReasonInjured, ReasonSick, ReasonStray, ReasonOther:
		return true
	default:
		return false
	}
}

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusAccepted || s == StatusDeclined
}
