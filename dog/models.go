package dog

import (
	"errors"
	"fmt"
	"time"
)

// Status is the custody disposition of a dog record.
type Status string

const (
	StatusRescued   Status = "rescued"
	StatusUnderCare Status = "under_care"
	StatusReunited  Status = "reunited"
	StatusAdopted   Status = "adopted"
)

// Violation is an ordinance violation noted at intake.
type Violation string

const (
	ViolationNoCollar  Violation = "no_collar"
	ViolationNoLeash   Violation = "no_leash"
	ViolationNoLicense Violation = "no_license"
	ViolationAbandoned Violation = "abandoned"
	ViolationInjured   Violation = "injured"
)

var (
	// ErrInvalidConfiguration rejects construction input such as a non-positive claim window.
	ErrInvalidConfiguration = errors.New("dog: invalid configuration")
	// ErrInvalidTransition signals an attempt to move a dog out of a terminal status.
	ErrInvalidTransition = errors.New("dog: invalid status transition")
	// ErrInvalidStatus signals a status value outside the known set.
	ErrInvalidStatus = errors.New("dog: invalid status")
	// ErrNotFound is returned when no dog row exists for the identifier.
	ErrNotFound = errors.New("dog: not found")
)

// Record mirrors the dogs table. Deadline state is derived, never stored.
type Record struct {
	ID              string
	Caption         string
	Location        string
	Violations      []Violation
	ImageRefs       []string
	Status          Status
	IntakeTime      time.Time
	ClaimWindowDays int
	CreatedBy       *string
	UpdatedAt       time.Time
}

// NewParams carries the construction input for a dog record.
type NewParams struct {
	ID              string
	IntakeTime      time.Time
	ClaimWindowDays int
	InitialStatus   Status
	Caption         string
	Location        string
	Violations      []Violation
	ImageRefs       []string
	CreatedBy       *string
}

// New validates construction input and returns a record. The initial status
// defaults to rescued.
func New(p NewParams) (Record, error) {
	if p.ClaimWindowDays < 1 {
		return Record{}, fmt.Errorf("%w: claim window must be at least 1 day, got %d", ErrInvalidConfiguration, p.ClaimWindowDays)
	}
	if p.IntakeTime.IsZero() {
		return Record{}, fmt.Errorf("%w: intake time required", ErrInvalidConfiguration)
	}
	status := p.InitialStatus
	if status == "" {
		status = StatusRescued
	}
	if !status.Valid() {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	for _, v := range p.Violations {
		if !v.Valid() {
			return Record{}, fmt.Errorf("%w: unknown violation %q", ErrInvalidConfiguration, v)
		}
	}
	return Record{
		ID:              p.ID,
		Caption:         p.Caption,
		Location:        p.Location,
		Violations:      p.Violations,
		ImageRefs:       p.ImageRefs,
		Status:          status,
		IntakeTime:      p.IntakeTime,
		ClaimWindowDays: p.ClaimWindowDays,
		CreatedBy:       p.CreatedBy,
		UpdatedAt:       p.IntakeTime,
	}, nil
}

// Deadline is the end of the claim/adopt window.
func (r Record) Deadline() time.Time {
	return Deadline(r.IntakeTime, r.ClaimWindowDays)
}

func (r Record) IsExpired(now time.Time) bool {
	return IsExpired(r.Deadline(), now)
}

func (r Record) TimeRemaining(now time.Time) time.Duration {
	return TimeRemaining(r.Deadline(), now)
}

// IsOpenForResolution reports whether new claim/adopt requests may be filed.
func (r Record) IsOpenForResolution(now time.Time) bool {
	return !r.IsExpired(now) && !r.Status.Terminal()
}

// TransitionTo moves the record to next. Terminal statuses are sinks; every
// other move is allowed.
func (r *Record) TransitionTo(next Status) error {
	if !next.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, next)
	}
	if r.Status.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	r.Status = next
	return nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusRescued, StatusUnderCare, StatusReunited, StatusAdopted:
		return true
	default:
		return false
	}
}

// Terminal reports whether s is a final disposition.
func (s Status) Terminal() bool {
	return s == StatusReunited || s == StatusAdopted
}

func (v Violation) Valid() bool {
	switch v {
	case ViolationNoCollar, ViolationNoLeash, ViolationNoLicense, ViolationAbandoned, ViolationInjured:
		return true
	default:
		return false
	}
}
