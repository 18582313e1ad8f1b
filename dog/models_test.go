package dog

import (
	"errors"
	"testing"
	"time"
)

func TestNew_DefaultsAndValidation(t *testing.T) {
	rec, err := New(NewParams{ID: "d1", IntakeTime: t0, ClaimWindowDays: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != StatusRescued {
		t.Errorf("expected rescued default, got %s", rec.Status)
	}
	if !rec.Deadline().Equal(t0.Add(72 * time.Hour)) {
		t.Errorf("unexpected deadline %v", rec.Deadline())
	}

	for _, days := range []int{0, -1} {
		if _, err := New(NewParams{IntakeTime: t0, ClaimWindowDays: days}); !errors.Is(err, ErrInvalidConfiguration) {
			t.Errorf("window %d: expected ErrInvalidConfiguration, got %v", days, err)
		}
	}
	if _, err := New(NewParams{ClaimWindowDays: 3}); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("zero intake: expected ErrInvalidConfiguration, got %v", err)
	}
	if _, err := New(NewParams{IntakeTime: t0, ClaimWindowDays: 3, InitialStatus: "lost"}); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
	if _, err := New(NewParams{IntakeTime: t0, ClaimWindowDays: 3, Violations: []Violation{"speeding"}}); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration for violation, got %v", err)
	}
}

func TestTransitionTo_TerminalIsSink(t *testing.T) {
	for _, terminal := range []Status{StatusReunited, StatusAdopted} {
		for _, next := range []Status{StatusRescued, StatusUnderCare, StatusReunited, StatusAdopted} {
			rec := Record{Status: terminal}
			if err := rec.TransitionTo(next); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("%s -> %s: expected ErrInvalidTransition, got %v", terminal, next, err)
			}
			if rec.Status != terminal {
				t.Errorf("%s -> %s: status changed to %s", terminal, next, rec.Status)
			}
		}
	}
}

func TestTransitionTo_OpenStatusesMoveFreely(t *testing.T) {
	for _, from := range []Status{StatusRescued, StatusUnderCare} {
		for _, next := range []Status{StatusRescued, StatusUnderCare, StatusReunited, StatusAdopted} {
			rec := Record{Status: from}
			if err := rec.TransitionTo(next); err != nil {
				t.Errorf("%s -> %s: unexpected error %v", from, next, err)
			}
			if rec.Status != next {
				t.Errorf("%s -> %s: got %s", from, next, rec.Status)
			}
		}
	}

	rec := Record{Status: StatusRescued}
	if err := rec.TransitionTo("missing"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestIsOpenForResolution(t *testing.T) {
	rec, _ := New(NewParams{IntakeTime: t0, ClaimWindowDays: 1})

	if !rec.IsOpenForResolution(t0.Add(time.Hour)) {
		t.Errorf("expected open inside window")
	}
	if !rec.IsOpenForResolution(rec.Deadline()) {
		t.Errorf("expected open at deadline")
	}
	if rec.IsOpenForResolution(t0.Add(25 * time.Hour)) {
		t.Errorf("expected closed after deadline")
	}

	rec.Status = StatusUnderCare
	if !rec.IsOpenForResolution(t0) {
		t.Errorf("under care should stay open")
	}
	rec.Status = StatusAdopted
	if rec.IsOpenForResolution(t0) {
		t.Errorf("terminal record must be closed")
	}
}
