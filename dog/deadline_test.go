package dog

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestDeadline(t *testing.T) {
	cases := []struct {
		days int
		want time.Time
	}{
		{1, t0.Add(24 * time.Hour)},
		{3, t0.Add(72 * time.Hour)},
		{14, t0.Add(14 * 24 * time.Hour)},
	}
	for _, tc := range cases {
		if got := Deadline(t0, tc.days); !got.Equal(tc.want) {
			t.Errorf("Deadline(%d) = %v, want %v", tc.days, got, tc.want)
		}
	}
}

func TestIsExpired_StrictlyAfterDeadline(t *testing.T) {
	deadline := Deadline(t0, 1)

	if IsExpired(deadline, deadline.Add(-time.Nanosecond)) {
		t.Errorf("expected open just before deadline")
	}
	if IsExpired(deadline, deadline) {
		t.Errorf("expected open exactly at deadline")
	}
	if !IsExpired(deadline, deadline.Add(time.Nanosecond)) {
		t.Errorf("expected expired just after deadline")
	}
}

func TestTimeRemaining(t *testing.T) {
	deadline := Deadline(t0, 1)

	if got := TimeRemaining(deadline, t0); got != 24*time.Hour {
		t.Errorf("at intake: got %v, want 24h", got)
	}
	if got := TimeRemaining(deadline, t0.Add(23*time.Hour)); got != time.Hour {
		t.Errorf("after 23h: got %v, want 1h", got)
	}
	if got := TimeRemaining(deadline, deadline); got != 0 {
		t.Errorf("at deadline: got %v, want 0", got)
	}
	if got := TimeRemaining(deadline, deadline.Add(48*time.Hour)); got != 0 {
		t.Errorf("past deadline: got %v, want 0", got)
	}
}

// Expiry and remaining time agree: remaining is zero once expired.
func TestTimeRemainingZeroWhenExpired(t *testing.T) {
	deadline := Deadline(t0, 2)
	for _, off := range []time.Duration{0, time.Hour, 47 * time.Hour, 48 * time.Hour, 48*time.Hour + 1, 96 * time.Hour} {
		now := t0.Add(off)
		if IsExpired(deadline, now) && TimeRemaining(deadline, now) != 0 {
			t.Errorf("offset %v: expired with remaining %v", off, TimeRemaining(deadline, now))
		}
	}
}
