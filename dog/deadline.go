package dog

import "time"

const day = 24 * time.Hour

// Deadline returns intake + windowDays whole days.
func Deadline(intake time.Time, windowDays int) time.Time {
	return intake.Add(time.Duration(windowDays) * day)
}

// TimeRemaining is the duration left until deadline, never negative.
func TimeRemaining(deadline, now time.Time) time.Duration {
	if !now.Before(deadline) {
		return 0
	}
	return deadline.Sub(now)
}

// IsExpired is strict: a request at the exact deadline instant is still honored.
func IsExpired(deadline, now time.Time) bool {
	return now.After(deadline)
}
