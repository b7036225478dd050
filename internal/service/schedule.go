package service

import (
	"fmt"
	"time"

	"agropres/internal/models"
)

const clockLayout = "15:04"

// ClockMinutes parses an "HH:MM" time-of-day string into minutes since
// midnight.
func ClockMinutes(hhmm string) (int, error) {
	t, err := time.Parse(clockLayout, hhmm)
	if err != nil {
		return 0, fmt.Errorf("clock %q: %w", hhmm, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// InWindow reports whether now (minutes since midnight) falls inside the
// [on, off) daily window. on > off means the window wraps past midnight;
// on == off is a zero-width window that is never active.
func InWindow(now, on, off int) bool {
	switch {
	case on < off:
		return now >= on && now < off
	case on > off:
		return now >= on || now < off
	default:
		return false
	}
}

// ExpectedState evaluates a relay schedule at the given wall-clock instant.
// Malformed times are reported to the caller; the evaluation itself has no
// side effects.
func ExpectedState(now time.Time, s models.RelaySchedule) (bool, error) {
	on, err := ClockMinutes(s.OnTime)
	if err != nil {
		return false, err
	}
	off, err := ClockMinutes(s.OffTime)
	if err != nil {
		return false, err
	}
	return InWindow(now.Hour()*60+now.Minute(), on, off), nil
}
