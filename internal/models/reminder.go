package models

import "time"

// Reminder statuses.
const (
	ReminderActive = "active"
	ReminderSent   = "sent"
)

// Reminder is one entry of a users/{uid}/reminders list. Created by the user
// with status=active and no last_sent; the scheduler is the only writer of
// LastSent (and, when retirement is enabled, of Status).
type Reminder struct {
	ID           string     `json:"id,omitempty"`
	Datetime     time.Time  `json:"datetime"`
	Note         string     `json:"note"`          // private, never transmitted
	TargetNumber string     `json:"targetNumber"`  // destination identifier
	Message      string     `json:"message"`       // payload to transmit
	Status       string     `json:"status"`
	LastSent     *time.Time `json:"last_sent,omitempty"` // dedup marker
}

// Due reports whether the reminder's instant has passed.
func (r Reminder) Due(now time.Time) bool {
	return !now.Before(r.Datetime)
}

// FiredOn reports whether the dedup marker falls on the same calendar day
// as now. The dedup key is the day, not the exact instant: the poll period
// and dispatch latency make instant comparison unreliable.
func (r Reminder) FiredOn(now time.Time) bool {
	if r.LastSent == nil {
		return false
	}
	ls := r.LastSent.In(now.Location())
	return ls.Year() == now.Year() && ls.YearDay() == now.YearDay()
}
