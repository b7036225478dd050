package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agropres/internal/logger"
	"agropres/internal/models"
	"agropres/internal/notify"
	"agropres/internal/store"
)

// DefaultReminderTick is the reminder poll period.
const DefaultReminderTick = 60 * time.Second

var errIncompleteReminder = errors.New("reminder needs datetime, targetNumber and message")

// ReminderService polls the cached reminder list and fires due,
// not-yet-sent-today reminders through the dispatch boundary. Delivery is
// at-least-once per calendar day: a send can succeed and the dedup-marker
// write still fail, in which case the same reminder repeats on the next poll
// within the day. That window is accepted, not papered over locally.
//
// Whether a fired reminder stays active (recurring daily) or retires to
// status=sent is a configuration choice, retireAfterSend.
type ReminderService struct {
	session         *Session
	docs            store.Store
	events          store.EventRepo
	sender          notify.Sender
	log             *logger.Logger
	retireAfterSend bool
	now             func() time.Time
}

func NewReminderService(session *Session, docs store.Store, events store.EventRepo, sender notify.Sender, log *logger.Logger, retireAfterSend bool) *ReminderService {
	return &ReminderService{
		session:         session,
		docs:            docs,
		events:          events,
		sender:          sender,
		log:             log,
		retireAfterSend: retireAfterSend,
		now:             time.Now,
	}
}

// Run ticks at the given interval until ctx is canceled.
func (s *ReminderService) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.tickOnce(ctx, now)
		}
	}
}

// tickOnce runs one poll pass and returns the number of dispatches that
// succeeded.
func (s *ReminderService) tickOnce(ctx context.Context, now time.Time) int {
	if s.sender == nil || !s.sender.Configured() {
		return 0 // dispatch capability not configured
	}
	uid := s.session.UserID()
	if uid == "" {
		return 0
	}

	fired := 0
	for _, r := range s.session.Reminders() {
		if r.Status != models.ReminderActive {
			continue
		}
		if !r.Due(now) || r.FiredOn(now) {
			continue
		}

		if err := s.sender.Send(ctx, r.TargetNumber, r.Message); err != nil {
			// Neither last_sent nor status changed, so the next poll cycle
			// retries automatically.
			s.log.Warnw("reminder dispatch failed, retrying next poll", "reminder", r.ID, "err", err)
			_ = s.events.Append(ctx, models.EngineEvent{
				Type:        models.EventDispatchFailed,
				Description: "reminder dispatch failed",
				Metadata:    map[string]any{"reminder": r.ID, "err": err.Error()},
			})
			continue
		}

		fired++
		_ = s.events.Append(ctx, models.EngineEvent{
			OccurredAt:  now.UTC(),
			Type:        models.EventDispatch,
			Description: "reminder dispatched",
			Metadata:    map[string]any{"reminder": r.ID},
		})

		fields := map[string]any{"last_sent": now.UTC().Format(time.RFC3339)}
		if s.retireAfterSend {
			fields["status"] = models.ReminderSent
		}
		if err := s.docs.Update(ctx, reminderPath(uid, r.ID), fields); err != nil {
			// The send already happened; without the marker this reminder may
			// fire again later today.
			s.log.Errorw("failed to persist dedup marker", "reminder", r.ID, "err", err)
		}
	}
	return fired
}

// Add creates a reminder with status=active and no dedup marker, returning
// the store-assigned id.
func (s *ReminderService) Add(ctx context.Context, r models.Reminder) (string, error) {
	uid := s.session.UserID()
	if uid == "" {
		return "", ErrNotReady
	}
	if r.Datetime.IsZero() || r.TargetNumber == "" || r.Message == "" {
		return "", errIncompleteReminder
	}

	r.ID = ""
	r.Status = models.ReminderActive
	r.LastSent = nil
	id, err := s.docs.Push(ctx, remindersPath(uid), r)
	if err != nil {
		return "", fmt.Errorf("add reminder: %w", err)
	}
	return id, nil
}

// Delete removes a reminder outright.
func (s *ReminderService) Delete(ctx context.Context, id string) error {
	uid := s.session.UserID()
	if uid == "" {
		return ErrNotReady
	}
	if err := s.docs.Delete(ctx, reminderPath(uid, id)); err != nil {
		return fmt.Errorf("delete reminder %s: %w", id, err)
	}
	return nil
}

// List returns the cached reminders ordered by due time.
func (s *ReminderService) List(ctx context.Context) ([]models.Reminder, error) {
	if s.session.UserID() == "" {
		return nil, ErrNotReady
	}
	return s.session.Reminders(), nil
}
