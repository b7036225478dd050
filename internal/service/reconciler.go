package service

import (
	"context"
	"fmt"
	"time"

	"agropres/internal/logger"
	"agropres/internal/models"
	"agropres/internal/store"
)

// DefaultReconcileTick is the mode reconciliation period.
const DefaultReconcileTick = 15 * time.Second

// ReconcilerService keeps each auto-mode actuator's state consistent with
// its schedule. It is level-triggered: every tick it re-reads the freshest
// cached snapshot, computes the expected state and issues a corrective write
// only on mismatch. Redundant runs and missed ticks are harmless, and a
// failed write is simply retried next tick because the mismatch persists.
type ReconcilerService struct {
	session *Session
	docs    store.Store
	events  store.EventRepo
	log     *logger.Logger
	now     func() time.Time
}

func NewReconcilerService(session *Session, docs store.Store, events store.EventRepo, log *logger.Logger) *ReconcilerService {
	return &ReconcilerService{
		session: session,
		docs:    docs,
		events:  events,
		log:     log,
		now:     time.Now,
	}
}

// Run ticks at the given interval until ctx is canceled.
func (s *ReconcilerService) Run(ctx context.Context, tick time.Duration) {
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

// tickOnce runs one reconciliation pass and returns the number of corrective
// writes issued. Binding and snapshot availability are rechecked on every
// tick so a torn-down session never reconciles against a stale identity.
func (s *ReconcilerService) tickOnce(ctx context.Context, now time.Time) int {
	if !s.session.Ready() {
		return 0
	}
	dev, ok := s.session.Device()
	if !ok {
		return 0 // nothing to reconcile yet
	}

	writes := 0
	for _, key := range models.RelayActuators {
		if dev.ModeFor(key) != models.ModeAuto {
			continue // manual actuators are never touched by this loop
		}
		sched, ok := dev.ScheduleFor(key)
		if !ok || !sched.Complete() {
			continue // not configured
		}
		expected, err := ExpectedState(now, sched)
		if err != nil {
			s.log.Debugw("skipping actuator with malformed schedule", "control", key, "err", err)
			continue
		}
		actual := dev.BoolControl(key)
		if expected == actual {
			continue
		}

		writes++
		if err := s.docs.Set(ctx, controlPath(s.session.DeviceID(), key), expected); err != nil {
			s.log.Warnw("corrective write failed, retrying next tick", "control", key, "err", err)
			continue
		}
		_ = s.events.Append(ctx, models.EngineEvent{
			OccurredAt:  now.UTC(),
			Type:        models.EventReconcile,
			Description: fmt.Sprintf("corrected %s to %v per schedule", key, expected),
			Metadata: map[string]any{
				"control":  key,
				"expected": expected,
				"actual":   actual,
				"on_time":  sched.OnTime,
				"off_time": sched.OffTime,
			},
		})
	}
	return writes
}
