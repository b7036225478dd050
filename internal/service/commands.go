package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agropres/internal/logger"
	"agropres/internal/models"
	"agropres/internal/store"
)

var (
	errInvalidMode     = errors.New("invalid mode: must be manual or auto")
	errUnknownActuator = errors.New("unknown actuator")
)

// debouncedWriteTimeout bounds store writes issued from debounce timers,
// which have no caller context to inherit.
const debouncedWriteTimeout = 5 * time.Second

// CommandService applies direct user commands. Boolean toggles follow the
// optimistic-update/rollback discipline; the raw PWM value goes through the
// per-key debouncer so a continuous slider does not flood the store.
type CommandService struct {
	session  *Session
	docs     store.Store
	events   store.EventRepo
	log      *logger.Logger
	debounce *Debouncer
}

func NewCommandService(session *Session, docs store.Store, events store.EventRepo, log *logger.Logger, quiet time.Duration) *CommandService {
	s := &CommandService{
		session: session,
		docs:    docs,
		events:  events,
		log:     log,
	}
	s.debounce = NewDebouncer(quiet, s.writeDebounced, s.debouncedWriteFailed)
	return s
}

func validRelayKey(key string) bool {
	for _, k := range models.RelayActuators {
		if k == key {
			return true
		}
	}
	return false
}

// Toggle applies a manual boolean command. The desired value is recorded
// optimistically before the write; a store failure rolls it back to the
// confirmed value so the divergence window is never left dangling.
func (s *CommandService) Toggle(ctx context.Context, key string, value bool) error {
	if !s.session.Ready() {
		return ErrNotReady
	}
	if !validRelayKey(key) {
		return fmt.Errorf("%w: %q", errUnknownActuator, key)
	}

	s.session.SetDesired(key, value)
	if err := s.docs.Set(ctx, controlPath(s.session.DeviceID(), key), value); err != nil {
		s.session.RevertDesired(key)
		_ = s.events.Append(ctx, models.EngineEvent{
			Type:        models.EventRollback,
			Description: fmt.Sprintf("rolled back %s after failed write", key),
			Metadata:    map[string]any{"control": key, "value": value},
		})
		return fmt.Errorf("toggle %s: %w", key, err)
	}

	_ = s.events.Append(ctx, models.EngineEvent{
		Type:        models.EventCommand,
		Description: fmt.Sprintf("manual %s set to %v", key, value),
		Metadata:    map[string]any{"control": key, "value": value},
	})
	return nil
}

// SetPwmRaw schedules a debounced write of the PWM duty register. The value
// is clamped to the register range; the write itself fires once the input
// stream has been idle for the quiet interval.
func (s *CommandService) SetPwmRaw(ctx context.Context, value int) error {
	if !s.session.Ready() {
		return ErrNotReady
	}
	if value < models.PwmRawMin {
		value = models.PwmRawMin
	}
	if value > models.PwmRawMax {
		value = models.PwmRawMax
	}
	s.debounce.Schedule(models.ControlPwmRaw, value)
	return nil
}

// SetMode switches an actuator between manual and auto. The transition is
// just a store write; the reconciliation loop picks auto actuators up on its
// next tick.
func (s *CommandService) SetMode(ctx context.Context, key, mode string) error {
	if !s.session.Ready() {
		return ErrNotReady
	}
	if !validRelayKey(key) {
		return fmt.Errorf("%w: %q", errUnknownActuator, key)
	}
	if mode != models.ModeManual && mode != models.ModeAuto {
		return errInvalidMode
	}

	if err := s.docs.Set(ctx, modePath(s.session.DeviceID(), key), mode); err != nil {
		return fmt.Errorf("set mode %s: %w", key, err)
	}
	_ = s.events.Append(ctx, models.EngineEvent{
		Type:        models.EventCommand,
		Description: fmt.Sprintf("%s mode set to %s", key, mode),
		Metadata:    map[string]any{"control": key, "mode": mode},
	})
	return nil
}

// SaveSchedules validates and persists the relay schedules in one merged
// write.
func (s *CommandService) SaveSchedules(ctx context.Context, schedules map[string]models.RelaySchedule) error {
	if !s.session.Ready() {
		return ErrNotReady
	}

	fields := make(map[string]any, len(schedules))
	for key, sched := range schedules {
		if !validRelayKey(key) {
			return fmt.Errorf("%w: %q", errUnknownActuator, key)
		}
		if !sched.Complete() {
			return fmt.Errorf("schedule for %s: both on_time and off_time are required", key)
		}
		if _, err := ClockMinutes(sched.OnTime); err != nil {
			return fmt.Errorf("schedule for %s: %w", key, err)
		}
		if _, err := ClockMinutes(sched.OffTime); err != nil {
			return fmt.Errorf("schedule for %s: %w", key, err)
		}
		fields[key] = sched
	}

	if err := s.docs.Update(ctx, schedulesPath(s.session.DeviceID()), fields); err != nil {
		return fmt.Errorf("save schedules: %w", err)
	}
	_ = s.events.Append(ctx, models.EngineEvent{
		Type:        models.EventScheduleSave,
		Description: "relay schedules updated",
		Metadata:    fields,
	})
	return nil
}

// Close cancels pending debounced writes.
func (s *CommandService) Close() {
	s.debounce.Stop()
}

func (s *CommandService) writeDebounced(key string, value any) error {
	ctx, cancel := context.WithTimeout(context.Background(), debouncedWriteTimeout)
	defer cancel()
	return s.docs.Set(ctx, controlPath(s.session.DeviceID(), key), value)
}

func (s *CommandService) debouncedWriteFailed(key string, err error) {
	// Event-driven writes are not retried; the failure is surfaced instead.
	s.log.Errorw("debounced write failed", "control", key, "err", err)
	_ = s.events.Append(context.Background(), models.EngineEvent{
		Type:        models.EventRollback,
		Description: fmt.Sprintf("debounced write of %s failed", key),
		Metadata:    map[string]any{"control": key},
	})
}
