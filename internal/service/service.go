package service

import (
	"context"
	"errors"
	"time"

	"agropres/internal/logger"
	"agropres/internal/models"
	"agropres/internal/notify"
	"agropres/internal/store"
)

// ErrNotReady signals a precondition failure: no device/user identity is
// bound yet, so the operation is a no-op.
var ErrNotReady = errors.New("no device bound")

// Commands applies direct user commands to the device through the store.
type Commands interface {
	Toggle(ctx context.Context, key string, value bool) error
	SetPwmRaw(ctx context.Context, value int) error
	SetMode(ctx context.Context, key, mode string) error
	SaveSchedules(ctx context.Context, schedules map[string]models.RelaySchedule) error
}

// Monitoring exposes the effective device snapshot (derived online flag,
// optimistic overlay applied).
type Monitoring interface {
	Snapshot(ctx context.Context) (DeviceSnapshot, error)
}

// EventLog exposes the engine audit log with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.EngineEvent, error)
}

// Reconciler runs the background loop that keeps auto-mode actuators
// consistent with their schedules. Stop via context cancellation.
type Reconciler interface {
	Run(ctx context.Context, tick time.Duration)
}

// Reminders runs the reminder poll loop and exposes the reminder list.
type Reminders interface {
	Run(ctx context.Context, tick time.Duration)
	Add(ctx context.Context, r models.Reminder) (string, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.Reminder, error)
}

// Config carries the engine tuning knobs read from configuration.
type Config struct {
	HeartbeatThreshold time.Duration
	DebounceQuiet      time.Duration
	RetireAfterSend    bool
}

// Service aggregates all sub-services.
type Service struct {
	Commands
	Monitoring
	EventLog
	Reconciler
	Reminders
}

// NewService wires the store layer into concrete services around a shared
// session cache.
func NewService(session *Session, st *store.Stores, sender notify.Sender, cfg Config, log *logger.Logger) *Service {
	if cfg.HeartbeatThreshold <= 0 {
		cfg.HeartbeatThreshold = DefaultHeartbeatThreshold
	}
	if cfg.DebounceQuiet <= 0 {
		cfg.DebounceQuiet = DefaultDebounceQuiet
	}
	return &Service{
		Commands:   NewCommandService(session, st.Docs, st.Events, log, cfg.DebounceQuiet),
		Monitoring: NewMonitoringService(session, cfg.HeartbeatThreshold),
		EventLog:   NewEventLogService(st.Events),
		Reconciler: NewReconcilerService(session, st.Docs, st.Events, log),
		Reminders:  NewReminderService(session, st.Docs, st.Events, sender, log, cfg.RetireAfterSend),
	}
}

// ---- store path helpers ----

func devicePath(deviceID string) string  { return "devices/" + deviceID }
func userPath(userID string) string      { return "users/" + userID }
func schedulesPath(id string) string     { return devicePath(id) + "/relay_schedules" }
func controlPath(id, key string) string  { return devicePath(id) + "/controls/" + key }
func modePath(id, key string) string     { return devicePath(id) + "/control_modes/" + key }
func remindersPath(uid string) string    { return userPath(uid) + "/reminders" }
func reminderPath(uid, id string) string { return remindersPath(uid) + "/" + id }
