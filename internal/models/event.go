package models

import "time"

// Engine event types.
const (
	EventReconcile      = "RECONCILE"
	EventCommand        = "COMMAND"
	EventRollback       = "ROLLBACK"
	EventScheduleSave   = "SCHEDULE_SAVE"
	EventDispatch       = "DISPATCH"
	EventDispatchFailed = "DISPATCH_FAILED"
)

// EngineEvent is a single audit-log entry.
type EngineEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Metadata    any       `json:"metadata,omitempty"`
}
