package models

// Actuator keys known to the engine. Anything else found under controls
// (e.g. raw telemetry echoes) is carried but never reconciled.
const (
	ControlUVLight    = "uv_light"
	ControlUltrasonic = "ultrasonic"
	ControlPwmRaw     = "pwm_raw"
)

// RelayActuators is the fixed set of boolean actuators the reconciliation
// loop may touch.
var RelayActuators = []string{ControlUVLight, ControlUltrasonic}

// Control modes.
const (
	ModeManual = "manual"
	ModeAuto   = "auto"
)

// PWM raw value bounds (10-bit duty register on the frequency knob driver).
const (
	PwmRawMin = 0
	PwmRawMax = 1023
)

// RelaySchedule is a daily on/off window, "HH:MM" local time of day.
// OnTime later than OffTime means the window wraps past midnight.
type RelaySchedule struct {
	OnTime  string `json:"on_time"`
	OffTime string `json:"off_time"`
}

// Complete reports whether both edges of the window are present.
func (s RelaySchedule) Complete() bool {
	return s.OnTime != "" && s.OffTime != ""
}

// DeviceStatus is the heartbeat block written by the device itself.
// The engine only ever reads it.
type DeviceStatus struct {
	IsOnline bool  `json:"is_online"`
	LastSeen int64 `json:"last_seen"` // unix seconds
}

// DeviceState is the engine's snapshot of a devices/{id} document.
// It is owned by the store; the engine holds transient copies refreshed on
// every subscription push and routes every mutation back through the store.
type DeviceState struct {
	Controls       map[string]any           `json:"controls,omitempty"`
	ControlModes   map[string]string        `json:"control_modes,omitempty"`
	RelaySchedules map[string]RelaySchedule `json:"relay_schedules,omitempty"`
	Status         DeviceStatus             `json:"status"`
	Feedback       map[string]float64       `json:"feedback,omitempty"`
}

// ModeFor returns the configured mode for an actuator, defaulting to manual
// when absent.
func (d DeviceState) ModeFor(key string) string {
	if m, ok := d.ControlModes[key]; ok && m != "" {
		return m
	}
	return ModeManual
}

// BoolControl returns the current boolean value of an actuator, defaulting
// to false when absent or of the wrong shape.
func (d DeviceState) BoolControl(key string) bool {
	v, ok := d.Controls[key].(bool)
	return ok && v
}

// ScheduleFor returns the relay schedule for an actuator, if any.
func (d DeviceState) ScheduleFor(key string) (RelaySchedule, bool) {
	s, ok := d.RelaySchedules[key]
	return s, ok
}

// Clone returns a deep copy safe to hand to callers while the cached
// snapshot keeps being replaced.
func (d DeviceState) Clone() DeviceState {
	out := d
	if d.Controls != nil {
		out.Controls = make(map[string]any, len(d.Controls))
		for k, v := range d.Controls {
			out.Controls[k] = v
		}
	}
	if d.ControlModes != nil {
		out.ControlModes = make(map[string]string, len(d.ControlModes))
		for k, v := range d.ControlModes {
			out.ControlModes[k] = v
		}
	}
	if d.RelaySchedules != nil {
		out.RelaySchedules = make(map[string]RelaySchedule, len(d.RelaySchedules))
		for k, v := range d.RelaySchedules {
			out.RelaySchedules[k] = v
		}
	}
	if d.Feedback != nil {
		out.Feedback = make(map[string]float64, len(d.Feedback))
		for k, v := range d.Feedback {
			out.Feedback[k] = v
		}
	}
	return out
}
