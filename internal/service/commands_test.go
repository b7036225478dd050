package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"agropres/internal/logger"
	"agropres/internal/models"
)

func newCommands(sess *Session, docs *docsStub, events *eventsStub, quiet time.Duration) *CommandService {
	return NewCommandService(sess, docs, events, logger.Nop(), quiet)
}

func TestToggleWritesControlPath(t *testing.T) {
	docs := &docsStub{}
	events := &eventsStub{}
	sess := seededSession(`{"controls": {"uv_light": false}}`, "")
	cmd := newCommands(sess, docs, events, time.Second)
	defer cmd.Close()

	if err := cmd.Toggle(context.Background(), models.ControlUVLight, true); err != nil {
		t.Fatalf("Toggle: %v", err)
	}

	sets := docs.setCalls()
	if len(sets) != 1 || sets[0].path != "devices/dev-1/controls/uv_light" || sets[0].value != true {
		t.Fatalf("unexpected writes: %+v", sets)
	}
	if got := events.typesAppended(); len(got) != 1 || got[0] != "COMMAND" {
		t.Fatalf("events = %v, want [COMMAND]", got)
	}

	// The optimistic overlay shows the toggle immediately.
	dev, _ := sess.Effective()
	if !dev.BoolControl(models.ControlUVLight) {
		t.Fatal("effective state should reflect the pending toggle")
	}
}

func TestToggleRollsBackOnWriteFailure(t *testing.T) {
	docs := &docsStub{failSet: errors.New("store unavailable")}
	events := &eventsStub{}
	sess := seededSession(`{"controls": {"uv_light": false}}`, "")
	cmd := newCommands(sess, docs, events, time.Second)
	defer cmd.Close()

	if err := cmd.Toggle(context.Background(), models.ControlUVLight, true); err == nil {
		t.Fatal("expected write failure to surface")
	}

	dev, _ := sess.Effective()
	if dev.BoolControl(models.ControlUVLight) {
		t.Fatal("effective state should have rolled back to confirmed")
	}
	if got := events.typesAppended(); len(got) != 1 || got[0] != "ROLLBACK" {
		t.Fatalf("events = %v, want [ROLLBACK]", got)
	}
}

func TestToggleRejectsUnknownActuator(t *testing.T) {
	sess := seededSession(`{}`, "")
	cmd := newCommands(sess, &docsStub{}, &eventsStub{}, time.Second)
	defer cmd.Close()

	if err := cmd.Toggle(context.Background(), "water_pump", true); err == nil {
		t.Fatal("expected error for unknown actuator")
	}
}

func TestCommandsRequireBoundDevice(t *testing.T) {
	sess := NewSession(&docsStub{}, logger.Nop(), "", "")
	cmd := newCommands(sess, &docsStub{}, &eventsStub{}, time.Second)
	defer cmd.Close()

	ctx := context.Background()
	if err := cmd.Toggle(ctx, models.ControlUVLight, true); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Toggle err = %v, want ErrNotReady", err)
	}
	if err := cmd.SetPwmRaw(ctx, 500); !errors.Is(err, ErrNotReady) {
		t.Fatalf("SetPwmRaw err = %v, want ErrNotReady", err)
	}
	if err := cmd.SetMode(ctx, models.ControlUVLight, models.ModeAuto); !errors.Is(err, ErrNotReady) {
		t.Fatalf("SetMode err = %v, want ErrNotReady", err)
	}
	if err := cmd.SaveSchedules(ctx, nil); !errors.Is(err, ErrNotReady) {
		t.Fatalf("SaveSchedules err = %v, want ErrNotReady", err)
	}
}

func TestSetPwmRawDebouncesAndClamps(t *testing.T) {
	docs := &docsStub{}
	sess := seededSession(`{}`, "")
	cmd := newCommands(sess, docs, &eventsStub{}, 20*time.Millisecond)
	defer cmd.Close()

	ctx := context.Background()
	for _, v := range []int{100, 5000, -3, 900} {
		if err := cmd.SetPwmRaw(ctx, v); err != nil {
			t.Fatalf("SetPwmRaw(%d): %v", v, err)
		}
	}

	time.Sleep(100 * time.Millisecond)

	sets := docs.setCalls()
	if len(sets) != 1 {
		t.Fatalf("store sets = %d, want 1 coalesced write", len(sets))
	}
	if sets[0].path != "devices/dev-1/controls/pwm_raw" || sets[0].value != 900 {
		t.Fatalf("wrote %v to %s, want 900 to pwm_raw", sets[0].value, sets[0].path)
	}
}

func TestSetPwmRawClampsToRegisterRange(t *testing.T) {
	docs := &docsStub{}
	sess := seededSession(`{}`, "")
	cmd := newCommands(sess, docs, &eventsStub{}, 10*time.Millisecond)
	defer cmd.Close()

	if err := cmd.SetPwmRaw(context.Background(), 4096); err != nil {
		t.Fatalf("SetPwmRaw: %v", err)
	}
	time.Sleep(60 * time.Millisecond)

	sets := docs.setCalls()
	if len(sets) != 1 || sets[0].value != models.PwmRawMax {
		t.Fatalf("writes = %+v, want single write of %d", sets, models.PwmRawMax)
	}
}

func TestSetMode(t *testing.T) {
	docs := &docsStub{}
	sess := seededSession(`{}`, "")
	cmd := newCommands(sess, docs, &eventsStub{}, time.Second)
	defer cmd.Close()

	ctx := context.Background()
	if err := cmd.SetMode(ctx, models.ControlUltrasonic, models.ModeAuto); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	sets := docs.setCalls()
	if len(sets) != 1 || sets[0].path != "devices/dev-1/control_modes/ultrasonic" || sets[0].value != "auto" {
		t.Fatalf("unexpected writes: %+v", sets)
	}

	if err := cmd.SetMode(ctx, models.ControlUltrasonic, "scheduled"); !errors.Is(err, errInvalidMode) {
		t.Fatalf("err = %v, want errInvalidMode", err)
	}
	if err := cmd.SetMode(ctx, models.ControlPwmRaw, models.ModeAuto); err == nil {
		t.Fatal("pwm_raw is not a relay actuator, expected error")
	}
}

func TestSaveSchedules(t *testing.T) {
	docs := &docsStub{}
	sess := seededSession(`{}`, "")
	cmd := newCommands(sess, docs, &eventsStub{}, time.Second)
	defer cmd.Close()

	ctx := context.Background()
	err := cmd.SaveSchedules(ctx, map[string]models.RelaySchedule{
		models.ControlUVLight:    {OnTime: "08:00", OffTime: "17:00"},
		models.ControlUltrasonic: {OnTime: "22:00", OffTime: "05:00"},
	})
	if err != nil {
		t.Fatalf("SaveSchedules: %v", err)
	}

	updates := docs.updateCalls()
	if len(updates) != 1 || updates[0].path != "devices/dev-1/relay_schedules" {
		t.Fatalf("unexpected updates: %+v", updates)
	}
	if len(updates[0].fields) != 2 {
		t.Fatalf("merged fields = %d, want 2", len(updates[0].fields))
	}
}

func TestSaveSchedulesValidation(t *testing.T) {
	sess := seededSession(`{}`, "")
	cmd := newCommands(sess, &docsStub{}, &eventsStub{}, time.Second)
	defer cmd.Close()

	ctx := context.Background()
	cases := []struct {
		name string
		in   map[string]models.RelaySchedule
	}{
		{"unknown key", map[string]models.RelaySchedule{"heater": {OnTime: "08:00", OffTime: "17:00"}}},
		{"missing off_time", map[string]models.RelaySchedule{models.ControlUVLight: {OnTime: "08:00"}}},
		{"malformed on_time", map[string]models.RelaySchedule{models.ControlUVLight: {OnTime: "8am", OffTime: "17:00"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := cmd.SaveSchedules(ctx, tc.in); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
