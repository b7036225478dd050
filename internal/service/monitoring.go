package service

import (
	"context"
	"time"

	"agropres/internal/models"
)

// DeviceSnapshot is the effective device view served to clients: the cached
// state with the optimistic overlay applied and liveness derived from the
// heartbeat.
type DeviceSnapshot struct {
	DeviceID string `json:"device_id"`
	models.DeviceState
	Online    bool      `json:"online"`
	CheckedAt time.Time `json:"checked_at"`
}

type MonitoringService struct {
	session   *Session
	threshold time.Duration
	now       func() time.Time
}

func NewMonitoringService(session *Session, threshold time.Duration) *MonitoringService {
	if threshold <= 0 {
		threshold = DefaultHeartbeatThreshold
	}
	return &MonitoringService{session: session, threshold: threshold, now: time.Now}
}

// Snapshot returns the current effective device state. Before the first
// subscription push it returns an empty, offline snapshot rather than an
// error: an unprovisioned device is a valid state, not a failure.
func (s *MonitoringService) Snapshot(ctx context.Context) (DeviceSnapshot, error) {
	if !s.session.Ready() {
		return DeviceSnapshot{}, ErrNotReady
	}

	now := s.now()
	snap := DeviceSnapshot{
		DeviceID:  s.session.DeviceID(),
		CheckedAt: now.UTC(),
	}

	dev, ok := s.session.Effective()
	if !ok {
		return snap, nil
	}
	snap.DeviceState = dev
	snap.Online = EffectiveOnline(dev.Status.IsOnline, time.Unix(dev.Status.LastSeen, 0), now, s.threshold)
	return snap, nil
}
