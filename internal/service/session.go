package service

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"agropres/internal/logger"
	"agropres/internal/models"
	"agropres/internal/store"
)

// Session is the single-owner slot holding the freshest store snapshots for
// one device/user binding. Subscription pushes replace the cached documents
// atomically; every reader gets a copy. The cache is never a write source of
// truth: mutations go through the store and come back as pushes.
//
// The desired map is the optimistic overlay for manual commands: a value the
// user asked for that the store has not confirmed yet. Rollback reverts
// desired to confirmed by dropping the entry.
type Session struct {
	mu        sync.Mutex
	deviceID  string
	userID    string
	device    models.DeviceState
	hasDevice bool
	reminders map[string]models.Reminder
	desired   map[string]any

	docs store.Store
	log  *logger.Logger
}

func NewSession(docs store.Store, log *logger.Logger, deviceID, userID string) *Session {
	return &Session{
		deviceID:  deviceID,
		userID:    userID,
		reminders: make(map[string]models.Reminder),
		desired:   make(map[string]any),
		docs:      docs,
		log:       log,
	}
}

// Run subscribes to the bound device and user documents and keeps the cache
// fresh until ctx is done.
func (s *Session) Run(ctx context.Context) {
	var devCh, userCh <-chan json.RawMessage
	if s.deviceID != "" {
		ch, cancel := s.docs.Subscribe(ctx, devicePath(s.deviceID))
		defer cancel()
		devCh = ch
	}
	if s.userID != "" {
		ch, cancel := s.docs.Subscribe(ctx, userPath(s.userID))
		defer cancel()
		userCh = ch
	}

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-devCh:
			if !ok {
				devCh = nil
				continue
			}
			s.applyDeviceSnapshot(raw)
		case raw, ok := <-userCh:
			if !ok {
				userCh = nil
				continue
			}
			s.applyUserSnapshot(raw)
		}
	}
}

func (s *Session) applyDeviceSnapshot(raw json.RawMessage) {
	var st models.DeviceState
	if err := json.Unmarshal(raw, &st); err != nil {
		s.log.Warnw("bad device snapshot, keeping previous", "err", err)
		return
	}

	s.mu.Lock()
	s.device = st
	s.hasDevice = string(raw) != "null"
	// Confirmed values that caught up with the optimistic overlay retire it.
	for key, want := range s.desired {
		if got, ok := st.Controls[key]; ok && got == want {
			delete(s.desired, key)
		}
	}
	s.mu.Unlock()
}

func (s *Session) applyUserSnapshot(raw json.RawMessage) {
	var doc struct {
		Reminders map[string]models.Reminder `json:"reminders"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.log.Warnw("bad user snapshot, keeping previous", "err", err)
		return
	}

	rs := make(map[string]models.Reminder, len(doc.Reminders))
	for id, r := range doc.Reminders {
		r.ID = id
		rs[id] = r
	}

	s.mu.Lock()
	s.reminders = rs
	s.mu.Unlock()
}

// Ready reports whether a device identity is bound.
func (s *Session) Ready() bool { return s.deviceID != "" }

func (s *Session) DeviceID() string { return s.deviceID }
func (s *Session) UserID() string   { return s.userID }

// Device returns the confirmed device snapshot. ok is false until the first
// non-null push arrives.
func (s *Session) Device() (models.DeviceState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device.Clone(), s.hasDevice
}

// Effective returns the device snapshot with the optimistic overlay applied,
// which is what user-facing surfaces should render.
func (s *Session) Effective() (models.DeviceState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dev := s.device.Clone()
	if len(s.desired) > 0 {
		if dev.Controls == nil {
			dev.Controls = make(map[string]any, len(s.desired))
		}
		for k, v := range s.desired {
			dev.Controls[k] = v
		}
	}
	return dev, s.hasDevice
}

// SetDesired records an optimistic value pending store confirmation.
func (s *Session) SetDesired(key string, value any) {
	s.mu.Lock()
	s.desired[key] = value
	s.mu.Unlock()
}

// RevertDesired rolls an optimistic value back to the confirmed one.
func (s *Session) RevertDesired(key string) {
	s.mu.Lock()
	delete(s.desired, key)
	s.mu.Unlock()
}

// Reminders returns the cached reminder list ordered by due time.
func (s *Session) Reminders() []models.Reminder {
	s.mu.Lock()
	out := make([]models.Reminder, 0, len(s.reminders))
	for _, r := range s.reminders {
		out = append(out, r)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Datetime.Equal(out[j].Datetime) {
			return out[i].ID < out[j].ID
		}
		return out[i].Datetime.Before(out[j].Datetime)
	})
	return out
}
