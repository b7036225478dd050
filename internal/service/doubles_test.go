package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"agropres/internal/logger"
	"agropres/internal/models"
)

// docsStub records mutations so tests can assert what the engine wrote and
// where, without a real store behind it.
type docsStub struct {
	mu      sync.Mutex
	sets    []docWrite
	updates []docUpdate
	pushes  []docWrite
	deletes []string

	failSet    error
	failUpdate error
	pushID     string
}

type docWrite struct {
	path  string
	value any
}

type docUpdate struct {
	path   string
	fields map[string]any
}

func (s *docsStub) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return nil, nil
}

func (s *docsStub) Set(ctx context.Context, path string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSet != nil {
		return s.failSet
	}
	s.sets = append(s.sets, docWrite{path, value})
	return nil
}

func (s *docsStub) Update(ctx context.Context, path string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate != nil {
		return s.failUpdate
	}
	s.updates = append(s.updates, docUpdate{path, fields})
	return nil
}

func (s *docsStub) Push(ctx context.Context, path string, value any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushes = append(s.pushes, docWrite{path, value})
	if s.pushID == "" {
		return "generated-id", nil
	}
	return s.pushID, nil
}

func (s *docsStub) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, path)
	return nil
}

func (s *docsStub) Subscribe(ctx context.Context, path string) (<-chan json.RawMessage, func()) {
	ch := make(chan json.RawMessage)
	close(ch)
	return ch, func() {}
}

func (s *docsStub) setCalls() []docWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]docWrite(nil), s.sets...)
}

func (s *docsStub) updateCalls() []docUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]docUpdate(nil), s.updates...)
}

// eventsStub records appended audit events.
type eventsStub struct {
	mu       sync.Mutex
	appended []models.EngineEvent
}

func (s *eventsStub) Append(ctx context.Context, e models.EngineEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended = append(s.appended, e)
	return nil
}

func (s *eventsStub) List(ctx context.Context, from, to time.Time, typ string) ([]models.EngineEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.EngineEvent(nil), s.appended...), nil
}

func (s *eventsStub) typesAppended() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.appended))
	for _, e := range s.appended {
		out = append(out, e.Type)
	}
	return out
}

// senderStub implements notify.Sender for dispatch tests.
type senderStub struct {
	mu         sync.Mutex
	configured bool
	err        error
	sent       []sentMessage
}

type sentMessage struct {
	target  string
	message string
}

func (s *senderStub) Send(ctx context.Context, target, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMessage{target, message})
	return nil
}

func (s *senderStub) Configured() bool { return s.configured }

func (s *senderStub) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// seededSession builds a session bound to dev-1/user-1 with the given raw
// document snapshots already applied.
func seededSession(deviceJSON, userJSON string) *Session {
	sess := NewSession(&docsStub{}, logger.Nop(), "dev-1", "user-1")
	if deviceJSON != "" {
		sess.applyDeviceSnapshot(json.RawMessage(deviceJSON))
	}
	if userJSON != "" {
		sess.applyUserSnapshot(json.RawMessage(userJSON))
	}
	return sess
}
