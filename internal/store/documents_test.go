package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"agropres/internal/models"
)

// memPersist is an in-memory docPersist for exercising the document store
// without sqlite.
type memPersist struct {
	mu       sync.Mutex
	docs     map[string]string
	failSave error
}

func newMemPersist() *memPersist {
	return &memPersist{docs: make(map[string]string)}
}

func (p *memPersist) load(ctx context.Context, key string) (map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	raw, ok := p.docs[key]
	if !ok {
		return nil, nil
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (p *memPersist) save(ctx context.Context, key string, doc map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failSave != nil {
		return p.failSave
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	p.docs[key] = string(b)
	return nil
}

func (p *memPersist) remove(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.docs, key)
	return nil
}

func TestSplitPath(t *testing.T) {
	cases := []struct {
		in       string
		key      string
		restLen  int
		wantErr  bool
	}{
		{"devices/dev-1", "devices/dev-1", 0, false},
		{"devices/dev-1/controls/uv_light", "devices/dev-1", 2, false},
		{"/users/u1/reminders/", "users/u1", 1, false},
		{"devices", "", 0, true},
		{"", "", 0, true},
		{"devices//controls", "", 0, true},
	}
	for _, tc := range cases {
		key, rest, err := splitPath(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("splitPath(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("splitPath(%q): %v", tc.in, err)
			continue
		}
		if key != tc.key || len(rest) != tc.restLen {
			t.Errorf("splitPath(%q) = %q, %v", tc.in, key, rest)
		}
	}
}

func TestDocumentStoreSetGet(t *testing.T) {
	d := NewDocumentStore(newMemPersist())
	c := context.Background()

	if err := d.Set(c, "devices/dev-1/controls/uv_light", true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := d.Set(c, "devices/dev-1/controls/pwm_raw", 512); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := d.Get(c, "devices/dev-1/controls/uv_light")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "true" {
		t.Fatalf("leaf = %s, want true", got)
	}

	got, err = d.Get(c, "devices/dev-1/controls")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(got, &obj); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if obj["uv_light"] != true || obj["pwm_raw"] != float64(512) {
		t.Fatalf("controls = %v", obj)
	}

	// Absent paths read as null, not an error.
	got, err = d.Get(c, "devices/dev-1/controls/missing")
	if err != nil || got != nil {
		t.Fatalf("absent leaf = %s, %v; want nil, nil", got, err)
	}
	got, err = d.Get(c, "devices/nope")
	if err != nil || got != nil {
		t.Fatalf("absent doc = %s, %v; want nil, nil", got, err)
	}
}

func TestDocumentStoreSetNormalizesValues(t *testing.T) {
	d := NewDocumentStore(newMemPersist())
	c := context.Background()

	sched := models.RelaySchedule{OnTime: "08:00", OffTime: "17:00"}
	if err := d.Set(c, "devices/dev-1/relay_schedules/uv_light", sched); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := d.Get(c, "devices/dev-1/relay_schedules/uv_light/on_time")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `"08:00"` {
		t.Fatalf("on_time = %s", got)
	}
}

func TestDocumentStoreSetRootMustBeObject(t *testing.T) {
	d := NewDocumentStore(newMemPersist())
	if err := d.Set(context.Background(), "devices/dev-1", 42); err == nil {
		t.Fatal("expected error setting scalar at document root")
	}
}

func TestDocumentStoreUpdateMergesShallow(t *testing.T) {
	d := NewDocumentStore(newMemPersist())
	c := context.Background()

	if err := d.Set(c, "devices/dev-1/controls/uv_light", false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	err := d.Update(c, "devices/dev-1/relay_schedules", map[string]any{
		"uv_light": models.RelaySchedule{OnTime: "08:00", OffTime: "17:00"},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	// Siblings outside the merged object survive.
	got, err := d.Get(c, "devices/dev-1/controls/uv_light")
	if err != nil || string(got) != "false" {
		t.Fatalf("sibling = %s, %v", got, err)
	}
	got, err = d.Get(c, "devices/dev-1/relay_schedules/uv_light/off_time")
	if err != nil || string(got) != `"17:00"` {
		t.Fatalf("merged field = %s, %v", got, err)
	}

	// A second merge replaces only the named fields.
	err = d.Update(c, "devices/dev-1/relay_schedules", map[string]any{
		"ultrasonic": models.RelaySchedule{OnTime: "22:00", OffTime: "05:00"},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ = d.Get(c, "devices/dev-1/relay_schedules/uv_light/on_time")
	if string(got) != `"08:00"` {
		t.Fatalf("earlier field lost: %s", got)
	}
}

func TestDocumentStorePushAssignsKeys(t *testing.T) {
	d := NewDocumentStore(newMemPersist())
	c := context.Background()

	id1, err := d.Push(c, "users/u1/reminders", map[string]any{"message": "a"})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	id2, err := d.Push(c, "users/u1/reminders", map[string]any{"message": "b"})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if id1 == "" || id1 == id2 {
		t.Fatalf("ids = %q, %q; want distinct non-empty", id1, id2)
	}

	got, err := d.Get(c, "users/u1/reminders/"+id1+"/message")
	if err != nil || string(got) != `"a"` {
		t.Fatalf("pushed value = %s, %v", got, err)
	}
}

func TestDocumentStoreDelete(t *testing.T) {
	d := NewDocumentStore(newMemPersist())
	c := context.Background()

	if err := d.Set(c, "users/u1/reminders/r1/message", "x"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := d.Delete(c, "users/u1/reminders/r1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := d.Get(c, "users/u1/reminders/r1"); got != nil {
		t.Fatalf("deleted subtree still readable: %s", got)
	}

	// Deleting something absent is a no-op.
	if err := d.Delete(c, "users/u1/reminders/r9"); err != nil {
		t.Fatalf("Delete absent: %v", err)
	}

	// Root delete drops the whole document.
	if err := d.Delete(c, "users/u1"); err != nil {
		t.Fatalf("Delete root: %v", err)
	}
	if got, _ := d.Get(c, "users/u1/reminders"); got != nil {
		t.Fatalf("root delete left data: %s", got)
	}
}

func TestDocumentStoreSubscribe(t *testing.T) {
	d := NewDocumentStore(newMemPersist())
	c := context.Background()

	ch, cancel := d.Subscribe(c, "devices/dev-1")
	defer cancel()

	// Missing documents deliver an initial null snapshot.
	select {
	case raw := <-ch:
		if string(raw) != "null" {
			t.Fatalf("initial snapshot = %s, want null", raw)
		}
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	if err := d.Set(c, "devices/dev-1/controls/uv_light", true); err != nil {
		t.Fatalf("Set: %v", err)
	}

	select {
	case raw := <-ch:
		var st models.DeviceState
		if err := json.Unmarshal(raw, &st); err != nil {
			t.Fatalf("decode snapshot: %v", err)
		}
		if !st.BoolControl(models.ControlUVLight) {
			t.Fatalf("snapshot = %s", raw)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot after write")
	}

	// Writes to other documents are not delivered here.
	if err := d.Set(c, "devices/other/controls/uv_light", true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	select {
	case raw := <-ch:
		t.Fatalf("unexpected snapshot: %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDocumentStoreSubscribeCancel(t *testing.T) {
	d := NewDocumentStore(newMemPersist())
	c := context.Background()

	ch, cancel := d.Subscribe(c, "devices/dev-1")
	<-ch // initial snapshot
	cancel()

	if _, open := <-ch; open {
		t.Fatal("channel should be closed after cancel")
	}
	// Cancel is idempotent.
	cancel()

	// Writes after cancel must not panic or misdeliver.
	if err := d.Set(c, "devices/dev-1/controls/uv_light", true); err != nil {
		t.Fatalf("Set: %v", err)
	}
}

func TestDocumentStoreSubscribeContextDone(t *testing.T) {
	d := NewDocumentStore(newMemPersist())
	c, stop := context.WithCancel(context.Background())

	ch, cancel := d.Subscribe(c, "devices/dev-1")
	defer cancel()
	<-ch

	stop()

	deadline := time.After(time.Second)
	for {
		select {
		case _, open := <-ch:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after context cancel")
		}
	}
}

func TestDocumentStoreFanOut(t *testing.T) {
	d := NewDocumentStore(newMemPersist())
	c := context.Background()

	ch1, cancel1 := d.Subscribe(c, "devices/dev-1")
	defer cancel1()
	ch2, cancel2 := d.Subscribe(c, "devices/dev-1")
	defer cancel2()
	<-ch1
	<-ch2

	if err := d.Set(c, "devices/dev-1/controls/uv_light", true); err != nil {
		t.Fatalf("Set: %v", err)
	}

	for i, ch := range []<-chan json.RawMessage{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d got no snapshot", i+1)
		}
	}
}

func TestDocumentStoreSetFailureDoesNotNotify(t *testing.T) {
	p := newMemPersist()
	d := NewDocumentStore(p)
	c := context.Background()

	ch, cancel := d.Subscribe(c, "devices/dev-1")
	defer cancel()
	<-ch

	p.failSave = errors.New("disk full")
	if err := d.Set(c, "devices/dev-1/controls/uv_light", true); err == nil {
		t.Fatal("expected save failure to surface")
	}

	select {
	case raw := <-ch:
		t.Fatalf("failed write must not fan out, got %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}
