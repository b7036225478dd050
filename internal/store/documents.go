package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// docPersist is the row-level persistence behind the document store,
// narrowed so tests can stub it without a database.
type docPersist interface {
	load(ctx context.Context, key string) (map[string]any, error)
	save(ctx context.Context, key string, doc map[string]any) error
	remove(ctx context.Context, key string) error
}

// subscriber channels are buffered; a subscriber that falls this far behind
// starts losing intermediate snapshots, never the loop.
const subBuffer = 16

// DocumentStore implements Store on top of a docPersist with in-process
// subscription fan-out. One mutex serializes mutations and subscriber
// bookkeeping; sqlite underneath is single-writer anyway.
type DocumentStore struct {
	mu      sync.Mutex
	persist docPersist
	subs    map[string]map[int]chan json.RawMessage
	nextSub int
}

func NewDocumentStore(p docPersist) *DocumentStore {
	return &DocumentStore{
		persist: p,
		subs:    make(map[string]map[int]chan json.RawMessage),
	}
}

// splitPath validates a path and splits it into the root document key
// ("devices/{id}") and the remaining segments into the document.
func splitPath(path string) (string, []string, error) {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) < 2 || segs[0] == "" || segs[1] == "" {
		return "", nil, fmt.Errorf("path %q: want at least collection/id", path)
	}
	return segs[0] + "/" + segs[1], segs[2:], nil
}

// toJSONValue normalizes an arbitrary Go value into the shapes produced by
// encoding/json (map[string]any, []any, float64, string, bool, nil), so
// documents stay uniform no matter who wrote them.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// descend walks nested objects. Missing or non-object intermediates yield
// (nil, false).
func descend(doc map[string]any, segs []string) (any, bool) {
	var cur any = doc
	for _, s := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[s]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// setNested writes value at segs, materializing intermediate objects and
// overwriting non-object intermediates.
func setNested(doc map[string]any, segs []string, value any) {
	cur := doc
	for _, s := range segs[:len(segs)-1] {
		next, ok := cur[s].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[s] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = value
}

func (d *DocumentStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	key, rest, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	doc, err := d.persist.load(ctx, key)
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}

	val, ok := descend(doc, rest)
	if !ok {
		return nil, nil
	}
	return json.Marshal(val)
}

func (d *DocumentStore) Set(ctx context.Context, path string, value any) error {
	key, rest, err := splitPath(path)
	if err != nil {
		return err
	}
	norm, err := toJSONValue(value)
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	doc, err := d.persist.load(ctx, key)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		obj, ok := norm.(map[string]any)
		if !ok {
			return fmt.Errorf("set %s: root document must be an object", path)
		}
		doc = obj
	} else {
		if doc == nil {
			doc = make(map[string]any)
		}
		setNested(doc, rest, norm)
	}

	if err := d.persist.save(ctx, key, doc); err != nil {
		return err
	}
	d.notifyLocked(key, doc)
	return nil
}

func (d *DocumentStore) Update(ctx context.Context, path string, fields map[string]any) error {
	key, rest, err := splitPath(path)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	doc, err := d.persist.load(ctx, key)
	if err != nil {
		return err
	}
	if doc == nil {
		doc = make(map[string]any)
	}

	target := doc
	if len(rest) > 0 {
		obj, ok := descend(doc, rest)
		if m, isMap := obj.(map[string]any); ok && isMap {
			target = m
		} else {
			target = make(map[string]any)
			setNested(doc, rest, target)
		}
	}
	for k, v := range fields {
		norm, err := toJSONValue(v)
		if err != nil {
			return fmt.Errorf("update %s field %s: %w", path, k, err)
		}
		target[k] = norm
	}

	if err := d.persist.save(ctx, key, doc); err != nil {
		return err
	}
	d.notifyLocked(key, doc)
	return nil
}

func (d *DocumentStore) Push(ctx context.Context, path string, value any) (string, error) {
	id := uuid.NewString()
	if err := d.Set(ctx, strings.TrimRight(path, "/")+"/"+id, value); err != nil {
		return "", err
	}
	return id, nil
}

func (d *DocumentStore) Delete(ctx context.Context, path string) error {
	key, rest, err := splitPath(path)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(rest) == 0 {
		if err := d.persist.remove(ctx, key); err != nil {
			return err
		}
		d.notifyLocked(key, nil)
		return nil
	}

	doc, err := d.persist.load(ctx, key)
	if err != nil || doc == nil {
		return err
	}
	parent, ok := descend(doc, rest[:len(rest)-1])
	m, isMap := parent.(map[string]any)
	if !ok || !isMap {
		return nil // nothing to delete
	}
	if _, exists := m[rest[len(rest)-1]]; !exists {
		return nil
	}
	delete(m, rest[len(rest)-1])

	if err := d.persist.save(ctx, key, doc); err != nil {
		return err
	}
	d.notifyLocked(key, doc)
	return nil
}

func (d *DocumentStore) Subscribe(ctx context.Context, path string) (<-chan json.RawMessage, func()) {
	key, _, err := splitPath(path)
	if err != nil {
		// Deliver nothing; callers subscribing with a bad path get a closed
		// channel rather than a panic mid-loop.
		ch := make(chan json.RawMessage)
		close(ch)
		return ch, func() {}
	}

	d.mu.Lock()
	id := d.nextSub
	d.nextSub++
	ch := make(chan json.RawMessage, subBuffer)
	if d.subs[key] == nil {
		d.subs[key] = make(map[int]chan json.RawMessage)
	}
	d.subs[key][id] = ch

	doc, loadErr := d.persist.load(ctx, key)
	if loadErr == nil {
		ch <- marshalSnapshot(doc)
	}
	d.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			d.mu.Lock()
			if m := d.subs[key]; m != nil {
				if c, ok := m[id]; ok {
					delete(m, id)
					close(c)
				}
			}
			d.mu.Unlock()
		})
	}

	stop := context.AfterFunc(ctx, cancel)
	return ch, func() { stop(); cancel() }
}

// notifyLocked fans the new root snapshot out to subscribers. Callers hold
// d.mu. Sends never block: a full buffer means the subscriber sees the next
// snapshot instead.
func (d *DocumentStore) notifyLocked(key string, doc map[string]any) {
	if len(d.subs[key]) == 0 {
		return
	}
	snap := marshalSnapshot(doc)
	for _, ch := range d.subs[key] {
		select {
		case ch <- snap:
		default:
		}
	}
}

func marshalSnapshot(doc map[string]any) json.RawMessage {
	if doc == nil {
		return json.RawMessage("null")
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}

// ---- sqlite persistence ----

// cache TTLs for decoded documents; writes invalidate eagerly so expiry is
// only a safety net.
const (
	docCacheTTL     = 5 * time.Minute
	docCacheCleanup = 10 * time.Minute
)

type sqlitePersist struct {
	db    *sql.DB
	cache *gocache.Cache
}

func newSQLitePersist(db *sql.DB) *sqlitePersist {
	return &sqlitePersist{
		db:    db,
		cache: gocache.New(docCacheTTL, docCacheCleanup),
	}
}

const (
	selectDocSQL = `SELECT doc FROM documents WHERE key = ?`

	upsertDocSQL = `
		INSERT INTO documents (key, doc, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET doc=excluded.doc, updated_at=excluded.updated_at
	`

	deleteDocSQL = `DELETE FROM documents WHERE key = ?`
)

func (p *sqlitePersist) load(ctx context.Context, key string) (map[string]any, error) {
	raw, ok := p.cache.Get(key)
	if !ok {
		var s string
		err := p.db.QueryRowContext(ctx, selectDocSQL, key).Scan(&s)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load document %s: %w", key, err)
		}
		p.cache.Set(key, s, gocache.DefaultExpiration)
		raw = s
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(raw.(string)), &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", key, err)
	}
	return doc, nil
}

func (p *sqlitePersist) save(ctx context.Context, key string, doc map[string]any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", key, err)
	}
	if _, err := p.db.ExecContext(ctx, upsertDocSQL, key, string(b), time.Now().UTC()); err != nil {
		return fmt.Errorf("save document %s: %w", key, err)
	}
	p.cache.Set(key, string(b), gocache.DefaultExpiration)
	return nil
}

func (p *sqlitePersist) remove(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, deleteDocSQL, key); err != nil {
		return fmt.Errorf("delete document %s: %w", key, err)
	}
	p.cache.Delete(key)
	return nil
}
