package service

import (
	"sync"
	"time"
)

// DefaultDebounceQuiet is the quiet interval a burst of input must go idle
// for before the coalesced write fires.
const DefaultDebounceQuiet = 200 * time.Millisecond

// WriteFunc performs the downstream write of a debounced value.
type WriteFunc func(key string, value any) error

// Debouncer coalesces a rapid stream of value updates per key into a single
// downstream write after a quiet interval. Each key owns its own cancellable
// timer, so unrelated controls never coalesce or block each other. The last
// value scheduled before the stream goes idle wins.
type Debouncer struct {
	mu      sync.Mutex
	quiet   time.Duration
	write   WriteFunc
	onError func(key string, err error)
	timers  map[string]*time.Timer
	values  map[string]any
}

func NewDebouncer(quiet time.Duration, write WriteFunc, onError func(key string, err error)) *Debouncer {
	if quiet <= 0 {
		quiet = DefaultDebounceQuiet
	}
	return &Debouncer{
		quiet:   quiet,
		write:   write,
		onError: onError,
		timers:  make(map[string]*time.Timer),
		values:  make(map[string]any),
	}
}

// Schedule records value for key and (re)arms the key's timer for one quiet
// interval from now, cancelling any pending write for that key.
func (d *Debouncer) Schedule(key string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.values[key] = value
	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	d.timers[key] = time.AfterFunc(d.quiet, func() { d.fire(key) })
}

// fire performs the coalesced write for key. A write failure is surfaced to
// the error hook, never retried here: debounced writes are event-driven, so
// there is no later re-evaluation to self-heal through.
func (d *Debouncer) fire(key string) {
	d.mu.Lock()
	value, ok := d.values[key]
	delete(d.values, key)
	delete(d.timers, key)
	d.mu.Unlock()

	if !ok {
		return
	}
	if err := d.write(key, value); err != nil && d.onError != nil {
		d.onError(key, err)
	}
}

// Stop cancels every pending write. Used on session teardown.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, t := range d.timers {
		t.Stop()
		delete(d.timers, key)
		delete(d.values, key)
	}
}
