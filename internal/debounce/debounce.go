// Package debounce coalesces bursts of notifications into a single trailing
// call per key.
package debounce

import (
	"sync"
	"time"
)

// DefaultDelay is the quiet period used when none is configured.
const DefaultDelay = 50 * time.Millisecond

// Debouncer arms one single-shot timer per key. Notifying a key whose timer is
// pending restarts the delay; when the key stays quiet for the delay, fire is
// called exactly once with that key.
type Debouncer[K comparable] struct {
	delay time.Duration
	fire  func(K)

	mu      sync.Mutex
	pending map[K]*entry
	seq     uint64
	stopped bool
}

type entry struct {
	timer *time.Timer
	seq   uint64
}

// New constructs a debouncer. A non-positive delay uses DefaultDelay.
func New[K comparable](delay time.Duration, fire func(K)) *Debouncer[K] {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer[K]{
		delay:   delay,
		fire:    fire,
		pending: make(map[K]*entry),
	}
}

// Delay returns the configured quiet period.
func (d *Debouncer[K]) Delay() time.Duration {
	if d == nil {
		return 0
	}
	return d.delay
}

// Notify starts or restarts the quiet period for key.
func (d *Debouncer[K]) Notify(key K) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.seq++
	seq := d.seq
	e := d.pending[key]
	if e == nil {
		e = &entry{}
		d.pending[key] = e
	} else if e.timer != nil {
		e.timer.Stop()
	}
	e.seq = seq
	e.timer = time.AfterFunc(d.delay, func() { d.expire(key, seq) })
}

// Pending reports whether key has an armed timer.
func (d *Debouncer[K]) Pending(key K) bool {
	if d == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Cancel drops a pending firing for key.
func (d *Debouncer[K]) Cancel(key K) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if e := d.pending[key]; e != nil {
		e.timer.Stop()
		delete(d.pending, key)
	}
}

// Stop cancels every pending timer. Later notifications are ignored.
func (d *Debouncer[K]) Stop() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for key, e := range d.pending {
		e.timer.Stop()
		delete(d.pending, key)
	}
}

func (d *Debouncer[K]) expire(key K, seq uint64) {
	d.mu.Lock()
	e := d.pending[key]
	// A newer Notify replaced this timer after it had already fired.
	if d.stopped || e == nil || e.seq != seq {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()
	if d.fire != nil {
		d.fire(key)
	}
}
