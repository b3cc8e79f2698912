package diagnose

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of work per key. Only the last Trigger for a key
// runs, once the key has been quiet for the delay.
type Debouncer struct {
	delay time.Duration
	post  func(func())

	mu      sync.Mutex
	timers  map[string]*time.Timer
	gen     map[string]uint64
	stopped bool
}

// NewDebouncer creates a debouncer. post delivers fired work; nil runs it on
// the timer goroutine. A delay of zero or less runs work synchronously.
func NewDebouncer(delay time.Duration, post func(func())) *Debouncer {
	if post == nil {
		post = func(fn func()) { fn() }
	}
	return &Debouncer{
		delay:  delay,
		post:   post,
		timers: make(map[string]*time.Timer),
		gen:    make(map[string]uint64),
	}
}

// Trigger schedules fn under key, replacing any pending work for key.
func (d *Debouncer) Trigger(key string, fn func()) {
	if d.delay <= 0 {
		d.mu.Lock()
		stopped := d.stopped
		d.mu.Unlock()
		if !stopped {
			fn()
		}
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	d.gen[key]++
	g := d.gen[key]
	d.timers[key] = time.AfterFunc(d.delay, func() {
		if !d.current(key, g, true) {
			return
		}
		d.post(func() {
			// Cancelled between firing and reaching the loop.
			if d.current(key, g, false) {
				fn()
			}
		})
	})
}

func (d *Debouncer) current(key string, g uint64, fired bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || d.gen[key] != g {
		return false
	}
	if fired {
		delete(d.timers, key)
	}
	return true
}

// Cancel drops pending work for key.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[key]; ok {
		t.Stop()
		delete(d.timers, key)
	}
	d.gen[key]++
}

// Pending returns the number of keys with scheduled work.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Stop cancels everything. Later Triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for k, t := range d.timers {
		t.Stop()
		delete(d.timers, k)
	}
}
