package watcher

import (
	"sort"
	"sync"
	"time"
)

// Debouncer delays a per-key callback until the key has been quiet for the
// configured delay. Triggering a pending key restarts its timer.
type Debouncer struct {
	delay  time.Duration
	fire   func(key string)
	mu     sync.Mutex
	timers map[string]*pending
}

type pending struct {
	timer *time.Timer
}

// NewDebouncer creates a debouncer calling fire once per quiet key.
func NewDebouncer(delay time.Duration, fire func(key string)) *Debouncer {
	return &Debouncer{
		delay:  delay,
		fire:   fire,
		timers: make(map[string]*pending),
	}
}

// Trigger schedules or reschedules key.
func (d *Debouncer) Trigger(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.timers[key]; ok {
		p.timer.Stop()
	}
	p := &pending{}
	p.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.timers[key] != p {
			// superseded by a later Trigger
			d.mu.Unlock()
			return
		}
		delete(d.timers, key)
		d.mu.Unlock()
		d.fire(key)
	})
	d.timers[key] = p
}

// Pending returns the number of keys waiting to fire.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Flush fires every pending key now, in sorted order.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	keys := make([]string, 0, len(d.timers))
	for key, p := range d.timers {
		p.timer.Stop()
		keys = append(keys, key)
	}
	d.timers = make(map[string]*pending)
	d.mu.Unlock()

	sort.Strings(keys)
	for _, key := range keys {
		d.fire(key)
	}
}

// Stop cancels every pending key.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.timers {
		p.timer.Stop()
	}
	d.timers = make(map[string]*pending)
}
