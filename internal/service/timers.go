package service

import (
	"sync"
	"time"

	"github.com/confbook/confbook/internal/clock"
)

// confirmationTimers tracks the TTL deadline armed for each booking that
// enters confirmation-pending state. Stopping a timer that already fired is
// harmless: the expiry callback re-checks status with a compare-and-set, so
// a late firing simply loses the race and no-ops.
type confirmationTimers struct {
	mu     sync.Mutex
	timers map[int64]*time.Timer
}

func newConfirmationTimers() *confirmationTimers {
	return &confirmationTimers{timers: make(map[int64]*time.Timer)}
}

func (t *confirmationTimers) arm(bookingID int64, ttl time.Duration, expire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tm, ok := t.timers[bookingID]; ok {
		tm.Stop()
	}
	t.timers[bookingID] = time.AfterFunc(ttl, func() {
		t.drop(bookingID)
		expire()
	})
}

func (t *confirmationTimers) stop(bookingID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tm, ok := t.timers[bookingID]; ok {
		tm.Stop()
		delete(t.timers, bookingID)
	}
}

func (t *confirmationTimers) drop(bookingID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.timers, bookingID)
}

func (t *confirmationTimers) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, tm := range t.timers {
		tm.Stop()
		delete(t.timers, id)
	}
}

// lifecycleTimers holds the one-shot timer armed at registration for each
// conference's start instant.
type lifecycleTimers struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newLifecycleTimers() *lifecycleTimers {
	return &lifecycleTimers{timers: make(map[string]*time.Timer)}
}

func (t *lifecycleTimers) schedule(conference string, start time.Time, clk clock.Clock, fire func()) {
	delay := start.Sub(clk.Now())
	if delay < 0 {
		delay = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if tm, ok := t.timers[conference]; ok {
		tm.Stop()
	}
	t.timers[conference] = time.AfterFunc(delay, func() {
		t.drop(conference)
		fire()
	})
}

func (t *lifecycleTimers) drop(conference string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.timers, conference)
}

func (t *lifecycleTimers) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, tm := range t.timers {
		tm.Stop()
		delete(t.timers, name)
	}
}
