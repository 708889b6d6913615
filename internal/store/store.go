// Package store holds conference and user registries. The Conference type
// carries the slot-reservation counter that enforces capacity; reservation
// and release are lock-free and linearizable, which makes them safe to call
// from any number of concurrent booking requests.
package store

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confbook/confbook/internal/clock"
	"github.com/confbook/confbook/internal/model"
)

// ErrDuplicateName is returned when a conference with the same name exists.
var ErrDuplicateName = errors.New("conference already exists")

// ErrInvalidWindow is returned when a conference time window is rejected.
var ErrInvalidWindow = errors.New("invalid conference window")

// ErrConferenceNotFound is returned when a conference name is unknown.
var ErrConferenceNotFound = errors.New("conference not found")

// maxDuration caps how long a single conference may run.
const maxDuration = 12 * time.Hour

// Conference is a registered conference plus its slot counter. The counter
// tracks slots held by CONFIRMED and CONFIRMATION_PENDING bookings; a
// pending booking keeps its freed slot reserved until it is confirmed,
// cycled onward, or released.
type Conference struct {
	Name     string
	Location string
	Start    time.Time
	End      time.Time
	Capacity int
	Topics   []string

	held atomic.Int64
}

// TryReserve atomically takes one slot if headroom remains. This is the
// capacity-enforcement primitive: the CAS loop guarantees that held never
// exceeds Capacity no matter how many callers race.
func (c *Conference) TryReserve() bool {
	for {
		h := c.held.Load()
		if h >= int64(c.Capacity) {
			return false
		}
		if c.held.CompareAndSwap(h, h+1) {
			return true
		}
	}
}

// Release returns one slot. Releasing below zero is clamped rather than
// allowed to corrupt the counter.
func (c *Conference) Release() {
	for {
		h := c.held.Load()
		if h <= 0 {
			return
		}
		if c.held.CompareAndSwap(h, h-1) {
			return
		}
	}
}

// Held reports the number of slots currently reserved.
func (c *Conference) Held() int {
	return int(c.held.Load())
}

// Remaining reports the current slot headroom.
func (c *Conference) Remaining() int {
	return c.Capacity - int(c.held.Load())
}

// Started reports whether the conference start instant has elapsed.
func (c *Conference) Started(now time.Time) bool {
	return !now.Before(c.Start)
}

// ConferenceStore is the registry of conferences, keyed by name.
type ConferenceStore struct {
	clock clock.Clock

	mu     sync.RWMutex
	byName map[string]*Conference
}

// NewConferenceStore constructs an empty registry.
func NewConferenceStore(clk clock.Clock) *ConferenceStore {
	return &ConferenceStore{
		clock:  clk,
		byName: make(map[string]*Conference),
	}
}

// Register validates the time window and inserts the conference. A zero
// capacity is allowed (every booking is immediately waitlisted); the window
// must start in the future, end after it starts, and run at most 12 hours.
func (s *ConferenceStore) Register(c model.Conference) (*Conference, error) {
	if !c.Start.Before(c.End) {
		return nil, fmt.Errorf("%w: start timestamp must be before end timestamp", ErrInvalidWindow)
	}
	if !s.clock.Now().Before(c.Start) {
		return nil, fmt.Errorf("%w: start timestamp is in the past", ErrInvalidWindow)
	}
	if c.End.Sub(c.Start) > maxDuration {
		return nil, fmt.Errorf("%w: duration should not exceed 12 hours", ErrInvalidWindow)
	}

	conf := &Conference{
		Name:     c.Name,
		Location: c.Location,
		Start:    c.Start,
		End:      c.End,
		Capacity: c.Slots,
		Topics:   c.Topics,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[c.Name]; exists {
		return nil, ErrDuplicateName
	}
	s.byName[c.Name] = conf
	return conf, nil
}

// Get returns the conference with the given name or ErrConferenceNotFound.
func (s *ConferenceStore) Get(name string) (*Conference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conf, ok := s.byName[name]
	if !ok {
		return nil, ErrConferenceNotFound
	}
	return conf, nil
}
