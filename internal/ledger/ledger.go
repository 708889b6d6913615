// Package ledger is the authoritative record of bookings and the single
// place booking status is mutated. Every transition is a compare-and-set
// against the expected prior status under the booking's own lock, so user
// calls and timer callbacks can race freely: exactly one actor wins and the
// loser observes the post-transition state.
package ledger

import (
	"errors"
	"sync"
	"time"

	"github.com/confbook/confbook/internal/clock"
	"github.com/confbook/confbook/internal/model"
)

// ErrNotFound is returned when a booking id is unknown.
var ErrNotFound = errors.New("booking not found")

// ErrDuplicateBooking is returned when a user already holds a non-canceled
// booking for the same conference.
var ErrDuplicateBooking = errors.New("user already has an active booking for this conference")

// Snapshot is a consistent copy of a booking's state at one instant.
type Snapshot struct {
	ID                   int64
	UserID               string
	Conference           string
	Status               model.Status
	CreatedAt            time.Time
	ConfirmationDeadline *time.Time
	CanceledAt           *time.Time
	Version              uint64
}

// Booking is a single booking record. Identity fields are immutable; the
// status block is guarded by the booking's own mutex.
type Booking struct {
	id         int64
	userID     string
	conference string
	createdAt  time.Time

	mu       sync.Mutex
	status   model.Status
	version  uint64
	deadline *time.Time
	canceled *time.Time
}

// ID returns the booking identifier.
func (b *Booking) ID() int64 { return b.id }

// UserID returns the owning user id.
func (b *Booking) UserID() string { return b.userID }

// Conference returns the target conference name.
func (b *Booking) Conference() string { return b.conference }

// Status returns the current status.
func (b *Booking) Status() model.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Snapshot returns a consistent copy of the booking.
func (b *Booking) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		ID:                   b.id,
		UserID:               b.userID,
		Conference:           b.conference,
		Status:               b.status,
		CreatedAt:            b.createdAt,
		ConfirmationDeadline: b.deadline,
		CanceledAt:           b.canceled,
		Version:              b.version,
	}
}

type activeKey struct {
	user       string
	conference string
}

// Ledger owns all booking records. Creation order doubles as the waitlist
// tie-break: ids are assigned from a monotonic counter.
type Ledger struct {
	clock clock.Clock

	mu           sync.Mutex
	nextID       int64
	byID         map[int64]*Booking
	byConference map[string][]*Booking
	active       map[activeKey]int64
}

// New constructs an empty ledger.
func New(clk clock.Clock) *Ledger {
	return &Ledger{
		clock:        clk,
		byID:         make(map[int64]*Booking),
		byConference: make(map[string][]*Booking),
		active:       make(map[activeKey]int64),
	}
}

// Create inserts a booking in the given initial status. The duplicate-
// active check and the insert happen under one lock, so a user racing two
// booking requests for the same conference ends up with exactly one record.
func (l *Ledger) Create(userID, conference string, status model.Status) (*Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := activeKey{user: userID, conference: conference}
	if _, exists := l.active[key]; exists {
		return nil, ErrDuplicateBooking
	}

	l.nextID++
	b := &Booking{
		id:         l.nextID,
		userID:     userID,
		conference: conference,
		createdAt:  l.clock.Now(),
		status:     status,
	}
	l.byID[b.id] = b
	l.byConference[conference] = append(l.byConference[conference], b)
	l.active[key] = b.id
	return b, nil
}

// Get returns the booking with the given id or ErrNotFound.
func (l *Ledger) Get(id int64) (*Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

// ByConference returns snapshots of every booking for the conference, in
// creation order.
func (l *Ledger) ByConference(conference string) []Snapshot {
	l.mu.Lock()
	list := make([]*Booking, len(l.byConference[conference]))
	copy(list, l.byConference[conference])
	l.mu.Unlock()

	snaps := make([]Snapshot, 0, len(list))
	for _, b := range list {
		snaps = append(snaps, b.Snapshot())
	}
	return snaps
}

// Transition performs the compare-and-set from -> to. It reports whether
// this caller won; a false return means another actor already moved the
// booking on. A transition to CANCELED records the cancellation time and
// frees the (user, conference) slot in the uniqueness index so the user may
// book the conference again.
func (l *Ledger) Transition(id int64, from, to model.Status) bool {
	b, err := l.Get(id)
	if err != nil {
		return false
	}

	b.mu.Lock()
	if b.status != from {
		b.mu.Unlock()
		return false
	}
	b.status = to
	b.version++
	b.deadline = nil
	if to == model.StatusCanceled {
		now := l.clock.Now()
		b.canceled = &now
	}
	b.mu.Unlock()

	if to == model.StatusCanceled {
		l.mu.Lock()
		key := activeKey{user: b.userID, conference: b.conference}
		if l.active[key] == id {
			delete(l.active, key)
		}
		l.mu.Unlock()
	}
	return true
}

// Promote performs WAITLISTED -> CONFIRMATION_PENDING and stamps the
// confirmation deadline, all under the booking lock. It fails if the
// booking is no longer waitlisted (e.g. the owner canceled it while it sat
// at the head of the queue).
func (l *Ledger) Promote(id int64, deadline time.Time) bool {
	b, err := l.Get(id)
	if err != nil {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status != model.StatusWaitlisted {
		return false
	}
	b.status = model.StatusConfirmationPending
	b.version++
	b.deadline = &deadline
	return true
}
