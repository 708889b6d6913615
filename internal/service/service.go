// Package service implements the booking engine: validation, the booking
// state machine, waitlist cycling, and the two timer-driven behaviors
// (confirmation expiry and conference-start cleanup). It orchestrates the
// store, waitlist, and ledger packages; nothing else writes booking state.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"sync"
	"time"

	"github.com/confbook/confbook/internal/clock"
	"github.com/confbook/confbook/internal/ledger"
	"github.com/confbook/confbook/internal/model"
	"github.com/confbook/confbook/internal/store"
	"github.com/confbook/confbook/internal/waitlist"
)

// ErrAccessDenied is returned when a user tries to confirm a booking they
// do not own. Handlers must keep it distinguishable from not-found.
var ErrAccessDenied = errors.New("Access denied: only the booking owner can confirm")

// ErrConferenceStarted is returned when booking or confirming against a
// conference whose start instant has elapsed.
var ErrConferenceStarted = errors.New("conference has already started")

// ErrAlreadyCanceled is returned when cancelling a canceled booking.
var ErrAlreadyCanceled = errors.New("booking is already canceled")

// ErrNotConfirmable is returned when confirming a booking that is not in
// confirmation-pending state.
var ErrNotConfirmable = errors.New("booking is not awaiting confirmation")

var (
	userIDPattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
	// Names, locations and topics allow spaces as the only special character.
	namePattern = regexp.MustCompile(`^[a-zA-Z0-9 ]+$`)
)

// DefaultConfirmationTTL is how long a promoted booking may remain in
// confirmation-pending state before it is canceled and the slot cycles to
// the next candidate. A configuration constant, not a protocol guarantee.
const DefaultConfirmationTTL = 10 * time.Second

const archiveTimeout = 5 * time.Second

// Archive receives write-behind copies of engine state. Calls are
// best-effort and never block or fail a booking operation.
type Archive interface {
	SaveUser(ctx context.Context, u model.User) error
	SaveConference(ctx context.Context, c model.Conference) error
	SaveBooking(ctx context.Context, s ledger.Snapshot) error
}

// BookingService is the engine facade used by the HTTP layer.
type BookingService struct {
	clock clock.Clock
	ttl   time.Duration

	users       *store.UserStore
	conferences *store.ConferenceStore
	ledger      *ledger.Ledger
	waitlist    *waitlist.Waitlist

	confirmations *confirmationTimers
	lifecycle     *lifecycleTimers

	// admission holds one mutex per conference serializing the
	// slot-or-waitlist decision; see conferenceLock.
	admissionMu sync.Mutex
	admission   map[string]*sync.Mutex

	archive Archive
}

// Option configures a BookingService.
type Option func(*BookingService)

// WithConfirmationTTL overrides the confirmation-pending deadline.
func WithConfirmationTTL(d time.Duration) Option {
	return func(s *BookingService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithArchive attaches a persistence mirror.
func WithArchive(a Archive) Option {
	return func(s *BookingService) {
		s.archive = a
	}
}

// New constructs a BookingService.
func New(clk clock.Clock, opts ...Option) *BookingService {
	s := &BookingService{
		clock:         clk,
		ttl:           DefaultConfirmationTTL,
		users:         store.NewUserStore(),
		conferences:   store.NewConferenceStore(clk),
		ledger:        ledger.New(clk),
		waitlist:      waitlist.New(),
		confirmations: newConfirmationTimers(),
		lifecycle:     newLifecycleTimers(),
		admission:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// conferenceLock returns the mutex serializing the slot-or-waitlist
// decision for one conference. Admission (reserve-or-enqueue), promotion
// (dequeue-or-release) and start cleanup all run under it: without a common
// lock, a booking request that loses TryReserve to a still-held slot could
// enqueue just after a concurrent promotion saw the queue empty and
// released, stranding a WAITLISTED booking against a free slot that no
// future event would promote.
func (s *BookingService) conferenceLock(name string) *sync.Mutex {
	s.admissionMu.Lock()
	defer s.admissionMu.Unlock()
	mu, ok := s.admission[name]
	if !ok {
		mu = &sync.Mutex{}
		s.admission[name] = mu
	}
	return mu
}

// Close stops all outstanding timers. Bookings are left as they are.
func (s *BookingService) Close() {
	s.confirmations.stopAll()
	s.lifecycle.stopAll()
}

// RegisterUser validates and stores a new user.
func (s *BookingService) RegisterUser(ctx context.Context, req model.CreateUserRequest) error {
	if !userIDPattern.MatchString(req.UserID) {
		return fmt.Errorf("user_id should be alphanumeric with no special characters")
	}
	if len(req.Topics) == 0 {
		return fmt.Errorf("topics are required")
	}
	if len(req.Topics) > 50 {
		return fmt.Errorf("max 50 topics allowed")
	}
	for _, t := range req.Topics {
		if !namePattern.MatchString(t) {
			return fmt.Errorf("topics should be alphanumeric with spaces allowed")
		}
	}

	u := model.User{ID: req.UserID, Topics: req.Topics}
	if err := s.users.Register(u); err != nil {
		return err
	}
	s.archiveUser(u)
	return nil
}

// RegisterConference validates and stores a new conference, and arms its
// lifecycle timer for the start instant.
func (s *BookingService) RegisterConference(ctx context.Context, req model.CreateConferenceRequest) (model.Conference, error) {
	if !namePattern.MatchString(req.Name) {
		return model.Conference{}, fmt.Errorf("name should be alphanumeric; spaces are the only special character allowed")
	}
	if !namePattern.MatchString(req.Location) {
		return model.Conference{}, fmt.Errorf("location should be alphanumeric; spaces are the only special character allowed")
	}
	if len(req.Topics) == 0 {
		return model.Conference{}, fmt.Errorf("at least one topic is required")
	}
	if len(req.Topics) > 10 {
		return model.Conference{}, fmt.Errorf("maximum 10 topics allowed")
	}
	for _, t := range req.Topics {
		if !namePattern.MatchString(t) {
			return model.Conference{}, fmt.Errorf("topics should be alphanumeric with spaces allowed")
		}
	}
	if req.Slots < 0 {
		return model.Conference{}, fmt.Errorf("slots must not be negative")
	}
	start, err := time.ParseInLocation(model.TimeLayout, req.Start, time.UTC)
	if err != nil {
		return model.Conference{}, fmt.Errorf("start timestamp not in correct format")
	}
	end, err := time.ParseInLocation(model.TimeLayout, req.End, time.UTC)
	if err != nil {
		return model.Conference{}, fmt.Errorf("end timestamp not in correct format")
	}

	c := model.Conference{
		Name:     req.Name,
		Location: req.Location,
		Start:    start,
		End:      end,
		Slots:    req.Slots,
		Topics:   req.Topics,
	}
	conf, err := s.conferences.Register(c)
	if err != nil {
		return model.Conference{}, err
	}

	name := conf.Name
	s.lifecycle.schedule(name, conf.Start, s.clock, func() { s.conferenceStarted(name) })
	s.archiveConference(c)
	return c, nil
}

// Book creates a booking for the user against the named conference. The
// booking is CONFIRMED when the waitlist is empty and a slot can be
// reserved; otherwise it joins the waitlist. Because a pending booking
// keeps its slot reserved, a new request can never jump a pending
// confirmation at capacity.
func (s *BookingService) Book(ctx context.Context, userID, conferenceName string) (model.BookResponse, error) {
	if _, err := s.users.Get(userID); err != nil {
		return model.BookResponse{}, err
	}
	conf, err := s.conferences.Get(conferenceName)
	if err != nil {
		return model.BookResponse{}, err
	}

	lock := s.conferenceLock(conferenceName)
	lock.Lock()
	defer lock.Unlock()

	// Checked under the lock: once the start cleanup has run the clock is
	// past the start instant, so no late request can enqueue behind it.
	if conf.Started(s.clock.Now()) {
		return model.BookResponse{}, fmt.Errorf("cannot book: %w", ErrConferenceStarted)
	}

	if s.waitlist.Len(conferenceName) == 0 && conf.TryReserve() {
		b, err := s.ledger.Create(userID, conferenceName, model.StatusConfirmed)
		if err != nil {
			conf.Release()
			return model.BookResponse{}, err
		}
		s.archiveBooking(b.Snapshot())
		return model.BookResponse{
			BookingID: b.ID(),
			Status:    model.StatusConfirmed,
			Message:   "Booking confirmed successfully",
		}, nil
	}

	b, err := s.ledger.Create(userID, conferenceName, model.StatusWaitlisted)
	if err != nil {
		return model.BookResponse{}, err
	}
	pos := s.waitlist.Enqueue(conferenceName, b.ID())
	s.archiveBooking(b.Snapshot())
	return model.BookResponse{
		BookingID:        b.ID(),
		Status:           model.StatusWaitlisted,
		Message:          "Added to waitlist",
		WaitlistPosition: &pos,
	}, nil
}

// Cancel transitions a booking to CANCELED. Cancelling a CONFIRMED or
// CONFIRMATION_PENDING booking hands its slot to the next waitlisted
// candidate; cancelling a WAITLISTED booking just leaves the queue. The
// loop re-reads status when a compare-and-set loses to a concurrent
// transition (e.g. a promotion racing an owner cancel).
func (s *BookingService) Cancel(ctx context.Context, bookingID int64) error {
	b, err := s.ledger.Get(bookingID)
	if err != nil {
		return err
	}
	conference := b.Conference()

	for {
		switch b.Status() {
		case model.StatusCanceled:
			return ErrAlreadyCanceled
		case model.StatusConfirmed:
			if s.ledger.Transition(bookingID, model.StatusConfirmed, model.StatusCanceled) {
				// The freed slot stays reserved and transfers to the
				// promoted candidate; it is released only if the queue
				// turns out to be empty.
				s.promoteNext(conference)
				s.archiveBooking(b.Snapshot())
				return nil
			}
		case model.StatusConfirmationPending:
			if s.ledger.Transition(bookingID, model.StatusConfirmationPending, model.StatusCanceled) {
				s.confirmations.stop(bookingID)
				s.promoteNext(conference)
				s.archiveBooking(b.Snapshot())
				return nil
			}
		case model.StatusWaitlisted:
			if s.ledger.Transition(bookingID, model.StatusWaitlisted, model.StatusCanceled) {
				s.waitlist.Remove(conference, bookingID)
				s.archiveBooking(b.Snapshot())
				return nil
			}
		}
	}
}

// Confirm finalizes a confirmation-pending booking. Only the owner may
// confirm; the slot was reserved at promotion time, so winning the
// compare-and-set is all that is needed.
func (s *BookingService) Confirm(ctx context.Context, bookingID int64, userID string) error {
	b, err := s.ledger.Get(bookingID)
	if err != nil {
		return err
	}
	if b.UserID() != userID {
		return ErrAccessDenied
	}
	conf, err := s.conferences.Get(b.Conference())
	if err != nil {
		return err
	}
	if conf.Started(s.clock.Now()) {
		return fmt.Errorf("cannot confirm: %w", ErrConferenceStarted)
	}
	if !s.ledger.Transition(bookingID, model.StatusConfirmationPending, model.StatusConfirmed) {
		return ErrNotConfirmable
	}
	s.confirmations.stop(bookingID)
	s.archiveBooking(b.Snapshot())
	return nil
}

// BookingStatus returns the status detail for a single booking.
func (s *BookingService) BookingStatus(ctx context.Context, bookingID int64) (model.BookingStatusResponse, error) {
	b, err := s.ledger.Get(bookingID)
	if err != nil {
		return model.BookingStatusResponse{}, err
	}
	snap := b.Snapshot()
	resp := model.BookingStatusResponse{
		BookingID:            snap.ID,
		Status:               snap.Status,
		ConferenceName:       snap.Conference,
		CanConfirm:           snap.Status == model.StatusConfirmationPending,
		ConfirmationDeadline: formatTime(snap.ConfirmationDeadline),
	}
	if snap.Status == model.StatusWaitlisted {
		if pos := s.waitlist.Position(snap.Conference, snap.ID); pos > 0 {
			resp.WaitlistPosition = &pos
		}
	}
	return resp, nil
}

// ConferenceBookings lists every booking of the named conference.
func (s *BookingService) ConferenceBookings(ctx context.Context, conferenceName string) ([]model.ConferenceBooking, error) {
	if _, err := s.conferences.Get(conferenceName); err != nil {
		return nil, err
	}
	snaps := s.ledger.ByConference(conferenceName)
	out := make([]model.ConferenceBooking, 0, len(snaps))
	for _, snap := range snaps {
		cb := model.ConferenceBooking{
			UserID:               snap.UserID,
			BookingID:            snap.ID,
			Status:               snap.Status,
			CreatedAt:            snap.CreatedAt.Format(model.TimeLayout),
			CanConfirm:           snap.Status == model.StatusConfirmationPending,
			ConfirmationDeadline: formatTime(snap.ConfirmationDeadline),
			CanceledAt:           formatTime(snap.CanceledAt),
		}
		if snap.Status == model.StatusWaitlisted {
			if pos := s.waitlist.Position(conferenceName, snap.ID); pos > 0 {
				cb.WaitlistPosition = &pos
			}
		}
		out = append(out, cb)
	}
	return out, nil
}

// promoteNext offers the freed slot to the head of the waitlist. Exactly
// one candidate is promoted per freed slot; candidates whose owner canceled
// while queued are skipped. The slot is released only when the queue is
// exhausted.
func (s *BookingService) promoteNext(conferenceName string) {
	conf, err := s.conferences.Get(conferenceName)
	if err != nil {
		return
	}
	lock := s.conferenceLock(conferenceName)
	lock.Lock()
	defer lock.Unlock()
	for {
		id, ok := s.waitlist.DequeueHead(conferenceName)
		if !ok {
			conf.Release()
			return
		}
		deadline := s.clock.Now().Add(s.ttl)
		if s.ledger.Promote(id, deadline) {
			s.confirmations.arm(id, s.ttl, func() { s.expireConfirmation(id) })
			if b, err := s.ledger.Get(id); err == nil {
				s.archiveBooking(b.Snapshot())
			}
			log.Printf("promoted booking %d for conference %q; confirmation deadline %s",
				id, conferenceName, deadline.Format(model.TimeLayout))
			return
		}
		// Head was canceled while queued; cycle to the next candidate.
	}
}

// expireConfirmation is the confirmation-timer callback. If the booking is
// still pending it is canceled and the slot cycles onward; if the owner
// confirmed or canceled first, the compare-and-set loses and nothing
// happens.
func (s *BookingService) expireConfirmation(bookingID int64) {
	b, err := s.ledger.Get(bookingID)
	if err != nil {
		return
	}
	if s.ledger.Transition(bookingID, model.StatusConfirmationPending, model.StatusCanceled) {
		log.Printf("confirmation window elapsed for booking %d; cycling waitlist for conference %q",
			bookingID, b.Conference())
		s.promoteNext(b.Conference())
		s.archiveBooking(b.Snapshot())
	}
}

// conferenceStarted is the lifecycle-timer callback: cancel every booking
// still WAITLISTED or CONFIRMATION_PENDING and drop the queue. CONFIRMED
// bookings are untouched. Safe to run more than once.
func (s *BookingService) conferenceStarted(conferenceName string) {
	conf, err := s.conferences.Get(conferenceName)
	if err != nil {
		return
	}
	lock := s.conferenceLock(conferenceName)
	lock.Lock()
	defer lock.Unlock()
	s.waitlist.Clear(conferenceName)

	canceled := 0
	for _, snap := range s.ledger.ByConference(conferenceName) {
		won := false
		switch snap.Status {
		case model.StatusWaitlisted:
			won = s.ledger.Transition(snap.ID, model.StatusWaitlisted, model.StatusCanceled)
		case model.StatusConfirmationPending:
			if s.ledger.Transition(snap.ID, model.StatusConfirmationPending, model.StatusCanceled) {
				s.confirmations.stop(snap.ID)
				// The pending booking held a reserved slot; no promotion
				// can follow once the conference has started.
				conf.Release()
				won = true
			}
		}
		if won {
			canceled++
			if b, err := s.ledger.Get(snap.ID); err == nil {
				s.archiveBooking(b.Snapshot())
			}
		}
	}
	if canceled > 0 {
		log.Printf("conference %q started: canceled %d unconfirmed bookings", conferenceName, canceled)
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(model.TimeLayout)
	return &s
}

// archive helpers run off the request path with their own deadline; a
// mirror failure is logged, never surfaced.

func (s *BookingService) archiveUser(u model.User) {
	if s.archive == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := s.archive.SaveUser(ctx, u); err != nil {
			log.Printf("archive user %s: %v", u.ID, err)
		}
	}()
}

func (s *BookingService) archiveConference(c model.Conference) {
	if s.archive == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := s.archive.SaveConference(ctx, c); err != nil {
			log.Printf("archive conference %s: %v", c.Name, err)
		}
	}()
}

func (s *BookingService) archiveBooking(snap ledger.Snapshot) {
	if s.archive == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := s.archive.SaveBooking(ctx, snap); err != nil {
			log.Printf("archive booking %d: %v", snap.ID, err)
		}
	}()
}
