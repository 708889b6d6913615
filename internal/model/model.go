// Package model defines the core domain types for the conference booking system.
package model

import "time"

// TimeLayout is the wall-clock timestamp format used on the wire. All
// timestamps are interpreted as UTC.
const TimeLayout = "2006-01-02 15:04:05"

// Status is the lifecycle state of a booking. The values double as the
// exact wire representation; note the asymmetric casing of
// ConfirmationPending, which existing clients depend on.
type Status string

const (
	StatusConfirmed           Status = "CONFIRMED"
	StatusWaitlisted          Status = "WAITLISTED"
	StatusCanceled            Status = "CANCELED"
	StatusConfirmationPending Status = "ConfirmationPending"
)

// User is a registered attendee. Users are immutable after registration
// and never deleted.
type User struct {
	ID     string   `json:"user_id"`
	Topics []string `json:"topics"`
}

// Conference is a bookable conference. The name is the primary key; the
// start instant drives the lifecycle timer.
type Conference struct {
	Name     string    `json:"name"`
	Location string    `json:"location"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Slots    int       `json:"slots"`
	Topics   []string  `json:"topics"`
}

// CreateUserRequest is the payload for POST /user.
type CreateUserRequest struct {
	UserID string   `json:"user_id"`
	Topics []string `json:"topics"`
}

// CreateConferenceRequest is the payload for POST /conference. Start and
// End use TimeLayout.
type CreateConferenceRequest struct {
	Name     string   `json:"name"`
	Location string   `json:"location"`
	Start    string   `json:"start"`
	End      string   `json:"end"`
	Slots    int      `json:"slots"`
	Topics   []string `json:"topics"`
}

// BookRequest is the payload for POST /book.
type BookRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// CancelRequest is the payload for POST /cancel.
type CancelRequest struct {
	BookingID int64 `json:"booking_id"`
}

// ConfirmRequest is the payload for POST /confirm. The user_id must match
// the booking owner.
type ConfirmRequest struct {
	BookingID int64  `json:"booking_id"`
	UserID    string `json:"user_id"`
}

// BookResponse summarises the outcome of a booking request.
type BookResponse struct {
	BookingID        int64  `json:"booking_id"`
	Status           Status `json:"status"`
	Message          string `json:"message"`
	WaitlistPosition *int   `json:"waitlist_position,omitempty"`
}

// BookingStatusResponse is the body of GET /booking/{booking_id}.
type BookingStatusResponse struct {
	BookingID            int64   `json:"booking_id"`
	Status               Status  `json:"status"`
	ConferenceName       string  `json:"conference_name"`
	CanConfirm           bool    `json:"can_confirm"`
	ConfirmationDeadline *string `json:"confirmation_deadline"`
	WaitlistPosition     *int    `json:"waitlist_position"`
}

// ConferenceBooking is one element of GET /conference/{name}/bookings.
type ConferenceBooking struct {
	UserID               string  `json:"user_id"`
	BookingID            int64   `json:"booking_id"`
	Status               Status  `json:"status"`
	CreatedAt            string  `json:"created_at"`
	WaitlistPosition     *int    `json:"waitlist_position"`
	CanConfirm           bool    `json:"can_confirm"`
	ConfirmationDeadline *string `json:"confirmation_deadline"`
	CanceledAt           *string `json:"canceled_at"`
}

// MessageResponse is a standard JSON success envelope.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
