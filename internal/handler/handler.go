// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the booking service.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/confbook/confbook/internal/ledger"
	"github.com/confbook/confbook/internal/model"
	"github.com/confbook/confbook/internal/service"
	"github.com/confbook/confbook/internal/store"
	"github.com/go-chi/chi/v5"
)

// BookingHandler holds all HTTP handlers for the booking API.
type BookingHandler struct {
	svc *service.BookingService
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(svc *service.BookingService) *BookingHandler {
	return &BookingHandler{svc: svc}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// CreateUser handles POST /user
func (h *BookingHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req model.CreateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.svc.RegisterUser(r.Context(), req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, model.MessageResponse{Message: "User added successfully"})
}

// CreateConference handles POST /conference
func (h *BookingHandler) CreateConference(w http.ResponseWriter, r *http.Request) {
	var req model.CreateConferenceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if _, err := h.svc.RegisterConference(r.Context(), req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, model.MessageResponse{Message: "conference added successfully"})
}

// Book handles POST /book
// Admission control happens in the service; every failure mode maps to 400
// so no booking id leaks for rejected requests.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req model.BookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.svc.Book(r.Context(), req.UserID, req.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// Cancel handles POST /cancel
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req model.CancelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.svc.Cancel(r.Context(), req.BookingID); err != nil {
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			writeError(w, http.StatusNotFound, "Booking not found")
		case errors.Is(err, service.ErrAlreadyCanceled):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, model.MessageResponse{Message: "Booking canceled successfully"})
}

// Confirm handles POST /confirm
// Authorization failures must stay distinguishable from not-found.
func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req model.ConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.svc.Confirm(r.Context(), req.BookingID, req.UserID); err != nil {
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			writeError(w, http.StatusNotFound, "Booking not found")
		case errors.Is(err, service.ErrAccessDenied):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, model.MessageResponse{Message: "Booking confirmed successfully"})
}

// BookingStatus handles GET /booking/{bookingID}
func (h *BookingHandler) BookingStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "bookingID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "booking id must be an integer")
		return
	}

	resp, err := h.svc.BookingStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Booking not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get booking status")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ConferenceBookings handles GET /conference/{name}/bookings
func (h *BookingHandler) ConferenceBookings(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	bookings, err := h.svc.ConferenceBookings(r.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrConferenceNotFound) {
			writeError(w, http.StatusNotFound, "Conference not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list bookings")
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if bookings == nil {
		bookings = []model.ConferenceBooking{}
	}

	writeJSON(w, http.StatusOK, bookings)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
