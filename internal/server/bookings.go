package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"coolcare/internal/booking"
	"coolcare/internal/metrics"
)

func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	userID, err := s.customers.FromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var nb booking.NewBooking
	if err := decodeJSON(r, &nb); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	nb.UserID = userID

	if err := nb.Validate(); err != nil {
		var verr *booking.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Message)
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid input")
		return
	}

	id, err := s.bookings.Create(r.Context(), nb)
	if err != nil {
		s.log.Errorw("booking creation error", "error", err, "request_id", requestIDFrom(r.Context()))
		writeError(w, http.StatusInternalServerError, "Failed to create booking")
		return
	}

	metrics.BookingsCreated.WithLabelValues(nb.ServiceType).Inc()
	s.log.Infow("booking created", "id", id, "service_type", nb.ServiceType, "ac_type", nb.ACType)
	writeJSON(w, http.StatusOK, createBookingResp{
		Success:   true,
		BookingID: id,
		Message:   "Booking submitted successfully!",
	})
}

func (s *Server) handleWhatsApp(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(chi.URLParam(r, "bookingId"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "bookingId is required")
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "bookingId is required")
		return
	}

	b, err := s.bookings.Get(r.Context(), id)
	switch {
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, http.StatusNotFound, "Booking not found")
		return
	case err != nil:
		s.log.Errorw("whatsapp url generation error", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "Failed to generate WhatsApp link")
		return
	}

	link, err := booking.WhatsAppURL(s.cfg.WhatsAppNumber, b)
	if errors.Is(err, booking.ErrNoWhatsAppNumber) {
		writeError(w, http.StatusInternalServerError, "Server not configured (WHATSAPP_BUSINESS_NUMBER missing)")
		return
	}
	if err != nil {
		s.log.Errorw("whatsapp url generation error", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "Failed to generate WhatsApp link")
		return
	}
	writeJSON(w, http.StatusOK, whatsappResp{WhatsAppURL: link})
}
