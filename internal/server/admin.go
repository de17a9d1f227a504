package server

import (
	"errors"
	"net/http"

	"coolcare/internal/booking"
	"coolcare/internal/metrics"
)

func (s *Server) handleAdminListBookings(w http.ResponseWriter, r *http.Request) {
	list, err := s.bookings.List(r.Context())
	if err != nil {
		s.log.Errorw("fetch bookings error", "error", err, "request_id", requestIDFrom(r.Context()))
		writeError(w, http.StatusInternalServerError, "Failed to fetch bookings")
		return
	}
	if list == nil {
		list = []booking.Booking{}
	}
	writeJSON(w, http.StatusOK, bookingsResp{Bookings: list})
}

func (s *Server) handleAdminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req booking.StatusUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	var verr *booking.ValidationError
	if err := req.Validate(); err != nil {
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Message)
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid input")
		return
	}

	err := s.bookings.UpdateStatus(r.Context(), *req.ID, req.Status)
	switch {
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, http.StatusNotFound, "Booking not found")
		return
	case err != nil:
		s.log.Errorw("update booking status error", "error", err, "id", *req.ID, "request_id", requestIDFrom(r.Context()))
		writeError(w, http.StatusInternalServerError, "Failed to update booking status")
		return
	}

	metrics.BookingStatusUpdates.WithLabelValues(string(req.Status)).Inc()
	s.log.Infow("booking status updated", "id", *req.ID, "status", req.Status)
	writeJSON(w, http.StatusOK, successResp{Success: true})
}
