package server

import (
	"errors"
	"net/http"

	"coolcare/internal/metrics"
	"coolcare/internal/session"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	tok, err := s.guard.Issue(req.ID, req.Password)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			metrics.AdminLogins.WithLabelValues("failure").Inc()
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		s.log.Errorw("admin login error", "error", err, "request_id", requestIDFrom(r.Context()))
		writeError(w, http.StatusInternalServerError, "Failed to login")
		return
	}

	metrics.AdminLogins.WithLabelValues("success").Inc()
	s.guard.Attach(w, tok)
	writeJSON(w, http.StatusOK, successResp{Success: true})
}

// handleLogout clears the cookie whether or not a session was present.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.guard.Revoke(w)
	writeJSON(w, http.StatusOK, successResp{Success: true})
}
