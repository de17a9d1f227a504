package server

import (
	"errors"
	"net/http"
	"strings"

	"coolcare/internal/chat"
	"coolcare/internal/metrics"
	"coolcare/internal/ratelimit"
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatReq
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}
	// Only well-formed messages spend the route's budget.
	if !s.limiter.Allow(w, r, routeChatPost) {
		ratelimit.WriteRejected(w)
		return
	}

	reply, err := s.chat.Reply(r.Context(), req.Message)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, chatResp{Reply: reply})
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "Message is required")
	case errors.Is(err, chat.ErrNotConfigured):
		writeError(w, http.StatusInternalServerError, "Server is not configured (GEMINI_API_KEY missing)")
	default:
		metrics.ChatUpstreamFailures.Inc()
		s.log.Errorw("chat error", "error", err, "request_id", requestIDFrom(r.Context()))
		writeJSON(w, http.StatusInternalServerError, chatResp{Reply: chat.ErrorReply})
	}
}
