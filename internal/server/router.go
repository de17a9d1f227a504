package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"coolcare/internal/metrics"
)

// Route keys for the rate limiter. Rules in the rules file use the same keys.
const (
	routeBookingsPost   = "bookings:post"
	routeChatPost       = "chat:post"
	routeWhatsAppGet    = "whatsapp:get"
	routeAdminLogin     = "admin:login:post"
	routeAdminLogout    = "admin:logout:post"
	routeAdminBookings  = "admin:bookings:get"
	routeAdminStatusPut = "admin:bookings:status:put"
)

func (s *Server) setupRouter() {
	r := chi.NewRouter()
	r.Use(s.withRequestID, s.withAccessLog, middleware.Recoverer, s.withCORS(), s.withSecurity)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.MetricsHandler())

	r.Route("/api", func(api chi.Router) {
		api.With(s.limit(routeBookingsPost)).Post("/bookings", s.handleCreateBooking)
		api.Post("/chat", s.handleChat)
		api.With(s.limit(routeWhatsAppGet)).Get("/whatsapp/{bookingId}", s.handleWhatsApp)

		api.Route("/admin", func(admin chi.Router) {
			admin.With(s.limit(routeAdminLogin)).Post("/login", s.handleLogin)
			admin.With(s.limit(routeAdminLogout)).Post("/logout", s.handleLogout)

			admin.Group(func(authed chi.Router) {
				authed.Use(s.guard.RequireAdmin)
				authed.With(s.limit(routeAdminBookings)).Get("/bookings", s.handleAdminListBookings)
				authed.With(s.limit(routeAdminStatusPut)).Put("/bookings/status", s.handleAdminUpdateStatus)
			})
		})
	})

	r.Get("/*", s.serveSPA())

	s.router = r
}
