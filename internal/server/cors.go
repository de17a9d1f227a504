package server

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"
)

var (
	corsAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsAllowHeaders = []string{"Content-Type", "Authorization"}
)

// corsOrigin reports whether origin may read responses with credentials.
// Listed origins are allowed. With no list configured, development allows
// any origin and production allows none.
func (s *Server) corsOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	if slices.Contains(s.cfg.AllowedOrigins, origin) {
		return true
	}
	return len(s.cfg.AllowedOrigins) == 0 && !s.cfg.IsProduction()
}

// withCORS applies the CORS policy and answers every OPTIONS request with
// 204 once the preflight headers are set.
func (s *Server) withCORS() func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return s.corsOrigin(origin)
		},
		AllowedMethods:     corsAllowMethods,
		AllowedHeaders:     corsAllowHeaders,
		AllowCredentials:   true,
		MaxAge:             300,
		OptionsPassthrough: true,
	})
	return func(next http.Handler) http.Handler {
		return c.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
