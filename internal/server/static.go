package server

import (
	"net/http"
	"os"
	"path/filepath"
)

// serveSPA serves files from the static dir and falls back to index.html so
// client-side routes resolve.
func (s *Server) serveSPA() http.HandlerFunc {
	fs := http.FileServer(http.Dir(s.staticDir))
	index := filepath.Join(s.staticDir, "index.html")

	return func(w http.ResponseWriter, r *http.Request) {
		if s.staticDir == "" {
			writeError(w, http.StatusNotFound, "Not Found")
			return
		}

		p := filepath.Join(s.staticDir, filepath.Clean("/"+r.URL.Path))
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			fs.ServeHTTP(w, r)
			return
		}
		if _, err := os.Stat(index); err != nil {
			writeError(w, http.StatusNotFound, "Not Found")
			return
		}
		http.ServeFile(w, r, index)
	}
}
