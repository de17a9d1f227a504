package session

import (
	"errors"
	"net/http"
	"time"
)

const (
	DefaultCookieName = "admin_session"
	DefaultTTL        = 48 * time.Hour
)

// Attach sets tok as the session cookie.
func (g *Guard) Attach(w http.ResponseWriter, tok Token) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.cfg.CookieName,
		Value:    tok.Value,
		Path:     "/",
		Expires:  tok.ExpiresAt.UTC(),
		MaxAge:   int(g.cfg.TTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   g.cfg.Secure,
	})
}

// Revoke overwrites the session cookie so the browser drops it immediately.
func (g *Guard) Revoke(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.cfg.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   g.cfg.Secure,
	})
}

// Verify reads the session cookie from r and verifies it.
func (g *Guard) Verify(r *http.Request) (Identity, bool) {
	raw, err := g.readCookie(r)
	if err != nil {
		return Identity{}, false
	}
	return g.VerifyToken(raw)
}

func (g *Guard) readCookie(r *http.Request) (string, error) {
	c, err := r.Cookie(g.cfg.CookieName)
	if err != nil {
		return "", err
	}
	if c.Value == "" {
		return "", errors.New("empty cookie")
	}
	return c.Value, nil
}
