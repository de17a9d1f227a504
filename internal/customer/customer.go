// Package customer verifies the optional Supabase access token customers send
// when creating a booking.
package customer

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

var (
	ErrInvalidToken = errors.New("invalid customer token")
	ErrNoVerifier   = errors.New("customer token verification is not configured")
)

type Config struct {
	// JWKSURL takes precedence over Secret when both are set.
	JWKSURL string
	Secret  string
}

// Verifier checks bearer tokens and returns the subject. A nil *Verifier
// accepts no tokens.
type Verifier struct {
	keyfunc jwt.Keyfunc
	methods []string
	jwks    *keyfunc.JWKS
	log     *zap.SugaredLogger
}

// New returns nil when cfg has neither a JWKS URL nor a secret.
func New(cfg Config, log *zap.SugaredLogger) (*Verifier, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	switch {
	case cfg.JWKSURL != "":
		jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
			RefreshInterval:   time.Hour,
			RefreshTimeout:    10 * time.Second,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				log.Errorf("failed to refresh JWKS: %v", err)
			},
		})
		if err != nil {
			return nil, fmt.Errorf("could not get JWKS: %w", err)
		}
		return &Verifier{
			keyfunc: jwks.Keyfunc,
			methods: []string{"RS256", "ES256"},
			jwks:    jwks,
			log:     log,
		}, nil
	case cfg.Secret != "":
		secret := []byte(cfg.Secret)
		return &Verifier{
			keyfunc: func(*jwt.Token) (interface{}, error) { return secret, nil },
			methods: []string{jwt.SigningMethodHS256.Alg()},
			log:     log,
		}, nil
	}
	return nil, nil
}

// Subject validates raw and returns its "sub" claim.
func (v *Verifier) Subject(raw string) (string, error) {
	if v == nil {
		return "", ErrNoVerifier
	}
	var claims jwt.RegisteredClaims
	parser := jwt.NewParser(jwt.WithValidMethods(v.methods))
	token, err := parser.ParseWithClaims(raw, &claims, v.keyfunc)
	if err != nil || !token.Valid {
		v.log.Debugw("customer token rejected", "error", err)
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// FromRequest reads an optional bearer token. It returns "" and no error when
// the request carries no token or no verifier is configured.
func (v *Verifier) FromRequest(r *http.Request) (string, error) {
	raw, ok := bearer(r)
	if !ok || v == nil {
		return "", nil
	}
	return v.Subject(raw)
}

func (v *Verifier) Close() {
	if v != nil && v.jwks != nil {
		v.jwks.EndBackground()
	}
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(h[7:])
	return tok, tok != ""
}
