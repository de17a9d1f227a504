// Package session issues and verifies the stateless admin session cookie.
//
// A token is base64url(JSON payload) "." base64url(HMAC-SHA256(payload)).
// Nothing is kept server-side; logout only overwrites the browser cookie.
package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const RoleAdmin = "admin"

var (
	ErrInvalidCredentials = errors.New("session: invalid credentials")
	ErrMissingSecret      = errors.New("session: signing secret is required")
	ErrMissingAdmin       = errors.New("session: admin credentials are required")
)

type Config struct {
	AdminID       string
	AdminPassword string
	// AdminPasswordHash is a bcrypt hash and takes precedence over AdminPassword.
	AdminPasswordHash string

	Secret     []byte
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Identity is the verified content of a session token.
type Identity struct {
	ID        string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Token is a signed session credential ready to be attached to a response.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

type payload struct {
	Sub  string `json:"sub,omitempty"`
	Role string `json:"role"`
	IAT  int64  `json:"iat"`
	EXP  int64  `json:"exp"`
}

type Guard struct {
	cfg      Config
	now      func() time.Time
	log      *zap.SugaredLogger
	onReject func()
}

type Option func(*Guard)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(g *Guard) { g.log = log }
}

// WithRejectHook registers a callback run each time RequireAdmin turns a request away.
func WithRejectHook(fn func()) Option {
	return func(g *Guard) { g.onReject = fn }
}

// NewGuard validates cfg and returns a ready Guard. A missing secret or
// missing admin credentials is a configuration error, not a request error.
func NewGuard(cfg Config, opts ...Option) (*Guard, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrMissingSecret
	}
	if cfg.AdminID == "" || (cfg.AdminPassword == "" && cfg.AdminPasswordHash == "") {
		return nil, ErrMissingAdmin
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	g := &Guard{
		cfg: cfg,
		now: time.Now,
		log: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Guard) CookieName() string { return g.cfg.CookieName }

func (g *Guard) TTL() time.Duration { return g.cfg.TTL }

// Issue checks the admin credentials and returns a freshly signed token.
func (g *Guard) Issue(id, password string) (Token, error) {
	if !g.checkCredentials(id, password) {
		g.log.Debugw("admin credentials rejected")
		return Token{}, ErrInvalidCredentials
	}

	now := g.now()
	exp := now.Add(g.cfg.TTL)
	p := payload{
		Sub:  id,
		Role: RoleAdmin,
		IAT:  now.Unix(),
		EXP:  exp.Unix(),
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return Token{}, err
	}

	body := base64.RawURLEncoding.EncodeToString(raw)
	return Token{
		Value:     body + "." + g.sign(body),
		ExpiresAt: time.Unix(p.EXP, 0),
	}, nil
}

// VerifyToken returns the identity carried by raw if its signature, expiry
// and role all check out.
func (g *Guard) VerifyToken(raw string) (Identity, bool) {
	body, sig, ok := strings.Cut(raw, ".")
	if !ok || body == "" || sig == "" {
		return Identity{}, false
	}

	expected := g.sign(body)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return Identity{}, false
	}

	decoded, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return Identity{}, false
	}
	var p payload
	if err := json.Unmarshal(decoded, &p); err != nil {
		return Identity{}, false
	}
	if p.EXP == 0 || g.now().Unix() >= p.EXP {
		return Identity{}, false
	}
	if p.Role != RoleAdmin {
		return Identity{}, false
	}

	return Identity{
		ID:        p.Sub,
		Role:      p.Role,
		IssuedAt:  time.Unix(p.IAT, 0),
		ExpiresAt: time.Unix(p.EXP, 0),
	}, true
}

func (g *Guard) sign(body string) string {
	mac := hmac.New(sha256.New, g.cfg.Secret)
	mac.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// checkCredentials always evaluates both the id and the password so the
// time taken does not reveal which one was wrong.
func (g *Guard) checkCredentials(id, password string) bool {
	idOK := constantTimeEqual(id, g.cfg.AdminID)

	var passOK bool
	if g.cfg.AdminPasswordHash != "" {
		passOK = bcrypt.CompareHashAndPassword([]byte(g.cfg.AdminPasswordHash), []byte(password)) == nil
	} else {
		passOK = constantTimeEqual(password, g.cfg.AdminPassword)
	}
	return idOK && passOK
}

func constantTimeEqual(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}
