// Package ratelimit provides fixed-window, per-route, per-client request limiting
// for HTTP handlers.
//
// A bucket is keyed by "<route>:<client address>". The first request of a window
// starts it; exactly Max requests are allowed per window and the next one is
// rejected until the window resets. Limiting is best effort: store errors let the
// request through.
package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// ErrRateLimited is the error form of a rejected Decision.
var ErrRateLimited = errors.New("rate limited")

// Rule is a window length and the number of requests allowed inside it.
type Rule struct {
	Window time.Duration
	Max    int
}

// Bucket is the state of one key after a hit.
type Bucket struct {
	Count   int
	ResetAt time.Time
}

// Store keeps buckets. Hit must be atomic per key: reset-if-elapsed and
// increment happen as one step.
type Store interface {
	Hit(ctx context.Context, key string, window time.Duration, now time.Time) (Bucket, error)
}

// Decision is the outcome of one Take.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Err returns ErrRateLimited for a rejected decision and nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return ErrRateLimited
}

type Limiter struct {
	store    Store
	defaults Rule
	rules    map[string]Rule
	now      func() time.Time
	log      *zap.SugaredLogger
	onReject func(route string)
}

type Option func(*Limiter)

// WithRules sets per-route overrides. Zero fields inherit the default rule.
func WithRules(rules map[string]Rule) Option {
	return func(l *Limiter) {
		for k, v := range rules {
			l.rules[k] = v
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(l *Limiter) { l.log = log }
}

// WithRejectHook registers a callback run for every rejected request.
func WithRejectHook(fn func(route string)) Option {
	return func(l *Limiter) { l.onReject = fn }
}

// New creates a Limiter over store with the given default rule.
func New(store Store, defaults Rule, opts ...Option) *Limiter {
	l := &Limiter{
		store:    store,
		defaults: defaults,
		rules:    make(map[string]Rule),
		now:      time.Now,
		log:      zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Rule returns the effective rule for route.
func (l *Limiter) Rule(route string) Rule {
	r, ok := l.rules[route]
	if !ok {
		return l.defaults
	}
	if r.Window <= 0 {
		r.Window = l.defaults.Window
	}
	if r.Max <= 0 {
		r.Max = l.defaults.Max
	}
	return r
}

// Take records one request for (route, client) and decides whether it is allowed.
func (l *Limiter) Take(ctx context.Context, route, client string, rule Rule) Decision {
	now := l.now()
	b, err := l.store.Hit(ctx, route+":"+client, rule.Window, now)
	if err != nil {
		l.log.Warnw("rate limit store failed, allowing request", "route", route, "error", err)
		return Decision{Allowed: true, Limit: rule.Max, Remaining: rule.Max, ResetAt: now.Add(rule.Window)}
	}

	d := Decision{
		Allowed:   b.Count <= rule.Max,
		Limit:     rule.Max,
		Remaining: max(0, rule.Max-b.Count),
		ResetAt:   b.ResetAt,
	}
	if !d.Allowed {
		secs := math.Ceil(b.ResetAt.Sub(now).Seconds())
		d.RetryAfter = time.Duration(max(1, secs)) * time.Second
	}
	return d
}

// Allow applies the route's rule to r, writes the rate limit headers on w and
// reports whether the request may proceed. On rejection Retry-After is set too.
func (l *Limiter) Allow(w http.ResponseWriter, r *http.Request, route string) bool {
	d := l.Take(r.Context(), route, ClientIP(r), l.Rule(route))

	h := w.Header()
	h.Set(HeaderLimit, strconv.Itoa(d.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(d.Remaining))
	h.Set(HeaderReset, strconv.FormatInt(resetSeconds(d.ResetAt), 10))

	if d.Err() != nil {
		h.Set(HeaderRetryAfter, strconv.Itoa(int(d.RetryAfter/time.Second)))
		if l.onReject != nil {
			l.onReject(route)
		}
		return false
	}
	return true
}

// Middleware limits every request to next under route and answers 429 when
// the window is used up.
func (l *Limiter) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(w, r, route) {
				WriteRejected(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteRejected writes the 429 body sent when Allow returns false.
func WriteRejected(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": "Too many requests, please try again later.",
	})
}

// ClientIP returns the first X-Forwarded-For entry, falling back to the peer
// address without its port.
func ClientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		first, _, _ := strings.Cut(xf, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func resetSeconds(t time.Time) int64 {
	ms := t.UnixMilli()
	return (ms + 999) / 1000
}
