package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"coolcare/internal/booking"
	"coolcare/internal/chat"
	"coolcare/internal/config"
	"coolcare/internal/customer"
	"coolcare/internal/logging"
	"coolcare/internal/metrics"
	"coolcare/internal/ratelimit"
	"coolcare/internal/session"
)

type Server struct {
	cfg       config.Config
	log       *zap.SugaredLogger
	guard     *session.Guard
	limiter   *ratelimit.Limiter
	bookings  booking.Store
	chat      *chat.Client
	customers *customer.Verifier
	staticDir string

	router  *chi.Mux
	closers []func() error
	stop    context.CancelFunc
}

type deps struct {
	bookings     booking.Store
	limiterStore ratelimit.Store
	chat         *chat.Client
	now          func() time.Time
}

// Option replaces a dependency New would otherwise build from config.
type Option func(*deps)

func WithBookingStore(s booking.Store) Option { return func(d *deps) { d.bookings = s } }

func WithLimiterStore(s ratelimit.Store) Option { return func(d *deps) { d.limiterStore = s } }

func WithChatClient(c *chat.Client) Option { return func(d *deps) { d.chat = c } }

func WithClock(now func() time.Time) Option { return func(d *deps) { d.now = now } }

// New wires stores, the session guard and the limiter from cfg. Any
// misconfiguration is returned here rather than surfacing per request.
func New(ctx context.Context, cfg config.Config, log *zap.SugaredLogger, opts ...Option) (*Server, error) {
	if log == nil {
		log = logging.Nop()
	}
	d := deps{now: time.Now}
	for _, o := range opts {
		o(&d)
	}

	bg, stop := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		log:       log,
		staticDir: cfg.StaticDir,
		stop:      stop,
	}

	ok := false
	defer func() {
		if !ok {
			_ = s.Close()
		}
	}()

	if d.bookings == nil {
		store, err := openBookingStore(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		d.bookings = store
	}
	s.bookings = d.bookings
	s.closers = append(s.closers, d.bookings.Close)

	if d.limiterStore == nil {
		store, closeFn, err := openLimiterStore(ctx, bg, cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		d.limiterStore = store
		if closeFn != nil {
			s.closers = append(s.closers, closeFn)
		}
	}

	guard, err := session.NewGuard(session.Config{
		AdminID:           cfg.Admin.ID,
		AdminPassword:     cfg.Admin.Password,
		AdminPasswordHash: cfg.Admin.PasswordHash,
		Secret:            []byte(cfg.Admin.SessionSecret),
		CookieName:        cfg.Admin.CookieName,
		TTL:               cfg.Admin.SessionTTL,
		Secure:            cfg.IsProduction(),
	},
		session.WithClock(d.now),
		session.WithLogger(log.Named("session")),
		session.WithRejectHook(metrics.AdminUnauthorized.Inc),
	)
	if err != nil {
		return nil, err
	}
	s.guard = guard

	s.limiter = ratelimit.New(d.limiterStore,
		ratelimit.Rule{Window: cfg.RateLimit.Window, Max: cfg.RateLimit.Max},
		ratelimit.WithRules(routeRules(cfg.RateLimit.Routes)),
		ratelimit.WithClock(d.now),
		ratelimit.WithLogger(log.Named("ratelimit")),
		ratelimit.WithRejectHook(func(route string) {
			metrics.RateLimitRejected.WithLabelValues(route).Inc()
		}),
	)

	customers, err := customer.New(customer.Config{
		JWKSURL: cfg.Customer.JWKSURL,
		Secret:  cfg.Customer.JWTSecret,
	}, log.Named("customer"))
	if err != nil {
		return nil, err
	}
	s.customers = customers
	s.closers = append(s.closers, func() error { customers.Close(); return nil })

	if d.chat == nil {
		c, err := chat.New(ctx, chat.Config{
			APIKey:  cfg.Chat.APIKey,
			Model:   cfg.Chat.Model,
			BaseURL: cfg.Chat.BaseURL,
			RPS:     cfg.Chat.UpstreamRPS,
		}, chat.WithLogger(log.Named("chat")))
		if err != nil {
			return nil, err
		}
		d.chat = c
	}
	s.chat = d.chat

	if cfg.Admin.GeneratedSecret {
		log.Warn("ADMIN_SESSION_SECRET not set, using a random per-process secret; sessions will not survive restarts")
	}

	s.setupRouter()
	ok = true
	return s, nil
}

func routeRules(in map[string]config.RouteRule) map[string]ratelimit.Rule {
	out := make(map[string]ratelimit.Rule, len(in))
	for route, r := range in {
		out[route] = ratelimit.Rule{Window: time.Duration(r.WindowMS) * time.Millisecond, Max: r.Max}
	}
	return out
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves on cfg.Port until ctx is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("server listening", "addr", "http://localhost:"+s.cfg.Port, "env", s.cfg.Env)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// Close releases stores and background workers.
func (s *Server) Close() error {
	if s.stop != nil {
		s.stop()
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
