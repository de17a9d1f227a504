package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	DefaultPort          = "8080"
	DefaultCookieName    = "admin_session"
	DefaultSessionTTL    = 48 * time.Hour
	DefaultRateWindow    = 60 * time.Second
	DefaultRateMax       = 60
	DefaultGeminiModel   = "gemini-1.5-flash"
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/"
	DefaultMongoDB       = "coolcare"
	DefaultSQLitePath    = "./data/coolcare.db"
)

// Booking store backends.
const (
	StoreSupabase = "supabase"
	StoreMongo    = "mongo"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

var (
	ErrMissingSecret      = errors.New("config: ADMIN_SESSION_SECRET is required in production")
	ErrMissingAdmin       = errors.New("config: ADMIN_ID and ADMIN_PASSWORD (or ADMIN_PASSWORD_HASH) are required")
	ErrUnknownStore       = errors.New("config: unknown BOOKING_STORE")
	ErrInvalidRateLimit   = errors.New("config: rate limit window and max must be positive")
	ErrMissingStoreConfig = errors.New("config: booking store is missing connection settings")
)

type Config struct {
	Port      string
	Env       string
	Dev       bool
	StaticDir string

	Admin     AdminConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Store     StoreConfig
	Customer  CustomerConfig
	Chat      ChatConfig

	AllowedOrigins []string
	WhatsAppNumber string
}

type AdminConfig struct {
	ID           string
	Password     string
	PasswordHash string
	CookieName   string
	SessionTTL   time.Duration

	SessionSecret string
	// GeneratedSecret is set when no secret was configured outside production
	// and a random per-process one was used instead.
	GeneratedSecret bool
}

type RateLimitConfig struct {
	Window    time.Duration
	Max       int
	RulesFile string
	Routes    map[string]RouteRule
}

// RouteRule overrides the global window and max for one route key.
type RouteRule struct {
	WindowMS int64 `yaml:"window_ms"`
	Max      int   `yaml:"max"`
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StoreConfig struct {
	Backend string

	SupabaseURL        string
	SupabaseServiceKey string

	MongoURI string
	MongoDB  string

	SQLitePath string
}

type CustomerConfig struct {
	JWTSecret string
	JWKSURL   string
}

type ChatConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	UpstreamRPS float64
}

// IsProduction reports whether the service runs with production settings.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:      getenv("PORT", DefaultPort),
		Env:       getenv("APP_ENV", os.Getenv("NODE_ENV")),
		Dev:       os.Getenv("DEV") == "1",
		StaticDir: getenv("STATIC_DIR", "./public"),

		Admin: AdminConfig{
			ID:            os.Getenv("ADMIN_ID"),
			Password:      os.Getenv("ADMIN_PASSWORD"),
			PasswordHash:  os.Getenv("ADMIN_PASSWORD_HASH"),
			CookieName:    getenv("ADMIN_COOKIE_NAME", DefaultCookieName),
			SessionTTL:    getenvDuration("ADMIN_SESSION_TTL", DefaultSessionTTL),
			SessionSecret: os.Getenv("ADMIN_SESSION_SECRET"),
		},
		RateLimit: RateLimitConfig{
			Window:    time.Duration(getenvInt("RATE_LIMIT_WINDOW_MS", int(DefaultRateWindow/time.Millisecond))) * time.Millisecond,
			Max:       getenvInt("RATE_LIMIT_MAX", DefaultRateMax),
			RulesFile: os.Getenv("RATE_LIMIT_RULES_FILE"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Store: StoreConfig{
			Backend:            strings.ToLower(getenv("BOOKING_STORE", StoreSupabase)),
			SupabaseURL:        getenv("SUPABASE_URL", os.Getenv("NEXT_PUBLIC_SUPABASE_URL")),
			SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
			MongoURI:           os.Getenv("MONGODB_URI"),
			MongoDB:            getenv("MONGODB_DB", DefaultMongoDB),
			SQLitePath:         getenv("SQLITE_PATH", DefaultSQLitePath),
		},
		Customer: CustomerConfig{
			JWTSecret: os.Getenv("SUPABASE_JWT_SECRET"),
			JWKSURL:   os.Getenv("SUPABASE_JWKS_URL"),
		},
		Chat: ChatConfig{
			APIKey:      os.Getenv("GEMINI_API_KEY"),
			Model:       getenv("GEMINI_MODEL", DefaultGeminiModel),
			BaseURL:     getenv("GEMINI_BASE_URL", DefaultGeminiBaseURL),
			UpstreamRPS: getenvFloat("CHAT_UPSTREAM_RPS", 0),
		},
		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),
		WhatsAppNumber: os.Getenv("WHATSAPP_BUSINESS_NUMBER"),
	}

	if cfg.RateLimit.RulesFile != "" {
		routes, err := LoadRouteRules(cfg.RateLimit.RulesFile)
		if err != nil {
			return Config{}, err
		}
		cfg.RateLimit.Routes = routes
	}

	if cfg.Admin.SessionSecret == "" && !cfg.IsProduction() {
		secret, err := randomSecret()
		if err != nil {
			return Config{}, fmt.Errorf("config: generate session secret: %w", err)
		}
		cfg.Admin.SessionSecret = secret
		cfg.Admin.GeneratedSecret = true
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants the server relies on at startup.
func (c Config) Validate() error {
	if c.Admin.SessionSecret == "" {
		return ErrMissingSecret
	}
	if c.Admin.ID == "" || (c.Admin.Password == "" && c.Admin.PasswordHash == "") {
		return ErrMissingAdmin
	}
	if c.Admin.SessionTTL <= 0 {
		return fmt.Errorf("config: ADMIN_SESSION_TTL must be positive, got %s", c.Admin.SessionTTL)
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.Max <= 0 {
		return ErrInvalidRateLimit
	}
	for key, rule := range c.RateLimit.Routes {
		if rule.WindowMS < 0 || rule.Max < 0 {
			return fmt.Errorf("%w: route %q", ErrInvalidRateLimit, key)
		}
	}
	switch c.Store.Backend {
	case StoreSupabase:
		if c.Store.SupabaseURL == "" || c.Store.SupabaseServiceKey == "" {
			return fmt.Errorf("%w: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY", ErrMissingStoreConfig)
		}
	case StoreMongo:
		if c.Store.MongoURI == "" {
			return fmt.Errorf("%w: MONGODB_URI", ErrMissingStoreConfig)
		}
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("%w: SQLITE_PATH", ErrMissingStoreConfig)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStore, c.Store.Backend)
	}
	if c.Chat.UpstreamRPS < 0 {
		return fmt.Errorf("config: CHAT_UPSTREAM_RPS must not be negative")
	}
	return nil
}

type rulesFile struct {
	Routes map[string]RouteRule `yaml:"routes"`
}

// LoadRouteRules parses a YAML file of per-route rate limit overrides:
//
//	routes:
//	  "admin:login:post": {window_ms: 900000, max: 10}
func LoadRouteRules(path string) (map[string]RouteRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read rate limit rules: %w", err)
	}
	var f rulesFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse rate limit rules %s: %w", path, err)
	}
	return f.Routes, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
