package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coolcare/internal/booking"
	"coolcare/internal/config"
	"coolcare/internal/logging"
)

var fixedNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

func testConfig() config.Config {
	return config.Config{
		Port: "0",
		Env:  "test",
		Admin: config.AdminConfig{
			ID:            "admin",
			Password:      "s3cret-pass",
			CookieName:    "admin_session",
			SessionTTL:    time.Hour,
			SessionSecret: "unit-test-secret-unit-test-secret",
		},
		RateLimit:      config.RateLimitConfig{Window: time.Minute, Max: 60},
		Store:          config.StoreConfig{Backend: config.StoreMemory},
		Chat:           config.ChatConfig{Model: config.DefaultGeminiModel},
		WhatsAppNumber: "+91 98765 43210",
	}
}

type harness struct {
	srv   *Server
	http  *httptest.Server
	store *booking.MemoryStore
}

func newHarness(t *testing.T, mutate func(*config.Config), opts ...Option) *harness {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	store := booking.NewMemoryStore()
	opts = append([]Option{WithBookingStore(store), WithClock(func() time.Time { return fixedNow })}, opts...)

	s, err := New(context.Background(), cfg, logging.NewTestLogger(), opts...)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = s.Close()
	})
	return &harness{srv: s, http: ts, store: store}
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func (h *harness) do(t *testing.T, c *http.Client, method, path string, body any, header http.Header) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, h.http.URL+path, rd)
	require.NoError(t, err)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") && len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func (h *harness) login(t *testing.T, c *http.Client) {
	t.Helper()
	resp, body := h.do(t, c, http.MethodPost, "/api/admin/login",
		map[string]string{"id": "admin", "password": "s3cret-pass"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
}

func signCustomerToken(t *testing.T, secret, sub string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func sampleBooking() map[string]string {
	return map[string]string{
		"customer_name":  "Ravi Kumar",
		"customer_phone": "9876543210",
		"service_type":   "maintenance",
		"ac_type":        "window",
		"address":        "221B Lake Road",
		"preferred_date": "2026-06-10",
		"preferred_time": "14:00",
	}
}

func TestAdminSessionFlow(t *testing.T) {
	h := newHarness(t, nil)
	c := newClient(t)

	resp, body := h.do(t, c, http.MethodPost, "/api/admin/login",
		map[string]string{"id": "admin", "password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid credentials", body["error"])

	resp, body = h.do(t, c, http.MethodPost, "/api/admin/login",
		map[string]string{"id": "admin", "password": "s3cret-pass"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	cookies := resp.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "admin_session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, 3600, cookies[0].MaxAge)

	resp, body = h.do(t, c, http.MethodGet, "/api/admin/bookings", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{}, body["bookings"])

	resp, body = h.do(t, http.DefaultClient, http.MethodGet, "/api/admin/bookings", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Unauthorized", body["error"])

	resp, _ = h.do(t, c, http.MethodPost, "/api/admin/logout", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = h.do(t, c, http.MethodGet, "/api/admin/bookings", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminRateLimit(t *testing.T) {
	h := newHarness(t, nil)
	c := newClient(t)
	h.login(t, c)

	for i := 1; i <= 60; i++ {
		resp, _ := h.do(t, c, http.MethodGet, "/api/admin/bookings", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, "request %d", i)
	}

	resp, body := h.do(t, c, http.MethodGet, "/api/admin/bookings", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
	assert.Equal(t, "60", resp.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "Too many requests, please try again later.", body["error"])

	// Other routes keep their own budget.
	resp, _ = h.do(t, c, http.MethodPost, "/api/admin/logout", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouteRuleOverride(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.RateLimit.Routes = map[string]config.RouteRule{
			"admin:login:post": {WindowMS: 30_000, Max: 2},
		}
	})
	c := newClient(t)

	for i := 0; i < 2; i++ {
		resp, _ := h.do(t, c, http.MethodPost, "/api/admin/login", map[string]string{}, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	resp, _ := h.do(t, c, http.MethodPost, "/api/admin/login", map[string]string{}, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "30", resp.Header.Get("Retry-After"))
}

func TestCreateBooking(t *testing.T) {
	h := newHarness(t, nil)
	c := newClient(t)

	resp, body := h.do(t, c, http.MethodPost, "/api/bookings", sampleBooking(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["bookingId"])
	assert.Equal(t, "Booking submitted successfully!", body["message"])

	stored, err := h.store.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPending, stored.Status)
	assert.Nil(t, stored.UserID)

	bad := sampleBooking()
	bad["customer_phone"] = "123"
	resp, body = h.do(t, c, http.MethodPost, "/api/bookings", bad, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Valid phone number is required", body["error"])

	resp, body = h.do(t, c, http.MethodPost, "/api/bookings", "{not json", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid JSON", body["error"])

	resp, _ = h.do(t, c, http.MethodGet, "/api/bookings", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCreateBookingCustomerToken(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Customer.JWTSecret = "customer-jwt-secret-customer-jwt-secret"
	})
	c := newClient(t)

	tok := signCustomerToken(t, "customer-jwt-secret-customer-jwt-secret", "user-abc")
	resp, body := h.do(t, c, http.MethodPost, "/api/bookings", sampleBooking(),
		http.Header{"Authorization": {"Bearer " + tok}})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	stored, err := h.store.Get(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, stored.UserID)
	assert.Equal(t, "user-abc", *stored.UserID)

	resp, _ = h.do(t, c, http.MethodPost, "/api/bookings", sampleBooking(),
		http.Header{"Authorization": {"Bearer forged.token.value"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminUpdateStatus(t *testing.T) {
	h := newHarness(t, nil)
	c := newClient(t)
	_, err := h.store.Create(context.Background(), booking.NewBooking{CustomerName: "A"})
	require.NoError(t, err)

	resp, _ := h.do(t, c, http.MethodPut, "/api/admin/bookings/status",
		map[string]any{"id": 1, "status": "confirmed"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	h.login(t, c)

	resp, body := h.do(t, c, http.MethodPut, "/api/admin/bookings/status",
		map[string]any{"id": 1, "status": "confirmed"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	stored, err := h.store.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, stored.Status)

	resp, body = h.do(t, c, http.MethodPut, "/api/admin/bookings/status",
		map[string]any{"status": "confirmed"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Booking id is required", body["error"])

	resp, _ = h.do(t, c, http.MethodPut, "/api/admin/bookings/status",
		map[string]any{"id": 1, "status": "lost"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = h.do(t, c, http.MethodPut, "/api/admin/bookings/status",
		map[string]any{"id": 77, "status": "cancelled"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Booking not found", body["error"])

	resp, body = h.do(t, c, http.MethodGet, "/api/admin/bookings", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list, ok := body["bookings"].([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.Equal(t, "confirmed", list[0].(map[string]any)["status"])
}

func TestWhatsAppLink(t *testing.T) {
	h := newHarness(t, nil)
	c := newClient(t)
	resp, _ := h.do(t, c, http.MethodPost, "/api/bookings", sampleBooking(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := h.do(t, c, http.MethodGet, "/api/whatsapp/1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	link, _ := body["whatsappUrl"].(string)
	assert.True(t, strings.HasPrefix(link, "https://wa.me/919876543210?text="), link)

	resp, body = h.do(t, c, http.MethodGet, "/api/whatsapp/404", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Booking not found", body["error"])

	resp, body = h.do(t, c, http.MethodGet, "/api/whatsapp/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "bookingId is required", body["error"])
}

func TestWhatsAppLinkWithoutNumber(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.WhatsAppNumber = "" })
	c := newClient(t)
	resp, _ := h.do(t, c, http.MethodPost, "/api/bookings", sampleBooking(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := h.do(t, c, http.MethodGet, "/api/whatsapp/1", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Server not configured (WHATSAPP_BUSINESS_NUMBER missing)", body["error"])
}

func TestChat(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"We fix split ACs."}]}}]}`)
	}))
	t.Cleanup(upstream.Close)

	h := newHarness(t, func(cfg *config.Config) {
		cfg.Chat.APIKey = "k"
		cfg.Chat.BaseURL = upstream.URL
	})
	c := newClient(t)

	resp, body := h.do(t, c, http.MethodPost, "/api/chat", map[string]string{"message": "Do you fix split ACs?"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "We fix split ACs.", body["reply"])

	resp, body = h.do(t, c, http.MethodPost, "/api/chat", map[string]string{"message": "  "}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Message is required", body["error"])

	resp, body = h.do(t, c, http.MethodPost, "/api/chat", map[string]any{"message": 42}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Message is required", body["error"])
}

func TestChatRateLimitCountsValidMessagesOnly(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`)
	}))
	t.Cleanup(upstream.Close)

	h := newHarness(t, func(cfg *config.Config) {
		cfg.Chat.APIKey = "k"
		cfg.Chat.BaseURL = upstream.URL
		cfg.RateLimit.Routes = map[string]config.RouteRule{"chat:post": {WindowMS: 60_000, Max: 2}}
	})
	c := newClient(t)

	for i := 0; i < 3; i++ {
		resp, _ := h.do(t, c, http.MethodPost, "/api/chat", map[string]string{"message": "  "}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}
	for i := 0; i < 2; i++ {
		resp, body := h.do(t, c, http.MethodPost, "/api/chat", map[string]string{"message": "hello"}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
		assert.Equal(t, strconv.Itoa(1-i), resp.Header.Get("X-RateLimit-Remaining"))
	}
	resp, body := h.do(t, c, http.MethodPost, "/api/chat", map[string]string{"message": "hello"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "Too many requests, please try again later.", body["error"])
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
}

func TestChatFailures(t *testing.T) {
	h := newHarness(t, nil)
	c := newClient(t)

	resp, body := h.do(t, c, http.MethodPost, "/api/chat", map[string]string{"message": "hi"}, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Server is not configured (GEMINI_API_KEY missing)", body["error"])

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	t.Cleanup(upstream.Close)
	h = newHarness(t, func(cfg *config.Config) {
		cfg.Chat.APIKey = "k"
		cfg.Chat.BaseURL = upstream.URL
	})
	resp, body = h.do(t, c, http.MethodPost, "/api/chat", map[string]string{"message": "hi"}, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "I'm experiencing technical difficulties. Please try again later.", body["reply"])
}

func TestCORS(t *testing.T) {
	h := newHarness(t, nil)
	c := newClient(t)

	resp, _ := h.do(t, c, http.MethodOptions, "/api/bookings", nil, http.Header{
		"Origin":                         {"http://localhost:5173"},
		"Access-Control-Request-Method":  {"POST"},
		"Access-Control-Request-Headers": {"Content-Type"},
	})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "POST", resp.Header.Get("Access-Control-Allow-Methods"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Content-Type")

	resp, _ = h.do(t, c, http.MethodGet, "/healthz", nil, http.Header{"Origin": {"http://localhost:5173"}})
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, _ = h.do(t, c, http.MethodGet, "/healthz", nil, nil)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSProduction(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Env = "production"
		cfg.AllowedOrigins = []string{"https://coolcare.example"}
	})
	c := newClient(t)

	resp, _ := h.do(t, c, http.MethodPost, "/api/bookings", sampleBooking(),
		http.Header{"Origin": {"https://coolcare.example"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://coolcare.example", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, body := h.do(t, c, http.MethodPost, "/api/bookings", sampleBooking(),
		http.Header{"Origin": {"https://evil.example"}})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Blocked: bad origin", body["error"])
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	resp, _ = h.do(t, c, http.MethodPost, "/api/admin/login",
		map[string]string{"id": "admin", "password": "s3cret-pass"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, resp.Cookies(), 1)
	assert.True(t, resp.Cookies()[0].Secure)
}

func TestErrorsAndHeaders(t *testing.T) {
	h := newHarness(t, nil)
	c := newClient(t)

	resp, body := h.do(t, c, http.MethodGet, "/api/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Not Found", body["error"])

	resp, body = h.do(t, c, http.MethodDelete, "/api/admin/login", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "Method Not Allowed", body["error"])

	resp, _ = h.do(t, c, http.MethodGet, "/healthz", nil, http.Header{"X-Request-Id": {"req-123"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "frame-ancestors 'none'")

	resp, _ = h.do(t, c, http.MethodGet, "/healthz", nil, nil)
	assert.Len(t, resp.Header.Get("X-Request-ID"), 36)

	resp, _ = h.do(t, c, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewRejectsUnknownStore(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Backend = "cassandra"
	_, err := New(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, config.ErrUnknownStore)
}

func TestNewRejectsMissingSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Admin.SessionSecret = ""
	_, err := New(context.Background(), cfg, nil, WithBookingStore(booking.NewMemoryStore()))
	assert.Error(t, err)
}
