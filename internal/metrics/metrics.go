package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coolcare_http_requests_total",
		Help: "Total number of HTTP requests by route pattern, method and status code",
	}, []string{"route", "method", "code"})
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coolcare_http_request_duration_seconds",
		Help:    "HTTP request latencies by route pattern",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
	// Keyed by limiter route key, never by client, to bound cardinality.
	RateLimitRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coolcare_rate_limit_rejected_total",
		Help: "Total number of requests rejected by the rate limiter",
	}, []string{"route"})
	AdminLogins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coolcare_admin_logins_total",
		Help: "Admin login attempts by outcome (success/failure)",
	}, []string{"outcome"})
	AdminUnauthorized = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coolcare_admin_unauthorized_total",
		Help: "Total number of admin requests rejected for a missing or invalid session",
	})
	BookingsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coolcare_bookings_created_total",
		Help: "Total number of bookings created by service type",
	}, []string{"service_type"})
	BookingStatusUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coolcare_booking_status_updates_total",
		Help: "Total number of booking status changes by new status",
	}, []string{"status"})
	ChatUpstreamFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coolcare_chat_upstream_failures_total",
		Help: "Total number of failed calls to the chat model",
	})
)

func init() {
	prometheus.MustRegister(HTTPRequests)
	prometheus.MustRegister(HTTPDuration)
	prometheus.MustRegister(RateLimitRejected)
	prometheus.MustRegister(AdminLogins)
	prometheus.MustRegister(AdminUnauthorized)
	prometheus.MustRegister(BookingsCreated)
	prometheus.MustRegister(BookingStatusUpdates)
	prometheus.MustRegister(ChatUpstreamFailures)
}

// MetricsHandler exposes the default registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
