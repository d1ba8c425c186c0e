// Package metrics provides Prometheus instrumentation for the Sendloka
// enforcement core.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sendloka",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sendloka",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AdmissionsTotal counts pipeline decisions by outcome and denying layer.
	AdmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sendloka",
			Name:      "admissions_total",
			Help:      "Total revenue guard decisions by outcome and layer.",
		},
		[]string{"outcome", "layer"},
	)

	// AbuseEventsTotal counts recorded abuse signals by type.
	AbuseEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sendloka",
			Name:      "abuse_events_total",
			Help:      "Total abuse signal events recorded by type.",
		},
		[]string{"event_type"},
	)

	// RateLimitDecisionsTotal counts triggered rate limit decisions by action.
	RateLimitDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sendloka",
			Name:      "ratelimit_decisions_total",
			Help:      "Total triggered rate limit decisions by action.",
		},
		[]string{"action"},
	)

	// WebhookRejectionsTotal counts rejected inbound webhooks by cause.
	WebhookRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sendloka",
			Name:      "webhook_rejections_total",
			Help:      "Total rejected inbound webhooks by cause.",
		},
		[]string{"cause"},
	)

	// SuspendedTenants tracks currently suspended tenants.
	SuspendedTenants = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sendloka",
			Name:      "suspended_tenants",
			Help:      "Number of currently suspended tenants.",
		},
	)

	// DecaySweptTotal counts scores decremented by the decay sweep.
	DecaySweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sendloka",
		Name:      "decay_swept_total",
		Help:      "Total scores decremented by the decay sweep.",
	})

	// AutoUnlocksTotal counts tenants unlocked by the cooldown sweep.
	AutoUnlocksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sendloka",
		Name:      "auto_unlocks_total",
		Help:      "Total tenants unlocked by the cooldown sweep.",
	})

	// WalletDeductionsTotal counts wallet debits by result.
	WalletDeductionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sendloka",
			Name:      "wallet_deductions_total",
			Help:      "Total wallet deductions by result.",
		},
		[]string{"result"},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sendloka", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sendloka", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sendloka", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sendloka", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AdmissionsTotal,
		AbuseEventsTotal,
		RateLimitDecisionsTotal,
		WebhookRejectionsTotal,
		SuspendedTenants,
		DecaySweptTotal,
		AutoUnlocksTotal,
		WalletDeductionsTotal,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
