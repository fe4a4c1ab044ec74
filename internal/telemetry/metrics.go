// metrics.go registers the portal's Prometheus metrics against the default
// registry. They are exposed on the side-channel metrics port started by
// cmd/server, not on the Gin router, so the scrape path stays off the public
// ingress and outside the rate-limiting middleware.
//
// HTTP metrics use c.FullPath() (route template such as
// /public/hubs/:hubId/verify-code) rather than the raw URL to prevent
// unbounded label cardinality from user-supplied path segments.
//
// Verification outcome labels carry the internal failure cause. They exist
// for operator diagnosis only — the HTTP responses deliberately collapse all
// causes into a single valid:false.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts requests by method, route template, and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration is a latency histogram by method and route template.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	// VerificationCodesIssuedTotal counts challenge codes actually written and
	// dispatched (not request-code calls, which always respond identically).
	VerificationCodesIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portal_verification_codes_issued_total",
			Help: "Total number of portal verification codes issued and dispatched by email.",
		},
	)

	// VerificationOutcomesTotal counts verification attempts by operation
	// (code, device, password) and internal cause (success, mismatch, expired,
	// locked_out, used, no_artifact, policy_mismatch, contact_revoked).
	VerificationOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_verification_outcomes_total",
			Help: "Total number of portal verification attempts by operation and internal cause.",
		},
		[]string{"operation", "cause"},
	)

	// SweepDuration observes cleanup sweep latency.
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "portal_cleanup_sweep_duration_seconds",
			Help:    "Histogram of cleanup sweep latencies.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// SweepDeletedRows counts expired rows removed by the sweeper, by artifact kind.
	SweepDeletedRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_cleanup_swept_rows_total",
			Help: "Total number of expired artifact rows deleted by the cleanup sweeper.",
		},
		[]string{"kind"},
	)

	// RateLimitRejectionsTotal counts 429s by route template.
	RateLimitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_rate_limit_rejections_total",
			Help: "Total number of requests rejected by the rate limiter, by route template.",
		},
		[]string{"path"},
	)

	dbConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_in_use",
			Help: "Number of database connections currently in use.",
		},
	)
)

// PollDBStats samples the connection pool gauge every interval until the
// process exits. Launch it once from cmd/server.
func PollDBStats(db *sql.DB, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		stats := db.Stats()
		dbConnectionsInUse.Set(float64(stats.InUse))
		slog.Debug("db pool sampled", "in_use", stats.InUse, "idle", stats.Idle)
	}
}
