// Package telemetry provides logging setup and Prometheus metrics for the CRM backend.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and served on the side
// HTTP server started by main.go:
//
//	GET http://<host>:<CRM_TELEMETRY_METRICS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Tenant resolution outcomes and directory lookup latency
//   - Business data writes and rejected lifecycle transitions
//   - Session store failures and audit export failures
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() so tenant slugs in /:tenant/api/v1/... never become label
// values. Tenant metrics are labelled by outcome and source only, never by slug.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template and status code.
//
// Example PromQL queries:
//   - Error rate (%):        sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route: histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Tenant resolution outcomes.
//
// TenantResolutionsTotal has labels {source, outcome}. source is host, path, session or none;
// outcome is one of the Resolution* constants below.
//
// Example PromQL queries:
//   - Unknown slug rate:   rate(tenant_resolutions_total{outcome="not_found"}[5m])
//   - Lookup failures:     increase(tenant_resolutions_total{outcome="error"}[10m]) > 0
var (
	TenantResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_resolutions_total",
			Help: "Total number of tenant resolution attempts, by slug source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	TenantLookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tenant_lookup_duration_seconds",
			Help:    "Duration of tenant directory lookups performed during resolution.",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 3},
		},
	)
)

// Resolution outcome label values.
const (
	ResolutionResolved   = "resolved"
	ResolutionNotFound   = "not_found"
	ResolutionInactive   = "inactive"
	ResolutionTimeout    = "timeout"
	ResolutionError      = "error"
	ResolutionUnresolved = "unresolved"
)

// Business data metrics.
//
// EntityWritesTotal has labels {entity, operation} (create, update, delete).
// TransitionRejectionsTotal counts updates refused by the lifecycle rules, by reason.
var (
	EntityWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_entity_writes_total",
			Help: "Total number of committed entity writes, by entity and operation.",
		},
		[]string{"entity", "operation"},
	)

	TransitionRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_transition_rejections_total",
			Help: "Total number of business record writes rejected by lifecycle validation, by reason.",
		},
		[]string{"reason"},
	)
)

// SessionStoreErrorsTotal counts failed session store operations, by backend and operation.
// Session failures never fail a request, so this counter is the only signal they happened.
var SessionStoreErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "session_store_errors_total",
		Help: "Total number of failed session store operations, by backend and operation.",
	},
	[]string{"backend", "operation"},
)

// AuditExportErrorsTotal counts audit entries a file or webhook sink failed to accept. The
// audit_logs row is written regardless.
var AuditExportErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "audit_export_errors_total",
		Help: "Total number of audit entries that failed to export, by sink.",
	},
	[]string{"sink"},
)

// DBOpenConnections tracks open connections held by the sql.DB pool. It is sampled by
// StartDBStatsCollector rather than per request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples pool statistics every interval until ctx is cancelled or the
// database stops answering pings.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}
