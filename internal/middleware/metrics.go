// Package middleware provides Gin HTTP middleware components for the CRM API.
// Global middleware is registered in internal/api/router.go; tenant, auth and audit middleware
// are attached per route group.
package middleware

import (
	"strconv"
	"time"

	"github.com/dealer-crm/crm-backend/internal/telemetry"
	"github.com/gin-gonic/gin"
)

// MetricsMiddleware returns a Gin handler that records request count and latency.
//
// Recorded metrics:
//   - http_requests_total{method, path, status}
//   - http_request_duration_seconds{method, path}
//
// The path label is the matched route template (e.g. /:tenant/api/v1/records/:id), never the
// raw URL, so dealer slugs and record IDs do not become label values. Unmatched requests use
// "<no-route>".
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}

		method := c.Request.Method
		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
