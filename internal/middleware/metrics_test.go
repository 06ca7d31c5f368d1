package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dealer-crm/crm-backend/internal/session"
	"github.com/dealer-crm/crm-backend/internal/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

// collectHistogramCount returns the sample count from a HistogramVec for the given labels.
func collectHistogramCount(hv *prometheus.HistogramVec, labels prometheus.Labels) uint64 {
	h, err := hv.GetMetricWith(labels)
	if err != nil {
		return 0
	}
	var dm dto.Metric
	if err := h.(prometheus.Metric).Write(&dm); err != nil {
		return 0
	}
	return dm.GetHistogram().GetSampleCount()
}

// pathLabelSeen reports whether any http_requests_total series carries the given path label.
func pathLabelSeen(path string) bool {
	ch := make(chan prometheus.Metric, 64)
	telemetry.HTTPRequestsTotal.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		for _, lp := range dm.GetLabel() {
			if lp.GetName() == "path" && lp.GetValue() == path {
				return true
			}
		}
	}
	return false
}

func newMetricsRouter(status int) *gin.Engine {
	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/:tenant/api/v1/records/:id", func(c *gin.Context) {
		c.Status(status)
	})
	return r
}

// ---------------------------------------------------------------------------
// MetricsMiddleware
// ---------------------------------------------------------------------------

func TestMetricsMiddleware_CountsByRouteTemplate(t *testing.T) {
	const route = "/:tenant/api/v1/records/:id"
	counter := telemetry.HTTPRequestsTotal.WithLabelValues("GET", route, "200")
	before := testutil.ToFloat64(counter)
	beforeHist := collectHistogramCount(telemetry.HTTPRequestDuration, prometheus.Labels{"method": "GET", "path": route})

	r := newMetricsRouter(http.StatusOK)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/acme/api/v1/records/rec-42", nil))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("http_requests_total delta = %v, want 1", got)
	}
	if after := collectHistogramCount(telemetry.HTTPRequestDuration, prometheus.Labels{"method": "GET", "path": route}); after <= beforeHist {
		t.Errorf("duration sample count did not increase: before=%d after=%d", beforeHist, after)
	}
	if pathLabelSeen("/acme/api/v1/records/rec-42") {
		t.Error("raw URL used as path label; tenant slugs must not become label values")
	}
}

func TestMetricsMiddleware_RecordsErrorStatus(t *testing.T) {
	counter := telemetry.HTTPRequestsTotal.WithLabelValues("GET", "/:tenant/api/v1/records/:id", "500")
	before := testutil.ToFloat64(counter)

	r := newMetricsRouter(http.StatusInternalServerError)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/acme/api/v1/records/x", nil))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("status=500 delta = %v, want 1", got)
	}
}

func TestMetricsMiddleware_NoRouteLabel(t *testing.T) {
	r := gin.New()
	r.Use(MetricsMiddleware())
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))

	if !pathLabelSeen("<no-route>") {
		t.Error("expected path label <no-route> for unmatched request")
	}
}

// ---------------------------------------------------------------------------
// Tenant resolution counters
// ---------------------------------------------------------------------------

func TestTenantResolver_CountsOutcomes(t *testing.T) {
	resolved := telemetry.TenantResolutionsTotal.WithLabelValues("host", telemetry.ResolutionResolved)
	notFound := telemetry.TenantResolutionsTotal.WithLabelValues("host", telemetry.ResolutionNotFound)
	inactive := telemetry.TenantResolutionsTotal.WithLabelValues("host", telemetry.ResolutionInactive)
	r0, n0, i0 := testutil.ToFloat64(resolved), testutil.ToFloat64(notFound), testutil.ToFloat64(inactive)

	r := newTenantRouter(newDirectory(), session.NewMemoryStore(0), testResolverOptions(), &probe{}, true)
	serve(r, "acme.app.example", "/api/v1/records")
	serve(r, "nobody.app.example", "/api/v1/records")
	serve(r, "closed.app.example", "/api/v1/records")

	if d := testutil.ToFloat64(resolved) - r0; d != 1 {
		t.Errorf("resolved delta = %v, want 1", d)
	}
	if d := testutil.ToFloat64(notFound) - n0; d != 1 {
		t.Errorf("not_found delta = %v, want 1", d)
	}
	if d := testutil.ToFloat64(inactive) - i0; d != 1 {
		t.Errorf("inactive delta = %v, want 1", d)
	}
}
