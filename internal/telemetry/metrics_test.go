package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// ---------------------------------------------------------------------------
// Registration sanity checks. Describe() is used rather than Gather() because
// *Vec metrics with no observed label combination are absent from Gather output.
// ---------------------------------------------------------------------------

func TestMetrics_AllRegistered(t *testing.T) {
	type describer interface {
		Describe(chan<- *prometheus.Desc)
	}

	cases := []struct {
		name string
		c    describer
	}{
		{"http_requests_total", HTTPRequestsTotal},
		{"http_request_duration_seconds", HTTPRequestDuration},
		{"tenant_resolutions_total", TenantResolutionsTotal},
		{"tenant_lookup_duration_seconds", TenantLookupDuration},
		{"crm_entity_writes_total", EntityWritesTotal},
		{"crm_transition_rejections_total", TransitionRejectionsTotal},
		{"session_store_errors_total", SessionStoreErrorsTotal},
		{"db_open_connections", DBOpenConnections},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch := make(chan *prometheus.Desc, 10)
			tc.c.Describe(ch)
			close(ch)
			for desc := range ch {
				if strings.Contains(desc.String(), `"`+tc.name+`"`) {
					return
				}
			}
			t.Errorf("metric %q: Describe() returned no descriptor with this fqName", tc.name)
		})
	}
}

func TestMetrics_TenantResolutions_CanBeIncremented(t *testing.T) {
	labels := prometheus.Labels{"source": "host", "outcome": ResolutionNotFound}
	before := counterValue(t, TenantResolutionsTotal, labels)
	TenantResolutionsTotal.WithLabelValues("host", ResolutionNotFound).Inc()
	after := counterValue(t, TenantResolutionsTotal, labels)
	if after-before < 1 {
		t.Errorf("TenantResolutionsTotal did not increase (before=%.0f after=%.0f)", before, after)
	}
}

func TestMetrics_EntityWrites_CanBeIncremented(t *testing.T) {
	labels := prometheus.Labels{"entity": "equipment", "operation": "create"}
	before := counterValue(t, EntityWritesTotal, labels)
	EntityWritesTotal.WithLabelValues("equipment", "create").Inc()
	after := counterValue(t, EntityWritesTotal, labels)
	if after-before < 1 {
		t.Errorf("EntityWritesTotal did not increase")
	}
}

// ---------------------------------------------------------------------------
// StartDBStatsCollector
// ---------------------------------------------------------------------------

func TestStartDBStatsCollector_CancelledContextNeverPings(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	StartDBStatsCollector(ctx, db, time.Hour)
	time.Sleep(10 * time.Millisecond)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected database activity: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// counterValue reads the current value of a CounterVec for the given label set.
func counterValue(t *testing.T, cv *prometheus.CounterVec, labels prometheus.Labels) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 20)
	cv.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		if labelsMatch(dm.GetLabel(), labels) {
			return dm.GetCounter().GetValue()
		}
	}
	return 0
}

// labelsMatch returns true when all entries in want appear in got.
func labelsMatch(got []*dto.LabelPair, want prometheus.Labels) bool {
	for k, v := range want {
		found := false
		for _, lp := range got {
			if lp.GetName() == k && lp.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
