package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/budget-engine/cost"
	"github.com/warp/budget-engine/metrics"
)

var (
	_ cost.Observer        = (*metrics.Metrics)(nil)
	_ cost.HistoryObserver = (*metrics.Metrics)(nil)
)

func TestMetrics_CountsEngineEvents(t *testing.T) {
	m := metrics.New()

	m.DegenerateAllocation(7)
	m.DegenerateAllocation(7)
	m.ExcludedLine(cost.ExcludedMissingHardware)
	m.CostHistoryTransition(cost.ItemHardware, true)

	for _, name := range []string{
		"budget_degenerate_allocations_total",
		"budget_excluded_lines_total",
		"budget_cost_history_transitions_total",
	} {
		n, err := testutil.GatherAndCount(m.Registry, name)
		require.NoError(t, err)
		assert.Equal(t, 1, n, name)
	}

	err := testutil.GatherAndCompare(m.Registry, strings.NewReader(`
# HELP budget_degenerate_allocations_total Tenant software lines priced at zero because no headcount is covered.
# TYPE budget_degenerate_allocations_total counter
budget_degenerate_allocations_total{software_id="7"} 2
`), "budget_degenerate_allocations_total")
	assert.NoError(t, err)
}

func TestMetrics_Handler(t *testing.T) {
	m := metrics.New()
	m.DegenerateAllocation(3)
	m.ObserveRequest("GET", "/api/positions/{id}/cost", 200, 15*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `budget_degenerate_allocations_total{software_id="3"} 1`)
	assert.Contains(t, string(body), `budget_http_request_duration_seconds_count{method="GET",route="/api/positions/{id}/cost",status="200"} 1`)
}
