package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/contribgraph/metrics"
)

// Both implementations must satisfy the Recorder surface.
var (
	_ metrics.Recorder = (*metrics.Collector)(nil)
	_ metrics.Recorder = metrics.Nop{}
)

// gatherValue returns the summed value of a counter
// metric family across all label combinations.
func gatherValue(
	tb testing.TB,
	reg *prometheus.Registry,
	name string,
) float64 {
	tb.Helper()

	families, err := reg.Gather()
	require.NoError(tb, err)

	total := 0.0

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}

		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}

	return total
}

func TestCollector_counts_fetch_outcomes(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	col := metrics.NewCollector(reg)

	col.FetchSucceeded("a.example.com")
	col.FetchSucceeded("a.example.com")
	col.FetchFailed("b.example.com", "authentication")
	col.SnapshotHit("c.example.com")

	assert.Equal(t, 2.0, gatherValue(
		t, reg, "contribgraph_fetch_success_total",
	))
	assert.Equal(t, 1.0, gatherValue(
		t, reg, "contribgraph_fetch_failure_total",
	))
	assert.Equal(t, 1.0, gatherValue(
		t, reg, "contribgraph_snapshot_hits_total",
	))
}

func TestCollector_counts_merges_and_commits(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	col := metrics.NewCollector(reg)

	col.ContributionsMerged("a.example.com", 10)
	col.ContributionsMerged("b.example.com", 5)
	col.CommitsEmitted(15)

	assert.Equal(t, 15.0, gatherValue(
		t, reg, "contribgraph_contributions_total",
	))
	assert.Equal(t, 15.0, gatherValue(
		t, reg, "contribgraph_commits_emitted_total",
	))
}

func TestCollector_records_latency(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	col := metrics.NewCollector(reg)

	col.FetchDuration(100 * time.Millisecond)
	col.FetchDuration(2 * time.Second)

	families, err := reg.Gather()
	require.NoError(t, err)

	found := false

	for _, mf := range families {
		if mf.GetName() !=
			"contribgraph_fetch_duration_seconds" {
			continue
		}

		found = true
		h := mf.GetMetric()[0].GetHistogram()
		assert.Equal(
			t, uint64(2), h.GetSampleCount(),
		)
		assert.InDelta(
			t, 2.1, h.GetSampleSum(), 0.01,
		)
	}

	assert.True(t, found)
}

func TestHandler_serves_exposition_format(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	col := metrics.NewCollector(reg)

	col.FetchSucceeded("a.example.com")
	col.CommitsEmitted(3)

	req := httptest.NewRequest(
		http.MethodGet, "/metrics", nil,
	)
	rec := httptest.NewRecorder()

	metrics.Handler(reg).ServeHTTP(rec, req)

	resp := rec.Result()
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(
		t, string(body),
		"contribgraph_fetch_success_total",
	)
	assert.Contains(
		t, string(body),
		"contribgraph_commits_emitted_total",
	)
}

func TestNop_discards_recordings(t *testing.T) {
	t.Parallel()

	var rec metrics.Recorder = metrics.Nop{}

	assert.NotPanics(t, func() {
		rec.FetchSucceeded("a")
		rec.FetchFailed("a", "x")
		rec.SnapshotHit("a")
		rec.ContributionsMerged("a", 1)
		rec.CommitsEmitted(1)
		rec.FetchDuration(time.Second)
	})
}
