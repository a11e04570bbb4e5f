// Package metrics collects and exposes Prometheus
// metrics for instance fetches and repository builds.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the metrics surface consumed by the
// aggregation run. Nop satisfies it for callers that do
// not scrape.
type Recorder interface {
	FetchSucceeded(instance string)
	FetchFailed(instance string, reason string)
	SnapshotHit(instance string)
	ContributionsMerged(instance string, count int)
	CommitsEmitted(count int)
	FetchDuration(d time.Duration)
}

// Collector records run metrics into a Prometheus
// registry.
type Collector struct {
	fetchSuccess  *prometheus.CounterVec
	fetchFailure  *prometheus.CounterVec
	snapshotHits  *prometheus.CounterVec
	contributions *prometheus.CounterVec
	commits       prometheus.Counter
	fetchLatency  prometheus.Histogram
}

// NewCollector creates a collector and registers its
// metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchSuccess: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contribgraph_fetch_success_total",
				Help: "Completed instance fetches.",
			},
			[]string{"instance"},
		),
		fetchFailure: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contribgraph_fetch_failure_total",
				Help: "Failed instance fetches by reason.",
			},
			[]string{"instance", "reason"},
		),
		snapshotHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contribgraph_snapshot_hits_total",
				Help: "Fetches served from the export store.",
			},
			[]string{"instance"},
		),
		contributions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contribgraph_contributions_total",
				Help: "Contributions merged into the timeline.",
			},
			[]string{"instance"},
		),
		commits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "contribgraph_commits_emitted_total",
				Help: "Synthetic commits written to the repository.",
			},
		),
		fetchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "contribgraph_fetch_duration_seconds",
				Help:    "Wall clock duration of one instance fetch.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	reg.MustRegister(
		c.fetchSuccess,
		c.fetchFailure,
		c.snapshotHits,
		c.contributions,
		c.commits,
		c.fetchLatency,
	)

	return c
}

// FetchSucceeded counts one completed instance fetch.
func (c *Collector) FetchSucceeded(instance string) {
	c.fetchSuccess.WithLabelValues(instance).Inc()
}

// FetchFailed counts one failed instance fetch.
func (c *Collector) FetchFailed(
	instance string,
	reason string,
) {
	c.fetchFailure.WithLabelValues(
		instance, reason,
	).Inc()
}

// SnapshotHit counts one fetch served from cache.
func (c *Collector) SnapshotHit(instance string) {
	c.snapshotHits.WithLabelValues(instance).Inc()
}

// ContributionsMerged counts contributions an instance
// added to the timeline.
func (c *Collector) ContributionsMerged(
	instance string,
	count int,
) {
	c.contributions.WithLabelValues(instance).Add(
		float64(count),
	)
}

// CommitsEmitted counts commits written during the build
// phase.
func (c *Collector) CommitsEmitted(count int) {
	c.commits.Add(float64(count))
}

// FetchDuration records the wall clock duration of one
// instance fetch.
func (c *Collector) FetchDuration(d time.Duration) {
	c.fetchLatency.Observe(d.Seconds())
}

// Nop discards all recordings.
type Nop struct{}

func (Nop) FetchSucceeded(string)           {}
func (Nop) FetchFailed(string, string)      {}
func (Nop) SnapshotHit(string)              {}
func (Nop) ContributionsMerged(string, int) {}
func (Nop) CommitsEmitted(int)              {}
func (Nop) FetchDuration(time.Duration)     {}

// Handler returns the HTTP handler serving the registry
// in Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(
		gatherer, promhttp.HandlerOpts{},
	)
}
