// Package metrics exposes dixcover's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the counters and histograms emitted across the scan,
// probe, and notify pipelines.
type Metrics struct {
	ScansStarted    *prometheus.CounterVec
	SourceDuration  *prometheus.HistogramVec
	SourceErrors    *prometheus.CounterVec
	SubdomainsFound *prometheus.CounterVec

	ProbesTotal     *prometheus.CounterVec
	ProbeDuration   prometheus.Histogram
	NewAliveTotal   prometheus.Counter
	NotifyFailures  *prometheus.CounterVec
}

// New registers and returns dixcover's metric set against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ScansStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dixcover",
			Name:      "scans_started_total",
			Help:      "Number of apex scans started.",
		}, []string{"trigger"}),
		SourceDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dixcover",
			Name:      "source_ingest_duration_seconds",
			Help:      "Duration of one source's Ingest call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		SourceErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dixcover",
			Name:      "source_errors_total",
			Help:      "Number of source Ingest calls that returned an error.",
		}, []string{"source"}),
		SubdomainsFound: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dixcover",
			Name:      "subdomains_found_total",
			Help:      "Number of subdomain findings recorded, by source.",
		}, []string{"source"}),
		ProbesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dixcover",
			Name:      "probes_total",
			Help:      "Number of reachability probes performed, by outcome.",
		}, []string{"reachable"}),
		ProbeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dixcover",
			Name:      "probe_sweep_duration_seconds",
			Help:      "Duration of a full probe sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
		NewAliveTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "dixcover",
			Name:      "new_alive_subdomains_total",
			Help:      "Number of subdomains newly observed reachable.",
		}),
		NotifyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dixcover",
			Name:      "notify_failures_total",
			Help:      "Number of failed notification sends, by platform.",
		}, []string{"platform"}),
	}
}
