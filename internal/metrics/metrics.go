// Package metrics exposes the farm's Prometheus instrumentation.
//
// Collectors register on the default registry at package load and the
// server publishes them through promhttp on /metrics. Label sets stay
// small and bounded: outcome names, pass kinds, and chi route patterns.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "benchfarm"

var (
	// JobsCompleted counts jobs taken to a terminal state, labelled by
	// outcome: succeeded, failed, killed, or cancelled.
	JobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "jobs_completed_total",
		Help:      "Jobs taken to a terminal state, by outcome.",
	}, []string{"outcome"})

	// JobDuration observes wall-clock runtime of completed jobs.
	// Benchmark jobs routinely run for hours, hence the long tail.
	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "job_duration_seconds",
		Help:      "Wall-clock runtime of completed jobs.",
		Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200, 14400},
	})

	// PendingJobs is the queue depth observed at the start of the most
	// recent poll pass.
	PendingJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "pending_jobs",
		Help:      "Pending descriptors observed at the start of the last poll pass.",
	})

	// PollPasses counts poll passes, labelled empty or busy.
	PollPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "passes_total",
		Help:      "Poll passes over the job store, by whether any job ran.",
	}, []string{"kind"})

	// BuildsCompleted counts revision builds, labelled ok, failed, or skipped.
	BuildsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "builds",
		Name:      "completed_total",
		Help:      "Tool revision builds, by result.",
	}, []string{"result"})

	// SchedulesFired counts cron schedule firings, labelled ok, conflict,
	// or error. Conflicts are expected when a slot's job already exists.
	SchedulesFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "fired_total",
		Help:      "Cron schedule firings, by result.",
	}, []string{"result"})

	// HTTPRequests counts API requests by chi route pattern and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "API requests, by method, route pattern and status code.",
	}, []string{"method", "route", "status"})

	buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Constant gauge carrying the running version as a label.",
	}, []string{"version"})
)

// Init stamps the build_info gauge. Call once at startup.
func Init(version string) {
	buildInfo.WithLabelValues(version).Set(1)
}
