package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// buckets for seconds resolutions of histograms
	buckets = []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10}

	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pave",
			Name:      "task_duration_seconds",
			Help:      "Time taken to run a task.",
			Buckets:   buckets,
		},
		[]string{"task"},
	)
	TaskFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pave",
			Name:      "task_failures_total",
			Help:      "Number of failed task runs.",
		},
		[]string{"task", "kind"},
	)
	FilesWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pave",
			Name:      "files_written_total",
			Help:      "Number of files written to the output tree.",
		},
		[]string{"task"},
	)
	Reloads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pave",
			Name:      "reloads_total",
			Help:      "Number of live reload notifications sent.",
		},
	)
	ReloadClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pave",
			Name:      "reload_clients",
			Help:      "Number of connected live reload clients.",
		},
	)
)

// Registry holds every pave collector. It is separate from the default
// registry so tests and embedders start from a clean slate.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		TaskDuration,
		TaskFailures,
		FilesWritten,
		Reloads,
		ReloadClients,
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
