// Package metrics holds the prometheus collectors of the sync engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "watchsync"

// Registry holds every watchsync collector plus the Go runtime collectors
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	ProgressTicks = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "progress_ticks_total",
		Help:      "Playback progress ticks received.",
	})

	ProgressPushes = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "progress_pushes_total",
		Help:      "Progress ticks selected by the throttle for the remote mirror.",
	})

	PendingQueueSize = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_sync_queue_size",
		Help:      "Tracker updates waiting for a usable credential.",
	})

	FlushItems = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "flush_items_total",
		Help:      "Pending queue items processed by flushes, by result.",
	}, []string{"result"})

	TrackerCalls = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tracker_calls_total",
		Help:      "Tracking service status updates, by result.",
	}, []string{"result"})

	MirrorFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mirror_failures_total",
		Help:      "Remote mirror operations that failed, by operation.",
	}, []string{"op"})

	Reconciliations = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconciliations_total",
		Help:      "History reconciliations completed.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the prometheus exposition format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
