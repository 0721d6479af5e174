package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors, registered via Register.
var (
	regOK atomic.Bool

	ensureCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xproc",
			Subsystem: "supervisor",
			Name:      "ensure_total",
			Help:      "Number of ensure calls per process name.",
		}, []string{"name"},
	)
	launches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xproc",
			Subsystem: "supervisor",
			Name:      "launches_total",
			Help:      "Number of fresh launches (cache miss or forced restart).",
		}, []string{"name"},
	)
	reuses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xproc",
			Subsystem: "supervisor",
			Name:      "reuses_total",
			Help:      "Number of ensure calls satisfied by a live prior process.",
		}, []string{"name"},
	)
	terminations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xproc",
			Subsystem: "supervisor",
			Name:      "terminations_total",
			Help:      "Termination attempts by outcome.",
		}, []string{"name", "outcome"},
	)
	readyWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "xproc",
			Subsystem: "supervisor",
			Name:      "ready_wait_seconds",
			Help:      "Time spent waiting for a fresh process to become ready.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name"},
	)
	startupFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xproc",
			Subsystem: "supervisor",
			Name:      "startup_failures_total",
			Help:      "Launches whose readiness strategy gave up.",
		}, []string{"name"},
	)
)

// Register registers all metrics with the provided registerer. Safe to call
// multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{ensureCalls, launches, reuses, terminations, readyWait, startupFailures}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the DefaultGatherer; the caller wires the route.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncEnsure(name string) {
	if regOK.Load() {
		ensureCalls.WithLabelValues(name).Inc()
	}
}

func IncLaunch(name string) {
	if regOK.Load() {
		launches.WithLabelValues(name).Inc()
	}
}

func IncReuse(name string) {
	if regOK.Load() {
		reuses.WithLabelValues(name).Inc()
	}
}

func IncTermination(name, outcome string) {
	if regOK.Load() {
		terminations.WithLabelValues(name, outcome).Inc()
	}
}

func ObserveReadyWait(name string, seconds float64) {
	if regOK.Load() {
		readyWait.WithLabelValues(name).Observe(seconds)
	}
}

func IncStartupFailure(name string) {
	if regOK.Load() {
		startupFailures.WithLabelValues(name).Inc()
	}
}
