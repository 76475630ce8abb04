package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	tasksEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskvisor",
			Subsystem: "queue",
			Name:      "tasks_enqueued_total",
			Help:      "Number of tasks added to the pending collection.",
		}, []string{"type", "priority"},
	)
	tasksFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskvisor",
			Subsystem: "queue",
			Name:      "tasks_finished_total",
			Help:      "Number of tasks reaching a terminal status.",
		}, []string{"type", "status"},
	)
	executorPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskvisor",
			Subsystem: "queue",
			Name:      "executor_panics_total",
			Help:      "Number of recovered executor panics.",
		}, []string{"type"},
	)
	dispatchTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "taskvisor",
			Subsystem: "queue",
			Name:      "dispatch_ticks_total",
			Help:      "Number of dispatch loop ticks executed.",
		},
	)
	tickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "taskvisor",
			Subsystem: "queue",
			Name:      "dispatch_tick_duration_seconds",
			Help:      "Observed duration of one dispatch tick.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	scheduleFires = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskvisor",
			Subsystem: "queue",
			Name:      "schedule_fires_total",
			Help:      "Number of tasks materialized from recurring schedules.",
		}, []string{"schedule"},
	)
	queueTasks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "taskvisor",
			Subsystem: "queue",
			Name:      "tasks",
			Help:      "Current task count per collection.",
		}, []string{"state"},
	)

	processSpawns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "taskvisor",
			Subsystem: "process",
			Name:      "spawns_total",
			Help:      "Number of successful subprocess spawns.",
		},
	)
	processExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskvisor",
			Subsystem: "process",
			Name:      "exits_total",
			Help:      "Number of subprocesses reaching a terminal status.",
		}, []string{"status"},
	)
	processTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "taskvisor",
			Subsystem: "process",
			Name:      "timeouts_total",
			Help:      "Number of subprocesses terminated by their spawn timeout.",
		},
	)
	outputTruncations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "taskvisor",
			Subsystem: "process",
			Name:      "output_truncations_total",
			Help:      "Number of handles whose output buffer hit a hard cap.",
		},
	)
	runningProcesses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "taskvisor",
			Subsystem: "process",
			Name:      "running",
			Help:      "Current number of live supervised subprocesses.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		tasksEnqueued, tasksFinished, executorPanics, dispatchTicks, tickDuration,
		scheduleFires, queueTasks,
		processSpawns, processExits, processTimeouts, outputTruncations, runningProcesses,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
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

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncTaskEnqueued(typ, priority string) {
	if regOK.Load() {
		tasksEnqueued.WithLabelValues(typ, priority).Inc()
	}
}

func IncTaskFinished(typ, status string) {
	if regOK.Load() {
		tasksFinished.WithLabelValues(typ, status).Inc()
	}
}

func IncExecutorPanic(typ string) {
	if regOK.Load() {
		executorPanics.WithLabelValues(typ).Inc()
	}
}

func IncDispatchTick() {
	if regOK.Load() {
		dispatchTicks.Inc()
	}
}

func ObserveTickDuration(seconds float64) {
	if regOK.Load() {
		tickDuration.Observe(seconds)
	}
}

func IncScheduleFire(schedule string) {
	if regOK.Load() {
		scheduleFires.WithLabelValues(schedule).Inc()
	}
}

func SetQueueTasks(state string, n int) {
	if regOK.Load() {
		queueTasks.WithLabelValues(state).Set(float64(n))
	}
}

func IncProcessSpawn() {
	if regOK.Load() {
		processSpawns.Inc()
	}
}

func IncProcessExit(status string) {
	if regOK.Load() {
		processExits.WithLabelValues(status).Inc()
	}
}

func IncProcessTimeout() {
	if regOK.Load() {
		processTimeouts.Inc()
	}
}

func IncOutputTruncation() {
	if regOK.Load() {
		outputTruncations.Inc()
	}
}

func SetRunningProcesses(n int) {
	if regOK.Load() {
		runningProcesses.Set(float64(n))
	}
}
