// internal/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xkilldash9x/waypoint/internal/flow"
)

var (
	// RunsTotal tracks finished runs by final status.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waypoint_runs_total",
			Help: "Total number of navigation runs by final status",
		},
		[]string{"status"},
	)

	// RunErrorsTotal tracks the kind of the last recorded error of each run.
	RunErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waypoint_run_errors_total",
			Help: "Total number of runs ending with a recorded error, by kind",
		},
		[]string{"kind"},
	)

	// TransitionsTotal tracks state machine transitions.
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waypoint_transitions_total",
			Help: "Total number of state transitions",
		},
		[]string{"from", "to"},
	)

	// StepDuration tracks how long each step takes.
	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waypoint_step_duration_seconds",
			Help:    "Step latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		},
		[]string{"state"},
	)

	// StepErrorsTotal tracks steps that aborted the run.
	StepErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waypoint_step_errors_total",
			Help: "Total number of steps that aborted a run",
		},
		[]string{"state"},
	)
)

// Instrument registers the machine hooks that feed the collectors.
func Instrument(m *flow.Machine) {
	m.OnTransition(func(from, to flow.State, _ flow.RunState) {
		TransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
	})
	m.OnStep(func(s flow.State, took time.Duration, err error) {
		StepDuration.WithLabelValues(s.String()).Observe(took.Seconds())
		if err != nil {
			StepErrorsTotal.WithLabelValues(s.String()).Inc()
		}
	})
}

// ObserveResult records the outcome of a finished run.
func ObserveResult(res *flow.Result) {
	if res == nil {
		return
	}
	RunsTotal.WithLabelValues(string(res.Status)).Inc()
	if res.State.LastError == "" {
		return
	}
	kind := string(flow.KindOf(res.State.LastError))
	if kind == "" {
		kind = "other"
	}
	RunErrorsTotal.WithLabelValues(kind).Inc()
}
