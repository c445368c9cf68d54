package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeStopped   = "stopped"

	rejectBusy    = "busy"
	rejectNoTask  = "no_task"
	rejectStartup = "startup"
)

// Metrics are the orchestrator's Prometheus collectors.
type Metrics struct {
	submitted    prometheus.Counter
	rejected     *prometheus.CounterVec
	finished     *prometheus.CounterVec
	cancelled    prometheus.Counter
	taskDuration prometheus.Histogram
	pollWait     prometheus.Histogram
	busy         prometheus.Gauge
}

// NewMetrics registers the collectors with reg. Pass a fresh registry when
// more than one orchestrator lives in a process, as tests do.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		submitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pilot",
			Subsystem: "orchestrator",
			Name:      "tasks_submitted_total",
			Help:      "Tasks accepted for execution.",
		}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pilot",
			Subsystem: "orchestrator",
			Name:      "tasks_rejected_total",
			Help:      "Submissions rejected before a run started.",
		}, []string{"reason"}),
		finished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pilot",
			Subsystem: "orchestrator",
			Name:      "tasks_finished_total",
			Help:      "Runs that ended, by outcome.",
		}, []string{"outcome"}),
		cancelled: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pilot",
			Subsystem: "orchestrator",
			Name:      "tasks_cancelled_total",
			Help:      "Cancel requests accepted for a live task.",
		}),
		taskDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pilot",
			Subsystem: "orchestrator",
			Name:      "task_duration_seconds",
			Help:      "Wall time of a run including artifact writing.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		pollWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pilot",
			Subsystem: "orchestrator",
			Name:      "poll_wait_seconds",
			Help:      "Time a status poll spent waiting for artifacts.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}),
		busy: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "pilot",
			Subsystem: "orchestrator",
			Name:      "agent_busy",
			Help:      "1 while the agent slot is held.",
		}),
	}
}
