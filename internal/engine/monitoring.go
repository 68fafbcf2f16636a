package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Execution outcomes recorded by MetricsCollector.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// Cleanup results recorded by MetricsCollector.
const (
	CleanupDeleted = "deleted"
	CleanupFailed  = "failed"
)

// MetricsCollector records execution metrics. A nil *MetricsCollector is
// valid and records nothing.
type MetricsCollector struct {
	executions    *prometheus.CounterVec
	stageFailures *prometheus.CounterVec
	cleanups      *prometheus.CounterVec
	pollTicks     prometheus.Histogram
}

// NewMetricsCollector creates the collectors and registers them with reg.
func NewMetricsCollector(reg prometheus.Registerer) (*MetricsCollector, error) {
	mc := &MetricsCollector{
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghaexec_executions_total",
				Help: "Total number of workflow executions by outcome",
			},
			[]string{"outcome"},
		),
		stageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghaexec_stage_failures_total",
				Help: "Total number of executions that failed, by pipeline stage",
			},
			[]string{"stage"},
		),
		cleanups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghaexec_branch_cleanups_total",
				Help: "Total number of ephemeral branch deletions by result",
			},
			[]string{"result"},
		),
		pollTicks: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ghaexec_poll_ticks",
				Help:    "Number of status polls per observed run",
				Buckets: prometheus.LinearBuckets(1, 5, 13),
			},
		),
	}

	for _, c := range []prometheus.Collector{mc.executions, mc.stageFailures, mc.cleanups, mc.pollTicks} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return mc, nil
}

// RecordExecution records the outcome of one execution. stage is the failed
// stage, or empty on success.
func (mc *MetricsCollector) RecordExecution(stage string) {
	if mc == nil {
		return
	}
	if stage == "" {
		mc.executions.WithLabelValues(OutcomeSucceeded).Inc()
		return
	}
	mc.executions.WithLabelValues(OutcomeFailed).Inc()
	mc.stageFailures.WithLabelValues(stage).Inc()
}

// RecordCleanup records a branch deletion attempt.
func (mc *MetricsCollector) RecordCleanup(deleted bool) {
	if mc == nil {
		return
	}
	result := CleanupDeleted
	if !deleted {
		result = CleanupFailed
	}
	mc.cleanups.WithLabelValues(result).Inc()
}

// RecordPollTicks records how many polls a run needed.
func (mc *MetricsCollector) RecordPollTicks(ticks int) {
	if mc == nil {
		return
	}
	mc.pollTicks.Observe(float64(ticks))
}
