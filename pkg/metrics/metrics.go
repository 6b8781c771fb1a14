package metrics

import (
	"github.com/opscart/rds-idle-manager/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idle_manager_sweeps_total",
		Help: "Number of completed fleet sweeps.",
	})

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "idle_manager_sweep_duration_seconds",
		Help:    "Wall time of one fleet sweep.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idle_manager_actions_total",
		Help: "Per-resource sweep outcomes by action and result.",
	}, []string{"action", "result"})

	startsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "idle_manager_starts_total",
		Help: "On-demand start requests by result.",
	}, []string{"result"})
)

// ObserveSweep records one completed sweep report
func ObserveSweep(report *models.SweepReport) {
	sweepsTotal.Inc()
	sweepDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	for _, out := range report.Outcomes {
		actionsTotal.WithLabelValues(string(out.Action), resultLabel(out.Success)).Inc()
	}
}

// ObserveStart records one on-demand start request
func ObserveStart(result models.StartResult) {
	startsTotal.WithLabelValues(resultLabel(result.OK())).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
