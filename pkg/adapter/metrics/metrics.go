// Package metrics exposes pipeline counters in Prometheus format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/secmon-lab/remedy/pkg/domain/types"
)

var (
	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remedy",
			Name:      "cycles_total",
			Help:      "Total number of pipeline cycles, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	cycleDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "remedy",
			Name:      "cycle_seconds",
			Help:      "Pipeline cycle latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	remediationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remedy",
			Name:      "remediations_total",
			Help:      "Total number of remediation attempts, partitioned by action and status.",
		},
		[]string{"action", "status"},
	)

	trackedIssues = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "remedy",
			Name:      "tracked_issues",
			Help:      "Number of currently open tracked issues.",
		},
	)
)

// Register attaches remedy collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		cyclesTotal,
		cycleDurationSeconds,
		remediationsTotal,
		trackedIssues,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCycle records the duration and outcome of one pipeline cycle.
func ObserveCycle(duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	cyclesTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	cycleDurationSeconds.Observe(duration.Seconds())
}

// ObserveRemediation counts one remediation attempt by its final status.
func ObserveRemediation(actionName string, status types.ExecStatus) {
	remediationsTotal.WithLabelValues(actionName, status.String()).Inc()
}

// SetTrackedIssues reports the current number of open issue records.
func SetTrackedIssues(n int) {
	trackedIssues.Set(float64(n))
}
