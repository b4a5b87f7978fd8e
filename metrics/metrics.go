// Package metrics exposes the optimizer's running state as Prometheus
// gauges and counters, in the same promauto top-level-var style the
// pogo server package uses for its own HTTP/OCR metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lambda = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mdso_optimizer_lambda",
			Help: "Current Levenberg-Marquardt damping factor of the active optimization window.",
		},
	)

	energy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mdso_optimizer_energy",
			Help: "Total robust photometric energy of the active optimization window.",
		},
	)

	stepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdso_optimizer_steps_total",
			Help: "Total number of Levenberg-Marquardt trial steps, by outcome.",
		},
		[]string{"outcome"}, // outcome: accepted, rejected
	)
)

// ObserveLambda records the step controller's damping factor after a trial
// step.
func ObserveLambda(v float64) {
	lambda.Set(v)
}

// ObserveEnergy records the window's total energy after a trial step.
func ObserveEnergy(v float64) {
	energy.Set(v)
}

// ObserveStep increments the accepted or rejected step counter.
func ObserveStep(accepted bool) {
	if accepted {
		stepsTotal.WithLabelValues("accepted").Inc()
		return
	}
	stepsTotal.WithLabelValues("rejected").Inc()
}
