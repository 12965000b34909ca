package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/floradistro/pos-checkout/internal/domain"
)

var (
	commitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_commits_total",
			Help: "Total number of checkout commit attempts by outcome",
		},
		[]string{"outcome"},
	)

	commitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "checkout_commit_duration_seconds",
			Help:    "Checkout commit duration in seconds by outcome",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 90},
		},
		[]string{"outcome"},
	)

	stageTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_stage_transitions_total",
			Help: "Total number of payment state machine transitions",
		},
		[]string{"from", "to"},
	)

	currentStage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "checkout_current_stage",
			Help: "Current payment state machine stage (1 for the active stage, 0 otherwise)",
		},
		[]string{"stage"},
	)
)

func recordCommit(outcome string, elapsed time.Duration) {
	commitsTotal.WithLabelValues(outcome).Inc()
	commitDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func recordStageTransition(from, to domain.Stage) {
	stageTransitions.WithLabelValues(from.String(), to.String()).Inc()
	setCurrentStage(from, to)
}

func setCurrentStage(from, to domain.Stage) {
	currentStage.WithLabelValues(from.String()).Set(0)
	currentStage.WithLabelValues(to.String()).Set(1)
}
