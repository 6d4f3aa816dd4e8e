package lock

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	cimetrics "github.com/cicoord/cicoord/pkg/metrics"
)

const (
	outcomeWon  = "won"
	outcomeLost = "lost"
	outcomeHeld = "held"
)

var (
	// Waits are dominated by the poll interval, which is minutes by
	// default, so buckets go out to hours.
	acquireDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: cimetrics.Namespace,
		Subsystem: "lock",
		Name:      "acquire_duration_seconds",
		Help:      "Duration of lock acquisition including waiting, in seconds.",
		Buckets:   []float64{1, 2, 5, 10, 30, 60, 300, 600, 1800, 3600, 10800},
	}, []string{cimetrics.LabelSuccess})

	attempts = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: cimetrics.Namespace,
		Subsystem: "lock",
		Name:      "attempts_total",
		Help:      "Count of acquire attempts, by outcome.",
	}, []string{cimetrics.LabelOutcome})
)
