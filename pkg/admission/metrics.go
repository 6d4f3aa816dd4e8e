package admission

import (
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	cimetrics "github.com/cicoord/cicoord/pkg/metrics"
)

var (
	waitDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: cimetrics.Namespace,
		Subsystem: "gate",
		Name:      "wait_duration_seconds",
		Help:      "Time a run spent waiting for a slot, in seconds.",
		Buckets:   []float64{1, 10, 60, 300, 600, 1200, 1800, 3600, 7200, 14400},
	}, []string{cimetrics.LabelSuccess})

	rankGauge = prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
		Namespace: cimetrics.Namespace,
		Subsystem: "gate",
		Name:      "rank",
		Help:      "Position of the current run among in-progress runs at the last poll.",
	}, []string{})

	polls = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: cimetrics.Namespace,
		Subsystem: "gate",
		Name:      "polls_total",
		Help:      "Count of registry polls made while waiting, by resulting state.",
	}, []string{"state"})

	superseded = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: cimetrics.Namespace,
		Subsystem: "gate",
		Name:      "superseded_runs_total",
		Help:      "Count of older runs cancelled in favour of a newer one, by result.",
	}, []string{cimetrics.LabelOutcome})
)
