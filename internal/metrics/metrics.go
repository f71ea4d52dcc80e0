// Package metrics exposes Prometheus counters and gauges for the signal
// pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder wraps the pipeline's Prometheus instruments. promauto registers
// everything on the default registry, so construct it exactly once.
type Recorder struct {
	signalsTotal    *prometheus.CounterVec
	unitOutcomes    *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	cyclesTotal     prometheus.Counter
	confluence      *prometheus.GaugeVec
	indicatorWeight *prometheus.GaugeVec
	feedbackTotal   *prometheus.CounterVec
}

// New creates the pipeline metrics recorder.
func New() *Recorder {
	return &Recorder{
		signalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_pipeline_signals_total",
				Help: "Signals produced, by symbol, timeframe and direction",
			},
			[]string{"symbol", "timeframe", "direction"},
		),
		unitOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_pipeline_unit_outcomes_total",
				Help: "Per-unit cycle outcomes by terminal state",
			},
			[]string{"state"},
		),
		cycleDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "signal_pipeline_cycle_duration_seconds",
				Help:    "Duration of full synthesis cycles",
				Buckets: prometheus.DefBuckets,
			},
		),
		cyclesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "signal_pipeline_cycles_total",
				Help: "Completed synthesis cycles",
			},
		),
		confluence: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signal_pipeline_confluence_score",
				Help: "Latest confluence score per symbol and timeframe",
			},
			[]string{"symbol", "timeframe"},
		),
		indicatorWeight: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signal_pipeline_indicator_weight",
				Help: "Current adaptive weight per indicator",
			},
			[]string{"indicator"},
		),
		feedbackTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_pipeline_feedback_total",
				Help: "Trade outcomes recorded, by indicator",
			},
			[]string{"indicator"},
		),
	}
}

// RecordSignal records one produced signal and its confluence score.
func (r *Recorder) RecordSignal(symbol, timeframe, direction string, confluenceScore float64) {
	r.signalsTotal.WithLabelValues(symbol, timeframe, direction).Inc()
	r.confluence.WithLabelValues(symbol, timeframe).Set(confluenceScore)
}

// RecordUnitOutcome records a unit's terminal state for the cycle.
func (r *Recorder) RecordUnitOutcome(state string) {
	r.unitOutcomes.WithLabelValues(state).Inc()
}

// RecordCycle records a completed cycle and its duration.
func (r *Recorder) RecordCycle(d time.Duration) {
	r.cyclesTotal.Inc()
	r.cycleDuration.Observe(d.Seconds())
}

// RecordWeights publishes the current adaptive weights.
func (r *Recorder) RecordWeights(weights map[string]float64) {
	for name, w := range weights {
		r.indicatorWeight.WithLabelValues(name).Set(w)
	}
}

// RecordFeedback records one trade outcome attribution.
func (r *Recorder) RecordFeedback(indicator string) {
	r.feedbackTotal.WithLabelValues(indicator).Inc()
}
