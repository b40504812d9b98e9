// Package metrics exports experiment progress as Prometheus metrics.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.New(reg, meta, r)
//	exp := numguess.New(client, numguess.WithTrialHook(m.Hook()))
//	http.Handle("/metrics", metrics.Handler(reg))
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/m-mizutani/numguess"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one experiment run.
type Metrics struct {
	// TrialsTotal counts finished trials.
	// Labels: provider, model, outcome (matched|no_match_after_full_sequence|malformed_response|conversation_failure)
	TrialsTotal *prometheus.CounterVec

	// MatchPosition observes the 1-based guess index of matched trials.
	// Labels: provider, model
	// Buckets: one per guess index of the range
	MatchPosition *prometheus.HistogramVec

	// MatchesByPosition counts matched trials per guess index, the raw histogram of the experiment.
	// Labels: provider, model, position
	MatchesByPosition *prometheus.CounterVec

	// TrialDuration measures trial wall time in seconds.
	// Labels: provider, model
	// Buckets: 0.5s, 1s, 2s, 5s, 10s, 30s, 60s, 120s, 300s
	TrialDuration *prometheus.HistogramVec

	// ModelTurnsTotal counts replies received from the model, including setup and correction turns.
	// Labels: provider, model
	ModelTurnsTotal *prometheus.CounterVec

	provider string
	model    string
}

const outcomeMatched = "matched"

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer, meta numguess.Metadata, r numguess.Range) *Metrics {
	factory := promauto.With(reg)
	size := r.Size()
	if size < 1 {
		size = 1
	}

	return &Metrics{
		TrialsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numguess_trials_total",
				Help: "Total number of finished trials by outcome",
			},
			[]string{"provider", "model", "outcome"},
		),

		MatchPosition: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "numguess_match_position",
				Help:    "Guess index at which the model reported a match",
				Buckets: prometheus.LinearBuckets(1, 1, size),
			},
			[]string{"provider", "model"},
		),

		MatchesByPosition: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numguess_matches_total",
				Help: "Total number of matched trials by guess index",
			},
			[]string{"provider", "model", "position"},
		),

		TrialDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "numguess_trial_duration_seconds",
				Help:    "Duration of trials in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"provider", "model"},
		),

		ModelTurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numguess_model_turns_total",
				Help: "Total number of replies received from the model",
			},
			[]string{"provider", "model"},
		),

		provider: meta.Provider,
		model:    meta.Model,
	}
}

// Observe records one finished trial.
func (m *Metrics) Observe(report *numguess.TrialReport) {
	outcome := outcomeMatched
	if !report.Outcome.IsMatched() {
		outcome = string(report.Outcome.Anomaly)
	}
	m.TrialsTotal.WithLabelValues(m.provider, m.model, outcome).Inc()
	m.TrialDuration.WithLabelValues(m.provider, m.model).Observe(report.Duration.Seconds())

	if report.Outcome.IsMatched() {
		m.MatchPosition.WithLabelValues(m.provider, m.model).Observe(float64(report.Outcome.GuessIndex))
		m.MatchesByPosition.WithLabelValues(m.provider, m.model, strconv.Itoa(report.Outcome.GuessIndex)).Inc()
	}

	if report.Conversation != nil {
		replies := 0
		for _, msg := range report.Conversation.Transcript {
			if msg.Role == numguess.RoleAssistant {
				replies++
			}
		}
		m.ModelTurnsTotal.WithLabelValues(m.provider, m.model).Add(float64(replies))
	}
}

// Hook returns a numguess.TrialHook feeding m.
func (m *Metrics) Hook() numguess.TrialHook {
	return func(ctx context.Context, report *numguess.TrialReport) {
		m.Observe(report)
	}
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
