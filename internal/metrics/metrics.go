package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shintothemars/tft-bbri/internal/forecast"
	"github.com/shintothemars/tft-bbri/internal/market"
)

const namespace = "tftbbri"

var durationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}

// Recorder exposes pipeline, provider and HTTP metrics.
type Recorder struct {
	PredictionsTotal   *prometheus.CounterVec
	PredictionDuration *prometheus.HistogramVec
	StageDuration      *prometheus.HistogramVec
	DegradedTotal      *prometheus.CounterVec

	ProviderAttempts *prometheus.CounterVec
	FallbacksTotal   *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	NotificationsTotal *prometheus.CounterVec
}

// New registers all collectors with reg, or the default registerer when nil.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		PredictionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "predictions_total",
			Help:      "Predictions by outcome (nominal, degraded, rejected, error).",
		}, []string{"outcome"}),
		PredictionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "prediction_duration_seconds",
			Help:      "End-to-end prediction latency.",
			Buckets:   durationBuckets,
		}, []string{"outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   durationBuckets,
		}, []string{"stage"}),
		DegradedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "degraded_total",
			Help:      "Predictions served in degraded mode by reason.",
		}, []string{"reason"}),
		ProviderAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "provider_attempts_total",
			Help:      "Market data provider attempts by outcome.",
		}, []string{"provider", "outcome"}),
		FallbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "synthetic_fallbacks_total",
			Help:      "Fetches answered with synthetic bars after the retry budget.",
		}, []string{"provider"}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   durationBuckets,
		}, []string{"method", "route"}),
		NotificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "notifications_total",
			Help:      "Forecast notifications by result.",
		}, []string{"result"}),
	}
}

// ObserveStage records the duration of a pipeline stage.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	r.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObservePrediction records a finished prediction.
func (r *Recorder) ObservePrediction(outcome string, d time.Duration) {
	r.PredictionsTotal.WithLabelValues(outcome).Inc()
	r.PredictionDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveDegraded counts a degradation reason.
func (r *Recorder) ObserveDegraded(reason string) {
	r.DegradedTotal.WithLabelValues(reason).Inc()
}

// ObserveFetchAttempt counts one provider attempt.
func (r *Recorder) ObserveFetchAttempt(provider string, err error) {
	r.ProviderAttempts.WithLabelValues(provider, attemptOutcome(err)).Inc()
}

// ObserveFallback counts a synthetic substitution.
func (r *Recorder) ObserveFallback(provider string) {
	r.FallbacksTotal.WithLabelValues(provider).Inc()
}

// ObserveHTTP records one served request.
func (r *Recorder) ObserveHTTP(method, route, status string, d time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveNotification counts a watch notification attempt.
func (r *Recorder) ObserveNotification(err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	r.NotificationsTotal.WithLabelValues(result).Inc()
}

func attemptOutcome(err error) string {
	var emptyErr *market.EmptyResultError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &emptyErr):
		return "empty"
	default:
		return "error"
	}
}

var (
	_ market.AttemptObserver = (*Recorder)(nil)
	_ forecast.Recorder      = (*Recorder)(nil)
)
