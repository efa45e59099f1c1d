// Package telemetry exposes job and model-call counters for Prometheus.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/loreguard/internal/model"
)

const namespace = "loreguard"

// Recorder receives pipeline events
type Recorder interface {
	JobStarted()
	JobFinished(status model.JobStatus, elapsed time.Duration)
	AnalysisCall(provider string, err error, elapsed time.Duration)
	NormalizerFallback()
	StoryTruncated()
}

// Nop discards every event
type Nop struct{}

func (Nop) JobStarted()                                {}
func (Nop) JobFinished(model.JobStatus, time.Duration) {}
func (Nop) AnalysisCall(string, error, time.Duration)  {}
func (Nop) NormalizerFallback()                        {}
func (Nop) StoryTruncated()                            {}

// Prometheus records events as Prometheus metrics
type Prometheus struct {
	jobsInFlight     prometheus.Gauge
	jobsTotal        *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	analysisCalls    *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	fallbacks        prometheus.Counter
	truncations      prometheus.Counter
}

// NewPrometheus registers the collectors with reg
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	factory := promauto.With(reg)

	return &Prometheus{
		jobsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Analysis jobs currently running.",
		}),
		jobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Finished analysis jobs by terminal status.",
		}, []string{"status"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of analysis jobs by terminal status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}, []string{"status"}),
		analysisCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_calls_total",
			Help:      "Calls to the external analysis service by provider and outcome.",
		}, []string{"provider", "outcome"}),
		analysisDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_call_duration_seconds",
			Help:      "Latency of calls to the external analysis service.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"provider"}),
		fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalizer_fallbacks_total",
			Help:      "Replies that could not be parsed and produced the fallback result.",
		}),
		truncations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "story_truncations_total",
			Help:      "Stories cut to the character limit before analysis.",
		}),
	}
}

func (p *Prometheus) JobStarted() {
	p.jobsInFlight.Inc()
}

func (p *Prometheus) JobFinished(status model.JobStatus, elapsed time.Duration) {
	p.jobsInFlight.Dec()
	p.jobsTotal.WithLabelValues(string(status)).Inc()
	p.jobDuration.WithLabelValues(string(status)).Observe(elapsed.Seconds())
}

// AnalysisCall counts one call; the outcome label is "ok" or the error kind
func (p *Prometheus) AnalysisCall(provider string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = string(model.KindOf(err))
	}
	p.analysisCalls.WithLabelValues(provider, outcome).Inc()
	p.analysisDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (p *Prometheus) NormalizerFallback() {
	p.fallbacks.Inc()
}

func (p *Prometheus) StoryTruncated() {
	p.truncations.Inc()
}

// Handler serves the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
