// Package metrics exposes Prometheus collectors for the analyzer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maastricht-university/audio-analyzer/models"
)

const namespace = "audio_analyzer"

type Metrics struct {
	reg *prometheus.Registry

	AnalysisRequests *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	AudioDuration    prometheus.Histogram
	ModelLoad        *prometheus.HistogramVec
	ModelLoadErrors  *prometheus.CounterVec
	BytesStreamed    prometheus.Counter
}

// New registers every collector on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		AnalysisRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_requests_total",
			Help:      "Analysis requests by outcome.",
		}, []string{"status"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),
		AudioDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audio_duration_seconds",
			Help:      "Duration of analysed audio.",
			Buckets:   []float64{5, 15, 30, 60, 120, 240, 480, 900, 1800},
		}),
		ModelLoad: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_load_seconds",
			Help:      "Time to make a model capability ready.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"capability"}),
		ModelLoadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_load_errors_total",
			Help:      "Failed model loads.",
		}, []string{"capability"}),
		BytesStreamed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_streamed_total",
			Help:      "Bytes written by the audio endpoint.",
		}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.AnalysisRequests,
		m.StageDuration,
		m.AudioDuration,
		m.ModelLoad,
		m.ModelLoadErrors,
		m.BytesStreamed,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveLoad matches models.Observer.
func (m *Metrics) ObserveLoad(c models.Capability, d time.Duration, err error) {
	if err != nil {
		m.ModelLoadErrors.WithLabelValues(string(c)).Inc()
		return
	}
	m.ModelLoad.WithLabelValues(string(c)).Observe(d.Seconds())
}

// ObserveStage records one pipeline stage run. Failed stages are not timed.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	if err != nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
