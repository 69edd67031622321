package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "localscribe"

// Metrics holds the Prometheus collectors for runs, stages and the HTTP API.
type Metrics struct {
	Registry *prometheus.Registry

	RunsTotal           *prometheus.CounterVec
	RunDuration         prometheus.Histogram
	AudioDuration       prometheus.Histogram
	StageTransitions    *prometheus.CounterVec
	StageDuration       *prometheus.HistogramVec
	ModelLoads          *prometheus.CounterVec
	ScratchFilesSwept   prometheus.Counter
	RunsRejected        prometheus.Counter
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers every collector on a fresh registry, so tests can build isolated instances.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished transcription runs by outcome",
		}, []string{"status", "engine"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock time from receiving a file to a terminal stage",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 12),
		}),
		AudioDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audio_duration_seconds",
			Help:      "Duration of normalized audio handed to the engine",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		StageTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_transitions_total",
			Help:      "Stage transitions published by the orchestrator",
		}, []string{"stage"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each working stage",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"stage"}),
		ModelLoads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_loads_total",
			Help:      "Model load requests by variant and whether the resident model was reused",
		}, []string{"variant", "result"}),
		ScratchFilesSwept: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scratch_files_swept_total",
			Help:      "Stale scratch files removed by the retention sweep",
		}),
		RunsRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_rejected_total",
			Help:      "Runs rejected because another transcription was in flight",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, endpoint and status code",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

func (m *Metrics) RecordStage(stage string) {
	m.StageTransitions.WithLabelValues(stage).Inc()
}

func (m *Metrics) ObserveStage(stage string, seconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
}

func (m *Metrics) RecordRun(status, engine string, seconds, audioSeconds float64) {
	m.RunsTotal.WithLabelValues(status, engine).Inc()
	m.RunDuration.Observe(seconds)
	if audioSeconds > 0 {
		m.AudioDuration.Observe(audioSeconds)
	}
}

func (m *Metrics) RecordModelLoad(variant string, reused bool) {
	result := "loaded"
	if reused {
		result = "reused"
	}
	m.ModelLoads.WithLabelValues(variant, result).Inc()
}

func (m *Metrics) RecordSwept(n int) {
	if n > 0 {
		m.ScratchFilesSwept.Add(float64(n))
	}
}

func (m *Metrics) RecordRejected() {
	m.RunsRejected.Inc()
}

func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, seconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(seconds)
}
