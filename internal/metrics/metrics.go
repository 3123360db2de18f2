// Package metrics provides Prometheus metrics for the transcription pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lecture_transcriber"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunsActive  prometheus.Gauge
	RunDuration *prometheus.HistogramVec

	// Chunk metrics
	ChunksExported prometheus.Counter
	ExportDuration prometheus.Histogram
	ArtifactBytes  prometheus.Histogram
	CheckpointHits prometheus.Counter
	SectionsMerged prometheus.Counter

	// Provider metrics
	ProviderRequests *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
	ProviderRetries  *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal  *prometheus.CounterVec
	KafkaPublishErrors *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics on the default registry.
// It must only be called once per process; use DefaultMetrics.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the metrics on reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by source kind and final status",
		}, []string{"kind", "status"}),
		RunsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Number of pipeline runs currently executing",
		}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of pipeline runs",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"kind"}),

		ChunksExported: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_exported_total",
			Help:      "Total number of audio chunks exported",
		}),
		ExportDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_export_seconds",
			Help:      "Time spent exporting one audio chunk",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		ArtifactBytes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_artifact_bytes",
			Help:      "Size of exported chunk artifacts in bytes",
			Buckets:   prometheus.ExponentialBuckets(256*1024, 2, 8),
		}),
		CheckpointHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_hits_total",
			Help:      "Sections restored from a checkpoint instead of re-transcribed",
		}),
		SectionsMerged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sections_merged_total",
			Help:      "Total number of sections folded into transcripts",
		}),

		ProviderRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Transcription provider calls by provider and outcome",
		}, []string{"provider", "outcome"}),
		ProviderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_seconds",
			Help:      "Transcription provider call latency",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"provider"}),
		ProviderRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_retries_total",
			Help:      "Retries issued after transient provider errors",
		}, []string{"provider"}),

		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
	}
}

// RecordRunStart records a run starting.
func (m *Metrics) RecordRunStart() {
	m.RunsActive.Inc()
}

// RecordRunEnd records a run finishing with the given status.
func (m *Metrics) RecordRunEnd(kind, status string, durationSeconds float64) {
	m.RunsActive.Dec()
	m.RunsTotal.WithLabelValues(kind, status).Inc()
	m.RunDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordChunkExported records one exported artifact.
func (m *Metrics) RecordChunkExported(bytes int64, seconds float64) {
	m.ChunksExported.Inc()
	m.ArtifactBytes.Observe(float64(bytes))
	m.ExportDuration.Observe(seconds)
}

// RecordCheckpointHit records a section restored from a checkpoint.
func (m *Metrics) RecordCheckpointHit() {
	m.CheckpointHits.Inc()
}

// RecordSectionsMerged records sections folded into a transcript.
func (m *Metrics) RecordSectionsMerged(n int) {
	m.SectionsMerged.Add(float64(n))
}

// RecordProviderCall records a provider request outcome and latency.
func (m *Metrics) RecordProviderCall(provider string, err error, latencySeconds float64) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.ProviderRequests.WithLabelValues(provider, outcome).Inc()
	m.ProviderLatency.WithLabelValues(provider).Observe(latencySeconds)
}

// RecordProviderRetry records a retry after a transient error.
func (m *Metrics) RecordProviderRetry(provider string) {
	m.ProviderRetries.WithLabelValues(provider).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
