package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/company-rag/internal/core/domain"
)

// Document outcomes of a successful processing run.
const (
	OutcomeIndexed   = "indexed"
	OutcomeEmpty     = "empty"
	OutcomeDuplicate = "duplicate"
)

// WorkerMetrics covers the ingestion worker: job latency and failures, plus
// what each document contributed to the index.
type WorkerMetrics struct {
	registry *prometheus.Registry

	jobsTotal     *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobsInFlight  prometheus.Gauge
	queueLag      prometheus.Histogram
	outcomes      *prometheus.CounterVec
	fragments     *prometheus.CounterVec
	fragmentsEach prometheus.Histogram
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}

	m := &WorkerMetrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "ingest",
			Name:        "jobs_total",
			Help:        "Document processing jobs by status (success, error).",
			ConstLabels: labels,
		}, []string{"status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "ingest",
			Name:        "job_duration_seconds",
			Help:        "Extraction, chunking, embedding and indexing time per document.",
			Buckets:     []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			ConstLabels: labels,
		}, []string{"status"}),
		jobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "ingest",
			Name:        "jobs_in_flight",
			Help:        "Documents currently being processed.",
			ConstLabels: labels,
		}),
		queueLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "ingest",
			Name:        "queue_lag_seconds",
			Help:        "Delay between upload and the start of processing.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: labels,
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "ingest",
			Name:        "documents_total",
			Help:        "Processed documents by outcome (indexed, empty, duplicate).",
			ConstLabels: labels,
		}, []string{"outcome"}),
		fragments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "ingest",
			Name:        "fragments_total",
			Help:        "Fragments produced by the chunker, split into indexed and duplicate.",
			ConstLabels: labels,
		}, []string{"kind"}),
		fragmentsEach: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "ingest",
			Name:        "fragments_per_document",
			Help:        "Fragments the chunker produced per document.",
			Buckets:     []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
			ConstLabels: labels,
		}),
	}
	registry.MustRegister(m.jobsTotal, m.jobDuration, m.jobsInFlight, m.queueLag, m.outcomes, m.fragments, m.fragmentsEach)
	return m
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartDocument() {
	m.jobsInFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(duration time.Duration, err error) {
	m.jobsInFlight.Dec()
	status := "success"
	if err != nil {
		status = "error"
	}
	m.jobsTotal.WithLabelValues(status).Inc()
	m.jobDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.Observe(lag.Seconds())
}

// ObserveProcessed implements ports.ProcessingObserver.
func (m *WorkerMetrics) ObserveProcessed(result domain.ProcessResult) {
	m.outcomes.WithLabelValues(processOutcome(result)).Inc()
	m.fragments.WithLabelValues(OutcomeIndexed).Add(float64(result.Indexed))
	m.fragments.WithLabelValues(OutcomeDuplicate).Add(float64(result.Duplicates))
	m.fragmentsEach.Observe(float64(result.Chunks))
}

func processOutcome(result domain.ProcessResult) string {
	switch {
	case result.Chunks == 0:
		return OutcomeEmpty
	case result.Indexed == 0:
		return OutcomeDuplicate
	default:
		return OutcomeIndexed
	}
}
