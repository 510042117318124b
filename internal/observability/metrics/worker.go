package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	stageRunsTotal  *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	stageInFlight   *prometheus.GaugeVec
	stageItemsTotal *prometheus.CounterVec
	queueLag        *prometheus.HistogramVec
	embedBatchSize  *prometheus.HistogramVec
	visualJobsTotal *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	stageRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docingest",
			Subsystem: "pipeline",
			Name:      "stage_runs_total",
			Help:      "Total stage executions by stage and outcome.",
		},
		[]string{"service", "stage", "status"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docingest",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Stage execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage"},
	)
	stageInFlight := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "docingest",
			Subsystem: "pipeline",
			Name:      "stage_in_flight",
			Help:      "Number of in-flight stage executions.",
		},
		[]string{"service", "stage"},
	)
	stageItemsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docingest",
			Subsystem: "pipeline",
			Name:      "stage_items_total",
			Help:      "Total items handled per stage by outcome.",
		},
		[]string{"service", "stage", "status"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docingest",
			Subsystem: "pipeline",
			Name:      "queue_lag_seconds",
			Help:      "Delay between item creation and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "stage"},
	)
	embedBatchSize := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docingest",
			Subsystem: "pipeline",
			Name:      "embed_batch_size",
			Help:      "Distribution of chunk counts per embedding run.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200},
		},
		[]string{"service"},
	)
	visualJobsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docingest",
			Subsystem: "pipeline",
			Name:      "visual_jobs_total",
			Help:      "Total visual enrichment jobs by outcome.",
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(
		stageRunsTotal,
		stageDuration,
		stageInFlight,
		stageItemsTotal,
		queueLag,
		embedBatchSize,
		visualJobsTotal,
	)

	return &WorkerMetrics{
		registry:        registry,
		stageRunsTotal:  stageRunsTotal,
		stageDuration:   stageDuration,
		stageInFlight:   stageInFlight,
		stageItemsTotal: stageItemsTotal,
		queueLag:        queueLag,
		embedBatchSize:  embedBatchSize,
		visualJobsTotal: visualJobsTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartStage(service, stage string) {
	m.stageInFlight.WithLabelValues(service, stage).Inc()
}

func (m *WorkerMetrics) FinishStage(service, stage string, duration time.Duration, err error) {
	m.stageInFlight.WithLabelValues(service, stage).Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.stageRunsTotal.WithLabelValues(service, stage, status).Inc()
	m.stageDuration.WithLabelValues(service, stage).Observe(duration.Seconds())
}

func (m *WorkerMetrics) RecordStageItems(service, stage string, processed, failed int) {
	if processed > 0 {
		m.stageItemsTotal.WithLabelValues(service, stage, "success").Add(float64(processed))
	}
	if failed > 0 {
		m.stageItemsTotal.WithLabelValues(service, stage, "error").Add(float64(failed))
	}
}

func (m *WorkerMetrics) ObserveQueueLag(service, stage string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service, stage).Observe(lag.Seconds())
}

func (m *WorkerMetrics) ObserveEmbedBatch(service string, size int) {
	if size <= 0 {
		return
	}
	m.embedBatchSize.WithLabelValues(service).Observe(float64(size))
}

func (m *WorkerMetrics) RecordVisualJobs(service string, completed, failed int) {
	if completed > 0 {
		m.visualJobsTotal.WithLabelValues(service, "success").Add(float64(completed))
	}
	if failed > 0 {
		m.visualJobsTotal.WithLabelValues(service, "error").Add(float64(failed))
	}
}
