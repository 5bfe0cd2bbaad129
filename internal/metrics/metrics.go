package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FetchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spider_fetch_requests_total",
		Help: "Provider requests by outcome",
	}, []string{"provider", "status"})

	FetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spider_fetch_latency_seconds",
		Help:    "Latency of provider requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	RowsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spider_rows_processed_total",
		Help: "Rows passing through each pipeline stage",
	}, []string{"stage"})

	Anomalies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spider_price_anomalies_total",
		Help: "Rows breaking the low <= open, close <= high ordering",
	}, []string{"key"})

	UploadRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spider_upload_rows_total",
		Help: "Rows written to each sink",
	}, []string{"sink", "table"})

	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spider_pipeline_runs_total",
		Help: "Pipeline executions by outcome",
	}, []string{"pipeline", "status"})
)
