// Package metrics exposes process-wide Prometheus counters,
// histograms, and gauges via promauto, grounded in the
// withObsrvr-ttp-processor-demo contract-data-processor's
// prometheus_metrics.go, which registers its own counters/histograms/
// gauges the same way and serves them at an HTTP handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IngestRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crashkeep_ingest_requests_total",
		Help: "Total ingest requests by endpoint and result status.",
	}, []string{"endpoint", "status"})

	IngestBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crashkeep_ingest_bytes_total",
		Help: "Total compressed bytes accepted by ingest.",
	})

	IngestLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crashkeep_ingest_latency_seconds",
		Help:    "Ingest request handling latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	RateLimitRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crashkeep_rate_limit_rejections_total",
		Help: "Total requests rejected by the rate limiter, by tier.",
	}, []string{"tier"})

	QueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crashkeep_queue_depth",
		Help: "Number of archives currently pending digest.",
	})

	QueueErrorDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crashkeep_queue_error_depth",
		Help: "Number of archives currently quarantined in queue_error.",
	})

	DigestBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crashkeep_digest_batches_total",
		Help: "Total digest worker ticks that claimed at least one archive.",
	})

	DigestArchivesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crashkeep_digest_archives_total",
		Help: "Total archives digested, by outcome.",
	}, []string{"outcome"})

	DigestDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crashkeep_digest_duration_seconds",
		Help:    "Time taken to digest a single archive.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	AnalyticsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crashkeep_analytics_dropped_total",
		Help: "Total analytics events dropped because the channel was full.",
	})
)
