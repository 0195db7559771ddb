package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panwatch_messages_ingested_total",
		Help: "The total number of ingested messages",
	}, []string{"channel"})

	MessagesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panwatch_messages_skipped_total",
		Help: "The total number of skipped messages by reason",
	}, []string{"reason"})

	IngestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panwatch_ingest_errors_total",
		Help: "The total number of ingestion errors by stage",
	}, []string{"stage"})

	ReaderFloodWaitSecondsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panwatch_reader_flood_wait_seconds_total",
		Help: "Total time in seconds spent waiting for Telegram flood control",
	}, []string{"channel"})

	ReaderFetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panwatch_reader_fetch_requests_total",
		Help: "Total number of history fetch requests to Telegram",
	}, []string{"channel", "status"})

	DedupRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panwatch_dedup_runs_total",
		Help: "Total number of dedup runs by mode",
	}, []string{"mode"})

	DedupDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "panwatch_dedup_deleted_total",
		Help: "Total number of duplicate messages deleted",
	})

	DedupRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "panwatch_dedup_run_duration_seconds",
		Help:    "Duration in seconds of one dedup run",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
	})

	LinksChecked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panwatch_links_checked_total",
		Help: "Total number of probed share links by provider and outcome",
	}, []string{"provider", "reason"})

	LinkCheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "panwatch_link_check_duration_seconds",
		Help:    "Duration in seconds of one validation task",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
	})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "panwatch_api_request_duration_seconds",
		Help:    "Duration of REST API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
