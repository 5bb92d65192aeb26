package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Total number of inbox notifications written",
	}, []string{"kind"})

	SubscriptionsCleanedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_subscriptions_cleaned_total",
		Help: "Total number of subscriptions deleted because their product is gone",
	})

	LowStockAlertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "low_stock_alerts_total",
		Help: "Total number of low stock alerts raised",
	})

	PurchaseOrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "purchase_orders_created_total",
		Help: "Total number of auto-generated purchase orders",
	})

	ReceiptsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "purchase_order_receipts_applied_total",
		Help: "Total number of received purchase orders applied to inventory",
	}, []string{"target"})

	SweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_runs_total",
		Help: "Total number of sweep runs",
	}, []string{"sweep", "outcome"})

	SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sweep_duration_seconds",
		Help:    "Duration of sweep runs",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	}, []string{"sweep"})

	SweepRecordFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_record_failures_total",
		Help: "Total number of records a sweep failed to process",
	}, []string{"sweep"})

	BatchChunksCommittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batch_chunks_committed_total",
		Help: "Total number of batch chunks committed to the database",
	})

	BatchGroupsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batch_groups_skipped_total",
		Help: "Total number of batch groups skipped because a guard no longer held",
	}, []string{"source"})

	EventsHandledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "change_events_handled_total",
		Help: "Total number of document change events handled",
	}, []string{"event_type", "outcome"})

	EventRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "change_event_retries_total",
		Help: "Total number of failed change event deliveries retried in place",
	}, []string{"topic"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
