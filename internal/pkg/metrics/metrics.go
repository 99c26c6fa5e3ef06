// Package metrics defines the prometheus instrumentation for the pipeline,
// alert delivery and the learning loop. InitMetrics must be called once at
// process start before any collector is used.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ItemsScrapedTotal counts raw listings fetched, per source.
	ItemsScrapedTotal *prometheus.CounterVec

	// ScrapeErrorsTotal counts failed scrape requests, per source.
	ScrapeErrorsTotal *prometheus.CounterVec

	// ItemsUpsertedTotal counts canonical items written to the store.
	ItemsUpsertedTotal prometheus.Counter

	// ListingsSkippedTotal counts listings dropped before normalization,
	// by reason (duplicate, malformed).
	ListingsSkippedTotal *prometheus.CounterVec

	// MatchesFoundTotal counts (item, intent) pairs at or above threshold.
	MatchesFoundTotal prometheus.Counter

	// AlertsCreatedTotal counts newly created alert rows.
	AlertsCreatedTotal prometheus.Counter

	// AlertsSentTotal counts alert emails delivered.
	AlertsSentTotal prometheus.Counter

	// AlertSendErrorsTotal counts alert dispatch failures.
	AlertSendErrorsTotal prometheus.Counter

	// ClicksRecordedTotal counts tracked alert clicks.
	ClicksRecordedTotal prometheus.Counter

	// OutcomesResolvedTotal counts sweep transitions, per final outcome.
	OutcomesResolvedTotal *prometheus.CounterVec

	// ParamAdjustmentsTotal counts learning-loop parameter changes, per
	// parameter and direction (raise / lower / revert).
	ParamAdjustmentsTotal *prometheus.CounterVec

	// PipelineRunSeconds records the duration of full pipeline passes.
	PipelineRunSeconds prometheus.Histogram

	// QueueDepth is the current number of pending jobs in the worker queue.
	QueueDepth prometheus.Gauge
)

var initOnce sync.Once

// InitMetrics registers all collectors with the default registry. Calling
// it more than once is a no-op.
func InitMetrics() {
	initOnce.Do(initMetrics)
}

func initMetrics() {
	ItemsScrapedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_items_scraped_total",
		Help: "Raw listings fetched from a source.",
	}, []string{"source"})

	ScrapeErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_scrape_errors_total",
		Help: "Scrape request failures.",
	}, []string{"source"})

	ItemsUpsertedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auction_items_upserted_total",
		Help: "Canonical items written to the store.",
	})

	ListingsSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_listings_skipped_total",
		Help: "Listings dropped before normalization.",
	}, []string{"reason"})

	MatchesFoundTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auction_matches_found_total",
		Help: "Item/intent pairs scoring at or above threshold.",
	})

	AlertsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auction_alerts_created_total",
		Help: "Alert rows created.",
	})

	AlertsSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auction_alerts_sent_total",
		Help: "Alert emails delivered.",
	})

	AlertSendErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auction_alert_send_errors_total",
		Help: "Alert dispatch failures.",
	})

	ClicksRecordedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auction_clicks_recorded_total",
		Help: "Tracked alert clicks.",
	})

	OutcomesResolvedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_outcomes_resolved_total",
		Help: "Alert outcome transitions applied by the sweep.",
	}, []string{"outcome"})

	ParamAdjustmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_param_adjustments_total",
		Help: "Learning parameter changes.",
	}, []string{"param", "direction"})

	PipelineRunSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "auction_pipeline_run_seconds",
		Help:    "Duration of full pipeline passes.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "auction_queue_depth",
		Help: "Pending jobs in the worker queue.",
	})

	prometheus.MustRegister(
		ItemsScrapedTotal,
		ScrapeErrorsTotal,
		ItemsUpsertedTotal,
		ListingsSkippedTotal,
		MatchesFoundTotal,
		AlertsCreatedTotal,
		AlertsSentTotal,
		AlertSendErrorsTotal,
		ClicksRecordedTotal,
		OutcomesResolvedTotal,
		ParamAdjustmentsTotal,
		PipelineRunSeconds,
		QueueDepth,
	)
}
