// Package metrics exposes Prometheus collectors for the scraping pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RenderLatency tracks render-pool fetch duration per site.
	RenderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "render_fetch_duration_seconds",
		Help:    "Duration of render pool fetch calls",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"site"})

	// RenderErrorsTotal counts render failures per domain.
	RenderErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "render_errors_total",
		Help: "Total render pool errors by domain",
	}, []string{"domain"})

	// RenderCacheHitsTotal / RenderCacheMissesTotal track HTML cache efficacy.
	RenderCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "render_cache_hits_total",
		Help: "Total render pool HTML cache hits",
	})
	RenderCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "render_cache_misses_total",
		Help: "Total render pool HTML cache misses",
	})

	// ParseErrorsTotal counts adapter parse failures per site.
	ParseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parse_errors_total",
		Help: "Total adapter parse errors by site",
	}, []string{"site"})

	// ListingEmptyShare tracks the share of empty listing fetches per site.
	ListingEmptyShare = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "listing_empty_share",
		Help: "Rolling share of empty listing pages by site",
	}, []string{"site"})

	// DLQLength is the current length of each dead-letter stream.
	DLQLength = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "queue_dlq_length",
		Help: "Current dead-letter stream length",
	}, []string{"stream"})

	// TasksSkippedTotal counts orchestrator admission-gate rejections.
	TasksSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_tasks_skipped_total",
		Help: "Total tasks skipped by the admission gate",
	}, []string{"reason"})

	// BudgetExceededTotal counts budget-exhaustion events by budget type.
	BudgetExceededTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_budget_exceeded_total",
		Help: "Total budget-exceeded events by type",
	}, []string{"type"})

	// NotificationsSentTotal counts batched notifier sends.
	NotificationsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifier_messages_sent_total",
		Help: "Total notification messages sent",
	})
)
