// Package metrics provides Prometheus metrics for the catalog discovery
// backend. Scrape these at /metrics for Grafana dashboards and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ohara_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Scrape Run Metrics
	ScrapeRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ohara_scrape_runs_total",
			Help: "Total number of scrape runs",
		},
		[]string{"result"}, // "completed" or "aborted"
	)

	ScrapeRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ohara_scrape_run_duration_seconds",
			Help:    "Wall-clock duration of a full scrape run",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		},
	)

	ScrapeEventsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ohara_scrape_events_processed_total",
			Help: "Events that completed the pipeline across all runs",
		},
	)

	ScrapeEventErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ohara_scrape_event_errors_total",
			Help: "Per-event pipeline failures by stage",
		},
		[]string{"stage"},
	)

	ScrapeSetsLinked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ohara_scrape_sets_linked_total",
			Help: "Event-set links created from matched candidates",
		},
	)

	ScrapeMissingSetsQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ohara_scrape_missing_sets_queued_total",
			Help: "Unmatched set candidates queued for review",
		},
	)

	ScrapeMissingCardsQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ohara_scrape_missing_cards_queued_total",
			Help: "Unmatched card candidates queued for review",
		},
	)

	MatcherLowConfidenceTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ohara_matcher_low_confidence_total",
			Help: "Set matches accepted with a materially close runner-up",
		},
	)

	// Marketplace Metrics
	MarketplaceRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ohara_marketplace_requests_total",
			Help: "Total number of marketplace API requests made",
		},
	)

	MarketplaceQuotaRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ohara_marketplace_quota_remaining",
			Help: "Remaining marketplace API requests for today",
		},
	)

	MarketplaceMatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ohara_marketplace_matches_total",
			Help: "Product match attempts by outcome",
		},
		[]string{"outcome"}, // "matched" or "unmatched"
	)
)
