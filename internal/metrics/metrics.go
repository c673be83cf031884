// Package metrics holds the Prometheus collectors of the recommender.
//
// Collectors are registered with the default registry on import and served
// by the HTTP server under /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecommendationsTotal counts recommendation requests by outcome (ok, empty, error).
	RecommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_recommendations_total",
			Help: "Total number of recommendation requests",
		},
		[]string{"outcome"},
	)

	// RecommendedItems tracks how many items a recommendation returned.
	RecommendedItems = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommender_recommended_items",
			Help:    "Number of items returned per recommendation",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	// SearchCacheTotal counts search cache lookups by result (hit, miss, error).
	SearchCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_search_cache_total",
			Help: "Total number of search cache lookups",
		},
		[]string{"result"},
	)

	// UpstreamRequestsTotal counts Discovery API calls by HTTP status,
	// "error" for transport failures and "rejected" for breaker rejections.
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_upstream_requests_total",
			Help: "Total number of requests to the event search API",
		},
		[]string{"status"},
	)

	// CatalogTasksTotal counts processed catalog persistence tasks by outcome.
	CatalogTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_catalog_tasks_total",
			Help: "Total number of catalog persistence tasks",
		},
		[]string{"outcome"},
	)
)
