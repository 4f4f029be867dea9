package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "partsearch",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "partsearch",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10},
	}, []string{"method", "path"})

	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "partsearch",
		Name:      "provider_requests_total",
		Help:      "Provider task attempts by provider and outcome (ok, error, timeout, panic).",
	}, []string{"provider", "status"})

	ProviderRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "partsearch",
		Name:      "provider_request_duration_seconds",
		Help:      "Provider task duration in seconds, normalization included.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 6, 8, 10},
	}, []string{"provider"})

	ProviderRows = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "partsearch",
		Name:      "provider_rows",
		Help:      "Canonical rows produced per successful provider task.",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
	}, []string{"provider"})

	OrchestrationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "partsearch",
		Name:      "orchestration_duration_seconds",
		Help:      "End-to-end duration of one multi-provider search.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 8, 10, 15},
	})

	DedupCollapsedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "partsearch",
		Name:      "dedup_collapsed_rows_total",
		Help:      "Rows dropped because another row for the same part won.",
	})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "partsearch",
		Name:      "cache_hits_total",
		Help:      "Total number of search cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "partsearch",
		Name:      "cache_misses_total",
		Help:      "Total number of search cache misses.",
	})

	CurrencyMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "partsearch",
		Name:      "currency_conversion_misses_total",
		Help:      "Prices that could not be converted to RUB, by source currency.",
	}, []string{"currency"})

	CurrencyRatesUpdated = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "partsearch",
		Name:      "currency_rates_updated_timestamp_seconds",
		Help:      "Unix time of the last successful exchange rate refresh.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ProviderRequestsTotal,
		ProviderRequestDuration,
		ProviderRows,
		OrchestrationDuration,
		DedupCollapsedTotal,
		CacheHitsTotal,
		CacheMissesTotal,
		CurrencyMissesTotal,
		CurrencyRatesUpdated,
	)
}
