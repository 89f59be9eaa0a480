// Package metrics holds Prometheus instruments that are used across the
// resolver.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ushadow_resolutions_total",
			Help: "Configuration resolutions by platform scheme and outcome.",
		}, []string{"scheme", "outcome"})

	ScanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ushadow_scan_duration_seconds",
			Help:    "Wall time of infrastructure scans against a cluster.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"cluster"})

	ScanTimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ushadow_scan_timeouts_total",
			Help: "Infrastructure scans abandoned after their timeout.",
		}, []string{"cluster"})

	ScanCacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ushadow_scan_cache_entries",
			Help: "Number of cluster/namespace scan results currently cached.",
		})

	ScanCacheEvictTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ushadow_scan_cache_evict_total",
			Help: "Cumulative number of scan results evicted from the cache.",
		})

	OverrideWritesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ushadow_override_writes_total",
			Help: "Cumulative number of successful override writes.",
		})

	OverrideWriteErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ushadow_override_write_errors_total",
			Help: "Cumulative number of failed override writes.",
		})

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ushadow_http_requests_total",
			Help: "API requests by route pattern, method, and status code.",
		}, []string{"route", "method", "code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ushadow_http_request_duration_seconds",
			Help:    "API request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"})
)

func init() {
	prometheus.MustRegister(
		ResolutionsTotal,
		ScanDuration,
		ScanTimeoutsTotal,
		ScanCacheEntries,
		ScanCacheEvictTotal,
		OverrideWritesTotal,
		OverrideWriteErrorsTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}
