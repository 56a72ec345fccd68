package analyticscache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "analytics_cache_hits_total",
	Help: "Number of analytics cache lookups served from the cache",
}, []string{"query_type"})

var cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "analytics_cache_misses_total",
	Help: "Number of analytics cache lookups that found no usable entry",
}, []string{"query_type"})

var cacheStale = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "analytics_cache_stale_total",
	Help: "Number of stored analytics entries skipped because they expired or their schema changed",
}, []string{"query_type"})

var cacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "analytics_cache_errors_total",
	Help: "Number of failed analytics cache backend operations",
}, []string{"op"})

var cacheRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "analytics_cache_removed_total",
	Help: "Number of analytics cache entries removed by purges and sweeps",
}, []string{"reason"})
