// Package metrics keeps prometheus collectors of the fetch scheduler, response cache and rate limiter.
// Collectors are registered with the default registry, exposed by the server on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spacefeed_fetch_cycles_total",
		Help: "Fetch-and-store cycles by feed and result",
	}, []string{"feed", "status"})

	fetchRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spacefeed_fetch_records_total",
		Help: "Records written by successful fetch cycles",
	}, []string{"feed"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spacefeed_fetch_duration_seconds",
		Help:    "Duration of fetch-and-store cycles",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"feed"})

	cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spacefeed_cache_requests_total",
		Help: "Response cache lookups by result",
	}, []string{"result"})

	rateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spacefeed_ratelimit_decisions_total",
		Help: "Rate limiter decisions by route and result",
	}, []string{"route", "result"})

	httpResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spacefeed_http_responses_total",
		Help: "HTTP responses by route and status code",
	}, []string{"route", "code"})
)

// rate limiter results
const (
	ResultAllowed  = "allowed"
	ResultDenied   = "denied"
	ResultFailOpen = "failopen"
)

// FetchCycle records a finished fetch cycle of the feed
func FetchCycle(feed, status string, records int, took time.Duration) {
	fetchCycles.WithLabelValues(feed, status).Inc()
	fetchDuration.WithLabelValues(feed).Observe(took.Seconds())
	if records > 0 {
		fetchRecords.WithLabelValues(feed).Add(float64(records))
	}
}

// CacheLookup records a response cache hit or miss
func CacheLookup(hit bool) {
	if hit {
		cacheRequests.WithLabelValues("hit").Inc()
		return
	}
	cacheRequests.WithLabelValues("miss").Inc()
}

// RateDecision records a rate limiter decision for the route
func RateDecision(route, result string) {
	rateDecisions.WithLabelValues(route, result).Inc()
}

// HTTPResponse records a response status of the route
func HTTPResponse(route string, code int) {
	httpResponses.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
