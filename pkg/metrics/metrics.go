// Package metrics holds the Prometheus collectors of the report view engine.
// Collectors work unregistered; Register exposes them on the default registry.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "citizen_reports"

var (
	Fetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "view",
			Name:      "fetches_total",
			Help:      "Report list fetches by outcome",
		},
		[]string{"outcome"},
	)

	FetchReruns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "view",
			Name:      "fetch_reruns_total",
			Help:      "Fetch requests queued behind an in-flight fetch",
		},
	)

	FetchesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "view",
			Name:      "fetches_in_flight",
			Help:      "Report list fetches currently running",
		},
	)

	FetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "view",
			Name:      "fetch_duration_seconds",
			Help:      "Report list fetch duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	Events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "view",
			Name:      "events_total",
			Help:      "Push events applied to views by topic and outcome",
		},
		[]string{"topic", "outcome"},
	)

	ActiveViews = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "view",
			Name:      "active",
			Help:      "Open report views",
		},
	)

	Deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "deliveries_total",
			Help:      "Broker deliveries received by routing key and result",
		},
		[]string{"topic", "result"},
	)

	CacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leaderboard",
			Name:      "cache_requests_total",
			Help:      "Leaderboard cache lookups by scope and result",
		},
		[]string{"scope", "result"},
	)

	ActiveShiftCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "shift",
			Name:      "active_schedules",
			Help:      "Staffed duty schedules in the current shift band",
		},
	)
)

// HTTP collectors keep the unprefixed names the dashboards already query.
var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by method, path, and status code",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsInProgress = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_progress",
			Help: "Current number of HTTP requests being processed",
		},
	)

	started = time.Now()

	serviceUptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "service_uptime_seconds",
			Help: "Service uptime in seconds",
		},
		func() float64 { return time.Since(started).Seconds() },
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			Fetches,
			FetchReruns,
			FetchesInFlight,
			FetchDuration,
			Events,
			ActiveViews,
			Deliveries,
			CacheRequests,
			ActiveShiftCount,
			HTTPRequests,
			HTTPRequestDuration,
			HTTPRequestsInProgress,
			serviceUptime,
		)
	})
}
