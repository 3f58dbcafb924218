// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "envelope"

// Ledger mutations by operation and result.
var LedgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "operations_total",
	Help:      "Ledger mutations by operation and result.",
}, []string{"operation", "result"})

var ToBeBudgeted = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "to_be_budgeted_milliunits",
	Help:      "To-be-budgeted amount of the latest month.",
}, []string{"budget"})

var AgeOfMoneyDays = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "age_of_money_days",
	Help:      "Age of money at the end of the latest month.",
}, []string{"budget"})

// Report cache effectiveness.
var ReportCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "reports",
	Name:      "cache_lookups_total",
	Help:      "Month report cache lookups by outcome (hit, miss, shared).",
}, []string{"outcome"})

var ReportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "reports",
	Name:      "build_seconds",
	Help:      "Time spent building a month report.",
	Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
})

// Persistence and event delivery.
var SnapshotsSaved = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "storage",
	Name:      "snapshots_total",
	Help:      "Snapshot saves by result.",
}, []string{"result"})

var EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "amqp",
	Name:      "events_published_total",
	Help:      "Ledger events published by type and result.",
}, []string{"type", "result"})

var Exports = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "export",
	Name:      "months_total",
	Help:      "Month exports by result.",
}, []string{"result"})

var ExportQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "export",
	Name:      "queue_depth",
	Help:      "Months waiting to be exported.",
})

// HTTP requests by route pattern.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "HTTP requests by route pattern, method and status code.",
}, []string{"route", "method", "code"})

var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "request_seconds",
	Help:      "HTTP request latency by route pattern.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route"})

// Result maps an error to the "result" label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveHTTP records one finished request.
func ObserveHTTP(route, method string, code int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
