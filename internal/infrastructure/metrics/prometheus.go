// Package metrics exposes Prometheus metrics for the HTTP API and the
// billing event stream on a dedicated registry.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/domain/shared"
)

// Metric names, without the namespace
const (
	MetricHTTPRequestsTotal       = "http_requests_total"
	MetricHTTPRequestDuration     = "http_request_duration_seconds"
	MetricDebtsChargedTotal       = "debts_charged_total"
	MetricPaymentsAppliedTotal    = "payments_applied_total"
	MetricPaymentConflictsTotal   = "payment_conflict_retries_total"
	MetricPaymentAllocationsTotal = "payment_allocations_total"
)

const unmatchedRoute = "unmatched"

// Config configures the exporter
type Config struct {
	// Namespace prefixes every metric. Default: "rentals"
	Namespace string
	// HistogramBuckets for request duration. Default: prometheus.DefBuckets
	HistogramBuckets []float64
	// RuntimeCollectors registers the Go and process collectors
	RuntimeCollectors bool
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Namespace:         "rentals",
		HistogramBuckets:  prometheus.DefBuckets,
		RuntimeCollectors: true,
	}
}

// Exporter owns the registry and every collector registered on it.
//
// Safe for concurrent use.
type Exporter struct {
	registry *prometheus.Registry

	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	debtsCharged       *prometheus.CounterVec
	paymentsApplied    prometheus.Counter
	paymentConflicts   prometheus.Counter
	paymentAllocations prometheus.Counter
}

// NewExporter creates an exporter with its own registry
func NewExporter(cfg Config) *Exporter {
	if cfg.Namespace == "" {
		cfg.Namespace = "rentals"
	}
	if len(cfg.HistogramBuckets) == 0 {
		cfg.HistogramBuckets = prometheus.DefBuckets
	}

	e := &Exporter{registry: prometheus.NewRegistry()}

	e.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Name:      MetricHTTPRequestsTotal,
		Help:      "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	e.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Name:      MetricHTTPRequestDuration,
		Help:      "HTTP request latency by method and route.",
		Buckets:   cfg.HistogramBuckets,
	}, []string{"method", "route"})

	e.debtsCharged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Name:      MetricDebtsChargedTotal,
		Help:      "Debt items written to the ledger, by debt type.",
	}, []string{"debt_type"})

	e.paymentsApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Name:      MetricPaymentsAppliedTotal,
		Help:      "Payments committed against the ledger.",
	})

	e.paymentConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Name:      MetricPaymentConflictsTotal,
		Help:      "Extra attempts payments needed after losing an optimistic-lock race.",
	})

	e.paymentAllocations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Name:      MetricPaymentAllocationsTotal,
		Help:      "Debt items touched by committed payments.",
	})

	e.registry.MustRegister(
		e.requestsTotal,
		e.requestDuration,
		e.debtsCharged,
		e.paymentsApplied,
		e.paymentConflicts,
		e.paymentAllocations,
	)
	if cfg.RuntimeCollectors {
		e.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return e
}

// Registry returns the underlying registry
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry in the Prometheus exposition format
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// GinMiddleware records request count and latency per matched route.
// The route template is used as the label so path parameters do not
// explode cardinality.
func (e *Exporter) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method
		e.requestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		e.requestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// Handle counts billing events
func (e *Exporter) Handle(_ context.Context, event shared.DomainEvent) error {
	switch ev := event.(type) {
	case *billing.DebtChargedEvent:
		e.debtsCharged.WithLabelValues(ev.DebtType).Inc()
	case *billing.PaymentAppliedEvent:
		e.paymentsApplied.Inc()
		e.paymentAllocations.Add(float64(len(ev.DebtItemIDs)))
		if ev.Attempts > 1 {
			e.paymentConflicts.Add(float64(ev.Attempts - 1))
		}
	}
	return nil
}

// EventTypes returns the billing events the exporter subscribes to
func (e *Exporter) EventTypes() []string {
	return []string{billing.EventTypeDebtCharged, billing.EventTypePaymentApplied}
}

var _ shared.EventHandler = (*Exporter)(nil)
