// Package metrics registers the storefront's Prometheus series and serves /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	catalogFallbacks *prometheus.CounterVec
	cartOps          *prometheus.CounterVec
	transient        *prometheus.CounterVec
	checkouts        prometheus.Counter
	checkoutAmount   prometheus.Counter
	handoffs         *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		catalogFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_catalog_fallback_total",
			Help: "Catalog calls answered from the static fallback set",
		}, []string{"op"}),
		cartOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_cart_operations_total",
			Help: "Cart mutations by operation, backend and result",
		}, []string{"op", "backend", "result"}),
		transient: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_storage_transient_failures_total",
			Help: "Cart storage operations that failed with a retryable error",
		}, []string{"backend"}),
		checkouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_checkout_commits_total",
			Help: "Committed checkouts",
		}),
		checkoutAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_checkout_amount_total",
			Help: "Sum of committed checkout totals",
		}),
		handoffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_cart_handoffs_total",
			Help: "Guest carts handed off at login, by policy",
		}, []string{"policy"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	reg.MustRegister(
		c.catalogFallbacks,
		c.cartOps,
		c.transient,
		c.checkouts,
		c.checkoutAmount,
		c.handoffs,
		c.httpRequests,
		c.httpDuration,
	)
	return c
}

// CatalogFallback satisfies catalog.FallbackRecorder.
func (c *Collector) CatalogFallback(op string) {
	c.catalogFallbacks.WithLabelValues(op).Inc()
}

func (c *Collector) CartOperation(op, backend string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.cartOps.WithLabelValues(op, backend, result).Inc()
}

func (c *Collector) TransientFailure(backend string) {
	c.transient.WithLabelValues(backend).Inc()
}

func (c *Collector) CheckoutCommitted(total float64) {
	c.checkouts.Inc()
	c.checkoutAmount.Add(total)
}

func (c *Collector) Handoff(policy string) {
	c.handoffs.WithLabelValues(policy).Inc()
}

// Middleware records request count and latency per route pattern.
func (c *Collector) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		start := time.Now()
		err := next(ctx)

		status := ctx.Response().Status
		if err != nil {
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else {
				status = http.StatusInternalServerError
			}
		}
		path := ctx.Path()
		if path == "" {
			path = "unknown"
		}

		method := ctx.Request().Method
		c.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
		c.httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		return err
	}
}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
