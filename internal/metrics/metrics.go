// Package metrics exposes Prometheus metrics for the console backend
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "iamconsole"

// Collector owns a private registry with every metric of the service.
// It satisfies the observer interfaces of the editor, the identity client
// and the alert dispatcher.
type Collector struct {
	registry *prometheus.Registry

	connectionTests        *prometheus.CounterVec
	connectionTestDuration *prometheus.HistogramVec
	patches                *prometheus.CounterVec
	patchOperations        prometheus.Histogram
	identityRequests       *prometheus.CounterVec
	identityDuration       *prometheus.HistogramVec
	alerts                 *prometheus.CounterVec
	httpRequests           *prometheus.CounterVec
	httpDuration           *prometheus.HistogramVec
}

// New creates a Collector and registers its metrics along with the Go
// runtime and process collectors
func New() (*Collector, error) {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		connectionTests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_tests_total",
			Help:      "Connection tests by outcome (succeeded, failed, stale, skipped)",
		}, []string{"outcome"}),
		connectionTestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connection_test_duration_seconds",
			Help:      "Duration of connection tests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),
		patches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "userstore_patches_total",
			Help:      "User store patch submissions by outcome",
		}, []string{"outcome"}),
		patchOperations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "userstore_patch_operations",
			Help:      "Number of operations per submitted patch document",
			Buckets:   []float64{1, 5, 10, 20, 50, 100, 200},
		}),
		identityRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_requests_total",
			Help:      "Identity server API calls by operation and status code",
		}, []string{"operation", "status"}),
		identityDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "identity_request_duration_seconds",
			Help:      "Identity server API call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts dispatched to edit sessions by level",
		}, []string{"level"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	toRegister := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.connectionTests,
		c.connectionTestDuration,
		c.patches,
		c.patchOperations,
		c.identityRequests,
		c.identityDuration,
		c.alerts,
		c.httpRequests,
		c.httpDuration,
	}
	for _, collector := range toRegister {
		if err := c.registry.Register(collector); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return c, nil
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RegisterGauge exposes a value sampled at scrape time
func (c *Collector) RegisterGauge(name, help string, value func() float64) error {
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, value)
	if err := c.registry.Register(gauge); err != nil {
		return fmt.Errorf("failed to register gauge %s: %w", name, err)
	}
	return nil
}

// ObserveConnectionTest records a connection test
func (c *Collector) ObserveConnectionTest(outcome string, duration time.Duration) {
	c.connectionTests.WithLabelValues(outcome).Inc()
	c.connectionTestDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObservePatch records a patch submission
func (c *Collector) ObservePatch(outcome string, operations int) {
	c.patches.WithLabelValues(outcome).Inc()
	c.patchOperations.Observe(float64(operations))
}

// ObserveIdentityRequest records an identity server call. Status 0 means
// the request never got an answer.
func (c *Collector) ObserveIdentityRequest(operation string, statusCode int, duration time.Duration) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	c.identityRequests.WithLabelValues(operation, status).Inc()
	c.identityDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveAlert records a dispatched alert
func (c *Collector) ObserveAlert(level string) {
	c.alerts.WithLabelValues(level).Inc()
}

// Middleware records HTTP request counts and latency by route template
func (c *Collector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)

			status := ctx.Response().Status
			if err != nil && !ctx.Response().Committed {
				status = http.StatusInternalServerError
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}
			method := ctx.Request().Method

			c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			c.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
