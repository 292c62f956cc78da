// Package metrics collects and exposes Prometheus metrics for the onboarding flow.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records flow and HTTP metrics into its own registry.
type Collector struct {
	registry        *prometheus.Registry
	stepSubmissions *prometheus.CounterVec
	guardRedirects  *prometheus.CounterVec
	gatewayErrors   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewCollector creates a Collector with a fresh registry that also carries the
// Go runtime and process collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		stepSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_step_submissions_total",
			Help: "Signup step submissions by step and outcome.",
		}, []string{"step", "outcome"}),
		guardRedirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_guard_redirects_total",
			Help: "Corrective redirects issued by route and step guards.",
		}, []string{"step", "target"}),
		gatewayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_gateway_errors_total",
			Help: "Identity gateway failures by operation and kind.",
		}, []string{"operation", "kind"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "onboarding_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		c.stepSubmissions,
		c.guardRedirects,
		c.gatewayErrors,
		c.requestDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) StepSubmitted(step, outcome string) {
	c.stepSubmissions.WithLabelValues(step, outcome).Inc()
}

func (c *Collector) GuardRedirected(step, target string) {
	c.guardRedirects.WithLabelValues(step, target).Inc()
}

func (c *Collector) GatewayFailed(operation, kind string) {
	c.gatewayErrors.WithLabelValues(operation, kind).Inc()
}

// ObserveRequest records the latency of one HTTP request.
func (c *Collector) ObserveRequest(method, route string, status int, d time.Duration) {
	c.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// Registry is the gatherer served on /metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Middleware times every request. Unmatched routes share one label.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		c.ObserveRequest(ctx.Request.Method, route, ctx.Writer.Status(), time.Since(start))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
