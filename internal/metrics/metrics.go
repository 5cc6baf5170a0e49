// Package metrics exposes Prometheus counters for HTTP traffic and external calls.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "research_analyst"

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"method", "path"},
	)

	// External model / data / team calls
	CallTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "call_total",
			Help:      "Total number of external service calls",
		},
		[]string{"service", "task", "outcome"}, // outcome: ok or an error kind
	)

	CallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "call_duration_seconds",
			Help:      "External service call duration in seconds",
			Buckets:   []float64{.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"service"},
	)

	TokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_used_total",
			Help:      "Total tokens used for model calls",
		},
		[]string{"provider", "model", "type"}, // type: input/output
	)

	UsageWarnings = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "inconsistent_usage_total",
			Help:      "Responses whose token counts did not add up",
		},
	)
)

// ObserveCall records one external call.
func ObserveCall(service, task, outcome string, d time.Duration) {
	if outcome == "" {
		outcome = "ok"
	}
	CallTotal.WithLabelValues(service, task, outcome).Inc()
	CallDuration.WithLabelValues(service).Observe(d.Seconds())
}

// ObserveTokens adds a response's token counts. Negative counts come from a
// broken upstream report and are skipped: counters cannot decrease, and the
// usage tracker reports the inconsistency.
func ObserveTokens(provider, model string, input, output int64) {
	if input > 0 {
		TokensUsed.WithLabelValues(provider, model, "input").Add(float64(input))
	}
	if output > 0 {
		TokensUsed.WithLabelValues(provider, model, "output").Add(float64(output))
	}
}

// Middleware records request counts and latency. The route template is used
// as the path label to keep cardinality bounded.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
