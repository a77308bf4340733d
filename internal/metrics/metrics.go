// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nbp_mcp_tool_calls_total",
			Help: "Tool calls by tool and outcome.",
		},
		[]string{"tool", "outcome"},
	)

	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nbp_mcp_tool_call_duration_seconds",
			Help:    "Tool call latency including every upstream request.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"tool"},
	)

	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nbp_upstream_requests_total",
			Help: "Requests sent to the NBP API by resource and outcome.",
		},
		[]string{"resource", "outcome"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nbp_upstream_request_duration_seconds",
			Help:    "NBP API request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nbp_mcp_http_requests_total",
			Help: "HTTP requests served by the streamable transport.",
		},
		[]string{"method", "path", "status"},
	)
)

func ObserveToolCall(tool, outcome string, elapsed time.Duration) {
	ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
	ToolCallDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

func ObserveUpstream(resource, outcome string, elapsed time.Duration) {
	UpstreamRequestsTotal.WithLabelValues(resource, outcome).Inc()
	UpstreamRequestDuration.WithLabelValues(resource).Observe(elapsed.Seconds())
}

// Middleware counts HTTP requests, skipping the scrape endpoint itself.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
