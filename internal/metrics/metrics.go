// Package metrics exposes Prometheus instrumentation for the chat
// agent and the API server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	chatTurns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskpilot_chat_turns_total",
			Help: "Chat turns by terminal outcome.",
		},
		[]string{"outcome"},
	)

	toolExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskpilot_tool_executions_total",
			Help: "Tool executions by tool name and status.",
		},
		[]string{"tool", "status"},
	)

	modelCallDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskpilot_model_call_duration_seconds",
			Help:    "Latency of model provider calls, including failures.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	breakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskpilot_breaker_state",
			Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskpilot_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		},
		[]string{"method", "route", "code"},
	)
)

func init() {
	prometheus.MustRegister(chatTurns)
	prometheus.MustRegister(toolExecutions)
	prometheus.MustRegister(modelCallDuration)
	prometheus.MustRegister(breakerState)
	prometheus.MustRegister(httpRequests)
}

// Handler returns the /metrics scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ChatTurn records one completed chat turn.
func ChatTurn(outcome string) {
	chatTurns.WithLabelValues(outcome).Inc()
}

// ToolExecution records one tool execution.
func ToolExecution(tool, status string) {
	toolExecutions.WithLabelValues(tool, status).Inc()
}

// ModelCall records the duration of one provider call.
func ModelCall(d time.Duration) {
	modelCallDuration.Observe(d.Seconds())
}

// BreakerState records the breaker's current state.
func BreakerState(state int) {
	breakerState.Set(float64(state))
}

// HTTPRequest records one served request.
func HTTPRequest(method, route, code string) {
	httpRequests.WithLabelValues(method, route, code).Inc()
}
