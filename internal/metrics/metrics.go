package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lambdev_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lambdev_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lambdev_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	invocationsQueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lambdev_invocations_queued_total",
			Help: "Total number of invocations accepted by the scheduler",
		},
		[]string{"function", "trigger"},
	)

	invocationsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lambdev_invocations_completed_total",
			Help: "Total number of invocations that produced a result",
		},
		[]string{"function", "status"},
	)

	invocationsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lambdev_invocations_dropped_total",
			Help: "Total number of queued invocations discarded when their function stopped",
		},
		[]string{"function"},
	)

	invocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lambdev_invocation_duration_seconds",
			Help:    "Time from receipt to result in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"function"},
	)

	functionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lambdev_functions_active",
			Help: "Number of running function processes",
		},
	)

	functionStarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lambdev_function_starts_total",
			Help: "Total number of function process starts",
		},
		[]string{"function", "result"},
	)

	pendingResponses = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lambdev_pending_responses",
			Help: "Number of callers waiting for a function result",
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func IncrementInFlight() {
	httpRequestsInFlight.Inc()
}

func DecrementInFlight() {
	httpRequestsInFlight.Dec()
}

func RecordInvocationQueued(function, trigger string) {
	invocationsQueued.WithLabelValues(function, trigger).Inc()
}

// RecordInvocationCompleted records a finished invocation. status is "success", "error", "timeout" or "canceled".
func RecordInvocationCompleted(function, status string, duration time.Duration) {
	invocationsCompleted.WithLabelValues(function, status).Inc()
	invocationDuration.WithLabelValues(function).Observe(duration.Seconds())
}

func RecordInvocationsDropped(function string, count int) {
	invocationsDropped.WithLabelValues(function).Add(float64(count))
}

// RecordFunctionStart records a spawn attempt. result is "started", "reloaded" or "failed".
func RecordFunctionStart(function, result string) {
	functionStarts.WithLabelValues(function, result).Inc()
}

func SetActiveFunctions(count int) {
	functionsActive.Set(float64(count))
}

func SetPendingResponses(count int) {
	pendingResponses.Set(float64(count))
}
