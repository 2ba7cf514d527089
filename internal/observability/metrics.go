// Package observability provides logging, metrics, and tracing.
//
// It integrates with OpenTelemetry for distributed tracing and with
// Prometheus for the counters and histograms every adapter in the
// dispatcher reports against.
package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts inbound HTTP requests by route, method, and status label.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration records inbound request durations by route and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// LLMRequestsTotal counts outbound model-router classification calls by outcome.
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_router_requests_total",
			Help: "Total number of model router LLM classification calls",
		},
		[]string{"operation", "outcome"},
	)
	// LLMRequestDuration records model router LLM call durations.
	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_router_request_duration_seconds",
			Help:    "Model router LLM call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"operation"},
	)

	// FanoutCallsTotal counts A2A fan-out calls to specialist workers by outcome.
	FanoutCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "a2a_fanout_calls_total",
			Help: "Total number of A2A fan-out calls by worker and outcome",
		},
		[]string{"worker_id", "outcome"},
	)
	// FanoutCallDuration records A2A fan-out call latency per worker.
	FanoutCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "a2a_fanout_call_duration_seconds",
			Help:    "A2A fan-out call duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"worker_id"},
	)

	// RouterDecisionsTotal counts routing decisions by the kind of decision made.
	// decision is one of: keyword_gate_general, model_chosen, fallback.
	RouterDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_decisions_total",
			Help: "Total number of routing decisions by decision kind",
		},
		[]string{"decision"},
	)

	// SessionStoreOpsTotal counts session store operations by op and outcome.
	SessionStoreOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_store_ops_total",
			Help: "Total number of session store operations by op and outcome",
		},
		[]string{"op", "outcome"},
	)

	// RegistryOpsTotal counts service registry operations by op and outcome.
	RegistryOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_ops_total",
			Help: "Total number of service registry operations by op and outcome",
		},
		[]string{"op", "outcome"},
	)

	// RetrieverOpsTotal counts retriever operations by op and outcome.
	RetrieverOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retriever_ops_total",
			Help: "Total number of retriever operations by op and outcome",
		},
		[]string{"op", "outcome"},
	)

	// PipelineNodeDuration records how long each pipeline graph node takes.
	PipelineNodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_node_duration_seconds",
			Help:    "Pipeline graph node duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"node"},
	)

	// CircuitBreakerStatus tracks circuit breaker state per service/operation.
	CircuitBreakerStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_status",
			Help: "Circuit breaker status (0=closed, 1=open, 2=half-open)",
		},
		[]string{"service", "operation"},
	)
)

// InitMetrics registers all Prometheus metrics with the default registry.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(LLMRequestsTotal)
	prometheus.MustRegister(LLMRequestDuration)
	prometheus.MustRegister(FanoutCallsTotal)
	prometheus.MustRegister(FanoutCallDuration)
	prometheus.MustRegister(RouterDecisionsTotal)
	prometheus.MustRegister(SessionStoreOpsTotal)
	prometheus.MustRegister(RegistryOpsTotal)
	prometheus.MustRegister(RetrieverOpsTotal)
	prometheus.MustRegister(PipelineNodeDuration)
	prometheus.MustRegister(CircuitBreakerStatus)
}

// HTTPMetricsMiddleware records Prometheus metrics for each inbound request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// RecordRouterDecision increments the router decision counter for the given kind.
func RecordRouterDecision(decision string) {
	RouterDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordSessionStoreOp increments the session store operation counter.
func RecordSessionStoreOp(op, outcome string) {
	SessionStoreOpsTotal.WithLabelValues(op, outcome).Inc()
}

// RecordRegistryOp increments the registry operation counter.
func RecordRegistryOp(op, outcome string) {
	RegistryOpsTotal.WithLabelValues(op, outcome).Inc()
}

// RecordRetrieverOp increments the retriever operation counter.
func RecordRetrieverOp(op, outcome string) {
	RetrieverOpsTotal.WithLabelValues(op, outcome).Inc()
}

// RecordPipelineNodeDuration observes how long a pipeline graph node took to run.
func RecordPipelineNodeDuration(node string, d time.Duration) {
	PipelineNodeDuration.WithLabelValues(node).Observe(d.Seconds())
}

// RecordCircuitBreakerStatus records circuit breaker state.
func RecordCircuitBreakerStatus(service, operation string, status int) {
	CircuitBreakerStatus.WithLabelValues(service, operation).Set(float64(status))
}
