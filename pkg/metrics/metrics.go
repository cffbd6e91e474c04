// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ChatTurnsTotal tracks completed chat turns by mode and outcome.
	ChatTurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "Total chat turns handled",
		},
		[]string{"mode", "status"},
	)

	// LLMRequestDuration tracks LLM operation latency.
	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "LLM operation duration in seconds",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 45, 60},
		},
		[]string{"operation", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// ProcessorRunsTotal tracks deferred processor runs.
	ProcessorRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processor_runs_total",
			Help: "Total processor runs",
		},
		[]string{"trigger"},
	)

	// ProcessorConversationsTotal tracks processed conversations by verdict.
	ProcessorConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processor_conversations_total",
			Help: "Conversations classified by the processor",
		},
		[]string{"verdict"},
	)

	// VectorOperationsTotal tracks vector index operations by outcome.
	VectorOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vector_operations_total",
			Help: "Vector index operations",
		},
		[]string{"operation", "status"},
	)

	// InsightsTotal tracks insights written to the graph.
	InsightsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insights_total",
			Help: "Insights created",
		},
		[]string{"source"},
	)

	// PIIDetectionsTotal tracks positive PII probe results.
	PIIDetectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pii_detections_total",
			Help: "Chat turns where the PII probe reported a detection",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordChatTurn records a completed chat turn.
func RecordChatTurn(mode, status string) {
	ChatTurnsTotal.WithLabelValues(mode, status).Inc()
}

// RecordLLMRequest records one LLM operation.
func RecordLLMRequest(operation, status string, duration float64) {
	LLMRequestDuration.WithLabelValues(operation, status).Observe(duration)
}

// RecordLLMTokens records token usage for a model.
func RecordLLMTokens(model string, tokensIn, tokensOut int) {
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordVectorOperation records a vector index operation.
func RecordVectorOperation(operation, status string) {
	VectorOperationsTotal.WithLabelValues(operation, status).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
