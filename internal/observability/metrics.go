package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	pendingToolRequests prometheus.Gauge
	toolRequestsTotal   *prometheus.CounterVec
	toolRequestDuration *prometheus.HistogramVec
	fulfillmentsTotal   *prometheus.CounterVec

	agentStartupsTotal   *prometheus.CounterVec
	agentStartupDuration prometheus.Histogram
	readinessRetries     prometheus.Histogram

	activeStreamRelays prometheus.Gauge
	streamRelaysTotal  *prometheus.CounterVec
	streamEventsTotal  *prometheus.CounterVec

	gatewayClients     prometheus.Gauge
	rpcRequestsTotal   *prometheus.CounterVec
	rpcRequestDuration *prometheus.HistogramVec

	modelGenerationsTotal   *prometheus.CounterVec
	modelGenerationDuration *prometheus.HistogramVec
	memoryEntriesTotal      prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			pendingToolRequests: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "bridge_pending_tool_requests",
					Help: "Tool invocations currently waiting for the front-end.",
				},
			),
			toolRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "bridge_tool_requests_total",
					Help: "Total front-end tool invocations by tool and outcome.",
				},
				[]string{"tool", "outcome"},
			),
			toolRequestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "bridge_tool_request_duration_seconds",
					Help:    "Time from tool request publish to outcome.",
					Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
				},
				[]string{"tool"},
			),
			fulfillmentsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "bridge_fulfillments_total",
					Help: "Tool result submissions by result (accepted, not_found).",
				},
				[]string{"result"},
			),
			agentStartupsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_startups_total",
					Help: "Agent server startups by result.",
				},
				[]string{"result"},
			),
			agentStartupDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "agent_startup_duration_seconds",
					Help:    "Time until the agent server answered its readiness probe.",
					Buckets: prometheus.DefBuckets,
				},
			),
			readinessRetries: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "agent_readiness_retries",
					Help:    "Failed readiness probes before the agent server came up.",
					Buckets: prometheus.LinearBuckets(0, 5, 11),
				},
			),
			activeStreamRelays: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "stream_relays_active",
					Help: "Stream relays currently draining a remote stream.",
				},
			),
			streamRelaysTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stream_relays_total",
					Help: "Finished stream relays by terminal state.",
				},
				[]string{"state"},
			),
			streamEventsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stream_events_total",
					Help: "Stream events handed to the sink by status.",
				},
				[]string{"status"},
			),
			gatewayClients: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "gateway_clients",
					Help: "Connected gateway clients.",
				},
			),
			rpcRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "gateway_rpc_requests_total",
					Help: "Gateway RPC requests by method and status.",
				},
				[]string{"method", "status"},
			),
			rpcRequestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "gateway_rpc_duration_seconds",
					Help:    "Gateway RPC handling time by method.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method"},
			),
			modelGenerationsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "model_generations_total",
					Help: "Model generations by provider and status.",
				},
				[]string{"provider", "status"},
			),
			modelGenerationDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "model_generation_duration_seconds",
					Help:    "Model generation latency by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			memoryEntriesTotal: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_entries",
					Help: "Entries in the session memory store.",
				},
			),
		}

		prometheus.MustRegister(
			m.pendingToolRequests,
			m.toolRequestsTotal,
			m.toolRequestDuration,
			m.fulfillmentsTotal,
			m.agentStartupsTotal,
			m.agentStartupDuration,
			m.readinessRetries,
			m.activeStreamRelays,
			m.streamRelaysTotal,
			m.streamEventsTotal,
			m.gatewayClients,
			m.rpcRequestsTotal,
			m.rpcRequestDuration,
			m.modelGenerationsTotal,
			m.modelGenerationDuration,
			m.memoryEntriesTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func SetPendingToolRequests(count int) {
	getMetrics().pendingToolRequests.Set(float64(count))
}

func RecordToolRequest(tool, outcome string, duration time.Duration) {
	m := getMetrics()
	m.toolRequestsTotal.WithLabelValues(tool, outcome).Inc()
	m.toolRequestDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordFulfillment(found bool) {
	result := "accepted"
	if !found {
		result = "not_found"
	}
	getMetrics().fulfillmentsTotal.WithLabelValues(result).Inc()
}

func RecordAgentStartup(result string, duration time.Duration, retries int) {
	m := getMetrics()
	m.agentStartupsTotal.WithLabelValues(result).Inc()
	if result == "success" {
		m.agentStartupDuration.Observe(duration.Seconds())
		m.readinessRetries.Observe(float64(retries))
	}
}

func IncStreamRelays() {
	getMetrics().activeStreamRelays.Inc()
}

func RecordStreamRelayDone(state string) {
	m := getMetrics()
	m.activeStreamRelays.Dec()
	m.streamRelaysTotal.WithLabelValues(state).Inc()
}

func RecordStreamEvent(delivered bool) {
	status := "forwarded"
	if !delivered {
		status = "sink_error"
	}
	getMetrics().streamEventsTotal.WithLabelValues(status).Inc()
}

func SetGatewayClients(count int) {
	getMetrics().gatewayClients.Set(float64(count))
}

func RecordRPCRequest(method string, duration time.Duration, success bool) {
	m := getMetrics()
	m.rpcRequestsTotal.WithLabelValues(method, statusLabel(success)).Inc()
	m.rpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func RecordModelGeneration(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	m.modelGenerationsTotal.WithLabelValues(provider, statusLabel(success)).Inc()
	m.modelGenerationDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func SetMemoryEntries(total int) {
	getMetrics().memoryEntriesTotal.Set(float64(total))
}
