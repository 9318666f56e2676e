package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	CommandRequests prometheus.Counter
	CommandLatency  prometheus.Histogram
	CommandErrors   *prometheus.CounterVec

	ToolCalls    *prometheus.CounterVec
	ToolDenials  *prometheus.CounterVec
	AuthFailures *prometheus.CounterVec

	AuditDropped  prometheus.Counter
	AuditQueueLen prometheus.GaugeFunc
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics.
func InitMetrics() *Metrics {
	metrics := &Metrics{
		CommandRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mejohncorg_agent_commands_total",
			Help: "Total number of agent commands processed",
		}),

		CommandLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mejohncorg_agent_command_duration_seconds",
			Help:    "Agent command latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),

		CommandErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mejohncorg_agent_command_errors_total",
			Help: "Total number of agent command errors by type",
		}, []string{"error_type"}),

		ToolCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mejohncorg_tool_calls_total",
			Help: "Total number of tool calls by tool and outcome",
		}, []string{"tool", "outcome"}),

		ToolDenials: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mejohncorg_tool_denials_total",
			Help: "Total number of denied tool calls by reason",
		}, []string{"reason"}),

		AuthFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mejohncorg_auth_failures_total",
			Help: "Total number of failed agent authentications by reason",
		}, []string{"reason"}),

		AuditDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mejohncorg_audit_events_dropped_total",
			Help: "Audit events dropped because the sink buffer was full",
		}),
	}

	globalMetrics = metrics
	return metrics
}

// RegisterAuditQueueDepth wires the audit backlog gauge once the sink exists.
func (m *Metrics) RegisterAuditQueueDepth(queueDepth func() float64) {
	m.AuditQueueLen = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "mejohncorg_audit_queue_depth",
		Help: "Audit events waiting for the background writer",
	}, queueDepth)
}

// GetMetrics returns the global metrics instance.
func GetMetrics() *Metrics {
	return globalMetrics
}
