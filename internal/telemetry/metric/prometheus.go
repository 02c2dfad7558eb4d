// Package metric provides Prometheus metrics for corosync.
//
// It exposes metrics in Prometheus format for monitoring client
// connections, admission decisions, event queuing and transport load.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "corosync"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// IPC metrics
	ConnectionsActive  prometheus.Gauge
	ConnectionsClosed  prometheus.Counter
	AdmissionDecisions *prometheus.CounterVec
	EventsSent         prometheus.Counter
	EventsQueued       prometheus.Gauge
	EventsDropped      prometheus.Counter
	FlowControl        *prometheus.GaugeVec

	// Transport metrics
	QueueLevel     prometheus.Gauge
	MulticastTotal *prometheus.CounterVec
	DeliveredTotal *prometheus.CounterVec
}

// NewRegistry creates a registry with every application metric plus the
// Go runtime and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ipc",
			Name:      "connections_active",
			Help:      "Number of open client connections",
		}),
		ConnectionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ipc",
			Name:      "connections_closed_total",
			Help:      "Total client connections closed",
		}),
		AdmissionDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ipc",
			Name:      "admission_decisions_total",
			Help:      "Admission decisions by outcome",
		}, []string{"decision"}),
		EventsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ipc",
			Name:      "events_sent_total",
			Help:      "Total events written to client event channels",
		}),
		EventsQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ipc",
			Name:      "events_queued",
			Help:      "Events waiting in outbound queues",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ipc",
			Name:      "events_dropped_total",
			Help:      "Events dropped after a send failure",
		}),
		FlowControl: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ipc",
			Name:      "flow_control_directive",
			Help:      "Enforced flow control directive per service (0=off 1=fast 2=normal 3=slow)",
		}, []string{"service"}),

		QueueLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "totem",
			Name:      "queue_level",
			Help:      "Transport queue level (0=low 1=good 2=high 3=critical)",
		}),
		MulticastTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "totem",
			Name:      "multicast_total",
			Help:      "Messages handed to the transport by service",
		}, []string{"service"}),
		DeliveredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "totem",
			Name:      "delivered_total",
			Help:      "Messages delivered by the transport by service",
		}, []string{"service"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.ConnectionsActive,
		r.ConnectionsClosed,
		r.AdmissionDecisions,
		r.EventsSent,
		r.EventsQueued,
		r.EventsDropped,
		r.FlowControl,
		r.QueueLevel,
		r.MulticastTotal,
		r.DeliveredTotal,
	)

	return r
}

// Prometheus returns the underlying registry so other components can
// register their own collectors.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
