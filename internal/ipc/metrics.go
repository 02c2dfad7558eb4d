package ipc

import (
	"github.com/russellb/corosync/internal/core/domain"
)

func (c *Core) metricDecision(d domain.Decision) {
	if c.metrics != nil {
		c.metrics.AdmissionDecisions.WithLabelValues(d.String()).Inc()
	}
}

func (c *Core) metricEventSent() {
	if c.metrics != nil {
		c.metrics.EventsSent.Inc()
	}
}

func (c *Core) metricEventDropped() {
	if c.metrics != nil {
		c.metrics.EventsDropped.Inc()
	}
}

func (c *Core) metricQueued(delta int) {
	if c.metrics != nil {
		c.metrics.EventsQueued.Add(float64(delta))
	}
}

func (c *Core) metricConnections(delta int) {
	if c.metrics != nil {
		c.metrics.ConnectionsActive.Add(float64(delta))
	}
}

func (c *Core) metricClosed() {
	if c.metrics != nil {
		c.metrics.ConnectionsClosed.Inc()
	}
}

func (c *Core) metricDirective(service string, d domain.Directive) {
	if c.metrics != nil {
		c.metrics.FlowControl.WithLabelValues(service).Set(float64(d))
	}
}

func (c *Core) metricQueueLevel(level domain.QueueLevel) {
	if c.metrics != nil {
		c.metrics.QueueLevel.Set(float64(level))
	}
}

func (c *Core) metricMulticast(service string) {
	if c.metrics != nil {
		c.metrics.MulticastTotal.WithLabelValues(service).Inc()
	}
}

func (c *Core) metricDelivered(service string) {
	if c.metrics != nil {
		c.metrics.DeliveredTotal.WithLabelValues(service).Inc()
	}
}
