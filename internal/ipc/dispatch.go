package ipc

import (
	"strconv"

	"github.com/russellb/corosync/internal/core/domain"
)

// deliver routes a message from the transport to the execution handler of
// its service. swap is true when the origin uses the other byte order.
func (c *Core) deliver(nodeID uint32, msg []byte, swap bool) {
	h, err := domain.ParseRequestHeader(msg, domain.HostOrder)
	if err != nil {
		c.logger.Warn("discarded malformed message", "node_id", nodeID, "error", err)
		return
	}
	if swap {
		h.Size = int32(domain.Swab32(uint32(h.Size)))
		h.ID = int32(domain.Swab32(uint32(h.ID)))
	}

	svc, fn := domain.SplitID(h.ID)
	desc, ok := c.registry.Lookup(svc)
	if !ok || fn >= len(desc.ExecEngines) || desc.ExecEngines[fn].Handler == nil {
		maxID := -1
		if ok {
			maxID = len(desc.ExecEngines) - 1
		}
		c.logger.Warn("discarded unknown message",
			"fn", fn,
			"service", int(svc),
			"max_id", maxID,
			"node_id", nodeID)
		return
	}

	engine := desc.ExecEngines[fn]
	if swap {
		domain.PutRequestHeader(msg, h)
		if engine.EndianConvert != nil {
			engine.EndianConvert(msg)
		}
	}

	c.counters[counterKey(desc.Name, fn, "rx")]++
	c.metricDelivered(desc.Name)
	engine.Handler(c.api, msg, nodeID)
}

// multicast hands msg to the transport and counts it per service/function.
func (c *Core) multicast(msg []byte, guarantee domain.Guarantee) error {
	h, err := domain.ParseRequestHeader(msg, domain.HostOrder)
	if err != nil {
		return err
	}
	svc, fn := domain.SplitID(h.ID)
	name := svc.String()
	if desc, ok := c.registry.Lookup(svc); ok {
		name = desc.Name
	}

	if err := c.transport.Multicast(msg, guarantee); err != nil {
		return err
	}
	c.counters[counterKey(name, fn, "tx")]++
	c.metricMulticast(name)
	return nil
}

// counterKey names a per service/function counter in the stats database.
func counterKey(service string, fn int, dir string) string {
	return "services." + service + "." + strconv.Itoa(fn) + "." + dir
}
