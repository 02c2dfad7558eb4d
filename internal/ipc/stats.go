package ipc

import (
	"github.com/russellb/corosync/internal/core/service"
)

// statsTick copies adapter and core counters into the stats database.
func (c *Core) statsTick() {
	c.flushStats()
	if !c.stopped {
		c.statsTimer = c.loop.AfterFunc(c.statsInterval, c.statsTick)
	}
}

func (c *Core) flushStats() {
	if c.stats == nil {
		c.counters = make(map[string]uint64)
		return
	}

	c.conns.each(func(_ service.ConnID, conn *connection) {
		st := ConnectionStats{
			ChannelStats:     conn.channel.Stats(),
			FlowControlCount: c.flowControlCount(conn.svc),
			QueueSize:        conn.outq.Length(),
			InvalidRequest:   conn.invalidRequest,
			Overload:         conn.overload,
		}
		st.FlowControl, _ = c.Directive(conn.svc)
		if err := c.stats.ConnectionUpdated(conn.name, st); err != nil {
			c.logger.Debug("stats update failed", "conn", conn.name, "error", err)
		}
	})

	if len(c.counters) == 0 {
		return
	}
	if err := c.stats.AddCounters(c.counters); err != nil {
		c.logger.Warn("counter flush failed", "error", err)
		return
	}
	c.counters = make(map[string]uint64)
}
