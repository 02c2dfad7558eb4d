package ipc

import (
	"errors"

	"github.com/russellb/corosync/internal/core/service"
)

// ItemAllocator provides the memory behind outbound queue items.
type ItemAllocator interface {
	// Alloc returns a buffer of n bytes charged to conn, or ErrNoMemory.
	Alloc(conn service.ConnID, n int) ([]byte, error)
	// Free returns a buffer obtained from Alloc.
	Free(conn service.ConnID, buf []byte)
}

// BudgetAllocator caps the bytes queued per connection. A zero limit
// means no cap. Like the rest of the queue it is used from the loop only
// and does no locking.
type BudgetAllocator struct {
	limit int
	used  map[service.ConnID]int
}

// NewBudgetAllocator creates an allocator allowing limit bytes of queued
// events per connection.
func NewBudgetAllocator(limit int) *BudgetAllocator {
	return &BudgetAllocator{
		limit: limit,
		used:  make(map[service.ConnID]int),
	}
}

// Alloc implements ItemAllocator.
func (a *BudgetAllocator) Alloc(conn service.ConnID, n int) ([]byte, error) {
	if a.limit > 0 && a.used[conn]+n > a.limit {
		return nil, ErrNoMemory
	}
	a.used[conn] += n
	return make([]byte, n), nil
}

// Free implements ItemAllocator.
func (a *BudgetAllocator) Free(conn service.ConnID, buf []byte) {
	if left := a.used[conn] - len(buf); left > 0 {
		a.used[conn] = left
	} else {
		delete(a.used, conn)
	}
}

// Used returns the bytes currently charged to conn.
func (a *BudgetAllocator) Used(conn service.ConnID) int {
	return a.used[conn]
}

// sendEvent sends msg to conn, queuing it when the client cannot take it
// right now. While the connection is queuing every message goes through
// the queue so the client sees events in order.
func (c *Core) sendEvent(conn *connection, msg []byte) {
	if conn.state == stateNormal {
		err := conn.channel.TrySendEvent(msg)
		switch {
		case err == nil:
			conn.sent++
			c.metricEventSent()
			return
		case errors.Is(err, ErrWouldBlock):
			conn.state = stateQueuing
			conn.queued = 0
			conn.sent = 0
			c.scheduleDrain(conn)
		default:
			c.logger.Warn("event send failed",
				"conn", conn.name,
				"error", err)
			c.metricEventDropped()
			return
		}
	}

	if err := c.enqueue(conn, msg); err != nil {
		c.logger.Error("cannot queue event, disconnecting client",
			"conn", conn.name,
			"queued", conn.outq.Length(),
			"error", err)
		c.metricEventDropped()
		conn.channel.Disconnect()
	}
}

func (c *Core) enqueue(conn *connection, msg []byte) error {
	buf, err := c.alloc.Alloc(conn.id, len(msg))
	if err != nil {
		return err
	}
	copy(buf, msg)
	conn.outq.Add(&queueItem{buf: buf})
	conn.queued++
	c.metricQueued(1)
	return nil
}

// scheduleDrain adds the drain job unless one is already outstanding.
func (c *Core) scheduleDrain(conn *connection) {
	if conn.drainJob.Active() {
		return
	}
	id := conn.id
	conn.drainJob = c.loop.AddJob(PriorityHigh, func() bool {
		return c.drain(id)
	})
}

// drain flushes queued events in order and reports whether it must run
// again on the next pass.
func (c *Core) drain(id service.ConnID) bool {
	conn, ok := c.conns.get(id)
	if !ok {
		return false
	}

	var err error
	for conn.outq.Length() > 0 {
		item := conn.outq.Peek().(*queueItem)
		if err = conn.channel.TrySendEvent(item.buf); err != nil {
			break
		}
		conn.outq.Remove()
		c.alloc.Free(conn.id, item.buf)
		conn.sent++
		c.metricQueued(-1)
		c.metricEventSent()
	}

	if conn.outq.Length() == 0 {
		if conn.state == stateQueuing {
			c.logger.Info("queue empty",
				"conn", conn.name,
				"queued", conn.queued,
				"sent", conn.sent)
		}
		conn.state = stateNormal
		conn.queued = 0
		conn.sent = 0
		return false
	}

	if err != nil && !errors.Is(err, ErrWouldBlock) {
		c.logger.Warn("event queue flush stopped",
			"conn", conn.name,
			"pending", conn.outq.Length(),
			"error", err)
	}
	return true
}

// releaseQueue frees every queued item of conn and cancels its drain job.
func (c *Core) releaseQueue(conn *connection) {
	conn.drainJob.Cancel()
	conn.drainJob = nil
	for conn.outq.Length() > 0 {
		item := conn.outq.Peek().(*queueItem)
		conn.outq.Remove()
		c.alloc.Free(conn.id, item.buf)
		c.metricQueued(-1)
	}
	conn.state = stateNormal
}
