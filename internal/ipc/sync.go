package ipc

import (
	"github.com/russellb/corosync/internal/core/service"
)

// ConfigurationChanged starts a resynchronization for a membership
// change. Sync completes once no further change arrives within the
// settle timeout.
func (c *Core) ConfigurationChanged(change service.ConfChange) {
	c.logger.Info("configuration change",
		"ring_seq", change.RingSeq,
		"members", len(change.Members),
		"joined", len(change.Joined),
		"left", len(change.Left))

	if c.stats != nil {
		for _, m := range change.Joined {
			if err := c.stats.MemberUpdated(m, "joined"); err != nil {
				c.logger.Warn("member record update failed", "node_id", m.NodeID, "error", err)
			}
		}
		for _, m := range change.Left {
			if err := c.stats.MemberUpdated(m, "left"); err != nil {
				c.logger.Warn("member record update failed", "node_id", m.NodeID, "error", err)
			}
		}
	}

	c.setSyncing(true)

	c.registry.Each(func(d *service.Descriptor) {
		if d.ConfChg != nil {
			d.ConfChg(c.api, change)
		}
	})

	c.settle.Stop()
	if !c.stopped {
		c.settle = c.loop.AfterFunc(c.settleTimeout, c.SyncCompleted)
	}
}

// SyncCompleted ends the current resynchronization.
func (c *Core) SyncCompleted() {
	c.settle.Stop()
	if !c.syncing {
		return
	}
	c.logger.Info("Completed service synchronization, ready to provide service.")
	c.setSyncing(false)
}

// Syncing reports whether a resynchronization is in progress.
func (c *Core) Syncing() bool {
	return c.syncing
}

func (c *Core) setSyncing(syncing bool) {
	if c.syncing == syncing {
		return
	}
	c.syncing = syncing
	c.recompute()
}
