package ipc

import (
	"github.com/russellb/corosync/internal/core/domain"
	"github.com/russellb/corosync/internal/core/service"
)

// acceptorState tracks the directive enforced on one acceptor.
type acceptorState struct {
	acceptor Acceptor
	desc     *service.Descriptor
	enforced domain.Directive
	applied  bool
	changes  uint64
}

// AddAcceptor registers the listener of a service and applies the current
// directive to it.
func (c *Core) AddAcceptor(a Acceptor) error {
	desc, ok := c.registry.Lookup(a.Service())
	if !ok {
		return domain.ErrServiceUnknown.WithDetails(a.Service().String())
	}
	c.acceptors = append(c.acceptors, &acceptorState{acceptor: a, desc: desc})
	c.recompute()
	return nil
}

// RemoveAcceptor forgets a listener.
func (c *Core) RemoveAcceptor(a Acceptor) {
	for i, st := range c.acceptors {
		if st.acceptor == a {
			c.acceptors = append(c.acceptors[:i], c.acceptors[i+1:]...)
			return
		}
	}
}

// Directive returns the directive currently enforced for svc.
func (c *Core) Directive(svc domain.ServiceID) (domain.Directive, bool) {
	for _, st := range c.acceptors {
		if st.desc.ID == svc {
			return st.enforced, st.applied
		}
	}
	return domain.DirectiveOff, false
}

// directiveFor derives the directive of one acceptor from the quorum,
// queue level and sync inputs.
func (c *Core) directiveFor(st *acceptorState) domain.Directive {
	healthy := (st.desc.AllowInquorate || c.quorate) && !c.syncing

	if c.level == domain.LevelCritical {
		if st.enforced.Throttled() || (healthy && st.applied) {
			return st.enforced
		}
		return domain.DirectiveSlow
	}
	if healthy {
		return domain.DirectiveOff
	}

	switch c.level {
	case domain.LevelLow:
		return domain.DirectiveFast
	case domain.LevelGood:
		return domain.DirectiveNormal
	default:
		return domain.DirectiveSlow
	}
}

// recompute applies the current directive to every acceptor and keeps
// the recheck timer in step with it.
func (c *Core) recompute() {
	anyOff := false
	for _, st := range c.acceptors {
		d := c.directiveFor(st)
		if d == domain.DirectiveOff {
			anyOff = true
		}
		if st.applied && d == st.enforced {
			continue
		}
		st.acceptor.SetRateLimit(d)
		if st.applied && d.Throttled() && !st.enforced.Throttled() {
			st.changes++
		}
		st.enforced = d
		st.applied = true
		c.metricDirective(st.desc.Name, d)
	}

	c.updateRecheck(anyOff || c.level == domain.LevelCritical)
}

// updateRecheck arms or cancels the single recheck timer. The timer polls
// the transport queue level while some acceptor is unthrottled or the
// level is critical.
func (c *Core) updateRecheck(needed bool) {
	switch {
	case c.stopped:
		return
	case needed && !c.recheck.Pending():
		c.recheck = c.loop.AfterFunc(c.recheckInterval, c.recheckTick)
	case !needed && c.recheck.Pending():
		c.recheck.Stop()
	}
}

func (c *Core) recheckTick() {
	if c.stopped {
		return
	}
	c.transport.CheckQueueLevel()
	c.recompute()
}

// flowControlCount returns how many times svc went from unthrottled to
// throttled.
func (c *Core) flowControlCount(svc domain.ServiceID) uint64 {
	for _, st := range c.acceptors {
		if st.desc.ID == svc {
			return st.changes
		}
	}
	return 0
}
