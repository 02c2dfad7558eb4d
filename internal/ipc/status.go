package ipc

import (
	"github.com/russellb/corosync/internal/core/domain"
	"github.com/russellb/corosync/internal/core/service"
)

// Status is a point-in-time view of the core for operators.
type Status struct {
	LocalNodeID uint32
	RingSeq     uint64
	Members     []service.Member
	Quorate     bool
	Syncing     bool
	QueueLevel  domain.QueueLevel
	Connections int

	// Directives holds the enforced directive per service name.
	Directives map[string]domain.Directive
}

// Status returns the current status.
func (c *Core) Status() Status {
	st := Status{
		LocalNodeID: c.cluster.LocalNodeID(),
		RingSeq:     c.cluster.RingSeq(),
		Members:     c.cluster.Members(),
		Quorate:     c.quorate,
		Syncing:     c.syncing,
		QueueLevel:  c.level,
		Connections: c.conns.count(),
		Directives:  make(map[string]domain.Directive, len(c.acceptors)),
	}
	for _, a := range c.acceptors {
		st.Directives[a.desc.Name] = a.enforced
	}
	return st
}
