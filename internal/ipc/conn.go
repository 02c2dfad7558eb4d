package ipc

import (
	"fmt"

	"github.com/eapache/queue"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/procfs"

	"github.com/russellb/corosync/internal/core/domain"
	"github.com/russellb/corosync/internal/core/service"
)

type queueState int

const (
	stateNormal queueState = iota
	stateQueuing
)

func (s queueState) String() string {
	if s == stateQueuing {
		return "QUEUING"
	}
	return "NORMAL"
}

// connection is the core's view of one client channel. It is only
// touched on the loop.
type connection struct {
	id      service.ConnID
	svc     domain.ServiceID
	desc    *service.Descriptor
	channel Channel
	name    string
	private any

	state    queueState
	outq     *queue.Queue
	drainJob *Job

	// queued and sent count the current queuing episode.
	queued uint64
	sent   uint64

	invalidRequest uint64
	overload       uint64

	exited bool
}

// queueItem owns a copy of one serialized event.
type queueItem struct {
	buf []byte
}

func newConnection(svc domain.ServiceID, desc *service.Descriptor, ch Channel) *connection {
	c := &connection{
		svc:     svc,
		desc:    desc,
		channel: ch,
		outq:    queue.New(),
	}
	if desc.NewPrivate != nil {
		c.private = desc.NewPrivate()
	}
	return c
}

// connectionName builds "procname:pid:instance". The instance part keeps
// names unique across pid reuse.
func connectionName(procName func(pid int32) string, pid int32) string {
	return fmt.Sprintf("%s:%d:%s", procName(pid), pid, ulid.Make().String())
}

// procNameFromProc reads the command name of pid from /proc.
func procNameFromProc(pid int32) string {
	p, err := procfs.NewProc(int(pid))
	if err != nil {
		return "unknown"
	}
	stat, err := p.Stat()
	if err != nil || stat.Comm == "" {
		return "unknown"
	}
	return stat.Comm
}
