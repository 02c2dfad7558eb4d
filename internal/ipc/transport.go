package ipc

import (
	"errors"

	"github.com/russellb/corosync/internal/core/domain"
	"github.com/russellb/corosync/internal/core/service"
)

// ============================================================================
// Channel Errors
// ============================================================================

var (
	// ErrWouldBlock is returned by a non-blocking send when the peer is
	// not reading fast enough.
	ErrWouldBlock = errors.New("ipc: send would block")

	// ErrChannelClosed is returned when sending on a closed channel.
	ErrChannelClosed = errors.New("ipc: channel closed")

	// ErrRetryClose is returned by Closed when a service asks for the
	// close to be retried later.
	ErrRetryClose = errors.New("ipc: close must be retried")

	// ErrNoMemory is returned by an ItemAllocator that cannot hold
	// another queued event.
	ErrNoMemory = errors.New("ipc: outbound queue allocation failed")
)

// Credentials identify the process on the other end of a channel.
type Credentials struct {
	PID int32
	UID uint32
	GID uint32
}

// ChannelStats are the adapter-side counters of one channel.
type ChannelStats struct {
	Requests    uint64
	Responses   uint64
	Events      uint64
	SendRetries uint64
	RecvRetries uint64
	QueueBytes  int
}

// Channel is one accepted client connection as seen by the core.
type Channel interface {
	// SendResponse writes msg on the request/response channel. It
	// returns ErrWouldBlock when the response buffer is full; the core
	// then disconnects the client.
	SendResponse(msg []byte) error

	// TrySendEvent writes msg on the event channel without blocking. It
	// returns ErrWouldBlock when msg cannot be taken in full.
	TrySendEvent(msg []byte) error

	Credentials() Credentials
	Stats() ChannelStats

	// Disconnect starts tearing the channel down. The adapter later calls
	// Closed and Destroyed.
	Disconnect()
}

// Acceptor is the per-service listener of the channel adapter.
type Acceptor interface {
	Service() domain.ServiceID
	SetRateLimit(d domain.Directive)
}

// Transport is the cluster-wide broadcast transport. Callbacks may be
// invoked from any goroutine.
type Transport interface {
	// Reserve reserves queue capacity for a message of size bytes. It
	// returns the number of slots taken, 0 when the queue is full, or -1
	// when size can never be sent.
	Reserve(size int) int
	Release(slots int)
	Multicast(msg []byte, guarantee domain.Guarantee) error

	QueueLevel() domain.QueueLevel
	// CheckQueueLevel re-evaluates the queue level and reports a change
	// through the OnQueueLevel callback.
	CheckQueueLevel()

	OnQueueLevel(fn func(level domain.QueueLevel))
	OnLowResource(fn func(notEnough bool, available int))
	// OnDeliver is called for every delivered message. swap is true when
	// the origin uses the other byte order.
	OnDeliver(fn func(nodeID uint32, msg []byte, swap bool))
}

// Quorum reports the quorate state of the cluster.
type Quorum interface {
	IsQuorate() bool
	OnQuorumChange(fn func(quorate bool))
}

// Cluster is the membership view of the transport.
type Cluster interface {
	LocalNodeID() uint32
	Members() []service.Member
	RingSeq() uint64
	RingStatus() []service.RingInterface
}

// ConnectionInfo describes a new connection for the statistics database.
type ConnectionInfo struct {
	Service domain.ServiceID
	PID     int32
}

// ConnectionStats are the per-connection values kept in the statistics
// database.
type ConnectionStats struct {
	ChannelStats
	FlowControl      domain.Directive
	FlowControlCount uint64
	QueueSize        int
	InvalidRequest   uint64
	Overload         uint64
}

// StatsDB is the object database holding runtime statistics.
type StatsDB interface {
	ConnectionCreated(name string, info ConnectionInfo) error
	ConnectionUpdated(name string, stats ConnectionStats) error
	ConnectionClosed(name string) error
	AddCounters(deltas map[string]uint64) error
	MemberUpdated(m service.Member, status string) error
}
