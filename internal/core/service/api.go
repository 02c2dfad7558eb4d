package service

import (
	"log/slog"
	"net"

	"github.com/russellb/corosync/internal/core/domain"
)

// ConnID is the stable handle of a client connection. A ConnID stays
// invalid once its connection is destroyed, even if the slot is reused.
type ConnID uint64

// Member describes one node in the current membership.
type Member struct {
	NodeID uint32
	Name   string
	Addr   net.IP
}

// RingInterface reports the state of one transport interface.
type RingInterface struct {
	Name   string
	Status string
}

// ConfChange is a configuration change delivered to every engine.
type ConfChange struct {
	RingSeq uint64
	Members []Member
	Joined  []Member
	Left    []Member
}

// API is what the daemon offers to service engines. Every method must be
// called from the event loop.
type API interface {
	// Respond writes msg to the response channel of conn.
	Respond(conn ConnID, msg []byte) error

	// Event sends msg on the event channel of conn, queuing it when the
	// client is not reading fast enough.
	Event(conn ConnID, msg []byte)

	// Multicast sends msg to every node, this one included. msg must
	// start with a request header whose id is domain.MessageID(...).
	Multicast(msg []byte, guarantee domain.Guarantee) error

	// Reserve and Release expose transport capacity to engines that
	// pace their own multicasts.
	Reserve(size int) int
	Release(slots int)

	// Schedule runs job on the low priority queue, once per loop pass,
	// for as long as it returns true.
	Schedule(job func() bool)

	// Private returns the per-connection block created by NewPrivate.
	Private(conn ConnID) any

	IsQuorate() bool
	LocalNodeID() uint32
	Members() []Member
	RingSeq() uint64
	RingStatus() []RingInterface

	Logger() *slog.Logger
}
