// Package clusterserver connects the daemon to its peers.
//
// Membership comes from a memberlist gossip pool. Each join or leave starts
// a new ring with a higher sequence number and is reported as a
// service.ConfChange. The same pool carries totally ordered multicast
// frames for the service engines: Broadcast implements ipc.Transport,
// buffering outgoing frames in a bounded queue whose occupancy drives the
// queue level seen by flow control.
//
// Quorum is decided either by vote counting over the gossip membership
// (VoteQuorum) or by the presence of a raft leader (RaftQuorum). The raft
// log records every ring the leader has seen.
//
// FDMonitor samples descriptor usage and feeds the low-resource signal.
package clusterserver
