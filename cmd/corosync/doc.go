// Package main provides the entry point for corosync, the cluster
// communication daemon.
//
// The daemon serves:
//
//   - One Unix socket per service (cfg, cpg, quorum, pload) for local clients
//   - Gossip membership and multicast between nodes
//   - An operator HTTP endpoint with probes, status, metrics and admin RPC
//
// Usage:
//
//	corosync [flags]
//	corosync -config /etc/corosync/corosync.yaml
//
// Every configuration key can also be set through COROSYNC_ environment
// variables, e.g. COROSYNC_QUORUM__PROVIDER=raft.
package main
