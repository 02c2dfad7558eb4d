// Command corosync-cli queries and drives a local corosync daemon.
//
// Library commands go over the per-service Unix sockets; status uses the
// admin HTTP service. Run "corosync-cli shell" for interactive mode.
package main
