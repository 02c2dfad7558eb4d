// Package command defines the corosync-cli command tree on urfave/cli.
//
// Library commands (cfg, cpg, quorum, pload) talk to the service sockets
// under --socket-dir. status reads the admin RPC service over HTTP.
// shell runs the same commands interactively.
package command
