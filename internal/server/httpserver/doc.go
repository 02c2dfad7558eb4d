// Package httpserver runs the daemon's operator HTTP listener.
//
// Routes:
//
//   - /healthz, /readyz: probes
//   - /metrics: Prometheus exposition
//   - /v1/status, /v1/stats: JSON status and object database dumps
//   - /corosync.admin.v1.AdminService/*: connect admin RPC
//
// Every route runs behind Recover and RequestID. Status and admin routes
// also pass the network allow-list, the per-client rate limit and the
// access log.
package httpserver
