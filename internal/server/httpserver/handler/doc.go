// Package handler serves the daemon's operator endpoints: liveness and
// readiness probes, a JSON status view, object database dumps and the
// connect admin service.
package handler
