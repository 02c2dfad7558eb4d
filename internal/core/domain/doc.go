// Package domain defines the core domain vocabulary for the cluster daemon.
//
// Domain types are plain values without IO dependencies:
//
//   - ServiceID: fixed service numbering and short names
//   - Header: generic request/response headers and the id split
//   - Result: client-facing result codes
//   - Decision, Directive, QueueLevel: admission and flow-control vocabulary
//   - Errors: domain error codes and their result mapping
package domain
