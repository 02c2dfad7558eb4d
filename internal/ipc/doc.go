// Package ipc implements message admission and flow control between local
// clients and the cluster transport.
//
// All state lives on a single cooperative event loop:
//
//   - loop.go: the loop, its prioritized job queue and timers
//   - arena.go: connection slots addressed by generation-checked handles
//   - context.go: the process-wide Core and the API handed to services
//   - glue.go: lifecycle hooks called by the channel adapter
//   - admission.go: per-request admission decisions
//   - outq.go: per-connection outbound event queue and its drain job
//   - flowcontrol.go: directive selection per service acceptor
//   - dispatch.go: delivery of transport messages to service engines
//   - sync.go: resynchronization epochs after membership changes
//   - stats.go: periodic export to the statistics database
//
// Adapter goroutines never touch connection state directly. They post
// work with Loop.Post or Loop.Call, except Accept and SetAccess which are
// safe from any goroutine.
package ipc
