// Package service provides the service engines loaded by the daemon.
//
// A service engine is a Descriptor: a table of library handlers for
// requests arriving from local clients and a table of execution handlers
// for messages delivered by the cluster transport. The package contains:
//
//   - registry.go: Registry indexed by domain.ServiceID
//   - api.go: API the engines call back into (responses, events, multicast)
//   - codec.go: fixed-layout payload helpers shared by the engines
//   - cfg.go: configuration and ring status engine
//   - cpg.go: closed process groups
//   - quorum.go: quorum state queries and tracking
//   - pload.go: multicast load generator
//
// Engines run on the daemon event loop and never block.
package service
