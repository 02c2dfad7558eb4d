// Package metric provides Prometheus metrics for corosync.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: application registry and HTTP handler
//   - collector.go: scrape-time collector for the cluster view
//
// Metrics include:
//
//   - Client connection gauges and counters
//   - Admission decisions by outcome
//   - Outbound event queue depth and drops
//   - Flow control directive per service
//   - Transport queue level and traffic per service
//
// Metrics are exposed at /metrics in Prometheus format.
package metric
