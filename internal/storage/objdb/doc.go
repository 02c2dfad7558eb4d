// Package objdb holds the runtime statistics of the daemon in an
// in-memory Badger database.
//
// Keys are dotted paths:
//
//	stats.ipcs.<conn>.<field>         per-connection state and counters
//	stats.services.<svc>.<fn>.tx|rx   per-message-type counters
//	runtime.members.<nodeid>.<field>  membership history
//
// Counters are stored as big-endian uint64 and rendered in decimal by
// Scan. Everything else is a UTF-8 string.
package objdb
