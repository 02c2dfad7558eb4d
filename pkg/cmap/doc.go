// Package cmap provides a string keyed map split into independently
// locked shards.
//
// Keys are spread over the shards with murmur3, so readers and writers of
// different keys rarely contend:
//
//	m := cmap.New[*rate.Limiter](16)
//	l := m.GetOrCreate(ip, newLimiter)
package cmap
