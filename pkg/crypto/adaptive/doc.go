// Package adaptive seals cluster frames with an AEAD cipher.
//
// The cipher is chosen by hardware: AES-256-GCM where the architecture has
// AES instructions, ChaCha20-Poly1305 elsewhere. Every node of a cluster
// must use the same type, so the type can also be pinned by name.
//
// Keys are never used as read from disk. DeriveKey stretches the shared
// authkey with HKDF-SHA256, salted by the cluster name, so two clusters
// sharing an authkey by accident still cannot read each other's traffic.
//
//	key, err := adaptive.LoadKeyFile("/etc/corosync/authkey", "prod")
//	c, err := adaptive.New(key)
//	sealed, err := c.Encrypt(payload, header)
package adaptive
