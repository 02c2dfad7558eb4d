package config

import (
	"fmt"
	"slices"
)

// Sanitize returns a copy of cfg that is safe to log. The inline cluster
// secret is replaced by its length; key file paths are kept.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	out := *cfg
	out.IPC.UIDGID.UIDs = slices.Clone(cfg.IPC.UIDGID.UIDs)
	out.IPC.UIDGID.GIDs = slices.Clone(cfg.IPC.UIDGID.GIDs)
	out.Transport.CryptoKey = maskSecret(cfg.Transport.CryptoKey)
	return &out
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return fmt.Sprintf("<%d bytes>", len(s))
}
