// Package buildinfo provides build information for the corosync binaries.
//
// Values are injected at build time via ldflags; anything left unset is
// filled from the module build info embedded by the Go toolchain:
//
//   - Version: Semantic version (e.g., "1.0.0")
//   - Commit: Git commit hash
//   - BuildTime: Build timestamp
//   - GoVersion: Go compiler version
//
// Usage:
//
//	go build -ldflags "-X github.com/russellb/corosync/internal/infra/buildinfo.Version=v1.0.0"
package buildinfo
