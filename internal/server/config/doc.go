// Package config provides the corosync daemon configuration.
//
// This package defines the configuration structure and validation:
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Business validation (ranges, addresses, quorum provider)
//   - sanitize.go: Log sanitization (hide the cluster secret)
//   - convert.go: Mapping onto the component configurations
//
// Configuration is loaded via internal/infra/confloader and supports
// multiple sources: files, environment variables, and flags.
package config
