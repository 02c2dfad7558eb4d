// Package config holds the corosync-cli settings file.
//
//   - spec.go: CLIConfig (~/.corosync/cli.yaml)
//   - loader.go: loading, saving and environment overrides
//
// Environment variables prefixed COROSYNC_CLI_ override the file, and
// command-line flags override both.
package config
