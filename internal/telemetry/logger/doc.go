// Package logger builds the daemon's structured loggers.
//
// Every component takes a *slog.Logger; this package constructs the root
// one from configuration:
//
//   - logger.go: handler construction and the process-wide level
//   - context.go: request id and logger propagation through contexts
//   - redact.go: masking of secrets by attribute key
//
// The level is held in a shared slog.LevelVar, so SetLevel takes effect
// on every logger derived from New, including those handed to the
// hashicorp and badger adapters.
package logger
