// Package tlsroots builds the TLS configuration of the operator endpoint.
//
//   - roots.go: client CA pools from PEM files
//   - keypair.go: a reloadable server certificate
//
// KeyPair.Reload is registered on SIGHUP and with the configuration
// watcher, so rotated certificates are served without a restart.
package tlsroots
