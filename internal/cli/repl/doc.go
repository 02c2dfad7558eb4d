// Package repl runs corosync-cli commands interactively. Each line is
// split into arguments and handed to an Exec function, normally the CLI
// app itself, so the shell and one-shot mode share every command.
package repl
