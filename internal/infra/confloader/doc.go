// Package confloader loads the daemon configuration with koanf.
//
// Sources, later ones overriding earlier ones:
//
//  1. the defaults already present in the target struct
//  2. a YAML file
//  3. environment variables
//  4. an explicit map, used for command-line flags
//
// Environment variables carry the COROSYNC_ prefix and use a double
// underscore between sections, so COROSYNC_IPC__SOCKET_DIR sets
// ipc.socket_dir.
//
// Watcher reports changes of the configuration file so the daemon can
// apply the settings that are safe to change at runtime.
package confloader
