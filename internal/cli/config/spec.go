package config

// CLIConfig is the configuration for corosync-cli.
type CLIConfig struct {
	// SocketDir holds the daemon's service sockets.
	SocketDir string `koanf:"socket_dir" yaml:"socket_dir"`

	// Server is the admin HTTP address used by status.
	Server string `koanf:"server" yaml:"server"`

	// CAFile verifies the admin server certificate. Empty means plain HTTP.
	CAFile string `koanf:"ca_file" yaml:"ca_file,omitempty"`

	// Output is table, json or yaml.
	Output string `koanf:"output" yaml:"output"`

	// Retries is how many times a request answered with a retryable
	// result is tried.
	Retries int `koanf:"retries" yaml:"retries"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		SocketDir: "/var/run/corosync",
		Server:    "127.0.0.1:5480",
		Output:    "table",
		Retries:   10,
	}
}
