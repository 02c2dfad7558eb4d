package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/russellb/corosync/internal/infra/confloader"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "COROSYNC_CLI_"

// DefaultConfigPath returns the default CLI config file path.
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".corosync", "cli.yaml")
}

// Load reads the file at path, or the default path when empty, and
// applies environment overrides. A missing file yields the defaults.
func Load(path string) (*CLIConfig, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	opts := []confloader.Option{confloader.WithEnvPrefix(EnvPrefix)}
	if _, err := os.Stat(path); err == nil {
		opts = append(opts, confloader.WithConfigFile(path))
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	cfg := Default()
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path, or the default path when empty, readable by
// the owner only.
func Save(cfg *CLIConfig, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Merge applies non-empty flag values over cfg. Keys are the koanf names
// of CLIConfig fields.
func Merge(cfg *CLIConfig, flags map[string]string) *CLIConfig {
	out := *cfg
	for key, v := range flags {
		if v == "" {
			continue
		}
		switch key {
		case "socket_dir":
			out.SocketDir = v
		case "server":
			out.Server = v
		case "ca_file":
			out.CAFile = v
		case "output":
			out.Output = v
		}
	}
	return &out
}
