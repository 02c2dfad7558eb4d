package confloader

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "COROSYNC_"

// Loader merges the config file, the environment and explicit overrides,
// in that order, over the defaults already held by the target.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	overrides map[string]any
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the YAML file to read.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// WithOverrides sets values applied after every other source. Keys use
// dots between sections.
func WithOverrides(values map[string]any) Option {
	return func(l *Loader) {
		l.overrides = values
	}
}

// NewLoader creates a loader. All sources are read by Load.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FilePath returns the configuration file, if any.
func (l *Loader) FilePath() string {
	return l.filePath
}

// source is one layer of configuration. A nil parser means the provider
// yields a map.
type source struct {
	name     string
	provider koanf.Provider
	parser   koanf.Parser
}

func (l *Loader) sources() []source {
	var out []source
	if l.filePath != "" {
		out = append(out, source{"file " + l.filePath, file.Provider(l.filePath), yaml.Parser()})
	}
	out = append(out, source{"env", env.Provider(l.envPrefix, ".", func(s string) string {
		return EnvKey(l.envPrefix, s)
	}), nil})
	if len(l.overrides) > 0 {
		out = append(out, source{"overrides", mapProvider(l.overrides), nil})
	}
	return out
}

// Load reads every source and unmarshals into target. Fields of target
// not named by any source keep their value, so target should hold the
// defaults.
func (l *Loader) Load(target any) error {
	for _, s := range l.sources() {
		if err := l.k.Load(s.provider, s.parser); err != nil {
			return fmt.Errorf("load %s: %w", s.name, err)
		}
	}
	if err := l.k.Unmarshal("", target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// Reload discards what was loaded and runs Load again.
func (l *Loader) Reload(target any) error {
	l.k = koanf.New(".")
	return l.Load(target)
}

// Has reports whether any source set key.
func (l *Loader) Has(key string) bool {
	return l.k.Exists(key)
}

// EnvKey maps an environment variable name to a configuration key:
// COROSYNC_QUORUM__RAFT__DATA_DIR becomes quorum.raft.data_dir.
func EnvKey(prefix, name string) string {
	s := strings.TrimPrefix(name, prefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "__", ".")
}
