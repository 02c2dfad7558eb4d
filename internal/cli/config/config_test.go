package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()
	if !strings.HasSuffix(path, filepath.Join(".corosync", "cli.yaml")) {
		t.Errorf("DefaultConfigPath() = %q", path)
	}
}

func TestLoad_Missing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "cli.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if *cfg != *Default() {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cli.yaml")

	want := Default()
	want.SocketDir = "/run/corosync"
	want.Output = "json"
	want.Retries = 3
	if err := Save(want, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file mode = %o, want 600", perm)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if *got != *want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	if err := os.WriteFile(path, []byte("server: 10.0.0.1:5480\noutput: yaml\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("COROSYNC_CLI_SERVER", "10.0.0.2:5480")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server != "10.0.0.2:5480" {
		t.Errorf("Server = %q, want env value", cfg.Server)
	}
	if cfg.Output != "yaml" {
		t.Errorf("Output = %q, want file value", cfg.Output)
	}
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() accepted invalid yaml")
	}
}

func TestMerge(t *testing.T) {
	base := Default()
	got := Merge(base, map[string]string{
		"socket_dir": "/tmp/cs",
		"output":     "",
		"ca_file":    "/etc/ca.pem",
	})

	if got.SocketDir != "/tmp/cs" || got.CAFile != "/etc/ca.pem" {
		t.Errorf("Merge() = %+v", got)
	}
	if got.Output != base.Output {
		t.Errorf("empty flag replaced Output: %q", got.Output)
	}
	if base.SocketDir != Default().SocketDir {
		t.Error("Merge() modified its input")
	}
}
