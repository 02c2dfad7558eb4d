package main

import (
	"context"
	"path/filepath"

	"github.com/russellb/corosync/internal/infra/confloader"
	"github.com/russellb/corosync/internal/infra/shutdown"
	"github.com/russellb/corosync/internal/server/config"
	"github.com/russellb/corosync/internal/telemetry/logger"
)

// watchConfig reloads the runtime-adjustable settings when the
// configuration file changes or on SIGHUP, and the HTTP certificate when
// its files change.
func (d *daemon) watchConfig(loader *confloader.Loader, sh *shutdown.Handler) error {
	if loader.FilePath() != "" {
		sh.OnReload(func() { d.reload(loader) })
	}

	var certFile, keyFile string
	if d.keyPair != nil {
		certFile, keyFile = d.keyPair.Files()
	}
	if loader.FilePath() == "" && certFile == "" {
		return nil
	}

	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(d.logger.With("component", "config-watcher")))
	if err != nil {
		return err
	}
	for _, path := range []string{loader.FilePath(), certFile, keyFile} {
		if path == "" {
			continue
		}
		if err := w.Watch(path); err != nil {
			w.Stop()
			return err
		}
	}

	configPath, _ := filepath.Abs(loader.FilePath())
	w.OnChange(func(path string) {
		if loader.FilePath() != "" && path == configPath {
			d.reload(loader)
			return
		}
		d.keyPair.Reload()
	})
	w.StartAsync()
	sh.OnShutdown("config-watcher", func(context.Context) error { return w.Stop() })
	return nil
}

// reload applies the uid/gid allow-list and the log level from a fresh
// read of every configuration source. Other settings need a restart.
func (d *daemon) reload(loader *confloader.Loader) {
	cfg := config.Default()
	if err := loader.Reload(cfg); err != nil {
		d.logger.Error("configuration reload failed", "error", err)
		return
	}
	if err := config.Verify(cfg); err != nil {
		d.logger.Error("reloaded configuration rejected", "error", err)
		return
	}

	d.core.SetAccess(cfg.IPC.UIDGID.UIDs, cfg.IPC.UIDGID.GIDs)
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		d.logger.Warn("log level not changed", "error", err)
	}
	d.logger.Info("configuration reloaded",
		"uids", len(cfg.IPC.UIDGID.UIDs),
		"gids", len(cfg.IPC.UIDGID.GIDs),
		"log_level", logger.GetLevel())
}
