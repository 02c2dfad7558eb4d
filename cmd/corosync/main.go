package main

import (
	"context"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/russellb/corosync/internal/core/domain"
	"github.com/russellb/corosync/internal/core/service"
	"github.com/russellb/corosync/internal/infra/buildinfo"
	"github.com/russellb/corosync/internal/infra/confloader"
	"github.com/russellb/corosync/internal/infra/shutdown"
	"github.com/russellb/corosync/internal/infra/tlsroots"
	"github.com/russellb/corosync/internal/ipc"
	"github.com/russellb/corosync/internal/server/clusterserver"
	"github.com/russellb/corosync/internal/server/config"
	"github.com/russellb/corosync/internal/server/httpserver"
	"github.com/russellb/corosync/internal/server/httpserver/handler"
	"github.com/russellb/corosync/internal/server/localserver"
	"github.com/russellb/corosync/internal/storage/objdb"
	"github.com/russellb/corosync/internal/telemetry/logger"
	"github.com/russellb/corosync/internal/telemetry/metric"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		nodeName    = flag.String("node", "", "Node name (overrides node.name)")
		logLevel    = flag.String("log-level", "", "Log level (overrides log.level)")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("corosync %s\n", buildinfo.String())
		return nil
	}

	overrides := map[string]any{}
	if *nodeName != "" {
		overrides["node.name"] = *nodeName
	}
	if *logLevel != "" {
		overrides["log.level"] = *logLevel
	}
	opts := []confloader.Option{confloader.WithOverrides(overrides)}
	if *configFile != "" {
		opts = append(opts, confloader.WithConfigFile(*configFile))
	}
	loader := confloader.NewLoader(opts...)

	cfg, err := loadConfig(loader)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(log)

	info := buildinfo.Get()
	log.Info("Corosync Cluster Engine starting",
		"version", info.Version,
		"commit", info.Commit,
		"config", *configFile)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	d, err := newDaemon(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	shutdownHandler := shutdown.NewHandler(30*time.Second, log)
	if err := d.start(ctx, cancel, shutdownHandler); err != nil {
		shutdownHandler.Shutdown()
		return err
	}

	if err := d.watchConfig(loader, shutdownHandler); err != nil {
		log.Warn("configuration reload disabled", "error", err)
	}

	log.Info("Corosync Cluster Engine started and ready to provide service.")
	if err := shutdownHandler.Wait(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("Corosync Cluster Engine exiting normally")
	return nil
}

// loadConfig loads configuration from file, environment and flags.
func loadConfig(loader *confloader.Loader) (*config.ServerConfig, error) {
	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// daemon holds every long-lived component.
type daemon struct {
	cfg    *config.ServerConfig
	logger *slog.Logger

	registry  *service.Registry
	db        *objdb.DB
	metrics   *metric.Registry
	loop      *ipc.Loop
	broadcast *clusterserver.Broadcast
	discovery *clusterserver.Discovery
	ring      atomic.Pointer[clusterserver.Discovery]
	votes     *clusterserver.VoteQuorum
	raft      *clusterserver.RaftQuorum
	core      *ipc.Core
	local     *localserver.Server
	http      *httpserver.Server
	keyPair   *tlsroots.KeyPair
}

func newDaemon(cfg *config.ServerConfig, log *slog.Logger) (*daemon, error) {
	d := &daemon{cfg: cfg, logger: log}

	d.registry = service.NewRegistry()
	if err := service.RegisterDefaults(d.registry); err != nil {
		return nil, fmt.Errorf("register services: %w", err)
	}

	d.metrics = metric.NewRegistry()

	db, err := objdb.Open(log.With("component", "objdb"))
	if err != nil {
		return nil, fmt.Errorf("open object database: %w", err)
	}
	d.db = db.RegisterMetrics(d.metrics.Prometheus())

	d.loop = ipc.NewLoop(log.With("component", "loop"))
	return d, nil
}

// start brings the components up in dependency order and registers their
// shutdown hooks. cancel ends the daemon when the event loop fails.
func (d *daemon) start(ctx context.Context, cancel context.CancelCauseFunc, sh *shutdown.Handler) error {
	cfg, log := d.cfg, d.logger
	name := config.NodeName(cfg, log)
	nodeID := clusterserver.NodeIDFromName(name)

	sh.OnShutdown("objdb", func(context.Context) error { return d.db.Close() })

	bc, err := config.ToBroadcastConfig(cfg, nodeID, log.With("component", "totem"))
	if err != nil {
		return err
	}
	d.broadcast = clusterserver.NewBroadcast(bc)

	var quorum ipc.Quorum
	switch cfg.Quorum.Provider {
	case config.QuorumRaft:
		fsm := clusterserver.NewFSM(log.With("component", "raft-fsm"))
		d.raft, err = clusterserver.NewRaftQuorum(config.ToRaftConfig(cfg, name, log.With("component", "raft")), fsm)
		if err != nil {
			return fmt.Errorf("start raft quorum: %w", err)
		}
		sh.OnShutdown("raft", func(context.Context) error { return d.raft.Close() })
		quorum = d.raft
	default:
		d.votes = clusterserver.NewVoteQuorum(cfg.Quorum.ExpectedVotes, log.With("component", "votequorum"))
		quorum = d.votes
	}

	dc := config.ToDiscoveryConfig(cfg, name, d.broadcast, log.With("component", "membership"))
	dc.NodeID = nodeID
	if d.raft != nil {
		dc.RaftAddr = d.raft.Addr()
	}
	dc.OnChange = d.configurationChanged
	d.discovery, err = clusterserver.NewDiscovery(dc)
	if err != nil {
		return fmt.Errorf("start membership: %w", err)
	}
	d.ring.Store(d.discovery)
	sh.OnShutdown("membership", func(context.Context) error {
		if err := d.discovery.Leave(5 * time.Second); err != nil {
			log.Warn("leave broadcast not confirmed", "error", err)
		}
		return d.discovery.Shutdown()
	})

	coreCfg := ipc.Config{
		Registry:  d.registry,
		Transport: d.broadcast,
		Quorum:    quorum,
		Cluster:   d.discovery,
		Stats:     d.db,
		Metrics:   d.metrics,
		Logger:    log,
	}
	config.ApplyCore(cfg, &coreCfg)
	d.core, err = ipc.NewCore(coreCfg, d.loop)
	if err != nil {
		return fmt.Errorf("create ipc core: %w", err)
	}
	d.metrics.Prometheus().MustRegister(metric.NewCollector(clusterView{d.discovery, quorum}))

	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := d.loop.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			cancel(fmt.Errorf("event loop: %w", err))
		}
	}()
	sh.OnShutdown("loop", func(ctx context.Context) error {
		if err := d.loop.Call(ctx, d.core.Stop); err != nil {
			log.Warn("ipc core did not stop cleanly", "error", err)
		}
		stopLoop()
		select {
		case <-loopDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err := d.loop.Call(ctx, d.core.Start); err != nil {
		return fmt.Errorf("start ipc core: %w", err)
	}

	monitor := clusterserver.NewFDMonitor(nil, cfg.IPC.MinFreeFDs, time.Second, d.broadcast.LowResource, log.With("component", "fdmon"))
	go monitor.Run(ctx)

	var services []domain.ServiceID
	d.registry.Each(func(desc *service.Descriptor) {
		if desc.HasIPC() {
			services = append(services, desc.ID)
		}
	})
	d.local = localserver.New(config.ToLocalServerConfig(cfg, services), d.core, d.loop, log.With("component", "ipc-server"))
	if err := d.local.Start(ctx); err != nil {
		return fmt.Errorf("start ipc server: %w", err)
	}
	sh.OnShutdown("ipc-server", d.local.Shutdown)

	if cfg.HTTP.Addr == "" {
		return nil
	}
	return d.startHTTP(sh)
}

func (d *daemon) startHTTP(sh *shutdown.Handler) error {
	cfg, log := d.cfg, d.logger.With("component", "http")

	h := handler.New(handler.Config{
		Status: d.status,
		Stats:  d.db,
		Logger: log,
	})
	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Handler:        h,
		Metrics:        d.metrics.Handler(),
		AdminAllowList: cfg.HTTP.AllowList,
		RateLimit:      cfg.HTTP.RateLimit,
		Logger:         log,
	})
	d.http = httpserver.New(cfg.HTTP.Addr, router, log)

	if cfg.HTTP.TLSCertFile != "" {
		kp, err := tlsroots.NewKeyPair(cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile, log)
		if err != nil {
			return err
		}
		d.keyPair = kp
		var clientCAs *x509.CertPool
		if cfg.HTTP.TLSClientCAFile != "" {
			if clientCAs, err = tlsroots.LoadCAFile(cfg.HTTP.TLSClientCAFile); err != nil {
				return err
			}
		}
		d.http.UseTLS(tlsroots.ServerConfig(kp, clientCAs))
		sh.OnReload(func() { kp.Reload() })
	}

	if err := d.http.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	sh.OnShutdown("http", d.http.Shutdown)
	return nil
}

// status reads the core status on the event loop.
func (d *daemon) status(ctx context.Context) (ipc.Status, error) {
	var st ipc.Status
	err := d.loop.Call(ctx, func() { st = d.core.Status() })
	return st, err
}

// configurationChanged receives membership changes from memberlist
// goroutines. The core sees them on the event loop.
func (d *daemon) configurationChanged(change service.ConfChange) {
	if d.votes != nil {
		d.votes.SetMembers(len(change.Members))
	}
	if d.raft != nil {
		d.raft.Track(change, d.raftAddr)
	}
	d.loop.Post(func() {
		if d.core != nil {
			d.core.ConfigurationChanged(change)
		}
	})
}

// raftAddr resolves a member's raft address. Changes reported while the
// membership is still being created only carry the local node.
func (d *daemon) raftAddr(nodeID uint32) (string, bool) {
	if disc := d.ring.Load(); disc != nil {
		return disc.RaftAddr(nodeID)
	}
	return "", false
}

// clusterView adapts the membership and quorum to metric.ClusterSource.
type clusterView struct {
	discovery *clusterserver.Discovery
	quorum    ipc.Quorum
}

func (v clusterView) MemberCount() int { return v.discovery.NumMembers() }
func (v clusterView) IsQuorate() bool  { return v.quorum.IsQuorate() }
func (v clusterView) RingSeq() uint64  { return v.discovery.RingSeq() }
