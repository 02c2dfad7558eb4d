package ipc

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/russellb/corosync/internal/core/domain"
	"github.com/russellb/corosync/internal/core/service"
	"github.com/russellb/corosync/internal/telemetry/metric"
)

// Default timings.
const (
	DefaultRecheckInterval = time.Millisecond
	DefaultSettleTimeout   = 200 * time.Millisecond
	DefaultStatsInterval   = 5 * time.Second
)

// Config holds the collaborators and settings of a Core.
type Config struct {
	Registry  *service.Registry
	Transport Transport
	Quorum    Quorum
	Cluster   Cluster

	// Stats receives runtime statistics. Optional.
	Stats StatsDB
	// Metrics receives Prometheus metrics. Optional.
	Metrics *metric.Registry
	// Allocator provides queue item memory. Defaults to a BudgetAllocator
	// with MaxQueueBytes.
	Allocator     ItemAllocator
	MaxQueueBytes int

	// AllowedUIDs and AllowedGIDs may connect in addition to root.
	AllowedUIDs []uint32
	AllowedGIDs []uint32

	RecheckInterval time.Duration
	SettleTimeout   time.Duration
	StatsInterval   time.Duration

	Logger *slog.Logger
}

// Core is the process-wide admission and flow-control state. Unless
// stated otherwise its methods must run on the loop.
type Core struct {
	loop      *Loop
	registry  *service.Registry
	transport Transport
	quorum    Quorum
	cluster   Cluster
	stats     StatsDB
	metrics   *metric.Registry
	alloc     ItemAllocator
	logger    *slog.Logger
	procName  func(pid int32) string

	conns     arena[connection]
	acceptors []*acceptorState
	api       *engineAPI

	// Flow control inputs.
	quorate bool
	level   domain.QueueLevel
	syncing bool

	recheck         *Timer
	recheckInterval time.Duration

	settle        *Timer
	settleTimeout time.Duration

	statsTimer    *Timer
	statsInterval time.Duration
	counters      map[string]uint64

	// Read from adapter goroutines in Accept.
	lowFDs atomic.Bool
	access atomic.Pointer[accessList]

	stopped bool
}

// NewCore creates a Core bound to loop.
func NewCore(cfg Config, loop *Loop) (*Core, error) {
	if cfg.Registry == nil || cfg.Transport == nil || cfg.Quorum == nil || cfg.Cluster == nil {
		return nil, errors.New("ipc: registry, transport, quorum and cluster are required")
	}
	if loop == nil {
		return nil, errors.New("ipc: loop is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	alloc := cfg.Allocator
	if alloc == nil {
		alloc = NewBudgetAllocator(cfg.MaxQueueBytes)
	}

	c := &Core{
		loop:            loop,
		registry:        cfg.Registry,
		transport:       cfg.Transport,
		quorum:          cfg.Quorum,
		cluster:         cfg.Cluster,
		stats:           cfg.Stats,
		metrics:         cfg.Metrics,
		alloc:           alloc,
		logger:          logger.With("component", "ipc"),
		procName:        procNameFromProc,
		syncing:         true,
		recheckInterval: durationOr(cfg.RecheckInterval, DefaultRecheckInterval),
		settleTimeout:   durationOr(cfg.SettleTimeout, DefaultSettleTimeout),
		statsInterval:   durationOr(cfg.StatsInterval, DefaultStatsInterval),
		counters:        make(map[string]uint64),
	}
	c.api = &engineAPI{core: c}
	c.SetAccess(cfg.AllowedUIDs, cfg.AllowedGIDs)
	return c, nil
}

func durationOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// Loop returns the loop the core runs on.
func (c *Core) Loop() *Loop {
	return c.loop
}

// Start subscribes to the collaborators and applies the initial state.
// Notifications are posted to the loop.
func (c *Core) Start() {
	c.quorate = c.quorum.IsQuorate()
	c.level = c.transport.QueueLevel()
	c.metricQueueLevel(c.level)

	c.transport.OnQueueLevel(func(level domain.QueueLevel) {
		c.loop.Post(func() { c.queueLevelChanged(level) })
	})
	c.transport.OnLowResource(func(notEnough bool, available int) {
		c.loop.Post(func() { c.lowResource(notEnough, available) })
	})
	c.transport.OnDeliver(func(nodeID uint32, msg []byte, swap bool) {
		c.loop.Post(func() { c.deliver(nodeID, msg, swap) })
	})
	c.quorum.OnQuorumChange(func(quorate bool) {
		c.loop.Post(func() { c.quorumChanged(quorate) })
	})

	c.statsTimer = c.loop.AfterFunc(c.statsInterval, c.statsTick)
	c.recompute()
}

// Stop cancels every timer owned by the core.
func (c *Core) Stop() {
	c.stopped = true
	c.recheck.Stop()
	c.settle.Stop()
	c.statsTimer.Stop()
	c.flushStats()
}

// API returns the interface handed to service engines.
func (c *Core) API() service.API {
	return c.api
}

func (c *Core) quorumChanged(quorate bool) {
	if quorate == c.quorate {
		return
	}
	c.quorate = quorate
	c.logger.Info("quorum state changed", "quorate", quorate)
	c.recompute()

	c.registry.Each(func(d *service.Descriptor) {
		if d.QuorumChange != nil {
			d.QuorumChange(c.api, quorate)
		}
	})
}

func (c *Core) queueLevelChanged(level domain.QueueLevel) {
	c.metricQueueLevel(level)
	if level == c.level {
		return
	}
	c.logger.Debug("transport queue level changed", "from", c.level, "to", level)
	c.level = level
	c.recompute()
}

func (c *Core) lowResource(notEnough bool, available int) {
	c.lowFDs.Store(notEnough)
	if notEnough {
		c.logger.Warn("refusing new connections", "fds_available", available)
	} else {
		c.logger.Info("allowing new connections", "fds_available", available)
	}
}

// engineAPI implements service.API on top of the core.
type engineAPI struct {
	core *Core
}

func (a *engineAPI) Respond(id service.ConnID, msg []byte) error {
	conn, ok := a.core.conns.get(id)
	if !ok {
		return domain.ErrConnectionGone
	}
	err := conn.channel.SendResponse(msg)
	if errors.Is(err, ErrWouldBlock) {
		a.core.logger.Warn("response buffer full, disconnecting client",
			"conn", conn.name,
			"service", conn.svc)
		conn.channel.Disconnect()
		return domain.ErrResponseOverflow.WithCause(err)
	}
	return err
}

func (a *engineAPI) Event(id service.ConnID, msg []byte) {
	conn, ok := a.core.conns.get(id)
	if !ok {
		return
	}
	a.core.sendEvent(conn, msg)
}

func (a *engineAPI) Multicast(msg []byte, guarantee domain.Guarantee) error {
	return a.core.multicast(msg, guarantee)
}

func (a *engineAPI) Reserve(size int) int {
	return a.core.transport.Reserve(size)
}

func (a *engineAPI) Release(slots int) {
	a.core.transport.Release(slots)
}

func (a *engineAPI) Schedule(job func() bool) {
	a.core.loop.AddJob(PriorityLow, job)
}

func (a *engineAPI) Private(id service.ConnID) any {
	conn, ok := a.core.conns.get(id)
	if !ok {
		return nil
	}
	return conn.private
}

func (a *engineAPI) IsQuorate() bool {
	return a.core.quorate
}

func (a *engineAPI) LocalNodeID() uint32 {
	return a.core.cluster.LocalNodeID()
}

func (a *engineAPI) Members() []service.Member {
	return a.core.cluster.Members()
}

func (a *engineAPI) RingSeq() uint64 {
	return a.core.cluster.RingSeq()
}

func (a *engineAPI) RingStatus() []service.RingInterface {
	return a.core.cluster.RingStatus()
}

func (a *engineAPI) Logger() *slog.Logger {
	return a.core.logger
}
