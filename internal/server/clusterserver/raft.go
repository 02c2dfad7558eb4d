package clusterserver

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/russellb/corosync/internal/core/service"
	"github.com/russellb/corosync/internal/ipc"
)

// RaftConfig configures the raft quorum provider.
type RaftConfig struct {
	// NodeName is the raft server id.
	NodeName string

	// BindAddr is the address to bind for Raft communication.
	BindAddr string

	// DataDir is the directory for Raft data.
	DataDir string

	// Bootstrap forms a single-voter cluster on first start.
	Bootstrap bool

	// MembershipTimeout bounds voter changes.
	MembershipTimeout time.Duration

	Logger *slog.Logger
}

// RaftQuorum is quorate while a raft leader is known. The leader follows
// the gossip membership: joins become voters, leaves are removed, and every
// configuration change is recorded as a ring epoch in the log.
type RaftQuorum struct {
	raft        *raft.Raft
	transport   *raft.NetworkTransport
	fsm         *FSM
	logStore    *raftboltdb.BoltStore
	stableStore *raftboltdb.BoltStore
	observer    *raft.Observer
	obsCh       chan raft.Observation
	logger      *slog.Logger
	timeout     time.Duration
	name        string

	mu       sync.Mutex
	quorate  bool
	onChange func(bool)

	done chan struct{}
	wg   sync.WaitGroup
}

// NewRaftQuorum creates the raft node and starts watching leadership.
func NewRaftQuorum(cfg RaftConfig, fsm *FSM) (*RaftQuorum, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("raft: data_dir is required")
	}
	if cfg.NodeName == "" {
		return nil, fmt.Errorf("raft: node name is required")
	}
	if cfg.MembershipTimeout <= 0 {
		cfg.MembershipTimeout = 5 * time.Second
	}
	if fsm == nil {
		fsm = NewFSM(cfg.Logger)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(cfg.NodeName)
	raftConfig.Logger = &raftHCLogger{logger: cfg.Logger, name: "raft"}
	raftConfig.HeartbeatTimeout = 1000 * time.Millisecond
	raftConfig.ElectionTimeout = 1000 * time.Millisecond
	raftConfig.CommitTimeout = 50 * time.Millisecond
	raftConfig.LeaderLeaseTimeout = 500 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve bind addr: %w", err)
	}
	var advertise net.Addr = addr
	if addr.Port == 0 {
		advertise = nil
	}

	logOut := &slogWriter{logger: cfg.Logger}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, advertise, 3, 10*time.Second, logOut)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		transport.Close()
		return nil, fmt.Errorf("create log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		logStore.Close()
		transport.Close()
		return nil, fmt.Errorf("create stable store: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 3, logOut)
	if err != nil {
		stableStore.Close()
		logStore.Close()
		transport.Close()
		return nil, fmt.Errorf("create snapshot store: %w", err)
	}

	r, err := raft.NewRaft(raftConfig, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		stableStore.Close()
		logStore.Close()
		transport.Close()
		return nil, fmt.Errorf("create raft: %w", err)
	}

	q := &RaftQuorum{
		raft:        r,
		transport:   transport,
		fsm:         fsm,
		logStore:    logStore,
		stableStore: stableStore,
		obsCh:       make(chan raft.Observation, 16),
		logger:      cfg.Logger,
		timeout:     cfg.MembershipTimeout,
		name:        cfg.NodeName,
		done:        make(chan struct{}),
	}

	if cfg.Bootstrap {
		hasState, err := raft.HasExistingState(logStore, stableStore, snapshotStore)
		if err != nil {
			q.Close()
			return nil, fmt.Errorf("check raft state: %w", err)
		}
		if !hasState {
			f := r.BootstrapCluster(raft.Configuration{
				Servers: []raft.Server{{
					ID:      raft.ServerID(cfg.NodeName),
					Address: transport.LocalAddr(),
				}},
			})
			if err := f.Error(); err != nil {
				q.Close()
				return nil, fmt.Errorf("bootstrap cluster: %w", err)
			}
			cfg.Logger.Info("raft cluster bootstrapped",
				"node", cfg.NodeName,
				"addr", transport.LocalAddr())
		}
	}

	q.observer = raft.NewObserver(q.obsCh, false, func(o *raft.Observation) bool {
		_, ok := o.Data.(raft.LeaderObservation)
		return ok
	})
	r.RegisterObserver(q.observer)

	q.wg.Add(1)
	go q.watch()

	cfg.Logger.Info("raft quorum provider started",
		"node", cfg.NodeName,
		"bind_addr", transport.LocalAddr(),
		"bootstrap", cfg.Bootstrap)
	return q, nil
}

var _ ipc.Quorum = (*RaftQuorum)(nil)

// IsQuorate implements ipc.Quorum.
func (q *RaftQuorum) IsQuorate() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.quorate
}

// OnQuorumChange implements ipc.Quorum.
func (q *RaftQuorum) OnQuorumChange(fn func(bool)) {
	q.mu.Lock()
	q.onChange = fn
	q.mu.Unlock()
}

// Addr returns the raft transport address.
func (q *RaftQuorum) Addr() string {
	return string(q.transport.LocalAddr())
}

// IsLeader returns true if this node is the Raft leader.
func (q *RaftQuorum) IsLeader() bool {
	return q.raft.State() == raft.Leader
}

// LeaderID returns the current leader ID.
func (q *RaftQuorum) LeaderID() string {
	_, id := q.raft.LeaderWithID()
	return string(id)
}

// Ring returns the latest ring epoch in the log.
func (q *RaftQuorum) Ring() RingEpoch {
	return q.fsm.Current()
}

// Stats returns Raft statistics.
func (q *RaftQuorum) Stats() map[string]string {
	return q.raft.Stats()
}

// Track applies a configuration change on the leader: voter changes for
// joined and left members, then the new ring. raftAddr resolves each
// joined member's raft address. It returns at once; the raft futures are
// awaited on a separate goroutine.
func (q *RaftQuorum) Track(change service.ConfChange, raftAddr func(nodeID uint32) (string, bool)) {
	if !q.IsLeader() {
		return
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()

		for _, m := range change.Joined {
			if m.Name == q.name {
				continue
			}
			addr, ok := raftAddr(m.NodeID)
			if !ok {
				q.logger.Warn("member has no raft address", "node", m.Name)
				continue
			}
			f := q.raft.AddVoter(raft.ServerID(m.Name), raft.ServerAddress(addr), 0, q.timeout)
			if err := f.Error(); err != nil {
				q.logger.Warn("add voter failed", "node", m.Name, "error", err)
			}
		}
		for _, m := range change.Left {
			f := q.raft.RemoveServer(raft.ServerID(m.Name), 0, q.timeout)
			if err := f.Error(); err != nil {
				q.logger.Warn("remove server failed", "node", m.Name, "error", err)
			}
		}

		epoch := RingEpoch{RingSeq: change.RingSeq, Leader: q.name}
		for _, m := range change.Members {
			epoch.Members = append(epoch.Members, m.NodeID)
		}
		data, err := EncodeRingEpoch(epoch)
		if err != nil {
			q.logger.Error("encode ring epoch failed", "error", err)
			return
		}
		if err := q.raft.Apply(data, q.timeout).Error(); err != nil {
			q.logger.Warn("ring epoch not recorded", "ring_seq", change.RingSeq, "error", err)
		}
	}()
}

func (q *RaftQuorum) watch() {
	defer q.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-q.obsCh:
		case <-ticker.C:
		case <-q.done:
			return
		}
		addr, _ := q.raft.LeaderWithID()
		q.setQuorate(addr != "")
	}
}

func (q *RaftQuorum) setQuorate(quorate bool) {
	q.mu.Lock()
	changed := quorate != q.quorate
	q.quorate = quorate
	fn := q.onChange
	q.mu.Unlock()

	if !changed {
		return
	}
	q.logger.Info("raft leadership changed", "quorate", quorate, "leader", q.LeaderID())
	if fn != nil {
		fn(quorate)
	}
}

// Close gracefully shuts down the Raft node.
func (q *RaftQuorum) Close() error {
	q.logger.Info("shutting down raft node")

	select {
	case <-q.done:
	default:
		close(q.done)
	}
	if q.observer != nil {
		q.raft.DeregisterObserver(q.observer)
	}

	if err := q.raft.Shutdown().Error(); err != nil {
		q.logger.Error("raft shutdown failed", "error", err)
	}
	q.wg.Wait()

	if err := q.stableStore.Close(); err != nil {
		q.logger.Error("close stable store failed", "error", err)
	}
	if err := q.logStore.Close(); err != nil {
		q.logger.Error("close log store failed", "error", err)
	}
	if err := q.transport.Close(); err != nil {
		q.logger.Error("close transport failed", "error", err)
	}

	q.logger.Info("raft node shutdown complete")
	return nil
}

// raftHCLogger adapts slog.Logger to hashicorp/go-hclog.Logger interface.
type raftHCLogger struct {
	logger *slog.Logger
	name   string
	level  hclog.Level
}

func (l *raftHCLogger) Log(level hclog.Level, msg string, args ...any) {
	switch level {
	case hclog.Trace, hclog.Debug:
		l.logger.Debug(msg, args...)
	case hclog.Info:
		l.logger.Info(msg, args...)
	case hclog.Warn:
		l.logger.Warn(msg, args...)
	case hclog.Error:
		l.logger.Error(msg, args...)
	default:
		l.logger.Info(msg, args...)
	}
}

func (l *raftHCLogger) Trace(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *raftHCLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *raftHCLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *raftHCLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *raftHCLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *raftHCLogger) IsTrace() bool { return false }
func (l *raftHCLogger) IsDebug() bool { return l.level != hclog.NoLevel && l.level <= hclog.Debug }
func (l *raftHCLogger) IsInfo() bool  { return true }
func (l *raftHCLogger) IsWarn() bool  { return true }
func (l *raftHCLogger) IsError() bool { return true }

func (l *raftHCLogger) ImpliedArgs() []any { return nil }

func (l *raftHCLogger) With(args ...any) hclog.Logger {
	return &raftHCLogger{logger: l.logger.With(args...), name: l.name, level: l.level}
}

func (l *raftHCLogger) Name() string { return l.name }

func (l *raftHCLogger) Named(name string) hclog.Logger {
	full := name
	if l.name != "" {
		full = l.name + "." + name
	}
	return &raftHCLogger{logger: l.logger.With("component", full), name: full, level: l.level}
}

func (l *raftHCLogger) ResetNamed(name string) hclog.Logger {
	return &raftHCLogger{logger: l.logger.With("component", name), name: name, level: l.level}
}

func (l *raftHCLogger) SetLevel(level hclog.Level) { l.level = level }
func (l *raftHCLogger) GetLevel() hclog.Level       { return l.level }

func (l *raftHCLogger) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return log.New(l.StandardWriter(opts), "", 0)
}

func (l *raftHCLogger) StandardWriter(*hclog.StandardLoggerOptions) io.Writer {
	return &slogWriter{logger: l.logger}
}
