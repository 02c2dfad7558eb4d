package clusterserver

import (
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"

	"github.com/russellb/corosync/internal/core/service"
	"github.com/russellb/corosync/internal/ipc"
)

// Discovery handles node discovery and membership using memberlist. Every
// join or leave starts a new ring with a higher sequence number.
type Discovery struct {
	config     *memberlist.Config
	memberList *memberlist.Memberlist
	broadcast  *Broadcast
	logger     *slog.Logger
	localID    uint32
	shutdown   bool

	mu       sync.Mutex
	members  map[uint32]service.Member
	raftAddr map[uint32]string
	ringSeq  uint64
	onChange func(service.ConfChange)
}

// DiscoveryConfig configures the discovery mechanism.
type DiscoveryConfig struct {
	// NodeName is the unique node name. A node id is derived from it
	// when NodeID is zero.
	NodeName string
	NodeID   uint32

	// BindAddr is the address to bind for gossip communication.
	BindAddr string

	// BindPort is the port to bind for gossip communication.
	BindPort int

	// RaftAddr is advertised to other nodes for the raft quorum provider.
	RaftAddr string

	// SeedNodes are the initial nodes to join.
	SeedNodes []string

	// Broadcast carries multicast traffic and node metadata.
	Broadcast *Broadcast

	// OnChange receives every configuration change. It is called from
	// memberlist goroutines.
	OnChange func(service.ConfChange)

	Logger *slog.Logger
}

// NewDiscovery creates the memberlist instance and joins the seeds.
func NewDiscovery(cfg DiscoveryConfig) (*Discovery, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NodeName == "" {
		cfg.NodeName = GenerateNodeName()
	}
	if cfg.NodeID == 0 {
		cfg.NodeID = NodeIDFromName(cfg.NodeName)
	}
	if cfg.Broadcast == nil {
		return nil, fmt.Errorf("discovery: broadcast transport is required")
	}

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = cfg.NodeName
	mlConfig.BindAddr = cfg.BindAddr
	mlConfig.BindPort = cfg.BindPort
	mlConfig.AdvertisePort = cfg.BindPort
	mlConfig.LogOutput = &slogWriter{logger: cfg.Logger}
	mlConfig.Delegate = cfg.Broadcast

	cfg.Broadcast.SetMeta(nodeMeta{NodeID: cfg.NodeID, RaftAddr: cfg.RaftAddr}.encode())

	d := &Discovery{
		config:    mlConfig,
		broadcast: cfg.Broadcast,
		logger:    cfg.Logger,
		localID:   cfg.NodeID,
		members:   make(map[uint32]service.Member),
		raftAddr:  make(map[uint32]string),
		onChange:  cfg.OnChange,
	}
	mlConfig.Events = &eventDelegate{discovery: d}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("create memberlist: %w", err)
	}
	d.memberList = ml
	cfg.Broadcast.Attach(ml)

	if len(cfg.SeedNodes) > 0 {
		n, err := ml.Join(cfg.SeedNodes)
		if err != nil {
			cfg.Broadcast.Close()
			ml.Shutdown()
			return nil, fmt.Errorf("join seed nodes: %w", err)
		}
		cfg.Logger.Info("joined cluster",
			"node", cfg.NodeName,
			"nodeid", cfg.NodeID,
			"seed_nodes", cfg.SeedNodes,
			"joined_count", n)
	} else {
		cfg.Logger.Info("started discovery (bootstrap mode)",
			"node", cfg.NodeName,
			"nodeid", cfg.NodeID)
	}

	return d, nil
}

var _ ipc.Cluster = (*Discovery)(nil)

// LocalNodeID implements ipc.Cluster.
func (d *Discovery) LocalNodeID() uint32 {
	return d.localID
}

// Members implements ipc.Cluster. Members are sorted by node id.
func (d *Discovery) Members() []service.Member {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sortedLocked()
}

// RingSeq implements ipc.Cluster.
func (d *Discovery) RingSeq() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ringSeq
}

// RingStatus implements ipc.Cluster.
func (d *Discovery) RingStatus() []service.RingInterface {
	status := "ring 0 active with no faults"
	if d.memberList == nil {
		status = "ring 0 not started"
	} else if h := d.memberList.GetHealthScore(); h > 0 {
		status = fmt.Sprintf("ring 0 degraded (health score %d)", h)
	}
	addr := d.config.BindAddr
	if d.memberList != nil {
		addr = d.memberList.LocalNode().Addr.String()
	}
	return []service.RingInterface{{Name: addr, Status: status}}
}

// RaftAddr returns the raft address advertised by nodeID.
func (d *Discovery) RaftAddr(nodeID uint32) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	addr, ok := d.raftAddr[nodeID]
	return addr, ok
}

// NumMembers returns the size of the current membership.
func (d *Discovery) NumMembers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.members)
}

// GossipAddr returns the address and port other nodes use to join this one.
func (d *Discovery) GossipAddr() string {
	n := d.memberList.LocalNode()
	return net.JoinHostPort(n.Addr.String(), strconv.Itoa(int(n.Port)))
}

// Leave broadcasts the intent to leave and waits up to timeout for it to
// reach another member.
func (d *Discovery) Leave(timeout time.Duration) error {
	if d.memberList == nil {
		return nil
	}
	if err := d.memberList.Leave(timeout); err != nil {
		d.logger.Error("failed to leave cluster", "error", err)
		return err
	}
	d.logger.Info("left cluster")
	return nil
}

// Shutdown stops the discovery mechanism.
func (d *Discovery) Shutdown() error {
	if d.shutdown || d.memberList == nil {
		return nil
	}
	d.shutdown = true

	d.broadcast.Close()
	if err := d.memberList.Shutdown(); err != nil {
		return fmt.Errorf("shutdown memberlist: %w", err)
	}
	d.logger.Info("discovery shutdown complete")
	return nil
}

func (d *Discovery) sortedLocked() []service.Member {
	out := make([]service.Member, 0, len(d.members))
	for _, m := range d.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// changed applies one membership delta and reports the new ring.
func (d *Discovery) changed(joined, left []service.Member) {
	ids := make([]uint32, 0, len(joined)+len(left))
	for _, m := range joined {
		ids = append(ids, m.NodeID)
	}
	for _, m := range left {
		ids = append(ids, m.NodeID)
	}
	d.broadcast.MembersChanged(ids...)

	d.mu.Lock()
	for _, m := range joined {
		d.members[m.NodeID] = m
	}
	for _, m := range left {
		delete(d.members, m.NodeID)
		delete(d.raftAddr, m.NodeID)
	}
	d.ringSeq++
	change := service.ConfChange{
		RingSeq: d.ringSeq,
		Members: d.sortedLocked(),
		Joined:  joined,
		Left:    left,
	}
	fn := d.onChange
	d.mu.Unlock()

	d.logger.Info("configuration changed",
		"ring_seq", change.RingSeq,
		"members", len(change.Members),
		"joined", len(joined),
		"left", len(left))

	if fn != nil {
		fn(change)
	}
}

func (d *Discovery) memberOf(node *memberlist.Node) (service.Member, nodeMeta) {
	meta, err := decodeNodeMeta(node.Meta)
	if err != nil {
		d.logger.Warn("node has no metadata, deriving id from name", "node", node.Name)
		meta = nodeMeta{NodeID: NodeIDFromName(node.Name)}
	}
	return service.Member{
		NodeID: meta.NodeID,
		Name:   node.Name,
		Addr:   append(net.IP(nil), node.Addr...),
	}, meta
}

// eventDelegate implements memberlist.EventDelegate.
type eventDelegate struct {
	discovery *Discovery
}

// NotifyJoin is called when a node joins.
func (e *eventDelegate) NotifyJoin(node *memberlist.Node) {
	m, meta := e.discovery.memberOf(node)
	if meta.RaftAddr != "" {
		e.discovery.mu.Lock()
		e.discovery.raftAddr[m.NodeID] = meta.RaftAddr
		e.discovery.mu.Unlock()
	}

	e.discovery.logger.Info("node joined",
		"node", node.Name,
		"nodeid", m.NodeID,
		"gossip_addr", net.JoinHostPort(node.Addr.String(), strconv.Itoa(int(node.Port))),
		"raft_addr", meta.RaftAddr)

	e.discovery.changed([]service.Member{m}, nil)
}

// NotifyLeave is called when a node leaves.
func (e *eventDelegate) NotifyLeave(node *memberlist.Node) {
	m, _ := e.discovery.memberOf(node)
	e.discovery.logger.Info("node left",
		"node", node.Name,
		"nodeid", m.NodeID,
		"addr", node.Addr.String())

	e.discovery.changed(nil, []service.Member{m})
}

// NotifyUpdate is called when a node is updated.
func (e *eventDelegate) NotifyUpdate(node *memberlist.Node) {
	e.discovery.logger.Debug("node updated",
		"node", node.Name,
		"addr", node.Addr.String())
}

// slogWriter adapts slog.Logger to io.Writer for memberlist.
type slogWriter struct {
	logger *slog.Logger
}

// Write implements io.Writer. memberlist prefixes lines with a level tag.
func (w *slogWriter) Write(p []byte) (n int, err error) {
	line := strings.TrimSpace(string(p))
	switch {
	case strings.Contains(line, "[ERR]"):
		w.logger.Error(line)
	case strings.Contains(line, "[WARN]"):
		w.logger.Warn(line)
	default:
		w.logger.Debug(line)
	}
	return len(p), nil
}
