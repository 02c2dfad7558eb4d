package clusterserver

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/hashicorp/memberlist"

	"github.com/russellb/corosync/internal/core/domain"
	"github.com/russellb/corosync/internal/ipc"
	"github.com/russellb/corosync/pkg/crypto/adaptive"
)

// gossipFrameLimit is the largest frame sent through the gossip queue.
const gossipFrameLimit = 1200

var errReliableFull = errors.New("clusterserver: reliable send queue full")

// BroadcastConfig configures the broadcast transport.
type BroadcastConfig struct {
	// NodeID is the local node id written into every frame.
	NodeID uint32

	// MaxMessageSize bounds one multicast, header included.
	MaxMessageSize int

	// SlotSize is the payload carried by one queue slot. A message takes
	// ceil(size/SlotSize) slots.
	SlotSize int

	// QueueSlots is the capacity of the outgoing queue.
	QueueSlots int

	// RetransmitMult scales gossip retransmissions with cluster size.
	RetransmitMult int

	// Cipher seals frames when set.
	Cipher adaptive.Cipher

	Logger *slog.Logger
}

// DefaultBroadcastConfig returns the default transport configuration.
func DefaultBroadcastConfig() BroadcastConfig {
	return BroadcastConfig{
		MaxMessageSize: 1 << 20,
		SlotSize:       1024,
		QueueSlots:     512,
		RetransmitMult: 4,
	}
}

// Broadcast is the cluster multicast transport built on memberlist. Small
// frames ride the gossip broadcast queue; frames too large for one gossip
// packet are sent over each member's reliable stream. A node delivers its
// own messages locally.
type Broadcast struct {
	cfg    BroadcastConfig
	logger *slog.Logger

	queue    *memberlist.TransmitLimitedQueue
	members  *memberlist.Memberlist
	reliable chan *outgoing
	meta     []byte
	seen     *dedup

	mu        sync.Mutex
	reserved  int
	inFlight  int
	level     domain.QueueLevel
	seq       uint64
	closed    bool
	onLevel   func(domain.QueueLevel)
	onDeliver func(nodeID uint32, msg []byte, swap bool)
	onLow     func(notEnough bool, available int)

	done chan struct{}
	wg   sync.WaitGroup
}

// outgoing is one queued frame. It implements memberlist.Broadcast.
type outgoing struct {
	b     *Broadcast
	frame []byte
	slots int
	once  sync.Once
}

func (o *outgoing) Invalidates(memberlist.Broadcast) bool { return false }
func (o *outgoing) Message() []byte                      { return o.frame }
func (o *outgoing) Finished() {
	o.once.Do(func() { o.b.finished(o.slots) })
}

// NewBroadcast creates the transport. Attach must be called with the
// memberlist instance before multicasts reach other nodes.
func NewBroadcast(cfg BroadcastConfig) *Broadcast {
	def := DefaultBroadcastConfig()
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.SlotSize <= 0 {
		cfg.SlotSize = def.SlotSize
	}
	if cfg.QueueSlots <= 0 {
		cfg.QueueSlots = def.QueueSlots
	}
	if cfg.RetransmitMult <= 0 {
		cfg.RetransmitMult = def.RetransmitMult
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	b := &Broadcast{
		cfg:      cfg,
		logger:   cfg.Logger,
		reliable: make(chan *outgoing, cfg.QueueSlots),
		seen:     newDedup(),
		done:     make(chan struct{}),
	}
	b.queue = &memberlist.TransmitLimitedQueue{
		NumNodes:       b.numNodes,
		RetransmitMult: cfg.RetransmitMult,
	}
	return b
}

var _ ipc.Transport = (*Broadcast)(nil)

// Attach connects the transport to a running memberlist and starts the
// reliable sender.
func (b *Broadcast) Attach(ml *memberlist.Memberlist) {
	b.mu.Lock()
	b.members = ml
	b.mu.Unlock()

	b.wg.Add(1)
	go b.sendReliable()
}

// SetMeta sets the metadata gossiped for this node.
func (b *Broadcast) SetMeta(meta []byte) {
	b.mu.Lock()
	b.meta = meta
	b.mu.Unlock()
}

// Close stops the reliable sender. Multicast fails afterwards.
func (b *Broadcast) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	close(b.done)
	b.wg.Wait()
	b.queue.Reset()
}

func (b *Broadcast) numNodes() int {
	b.mu.Lock()
	ml := b.members
	b.mu.Unlock()
	if ml == nil {
		return 1
	}
	return ml.NumMembers()
}

func (b *Broadcast) slotsFor(size int) int {
	return (size + b.cfg.SlotSize - 1) / b.cfg.SlotSize
}

// Reserve implements ipc.Transport.
func (b *Broadcast) Reserve(size int) int {
	if size < domain.RequestHeaderSize || size > b.cfg.MaxMessageSize {
		return -1
	}
	slots := b.slotsFor(size)

	b.mu.Lock()
	if b.reserved+b.inFlight+slots > b.cfg.QueueSlots {
		b.mu.Unlock()
		return 0
	}
	b.reserved += slots
	b.mu.Unlock()

	b.CheckQueueLevel()
	return slots
}

// Release implements ipc.Transport.
func (b *Broadcast) Release(slots int) {
	if slots <= 0 {
		return
	}
	b.mu.Lock()
	b.reserved -= slots
	if b.reserved < 0 {
		b.reserved = 0
	}
	b.mu.Unlock()

	b.CheckQueueLevel()
}

// Multicast implements ipc.Transport. The local delivery happens before
// Multicast returns.
func (b *Broadcast) Multicast(msg []byte, _ domain.Guarantee) error {
	if len(msg) > b.cfg.MaxMessageSize {
		return domain.ErrMessageTooLarge.WithDetails("multicast")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return domain.ErrTransportClosed
	}
	b.seq++
	seq := b.seq
	slots := b.slotsFor(len(msg))
	b.inFlight += slots
	ml := b.members
	deliver := b.onDeliver
	b.mu.Unlock()

	frame, err := encodeFrame(b.cfg.NodeID, seq, msg, b.cfg.Cipher)
	if err != nil {
		b.finished(slots)
		return err
	}

	out := &outgoing{b: b, frame: frame, slots: slots}
	switch {
	case ml == nil || ml.NumMembers() <= 1:
		out.Finished()
	case len(frame) > gossipFrameLimit:
		select {
		case b.reliable <- out:
		default:
			out.Finished()
			return errReliableFull
		}
	default:
		b.queue.QueueBroadcast(out)
	}
	b.CheckQueueLevel()

	if deliver != nil {
		deliver(b.cfg.NodeID, append([]byte(nil), msg...), false)
	}
	return nil
}

func (b *Broadcast) finished(slots int) {
	b.mu.Lock()
	b.inFlight -= slots
	if b.inFlight < 0 {
		b.inFlight = 0
	}
	b.mu.Unlock()

	b.CheckQueueLevel()
}

// QueueLevel implements ipc.Transport.
func (b *Broadcast) QueueLevel() domain.QueueLevel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.level
}

// CheckQueueLevel implements ipc.Transport.
func (b *Broadcast) CheckQueueLevel() {
	b.mu.Lock()
	used := (b.reserved + b.inFlight) * 100 / b.cfg.QueueSlots
	old := b.level
	b.level = nextQueueLevel(old, used)
	level := b.level
	fn := b.onLevel
	b.mu.Unlock()

	if level != old && fn != nil {
		fn(level)
	}
}

// nextQueueLevel moves between levels with hysteresis so a queue hovering
// around one threshold does not flap.
func nextQueueLevel(cur domain.QueueLevel, percentUsed int) domain.QueueLevel {
	switch {
	case percentUsed >= 75:
		return domain.LevelCritical
	case percentUsed < 30:
		return domain.LevelLow
	case percentUsed > 40 && percentUsed < 50:
		return domain.LevelGood
	case percentUsed > 60 && percentUsed < 70:
		return domain.LevelHigh
	default:
		return cur
	}
}

// OnQueueLevel implements ipc.Transport.
func (b *Broadcast) OnQueueLevel(fn func(domain.QueueLevel)) {
	b.mu.Lock()
	b.onLevel = fn
	b.mu.Unlock()
}

// OnLowResource implements ipc.Transport.
func (b *Broadcast) OnLowResource(fn func(notEnough bool, available int)) {
	b.mu.Lock()
	b.onLow = fn
	b.mu.Unlock()
}

// LowResource forwards a descriptor shortage report to the registered
// callback.
func (b *Broadcast) LowResource(notEnough bool, available int) {
	b.mu.Lock()
	fn := b.onLow
	b.mu.Unlock()
	if fn != nil {
		fn(notEnough, available)
	}
}

// OnDeliver implements ipc.Transport.
func (b *Broadcast) OnDeliver(fn func(nodeID uint32, msg []byte, swap bool)) {
	b.mu.Lock()
	b.onDeliver = fn
	b.mu.Unlock()
}

// MembersChanged forgets the frame history of nodes that joined or left
// so a restarted node is not mistaken for a repeat.
func (b *Broadcast) MembersChanged(nodeIDs ...uint32) {
	for _, id := range nodeIDs {
		b.seen.forget(id)
	}
}

// receive handles one frame from another node.
func (b *Broadcast) receive(buf []byte) {
	f, err := decodeFrame(buf, b.cfg.Cipher)
	if err != nil {
		b.logger.Warn("dropped cluster frame", "error", err)
		return
	}
	if f.NodeID == b.cfg.NodeID {
		return
	}
	if !b.seen.accept(f.NodeID, f.Seq) {
		return
	}

	b.mu.Lock()
	fn := b.onDeliver
	b.mu.Unlock()
	if fn != nil {
		fn(f.NodeID, f.Payload, f.Swap)
	}
}

func (b *Broadcast) sendReliable() {
	defer b.wg.Done()
	for {
		select {
		case out := <-b.reliable:
			b.mu.Lock()
			ml := b.members
			b.mu.Unlock()
			for _, n := range ml.Members() {
				if n.Name == ml.LocalNode().Name {
					continue
				}
				if err := ml.SendReliable(n, out.frame); err != nil {
					b.logger.Warn("reliable send failed", "node", n.Name, "error", err)
				}
			}
			out.Finished()
		case <-b.done:
			for {
				select {
				case out := <-b.reliable:
					out.Finished()
				default:
					return
				}
			}
		}
	}
}

// memberlist.Delegate

// NodeMeta implements memberlist.Delegate.
func (b *Broadcast) NodeMeta(limit int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.meta) > limit {
		return b.meta[:limit]
	}
	return b.meta
}

// NotifyMsg implements memberlist.Delegate. buf is only valid during the
// call.
func (b *Broadcast) NotifyMsg(buf []byte) {
	b.receive(buf)
}

// GetBroadcasts implements memberlist.Delegate.
func (b *Broadcast) GetBroadcasts(overhead, limit int) [][]byte {
	return b.queue.GetBroadcasts(overhead, limit)
}

// LocalState implements memberlist.Delegate.
func (b *Broadcast) LocalState(bool) []byte { return nil }

// MergeRemoteState implements memberlist.Delegate.
func (b *Broadcast) MergeRemoteState([]byte, bool) {}
