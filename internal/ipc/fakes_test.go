package ipc

import (
	"io"
	"log/slog"
	"time"

	"github.com/russellb/corosync/internal/core/domain"
	"github.com/russellb/corosync/internal/core/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock replaces the loop's timer source.
type fakeClock struct {
	timers []*fakeTimer
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) afterFunc(d time.Duration, f func()) func() bool {
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return func() bool {
		was := !t.stopped && !t.fired
		t.stopped = true
		return was
	}
}

// pending returns timers that have neither fired nor been stopped.
func (c *fakeClock) pending() []*fakeTimer {
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fire expires every pending timer.
func (c *fakeClock) fire() {
	for _, t := range c.pending() {
		t.fired = true
		t.f()
	}
}

type fakeTransport struct {
	reserveResult int
	reserved      int
	released      int
	releaseCalls  int
	level         domain.QueueLevel
	checks        int
	mcastErr      error
	multicasts    [][]byte

	onLevel   func(domain.QueueLevel)
	onLow     func(bool, int)
	onDeliver func(uint32, []byte, bool)
}

func (t *fakeTransport) Reserve(size int) int {
	if size < domain.RequestHeaderSize {
		return -1
	}
	if t.reserveResult > 0 {
		t.reserved += t.reserveResult
	}
	return t.reserveResult
}

func (t *fakeTransport) Release(slots int) {
	t.released += slots
	t.releaseCalls++
}

func (t *fakeTransport) Multicast(msg []byte, g domain.Guarantee) error {
	if t.mcastErr != nil {
		return t.mcastErr
	}
	t.multicasts = append(t.multicasts, msg)
	return nil
}

func (t *fakeTransport) QueueLevel() domain.QueueLevel { return t.level }
func (t *fakeTransport) CheckQueueLevel() { t.checks++ }

func (t *fakeTransport) OnQueueLevel(fn func(domain.QueueLevel)) { t.onLevel = fn }
func (t *fakeTransport) OnLowResource(fn func(bool, int)) { t.onLow = fn }
func (t *fakeTransport) OnDeliver(fn func(uint32, []byte, bool)) { t.onDeliver = fn }

type fakeQuorum struct {
	quorate bool
	fn      func(bool)
}

func (q *fakeQuorum) IsQuorate() bool { return q.quorate }
func (q *fakeQuorum) OnQuorumChange(fn func(bool)) { q.fn = fn }

type fakeCluster struct{}

func (fakeCluster) LocalNodeID() uint32 { return 1 }
func (fakeCluster) Members() []service.Member { return []service.Member{{NodeID: 1}} }
func (fakeCluster) RingSeq() uint64 { return 4 }
func (fakeCluster) RingStatus() []service.RingInterface { return nil }

// fakeChannel records what the core sends. When blocked is set every
// event send reports ErrWouldBlock.
type fakeChannel struct {
	creds        Credentials
	responses    [][]byte
	events       [][]byte
	blocked      bool
	eventErr     error
	responseErr  error
	disconnected bool
}

func (ch *fakeChannel) SendResponse(msg []byte) error {
	if ch.responseErr != nil {
		return ch.responseErr
	}
	ch.responses = append(ch.responses, append([]byte(nil), msg...))
	return nil
}

func (ch *fakeChannel) TrySendEvent(msg []byte) error {
	if ch.eventErr != nil {
		return ch.eventErr
	}
	if ch.blocked {
		return ErrWouldBlock
	}
	ch.events = append(ch.events, append([]byte(nil), msg...))
	return nil
}

func (ch *fakeChannel) Credentials() Credentials { return ch.creds }
func (ch *fakeChannel) Stats() ChannelStats { return ChannelStats{Requests: uint64(len(ch.responses))} }
func (ch *fakeChannel) Disconnect() { ch.disconnected = true }

func (ch *fakeChannel) lastResponse() domain.ResponseHeader {
	if len(ch.responses) == 0 {
		return domain.ResponseHeader{}
	}
	h, _ := domain.ParseResponseHeader(ch.responses[len(ch.responses)-1])
	return h
}

type fakeAcceptor struct {
	svc     domain.ServiceID
	applied []domain.Directive
}

func (a *fakeAcceptor) Service() domain.ServiceID { return a.svc }
func (a *fakeAcceptor) SetRateLimit(d domain.Directive) {
	a.applied = append(a.applied, d)
}

func (a *fakeAcceptor) current() domain.Directive {
	if len(a.applied) == 0 {
		return -1
	}
	return a.applied[len(a.applied)-1]
}

// countingAllocator counts every allocation and free so tests can check
// that each queued item is released exactly once.
type countingAllocator struct {
	allocs int
	frees  int
	live   map[*byte]bool
	double int
	fail   bool
}

func newCountingAllocator() *countingAllocator {
	return &countingAllocator{live: make(map[*byte]bool)}
}

func (a *countingAllocator) Alloc(conn service.ConnID, n int) ([]byte, error) {
	if a.fail {
		return nil, ErrNoMemory
	}
	buf := make([]byte, n+1)[:n]
	a.allocs++
	a.live[&buf[:1][0]] = true
	return buf, nil
}

func (a *countingAllocator) Free(conn service.ConnID, buf []byte) {
	key := &buf[:1][0]
	if !a.live[key] {
		a.double++
		return
	}
	delete(a.live, key)
	a.frees++
}

type fakeStats struct {
	created  []string
	closed   []string
	updated  map[string]ConnectionStats
	counters map[string]uint64
	members  map[uint32]string
}

func newFakeStats() *fakeStats {
	return &fakeStats{
		updated:  make(map[string]ConnectionStats),
		counters: make(map[string]uint64),
		members:  make(map[uint32]string),
	}
}

func (s *fakeStats) ConnectionCreated(name string, info ConnectionInfo) error {
	s.created = append(s.created, name)
	return nil
}

func (s *fakeStats) ConnectionUpdated(name string, st ConnectionStats) error {
	s.updated[name] = st
	return nil
}

func (s *fakeStats) ConnectionClosed(name string) error {
	s.closed = append(s.closed, name)
	return nil
}

func (s *fakeStats) AddCounters(deltas map[string]uint64) error {
	for k, v := range deltas {
		s.counters[k] += v
	}
	return nil
}

func (s *fakeStats) MemberUpdated(m service.Member, status string) error {
	s.members[m.NodeID] = status
	return nil
}

// testCore bundles a core with its fakes.
type testCore struct {
	*Core
	clock     *fakeClock
	transport *fakeTransport
	quorum    *fakeQuorum
	alloc     *countingAllocator
	stats     *fakeStats
	registry  *service.Registry
}

// newTestCore builds a started core with the default services, quorate,
// with the given slots returned by Reserve and sync already completed.
func newTestCore(slots int) *testCore {
	clock := &fakeClock{}
	loop := NewLoop(discardLogger())
	loop.afterFunc = clock.afterFunc

	reg := service.NewRegistry()
	if err := service.RegisterDefaults(reg); err != nil {
		panic(err)
	}

	tc := &testCore{
		clock:     clock,
		transport: &fakeTransport{reserveResult: slots},
		quorum:    &fakeQuorum{quorate: true},
		alloc:     newCountingAllocator(),
		stats:     newFakeStats(),
		registry:  reg,
	}

	core, err := NewCore(Config{
		Registry:  reg,
		Transport: tc.transport,
		Quorum:    tc.quorum,
		Cluster:   fakeCluster{},
		Stats:     tc.stats,
		Allocator: tc.alloc,
		Logger:    discardLogger(),
	}, loop)
	if err != nil {
		panic(err)
	}
	core.procName = func(int32) string { return "test" }
	tc.Core = core

	core.Start()
	core.SyncCompleted()
	return tc
}

// connect creates a connection to svc over a new fake channel.
func (tc *testCore) connect(svc domain.ServiceID) (service.ConnID, *fakeChannel) {
	ch := &fakeChannel{creds: Credentials{PID: 42, UID: 0, GID: 0}}
	id, err := tc.Created(svc, ch)
	if err != nil {
		panic(err)
	}
	return id, ch
}

func (tc *testCore) conn(id service.ConnID) *connection {
	c, _ := tc.conns.get(id)
	return c
}
