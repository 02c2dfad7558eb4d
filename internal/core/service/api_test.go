package service

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/russellb/corosync/internal/core/domain"
)

type sentMsg struct {
	conn ConnID
	msg  []byte
}

// mockAPI records what engines send and queues multicasts until deliver
// is called.
type mockAPI struct {
	desc       *Descriptor
	nodeID     uint32
	quorate    bool
	members    []Member
	ringSeq    uint64
	rings      []RingInterface
	private    map[ConnID]any
	reserve    int
	mcastErr   error
	respondErr error
	logs       bytes.Buffer

	responses []sentMsg
	events    []sentMsg
	pending   [][]byte
	released  int
	jobs      []func() bool
}

func newMockAPI(desc *Descriptor) *mockAPI {
	return &mockAPI{
		desc:    desc,
		nodeID:  1,
		quorate: true,
		private: make(map[ConnID]any),
		reserve: 1,
	}
}

func (m *mockAPI) connect(conn ConnID) {
	if m.desc.NewPrivate != nil {
		m.private[conn] = m.desc.NewPrivate()
	}
}

func (m *mockAPI) call(conn ConnID, msg []byte) {
	h, err := domain.ParseRequestHeader(msg, domain.HostOrder)
	if err != nil {
		panic(err)
	}
	m.desc.LibEngines[h.ID].Handler(m, conn, msg)
}

// deliver hands every queued multicast to the exec engines as if it came
// from nodeID.
func (m *mockAPI) deliver(nodeID uint32) {
	for len(m.pending) > 0 {
		msg := m.pending[0]
		m.pending = m.pending[1:]
		h, _ := domain.ParseRequestHeader(msg, domain.HostOrder)
		_, fn := domain.SplitID(h.ID)
		m.desc.ExecEngines[fn].Handler(m, msg, nodeID)
	}
}

func (m *mockAPI) lastResponse() domain.ResponseHeader {
	if len(m.responses) == 0 {
		return domain.ResponseHeader{}
	}
	h, _ := domain.ParseResponseHeader(m.responses[len(m.responses)-1].msg)
	return h
}

func (m *mockAPI) Respond(conn ConnID, msg []byte) error {
	if m.respondErr != nil {
		return m.respondErr
	}
	m.responses = append(m.responses, sentMsg{conn: conn, msg: msg})
	return nil
}

func (m *mockAPI) Event(conn ConnID, msg []byte) {
	m.events = append(m.events, sentMsg{conn: conn, msg: msg})
}

func (m *mockAPI) Multicast(msg []byte, guarantee domain.Guarantee) error {
	if m.mcastErr != nil {
		return m.mcastErr
	}
	m.pending = append(m.pending, append([]byte(nil), msg...))
	return nil
}

func (m *mockAPI) Reserve(size int) int { return m.reserve }
func (m *mockAPI) Release(slots int) { m.released += slots }
func (m *mockAPI) Schedule(job func() bool) { m.jobs = append(m.jobs, job) }
func (m *mockAPI) Private(conn ConnID) any { return m.private[conn] }
func (m *mockAPI) IsQuorate() bool { return m.quorate }
func (m *mockAPI) LocalNodeID() uint32 { return m.nodeID }
func (m *mockAPI) Members() []Member { return m.members }
func (m *mockAPI) RingSeq() uint64 { return m.ringSeq }
func (m *mockAPI) RingStatus() []RingInterface { return m.rings }
func (m *mockAPI) Logger() *slog.Logger { return slog.New(slog.NewTextHandler(&m.logs, nil)) }

var errMockBusy = errors.New("transport busy")

func TestRespond_FailureIsLogged(t *testing.T) {
	tests := []struct {
		name string
		desc *Descriptor
		req  []byte
	}{
		{"quorum", NewQuorum(), QuorateRequest()},
		{"cfg", NewCFG(NewRegistry()), LocalNodeRequest()},
		{"cpg", NewCPG(), MembershipRequest("grp")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMockAPI(tt.desc)
			m.connect(1)
			m.respondErr = domain.ErrResponseOverflow

			m.call(1, tt.req)
			if !bytes.Contains(m.logs.Bytes(), []byte("response not delivered")) {
				t.Errorf("log = %q, want the failed response reported", m.logs.String())
			}
		})
	}
}
