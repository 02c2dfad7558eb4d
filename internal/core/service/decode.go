package service

import (
	"net"

	"github.com/russellb/corosync/internal/core/domain"
)

// Client side encoders and decoders. Decoders expect a complete response
// or event, header included, and do not look at the header error field.

// RingStatusRequest encodes a cfg RINGSTATUSGET request.
func RingStatusRequest() []byte {
	return newRequestWriter(CFGReqRingStatusGet).bytes()
}

// LocalNodeRequest encodes a cfg LOCAL_GET request.
func LocalNodeRequest() []byte {
	return newRequestWriter(CFGReqLocalGet).bytes()
}

// QuorateRequest encodes a quorum GETQUORATE request.
func QuorateRequest() []byte {
	return newRequestWriter(QuorumReqGetQuorate).bytes()
}

// TrackStopRequest encodes a quorum TRACKSTOP request.
func TrackStopRequest() []byte {
	return newRequestWriter(QuorumReqTrackStop).bytes()
}

// ParseRingStatus decodes a RINGSTATUSGET response.
func ParseRingStatus(msg []byte) ([]RingInterface, error) {
	r := newResponseReader(msg)
	n := r.uint32()
	if n > cfgMaxInterfaces {
		return nil, domain.ErrBadPayload.WithDetails("too many interfaces")
	}
	rings := make([]RingInterface, 0, n)
	for i := uint32(0); i < n; i++ {
		rings = append(rings, RingInterface{
			Name:   r.cstring(NameLength),
			Status: r.cstring(cfgStatusLength),
		})
	}
	if r.err != nil {
		return nil, r.err
	}
	return rings, nil
}

// ParseLocalNode decodes a LOCAL_GET response.
func ParseLocalNode(msg []byte) (uint32, error) {
	r := newResponseReader(msg)
	id := r.uint32()
	return id, r.err
}

// ParseNodeAddrs decodes a GET_NODE_ADDRS response.
func ParseNodeAddrs(msg []byte) ([]net.IP, error) {
	r := newResponseReader(msg)
	family, n := r.uint32(), r.uint32()
	if n > cfgMaxInterfaces {
		return nil, domain.ErrBadPayload.WithDetails("too many addresses")
	}
	addrs := make([]net.IP, 0, n)
	for i := uint32(0); i < n; i++ {
		raw := r.take(cfgAddrLength)
		if raw == nil {
			break
		}
		if family == afInet {
			addrs = append(addrs, net.IP(append([]byte(nil), raw[:net.IPv4len]...)))
		} else {
			addrs = append(addrs, net.IP(append([]byte(nil), raw...)))
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return addrs, nil
}

// ParseQuorate decodes a GETQUORATE response.
func ParseQuorate(msg []byte) (bool, error) {
	r := newResponseReader(msg)
	q := r.uint32()
	return q != 0, r.err
}

// QuorumNotification is the view carried by a quorum NOTIFICATION event.
type QuorumNotification struct {
	Quorate bool
	RingSeq uint64
	NodeIDs []uint32
}

// ParseQuorumNotification decodes a NOTIFICATION event.
func ParseQuorumNotification(msg []byte) (QuorumNotification, error) {
	r := newResponseReader(msg)
	var n QuorumNotification
	n.Quorate = r.uint32() != 0
	n.RingSeq = r.uint64()
	count := r.uint32()
	for i := uint32(0); i < count && r.err == nil; i++ {
		n.NodeIDs = append(n.NodeIDs, r.uint32())
	}
	return n, r.err
}

// GroupMember is one process in a closed process group.
type GroupMember struct {
	NodeID uint32 `json:"nodeid"`
	PID    uint32 `json:"pid"`
}

func (r *reader) groupMembers(n uint32) []GroupMember {
	out := make([]GroupMember, 0, min(n, 64))
	for i := uint32(0); i < n && r.err == nil; i++ {
		out = append(out, GroupMember{NodeID: r.uint32(), PID: r.uint32()})
	}
	return out
}

// ParseMembership decodes a MEMBERSHIP_GET response.
func ParseMembership(msg []byte) ([]GroupMember, error) {
	r := newResponseReader(msg)
	members := r.groupMembers(r.uint32())
	if r.err != nil {
		return nil, r.err
	}
	return members, nil
}

// GroupChange is a cpg confchg event.
type GroupChange struct {
	Group   string
	Members []GroupMember
	Joined  []GroupMember
	Left    []GroupMember
}

// ParseGroupChange decodes a CONFCHG callback.
func ParseGroupChange(msg []byte) (GroupChange, error) {
	r := newResponseReader(msg)
	c := GroupChange{Group: r.name()}
	members, joined, left := r.uint32(), r.uint32(), r.uint32()
	c.Members = r.groupMembers(members)
	c.Joined = r.groupMembers(joined)
	c.Left = r.groupMembers(left)
	return c, r.err
}

// GroupMessage is a cpg deliver event.
type GroupMessage struct {
	Group   string
	NodeID  uint32
	PID     uint32
	Payload []byte
}

// ParseGroupMessage decodes a DELIVER callback.
func ParseGroupMessage(msg []byte) (GroupMessage, error) {
	r := newResponseReader(msg)
	m := GroupMessage{Group: r.name(), NodeID: r.uint32(), PID: r.uint32()}
	n := r.uint32()
	m.Payload = append([]byte(nil), r.take(int(n))...)
	return m, r.err
}
