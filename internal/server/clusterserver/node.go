package clusterserver

import (
	"encoding/binary"
	"errors"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/spaolacci/murmur3"
)

// NodeIDFromName derives a stable non-zero node id from a node name.
func NodeIDFromName(name string) uint32 {
	id := murmur3.Sum32([]byte(name)) & 0x7fffffff
	if id == 0 {
		id = 1
	}
	return id
}

// GenerateNodeName returns a unique node name for nodes started without
// one configured.
func GenerateNodeName() string {
	return "node-" + strings.ToLower(ulid.Make().String())
}

// nodeMeta is gossiped with every node: its id and the raft address used
// by the raft quorum provider.
type nodeMeta struct {
	NodeID   uint32
	RaftAddr string
}

func (m nodeMeta) encode() []byte {
	buf := make([]byte, 4+len(m.RaftAddr))
	binary.BigEndian.PutUint32(buf, m.NodeID)
	copy(buf[4:], m.RaftAddr)
	return buf
}

func decodeNodeMeta(b []byte) (nodeMeta, error) {
	if len(b) < 4 {
		return nodeMeta{}, errors.New("node metadata too short")
	}
	return nodeMeta{
		NodeID:   binary.BigEndian.Uint32(b),
		RaftAddr: string(b[4:]),
	}, nil
}
