package clusterserver

import (
	"encoding/binary"
	"fmt"

	"github.com/spaolacci/murmur3"

	"github.com/russellb/corosync/internal/core/domain"
	"github.com/russellb/corosync/pkg/crypto/adaptive"
)

// Frame layout, big-endian:
//
//	0  magic    uint16
//	2  version  uint8
//	3  flags    uint8
//	4  node id  uint32
//	8  sequence uint64
//	16 checksum uint32 (murmur3 of the plain payload)
//	20 body
//
// The body is the payload, sealed with the cluster cipher when
// flagSealed is set. The first 16 bytes are the associated data.
const (
	frameMagic      = 0xC05C
	frameVersion    = 1
	frameHeaderSize = 20

	flagBigEndian = 1 << 0
	flagSealed    = 1 << 1
)

type frame struct {
	NodeID  uint32
	Seq     uint64
	Swap    bool
	Payload []byte
}

func hostBigEndian() bool {
	return domain.ByteOrderMark() == 'B'
}

// encodeFrame builds a frame for payload originated by this node.
func encodeFrame(nodeID uint32, seq uint64, payload []byte, c adaptive.Cipher) ([]byte, error) {
	hdr := make([]byte, frameHeaderSize)
	binary.BigEndian.PutUint16(hdr[0:2], frameMagic)
	hdr[2] = frameVersion
	if hostBigEndian() {
		hdr[3] |= flagBigEndian
	}
	if c != nil {
		hdr[3] |= flagSealed
	}
	binary.BigEndian.PutUint32(hdr[4:8], nodeID)
	binary.BigEndian.PutUint64(hdr[8:16], seq)
	binary.BigEndian.PutUint32(hdr[16:20], murmur3.Sum32(payload))

	body := payload
	if c != nil {
		sealed, err := c.Encrypt(payload, hdr[:16])
		if err != nil {
			return nil, fmt.Errorf("seal frame: %w", err)
		}
		body = sealed
	}
	return append(hdr, body...), nil
}

// decodeFrame validates b and returns its payload.
func decodeFrame(b []byte, c adaptive.Cipher) (frame, error) {
	if len(b) < frameHeaderSize {
		return frame{}, domain.ErrBadFrame.WithDetails("short frame")
	}
	if binary.BigEndian.Uint16(b[0:2]) != frameMagic {
		return frame{}, domain.ErrBadFrame.WithDetails("bad magic")
	}
	if b[2] != frameVersion {
		return frame{}, domain.ErrBadFrame.WithDetails(fmt.Sprintf("version %d", b[2]))
	}

	flags := b[3]
	payload := b[frameHeaderSize:]
	switch {
	case flags&flagSealed != 0 && c == nil:
		return frame{}, domain.ErrBadFrame.WithDetails("sealed frame without cluster key")
	case flags&flagSealed == 0 && c != nil:
		return frame{}, domain.ErrBadFrame.WithDetails("plain frame on a sealed cluster")
	case flags&flagSealed != 0:
		plain, err := c.Decrypt(payload, b[:16])
		if err != nil {
			return frame{}, domain.ErrBadFrame.WithCause(err)
		}
		payload = plain
	default:
		payload = append([]byte(nil), payload...)
	}

	if murmur3.Sum32(payload) != binary.BigEndian.Uint32(b[16:20]) {
		return frame{}, domain.ErrBadFrame.WithDetails("checksum mismatch")
	}

	return frame{
		NodeID:  binary.BigEndian.Uint32(b[4:8]),
		Seq:     binary.BigEndian.Uint64(b[8:16]),
		Swap:    (flags&flagBigEndian != 0) != hostBigEndian(),
		Payload: payload,
	}, nil
}
