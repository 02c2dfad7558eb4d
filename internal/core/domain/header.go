package domain

import (
	"encoding/binary"
	"math/bits"
)

// Header sizes on the wire. The response header keeps the 8-byte
// alignment of the request header, so it carries 4 bytes of padding.
const (
	RequestHeaderSize  = 8
	ResponseHeaderSize = 16
)

// HostOrder is the byte order used on the local socket and for payloads
// originated by this node.
var HostOrder binary.ByteOrder = binary.NativeEndian

// RequestHeader is the generic header in front of every request and
// every multicast message.
type RequestHeader struct {
	Size int32
	ID   int32
}

// ResponseHeader is the generic header in front of responses and events.
type ResponseHeader struct {
	Size  int32
	ID    int32
	Error Result
}

// ParseRequestHeader decodes a request header from b.
func ParseRequestHeader(b []byte, order binary.ByteOrder) (RequestHeader, error) {
	if len(b) < RequestHeaderSize {
		return RequestHeader{}, ErrMalformedHeader.WithDetails("short header")
	}
	return RequestHeader{
		Size: int32(order.Uint32(b[0:4])),
		ID:   int32(order.Uint32(b[4:8])),
	}, nil
}

// PutRequestHeader encodes h into b, which must hold RequestHeaderSize bytes.
func PutRequestHeader(b []byte, h RequestHeader) {
	HostOrder.PutUint32(b[0:4], uint32(h.Size))
	HostOrder.PutUint32(b[4:8], uint32(h.ID))
}

// ParseResponseHeader decodes a response or event header from b.
func ParseResponseHeader(b []byte) (ResponseHeader, error) {
	if len(b) < ResponseHeaderSize {
		return ResponseHeader{}, ErrMalformedHeader.WithDetails("short response header")
	}
	return ResponseHeader{
		Size:  int32(HostOrder.Uint32(b[0:4])),
		ID:    int32(HostOrder.Uint32(b[4:8])),
		Error: Result(int32(HostOrder.Uint32(b[8:12]))),
	}, nil
}

// PutResponseHeader encodes h into b, which must hold ResponseHeaderSize bytes.
func PutResponseHeader(b []byte, h ResponseHeader) {
	HostOrder.PutUint32(b[0:4], uint32(h.Size))
	HostOrder.PutUint32(b[4:8], uint32(h.ID))
	HostOrder.PutUint32(b[8:12], uint32(h.Error))
	HostOrder.PutUint32(b[12:16], 0)
}

// NewResponse allocates a response of ResponseHeaderSize+payloadLen bytes
// with its header filled in. The payload area is left zeroed.
func NewResponse(id int32, result Result, payloadLen int) []byte {
	buf := make([]byte, ResponseHeaderSize+payloadLen)
	PutResponseHeader(buf, ResponseHeader{
		Size:  int32(len(buf)),
		ID:    id,
		Error: result,
	})
	return buf
}

// NewRequest allocates a request of RequestHeaderSize+payloadLen bytes
// with its header filled in.
func NewRequest(id int32, payloadLen int) []byte {
	buf := make([]byte, RequestHeaderSize+payloadLen)
	PutRequestHeader(buf, RequestHeader{Size: int32(len(buf)), ID: id})
	return buf
}

// MessageID combines a service and a function into a multicast id.
func MessageID(service ServiceID, fn int) int32 {
	return int32(uint32(service)<<16 | uint32(fn)&0xffff)
}

// SplitID splits a multicast id into its service and function parts.
func SplitID(id int32) (ServiceID, int) {
	u := uint32(id)
	return ServiceID(u >> 16), int(u & 0xffff)
}

// Swab32 reverses the byte order of a 32-bit value.
func Swab32(v uint32) uint32 {
	return bits.ReverseBytes32(v)
}

// ByteOrderMark identifies the local byte order in transport frames.
func ByteOrderMark() byte {
	if HostOrder.Uint16([]byte{1, 0}) == 1 {
		return 'L'
	}
	return 'B'
}
