package service

import (
	"bytes"
	"encoding/binary"
	"math/bits"

	"github.com/russellb/corosync/internal/core/domain"
)

// NameLength is the fixed size of group and service names on the wire.
const NameLength = 128

var order = binary.NativeEndian

// reader decodes the fixed-layout payload behind a request header.
// The first short read records ErrBadPayload and later reads return zero.
type reader struct {
	b   []byte
	off int
	err error
}

func newReader(msg []byte) *reader {
	r := &reader{b: msg, off: domain.RequestHeaderSize}
	if len(msg) < domain.RequestHeaderSize {
		r.err = domain.ErrBadPayload.WithDetails("short message")
	}
	return r
}

// newResponseReader decodes the payload behind a response or event header.
func newResponseReader(msg []byte) *reader {
	r := &reader{b: msg, off: domain.ResponseHeaderSize}
	if len(msg) < domain.ResponseHeaderSize {
		r.err = domain.ErrBadPayload.WithDetails("short message")
	}
	return r
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.b) {
		r.err = domain.ErrBadPayload.WithDetails("truncated payload")
		return nil
	}
	p := r.b[r.off : r.off+n]
	r.off += n
	return p
}

func (r *reader) uint32() uint32 {
	p := r.take(4)
	if p == nil {
		return 0
	}
	return order.Uint32(p)
}

func (r *reader) uint64() uint64 {
	p := r.take(8)
	if p == nil {
		return 0
	}
	return order.Uint64(p)
}

// name reads a length-prefixed fixed-size name field.
func (r *reader) name() string {
	n := r.uint32()
	p := r.take(NameLength)
	if p == nil {
		return ""
	}
	if n > NameLength {
		r.err = domain.ErrBadPayload.WithDetails("name too long")
		return ""
	}
	return string(p[:n])
}

// cstring reads a NUL-padded string field of n bytes.
func (r *reader) cstring(n int) string {
	p := r.take(n)
	if p == nil {
		return ""
	}
	if i := bytes.IndexByte(p, 0); i >= 0 {
		p = p[:i]
	}
	return string(p)
}

func (r *reader) rest() []byte {
	if r.err != nil {
		return nil
	}
	p := r.b[r.off:]
	r.off = len(r.b)
	return p
}

// writer builds a message with a generic header in front.
type writer struct {
	buf     []byte
	request bool
}

func newResponseWriter(id int32, result domain.Result) *writer {
	w := &writer{buf: make([]byte, domain.ResponseHeaderSize, 64)}
	domain.PutResponseHeader(w.buf, domain.ResponseHeader{ID: id, Error: result})
	return w
}

func newRequestWriter(id int32) *writer {
	w := &writer{buf: make([]byte, domain.RequestHeaderSize, 64), request: true}
	domain.PutRequestHeader(w.buf, domain.RequestHeader{ID: id})
	return w
}

func (w *writer) uint32(v uint32) *writer {
	w.buf = order.AppendUint32(w.buf, v)
	return w
}

func (w *writer) uint64(v uint64) *writer {
	w.buf = order.AppendUint64(w.buf, v)
	return w
}

func (w *writer) name(s string) *writer {
	if len(s) > NameLength {
		s = s[:NameLength]
	}
	w.uint32(uint32(len(s)))
	return w.cstring(s, NameLength)
}

func (w *writer) cstring(s string, n int) *writer {
	field := make([]byte, n)
	copy(field, s)
	w.buf = append(w.buf, field...)
	return w
}

func (w *writer) raw(p []byte) *writer {
	w.buf = append(w.buf, p...)
	return w
}

// bytes patches the size field and returns the message.
func (w *writer) bytes() []byte {
	order.PutUint32(w.buf[0:4], uint32(len(w.buf)))
	return w.buf
}

// simpleResponse builds a header-only response.
func simpleResponse(id int32, result domain.Result) []byte {
	return domain.NewResponse(id, result, 0)
}

// respond sends msg to conn. A response that cannot be sent means the
// connection is going away, so the failure is only logged.
func respond(api API, conn ConnID, msg []byte) {
	if err := api.Respond(conn, msg); err != nil {
		h, _ := domain.ParseResponseHeader(msg)
		api.Logger().Warn("response not delivered", "conn", uint64(conn), "id", h.ID, "error", err)
	}
}

// swap32 reverses the uint32 fields at the given payload offsets.
func swap32(msg []byte, offsets ...int) {
	for _, off := range offsets {
		at := domain.RequestHeaderSize + off
		if at+4 > len(msg) {
			return
		}
		order.PutUint32(msg[at:], domain.Swab32(order.Uint32(msg[at:])))
	}
}

// swap64 reverses the uint64 fields at the given payload offsets.
func swap64(msg []byte, offsets ...int) {
	for _, off := range offsets {
		at := domain.RequestHeaderSize + off
		if at+8 > len(msg) {
			return
		}
		order.PutUint64(msg[at:], bits.ReverseBytes64(order.Uint64(msg[at:])))
	}
}
