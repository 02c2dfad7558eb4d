package localserver

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/russellb/corosync/internal/core/service"
	"github.com/russellb/corosync/internal/ipc"
)

// Frame kinds written to the client.
const (
	FrameResponse byte = 0
	FrameEvent    byte = 1
)

// channel is one client connection. SendResponse and TrySendEvent are
// called from the event loop and never block; a writer goroutine owns the
// socket writes.
type channel struct {
	conn  net.Conn
	creds ipc.Credentials
	id    service.ConnID

	responses chan []byte

	mu          sync.Mutex
	events      [][]byte
	eventBytes  int
	eventLimit  int
	eventNotify chan struct{}

	writeTimeout time.Duration

	closeOnce sync.Once
	closed    chan struct{}
	teardown  func()

	requests    atomic.Uint64
	sent        atomic.Uint64
	dispatched  atomic.Uint64
	sendRetries atomic.Uint64
	recvRetries atomic.Uint64
}

func newChannel(conn net.Conn, creds ipc.Credentials, responseBuffer, eventLimit int) *channel {
	if responseBuffer <= 0 {
		responseBuffer = 1
	}
	return &channel{
		conn:        conn,
		creds:       creds,
		responses:   make(chan []byte, responseBuffer),
		eventLimit:  eventLimit,
		eventNotify: make(chan struct{}, 1),
		closed:      make(chan struct{}),
	}
}

var _ ipc.Channel = (*channel)(nil)

// SendResponse implements ipc.Channel.
func (c *channel) SendResponse(msg []byte) error {
	select {
	case <-c.closed:
		return ipc.ErrChannelClosed
	default:
	}

	buf := make([]byte, len(msg))
	copy(buf, msg)
	select {
	case c.responses <- buf:
		return nil
	default:
		c.sendRetries.Add(1)
		return ipc.ErrWouldBlock
	}
}

// TrySendEvent implements ipc.Channel. A message larger than the whole
// buffer is taken only when the buffer is empty.
func (c *channel) TrySendEvent(msg []byte) error {
	select {
	case <-c.closed:
		return ipc.ErrChannelClosed
	default:
	}

	c.mu.Lock()
	if c.eventBytes > 0 && c.eventBytes+len(msg) > c.eventLimit {
		c.mu.Unlock()
		c.sendRetries.Add(1)
		return ipc.ErrWouldBlock
	}
	buf := make([]byte, len(msg))
	copy(buf, msg)
	c.events = append(c.events, buf)
	c.eventBytes += len(buf)
	c.mu.Unlock()

	select {
	case c.eventNotify <- struct{}{}:
	default:
	}
	return nil
}

// Credentials implements ipc.Channel.
func (c *channel) Credentials() ipc.Credentials { return c.creds }

// Stats implements ipc.Channel.
func (c *channel) Stats() ipc.ChannelStats {
	c.mu.Lock()
	pending := c.eventBytes
	c.mu.Unlock()

	return ipc.ChannelStats{
		Requests:    c.requests.Load(),
		Responses:   c.sent.Load(),
		Events:      c.dispatched.Load(),
		SendRetries: c.sendRetries.Load(),
		RecvRetries: c.recvRetries.Load(),
		QueueBytes:  pending,
	}
}

// Disconnect implements ipc.Channel.
func (c *channel) Disconnect() {
	c.close()
}

// close shuts the socket once and starts the teardown sequence.
func (c *channel) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
		if c.teardown != nil {
			c.teardown()
		}
	})
}

// takeEvents removes every buffered event.
func (c *channel) takeEvents() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.events
	c.events = nil
	return out
}

func (c *channel) eventWritten(n int) {
	c.mu.Lock()
	c.eventBytes -= n
	c.mu.Unlock()
	c.dispatched.Add(1)
}

// writeLoop owns socket writes. Pending responses go out before events.
func (c *channel) writeLoop() {
	for {
		if !c.flushResponses() {
			return
		}

		select {
		case msg := <-c.responses:
			if !c.write(FrameResponse, msg) {
				return
			}
			c.sent.Add(1)
		case <-c.eventNotify:
			if !c.flushResponses() {
				return
			}
			for _, ev := range c.takeEvents() {
				if !c.write(FrameEvent, ev) {
					return
				}
				c.eventWritten(len(ev))
			}
		case <-c.closed:
			return
		}
	}
}

// flushResponses writes every response queued so far.
func (c *channel) flushResponses() bool {
	for {
		select {
		case msg := <-c.responses:
			if !c.write(FrameResponse, msg) {
				return false
			}
			c.sent.Add(1)
		default:
			return true
		}
	}
}

func (c *channel) write(kind byte, msg []byte) bool {
	frame := make([]byte, 1+len(msg))
	frame[0] = kind
	copy(frame[1:], msg)

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			c.close()
			return false
		}
	}
	if _, err := c.conn.Write(frame); err != nil {
		c.close()
		return false
	}
	return true
}
