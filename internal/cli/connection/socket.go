package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/russellb/corosync/internal/core/domain"
)

// Frame kinds written by the daemon in front of every message.
const (
	frameResponse byte = 0
	frameEvent    byte = 1
)

// DefaultEventBuffer is the number of events held for Events readers.
const DefaultEventBuffer = 64

// ErrClosed is returned by calls on a closed client.
var ErrClosed = errors.New("connection closed")

// ResultError is a non-OK result in a setup or response header.
type ResultError struct {
	Op     string
	Result domain.Result
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Result)
}

// Temporary reports whether the request may succeed when retried.
func (e *ResultError) Temporary() bool {
	return e.Result.Retryable()
}

// SocketPath returns the socket the daemon serves svc on.
func SocketPath(dir string, svc domain.ServiceID) string {
	return filepath.Join(dir, svc.String()+".sock")
}

// Option configures a Client.
type Option func(*Client)

// WithEventBuffer sets how many undelivered events are kept before new
// ones are dropped.
func WithEventBuffer(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.eventBuffer = n
		}
	}
}

// WithDropEvents makes the client discard events that arrive while the
// Events buffer is full instead of waiting for the reader. Dropped counts
// them.
func WithDropEvents() Option {
	return func(c *Client) {
		c.dropEvents = true
	}
}

// WithRetry retries a request up to attempts times while the daemon
// answers with a retryable result.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.retryDelay = delay
	}
}

// Client is one library connection to a service socket. Calls are
// serialized: the daemon answers requests of a connection in order.
//
// Events must be drained. While the Events buffer is full the client stops
// reading the socket, so the daemon queues further events for it and
// responses behind them wait too.
type Client struct {
	conn        net.Conn
	eventBuffer int
	dropEvents  bool
	attempts    int
	retryDelay  time.Duration

	mu        sync.Mutex
	responses chan []byte
	events    chan []byte
	dropped   atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
	readErr   error
}

// Dial connects to the socket at path and completes the setup exchange.
// A refused setup is returned as a *ResultError.
func Dial(ctx context.Context, path string, opts ...Option) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, err
	}

	c := &Client{
		conn:        conn,
		eventBuffer: DefaultEventBuffer,
		attempts:    1,
		responses:   make(chan []byte, 1),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.events = make(chan []byte, c.eventBuffer)

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	kind, msg, err := readFrame(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read setup: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	h, _ := domain.ParseResponseHeader(msg)
	if kind != frameResponse || h.Error != domain.ResultOK {
		conn.Close()
		return nil, &ResultError{Op: "setup", Result: h.Error}
	}

	go c.readLoop()
	return c, nil
}

// readFrame reads one kind byte and the message behind it.
func readFrame(r io.Reader) (byte, []byte, error) {
	head := make([]byte, 1+domain.ResponseHeaderSize)
	if _, err := io.ReadFull(r, head); err != nil {
		return 0, nil, err
	}
	h, err := domain.ParseResponseHeader(head[1:])
	if err != nil {
		return 0, nil, err
	}
	if h.Size < domain.ResponseHeaderSize {
		return 0, nil, domain.ErrMalformedHeader.WithDetails("size below header")
	}

	msg := make([]byte, h.Size)
	copy(msg, head[1:])
	if _, err := io.ReadFull(r, msg[domain.ResponseHeaderSize:]); err != nil {
		return 0, nil, err
	}
	return head[0], msg, nil
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		kind, msg, err := readFrame(c.conn)
		if err != nil {
			c.shutdown(err)
			return
		}
		switch kind {
		case frameResponse:
			select {
			case c.responses <- msg:
			case <-c.done:
				return
			}
		case frameEvent:
			if c.dropEvents {
				select {
				case c.events <- msg:
				default:
					c.dropped.Add(1)
				}
				continue
			}
			select {
			case c.events <- msg:
			case <-c.done:
				return
			}
		}
	}
}

// Call sends req and waits for its response. The response is returned
// even when its result is not OK; the error is then a *ResultError.
func (c *Client) Call(ctx context.Context, req []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for attempt := 1; ; attempt++ {
		res, err := c.roundTrip(ctx, req)
		if err == nil || attempt >= c.attempts {
			return res, err
		}
		var re *ResultError
		if !errors.As(err, &re) || !re.Temporary() {
			return res, err
		}
		select {
		case <-time.After(c.retryDelay):
		case <-ctx.Done():
			return res, err
		}
	}
}

func (c *Client) roundTrip(ctx context.Context, req []byte) ([]byte, error) {
	if err := c.write(ctx, req); err != nil {
		return nil, err
	}
	select {
	case res := <-c.responses:
		h, err := domain.ParseResponseHeader(res)
		if err != nil {
			return nil, err
		}
		if h.Error != domain.ResultOK {
			return res, &ResultError{Op: "request", Result: h.Error}
		}
		return res, nil
	case <-c.done:
		return nil, c.err()
	case <-ctx.Done():
		// A late response would be taken as the answer to the next call.
		c.Close()
		return nil, ctx.Err()
	}
}

// Send writes a request that gets no response.
func (c *Client) Send(ctx context.Context, req []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write(ctx, req)
}

func (c *Client) write(ctx context.Context, req []byte) error {
	select {
	case <-c.done:
		return c.err()
	default:
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	} else {
		_ = c.conn.SetWriteDeadline(time.Time{})
	}
	_, err := c.conn.Write(req)
	return err
}

// Events returns the channel of events pushed by the daemon. It is
// closed when the connection ends.
func (c *Client) Events() <-chan []byte {
	return c.events
}

// Dropped returns the number of events discarded under WithDropEvents.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection.
func (c *Client) Close() error {
	c.shutdown(ErrClosed)
	return c.conn.Close()
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.readErr = err
		close(c.done)
	})
}

func (c *Client) err() error {
	if errors.Is(c.readErr, io.EOF) {
		return ErrClosed
	}
	return c.readErr
}
