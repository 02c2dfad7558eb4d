package localserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/russellb/corosync/internal/core/domain"
	"github.com/russellb/corosync/internal/core/service"
	"github.com/russellb/corosync/internal/ipc"
)

// Glue is the connection lifecycle of the IPC core. Accept may be called
// from any goroutine; every other method runs on the event loop.
type Glue interface {
	Accept(svc domain.ServiceID, creds ipc.Credentials) error
	Created(svc domain.ServiceID, ch ipc.Channel) (service.ConnID, error)
	Message(id service.ConnID, msg []byte) error
	Closed(id service.ConnID) error
	Destroyed(id service.ConnID)
	AddAcceptor(a ipc.Acceptor) error
	RemoveAcceptor(a ipc.Acceptor)
}

// Loop runs closures on the event loop.
type Loop interface {
	Post(fn func())
	Call(ctx context.Context, fn func()) error
}

// Config holds the local server configuration.
type Config struct {
	// SocketDir holds one socket per service.
	SocketDir string
	// Services lists the services to listen for.
	Services []domain.ServiceID
	// MaxRequestSize bounds one request, header included.
	MaxRequestSize int
	// EventBufferBytes bounds unsent events per connection before
	// TrySendEvent reports would-block.
	EventBufferBytes int
	// ResponseBuffer is the number of responses held per connection.
	ResponseBuffer int
	// WriteTimeout bounds one socket write (0 disables).
	WriteTimeout time.Duration
	// CloseRetry is the delay before a deferred close is retried.
	CloseRetry time.Duration
	Rates      RateTable
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		SocketDir:        "/var/run/corosync",
		MaxRequestSize:   1 << 20,
		EventBufferBytes: 1 << 20,
		ResponseBuffer:   64,
		WriteTimeout:     10 * time.Second,
		CloseRetry:       100 * time.Millisecond,
		Rates:            DefaultRateTable(),
	}
}

// Server represents the local IPC server.
type Server struct {
	cfg    *Config
	glue   Glue
	loop   Loop
	logger *slog.Logger

	acceptors []*acceptor

	mu       sync.Mutex
	channels map[*channel]struct{}

	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a new local server.
func New(cfg *Config, glue Glue, loop Loop, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		glue:     glue,
		loop:     loop,
		logger:   logger,
		channels: make(map[*channel]struct{}),
	}
}

// SocketPath returns the socket path of svc.
func (s *Server) SocketPath(svc domain.ServiceID) string {
	return filepath.Join(s.cfg.SocketDir, svc.String()+".sock")
}

// Start opens every service socket and begins accepting. Acceptors are
// registered with the core before Start returns.
func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.SocketDir, 0o755); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}

	for _, svc := range s.cfg.Services {
		a := newAcceptor(svc, s.SocketPath(svc), s.cfg.Rates)
		_ = os.Remove(a.path)
		ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: a.path, Net: "unix"})
		if err != nil {
			s.closeListeners()
			return fmt.Errorf("listen %s: %w", a.path, err)
		}
		// Access control is by peer credentials, not file mode.
		if err := os.Chmod(a.path, 0o666); err != nil {
			s.logger.Warn("chmod socket failed", "path", a.path, "error", err)
		}
		a.listener = ln
		s.acceptors = append(s.acceptors, a)
	}

	var regErr error
	if err := s.loop.Call(ctx, func() {
		for _, a := range s.acceptors {
			if err := s.glue.AddAcceptor(a); err != nil {
				regErr = errors.Join(regErr, err)
			}
		}
	}); err != nil {
		s.closeListeners()
		return err
	}
	if regErr != nil {
		s.closeListeners()
		return regErr
	}

	s.running.Store(true)
	for _, a := range s.acceptors {
		s.logger.Info("listening", "service", a.svc.String(), "path", a.path)
		s.wg.Add(1)
		go func(a *acceptor) {
			defer s.wg.Done()
			if err := s.acceptLoop(ctx, a); err != nil && s.running.Load() {
				s.logger.Error("accept loop failed", "service", a.svc.String(), "error", err)
			}
		}(a)
	}
	return nil
}

// Shutdown closes every socket and waits for connection goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)
	s.closeListeners()

	s.loop.Post(func() {
		for _, a := range s.acceptors {
			s.glue.RemoveAcceptor(a)
		}
	})

	s.mu.Lock()
	chans := make([]*channel, 0, len(s.channels))
	for ch := range s.channels {
		chans = append(chans, ch)
	}
	s.mu.Unlock()
	for _, ch := range chans {
		ch.close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Directive returns the directive last applied to the acceptor of svc.
func (s *Server) Directive(svc domain.ServiceID) (domain.Directive, bool) {
	for _, a := range s.acceptors {
		if a.svc == svc {
			return a.Directive(), true
		}
	}
	return domain.DirectiveOff, false
}

func (s *Server) closeListeners() {
	for _, a := range s.acceptors {
		if a.listener != nil {
			_ = a.listener.Close()
		}
	}
}

func (s *Server) acceptLoop(ctx context.Context, a *acceptor) error {
	for {
		c, err := a.listener.AcceptUnix()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, a, c)
		}()
	}
}

// setup writes a failed setup frame carrying result.
func setup(c net.Conn, result domain.Result) error {
	frame := append([]byte{FrameResponse}, domain.NewResponse(0, result, 0)...)
	_, err := c.Write(frame)
	return err
}

func (s *Server) serveConn(ctx context.Context, a *acceptor, c *net.UnixConn) {
	creds, err := peerCredentials(c)
	if err != nil {
		s.logger.Warn("peer credentials unavailable", "service", a.svc.String(), "error", err)
		_ = setup(c, domain.ResultAccess)
		_ = c.Close()
		return
	}

	if err := s.glue.Accept(a.svc, creds); err != nil {
		_ = setup(c, domain.ResultFor(err))
		_ = c.Close()
		return
	}

	ch := newChannel(c, creds, s.cfg.ResponseBuffer, s.cfg.EventBufferBytes)
	ch.writeTimeout = s.cfg.WriteTimeout

	var createErr error
	err = s.loop.Call(ctx, func() {
		ch.id, createErr = s.glue.Created(a.svc, ch)
		if createErr == nil {
			ch.teardown = func() { s.loop.Post(func() { s.closeConn(ch) }) }
			// Queued ahead of anything the service sends later.
			_ = ch.SendResponse(domain.NewResponse(0, domain.ResultOK, 0))
		}
	})
	if err == nil {
		err = createErr
	}
	if err != nil {
		s.logger.Debug("connection setup failed", "service", a.svc.String(), "pid", creds.PID, "error", err)
		_ = setup(c, domain.ResultFor(err))
		_ = c.Close()
		return
	}

	s.mu.Lock()
	s.channels[ch] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ch.writeLoop()
	}()

	s.readLoop(ctx, a, ch)
	ch.close()

	s.mu.Lock()
	delete(s.channels, ch)
	s.mu.Unlock()
}

// readLoop frames requests and hands them to the loop at the acceptor's
// rate.
func (s *Server) readLoop(ctx context.Context, a *acceptor, ch *channel) {
	hdr := make([]byte, domain.RequestHeaderSize)
	for {
		if _, err := io.ReadFull(ch.conn, hdr); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("connection read error", "service", a.svc.String(), "error", err)
			}
			return
		}

		h, _ := domain.ParseRequestHeader(hdr, domain.HostOrder)
		size := int(h.Size)
		if size < domain.RequestHeaderSize || size > s.cfg.MaxRequestSize {
			s.logger.Warn("request size out of bounds, disconnecting",
				"service", a.svc.String(), "size", size, "max", s.cfg.MaxRequestSize)
			return
		}

		msg := make([]byte, size)
		copy(msg, hdr)
		if _, err := io.ReadFull(ch.conn, msg[domain.RequestHeaderSize:]); err != nil {
			return
		}

		waited, err := a.admit(ctx)
		if waited {
			ch.recvRetries.Add(1)
		}
		if err != nil {
			return
		}

		ch.requests.Add(1)
		s.loop.Post(func() {
			if err := s.glue.Message(ch.id, msg); err != nil {
				s.logger.Debug("message dropped", "service", a.svc.String(), "error", err)
			}
		})
	}
}

// closeConn runs on the loop. A deferred close is retried after
// CloseRetry; Destroyed follows a successful close.
func (s *Server) closeConn(ch *channel) {
	err := s.glue.Closed(ch.id)
	if errors.Is(err, ipc.ErrRetryClose) {
		time.AfterFunc(s.cfg.CloseRetry, func() {
			s.loop.Post(func() { s.closeConn(ch) })
		})
		return
	}
	if err != nil {
		s.logger.Warn("close failed", "error", err)
	}
	s.glue.Destroyed(ch.id)
}
