package connection

import (
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/russellb/corosync/internal/core/domain"
)

// fakeDaemon accepts connections on a temporary socket. Each connection
// gets the setup result and is then handed to serve.
type fakeDaemon struct {
	path   string
	ln     net.Listener
	result domain.Result
	serve  func(conn net.Conn)
}

func newFakeDaemon(t *testing.T, result domain.Result, serve func(conn net.Conn)) *fakeDaemon {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cpg.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	d := &fakeDaemon{path: path, ln: ln, result: result, serve: serve}
	t.Cleanup(func() { ln.Close() })
	go d.accept()
	return d
}

func (d *fakeDaemon) accept() {
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			if err := writeFrame(conn, frameResponse, domain.NewResponse(0, d.result, 0)); err != nil {
				return
			}
			if d.result != domain.ResultOK || d.serve == nil {
				return
			}
			d.serve(conn)
		}()
	}
}

func writeFrame(w io.Writer, kind byte, msg []byte) error {
	_, err := w.Write(append([]byte{kind}, msg...))
	return err
}

// readRequest reads one request and returns its id.
func readRequest(r io.Reader) (int32, error) {
	head := make([]byte, domain.RequestHeaderSize)
	if _, err := io.ReadFull(r, head); err != nil {
		return 0, err
	}
	h, err := domain.ParseRequestHeader(head, domain.HostOrder)
	if err != nil {
		return 0, err
	}
	if _, err := io.CopyN(io.Discard, r, int64(h.Size)-domain.RequestHeaderSize); err != nil {
		return 0, err
	}
	return h.ID, nil
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestDial_Setup(t *testing.T) {
	tests := []struct {
		name    string
		result  domain.Result
		wantErr domain.Result
	}{
		{"accepted", domain.ResultOK, 0},
		{"access denied", domain.ResultAccess, domain.ResultAccess},
		{"no resources", domain.ResultNoResources, domain.ResultNoResources},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newFakeDaemon(t, tt.result, func(conn net.Conn) { io.Copy(io.Discard, conn) })

			c, err := Dial(testContext(t), d.path)
			if tt.wantErr == 0 {
				if err != nil {
					t.Fatalf("Dial() error = %v", err)
				}
				c.Close()
				return
			}
			var re *ResultError
			if !errors.As(err, &re) {
				t.Fatalf("Dial() error = %v, want *ResultError", err)
			}
			if re.Result != tt.wantErr {
				t.Errorf("result = %v, want %v", re.Result, tt.wantErr)
			}
		})
	}
}

func TestDial_NoSocket(t *testing.T) {
	_, err := Dial(testContext(t), filepath.Join(t.TempDir(), "missing.sock"))
	if err == nil {
		t.Fatal("Dial() succeeded without a listener")
	}
}

func TestClient_CallAndEvents(t *testing.T) {
	d := newFakeDaemon(t, domain.ResultOK, func(conn net.Conn) {
		for {
			id, err := readRequest(conn)
			if err != nil {
				return
			}
			ev := domain.NewResponse(5, domain.ResultOK, 4)
			domain.HostOrder.PutUint32(ev[domain.ResponseHeaderSize:], uint32(id))
			if writeFrame(conn, frameEvent, ev) != nil {
				return
			}
			if writeFrame(conn, frameResponse, domain.NewResponse(id, domain.ResultOK, 8)) != nil {
				return
			}
		}
	})

	ctx := testContext(t)
	c, err := Dial(ctx, d.path)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	for _, id := range []int32{3, 4} {
		res, err := c.Call(ctx, domain.NewRequest(id, 2))
		if err != nil {
			t.Fatalf("Call(%d) error = %v", id, err)
		}
		h, _ := domain.ParseResponseHeader(res)
		if h.ID != id || len(res) != domain.ResponseHeaderSize+8 {
			t.Errorf("response = id %d len %d, want id %d len %d", h.ID, len(res), id, domain.ResponseHeaderSize+8)
		}

		select {
		case ev := <-c.Events():
			if got := domain.HostOrder.Uint32(ev[domain.ResponseHeaderSize:]); got != uint32(id) {
				t.Errorf("event payload = %d, want %d", got, id)
			}
		case <-ctx.Done():
			t.Fatal("no event")
		}
	}
}

func TestClient_CallResultError(t *testing.T) {
	d := newFakeDaemon(t, domain.ResultOK, func(conn net.Conn) {
		for {
			id, err := readRequest(conn)
			if err != nil {
				return
			}
			writeFrame(conn, frameResponse, domain.NewResponse(id, domain.ResultNotExist, 0))
		}
	})

	ctx := testContext(t)
	c, err := Dial(ctx, d.path)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	res, err := c.Call(ctx, domain.NewRequest(1, 0))
	var re *ResultError
	if !errors.As(err, &re) || re.Result != domain.ResultNotExist {
		t.Fatalf("Call() error = %v, want ERR_NOT_EXIST", err)
	}
	if re.Temporary() {
		t.Error("ERR_NOT_EXIST reported as temporary")
	}
	if len(res) != domain.ResponseHeaderSize {
		t.Errorf("response length = %d, want header only", len(res))
	}
}

func TestClient_Retry(t *testing.T) {
	var attempts atomic.Int32
	d := newFakeDaemon(t, domain.ResultOK, func(conn net.Conn) {
		for {
			id, err := readRequest(conn)
			if err != nil {
				return
			}
			result := domain.ResultTryAgain
			if attempts.Add(1) == 3 {
				result = domain.ResultOK
			}
			writeFrame(conn, frameResponse, domain.NewResponse(id, result, 0))
		}
	})

	ctx := testContext(t)
	c, err := Dial(ctx, d.path, WithRetry(5, time.Millisecond))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	if _, err := c.Call(ctx, domain.NewRequest(1, 0)); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestClient_DaemonCloses(t *testing.T) {
	d := newFakeDaemon(t, domain.ResultOK, func(conn net.Conn) {
		readRequest(conn)
	})

	ctx := testContext(t)
	c, err := Dial(ctx, d.path)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	if _, err := c.Call(ctx, domain.NewRequest(1, 0)); !errors.Is(err, ErrClosed) {
		t.Errorf("Call() error = %v, want ErrClosed", err)
	}
	select {
	case _, ok := <-c.Events():
		if ok {
			t.Error("Events() delivered after close")
		}
	case <-ctx.Done():
		t.Fatal("Events() not closed")
	}
}

func TestClient_EventsDropped(t *testing.T) {
	d := newFakeDaemon(t, domain.ResultOK, func(conn net.Conn) {
		readRequest(conn)
		for i := 0; i < 4; i++ {
			writeFrame(conn, frameEvent, domain.NewResponse(5, domain.ResultOK, 0))
		}
		writeFrame(conn, frameResponse, domain.NewResponse(1, domain.ResultOK, 0))
		io.Copy(io.Discard, conn)
	})

	ctx := testContext(t)
	c, err := Dial(ctx, d.path, WithEventBuffer(1), WithDropEvents())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	if _, err := c.Call(ctx, domain.NewRequest(1, 0)); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got := c.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}
}

func TestClient_EventsBackpressure(t *testing.T) {
	const total = 8
	d := newFakeDaemon(t, domain.ResultOK, func(conn net.Conn) {
		for i := 0; i < total; i++ {
			if writeFrame(conn, frameEvent, domain.NewResponse(int32(i), domain.ResultOK, 0)) != nil {
				return
			}
		}
		io.Copy(io.Discard, conn)
	})

	ctx := testContext(t)
	c, err := Dial(ctx, d.path, WithEventBuffer(1))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	time.Sleep(200 * time.Millisecond)
	for i := 0; i < total; i++ {
		select {
		case msg := <-c.Events():
			h, _ := domain.ParseResponseHeader(msg)
			if h.ID != int32(i) {
				t.Fatalf("event %d has id %d, want events in order", i, h.ID)
			}
		case <-ctx.Done():
			t.Fatalf("event %d never arrived", i)
		}
	}
	if got := c.Dropped(); got != 0 {
		t.Errorf("Dropped() = %d, want 0", got)
	}
}

func TestClient_Closed(t *testing.T) {
	d := newFakeDaemon(t, domain.ResultOK, func(conn net.Conn) { io.Copy(io.Discard, conn) })

	ctx := testContext(t)
	c, err := Dial(ctx, d.path)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	c.Close()

	if err := c.Send(ctx, domain.NewRequest(1, 0)); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() error = %v, want ErrClosed", err)
	}
}

func TestSocketPath(t *testing.T) {
	if got, want := SocketPath("/run/corosync", domain.ServiceCPG), "/run/corosync/cpg.sock"; got != want {
		t.Errorf("SocketPath() = %q, want %q", got, want)
	}
}
