package command

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/russellb/corosync/internal/core/domain"
	"github.com/russellb/corosync/internal/core/service"
)

var order = binary.NativeEndian

type frame struct {
	kind byte
	msg  []byte
}

func response(msg []byte) frame { return frame{kind: 0, msg: msg} }
func event(msg []byte) frame    { return frame{kind: 1, msg: msg} }

// handlerFunc answers one request with the frames to write back.
type handlerFunc func(id int32, req []byte) []frame

// fakeDaemon serves service sockets in a temporary directory.
type fakeDaemon struct {
	dir    string
	setup  domain.Result
	routes map[domain.ServiceID]handlerFunc
}

func newFakeDaemon(t *testing.T, routes map[domain.ServiceID]handlerFunc) *fakeDaemon {
	t.Helper()
	dir, err := os.MkdirTemp("", "cs")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	d := &fakeDaemon{dir: dir, setup: domain.ResultOK, routes: routes}
	for svc, h := range routes {
		ln, err := net.Listen("unix", filepath.Join(dir, svc.String()+".sock"))
		if err != nil {
			t.Fatalf("listen %s: %v", svc, err)
		}
		t.Cleanup(func() { ln.Close() })
		go d.accept(ln, h)
	}
	return d
}

func (d *fakeDaemon) accept(ln net.Listener, h handlerFunc) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go d.serve(conn, h)
	}
}

func (d *fakeDaemon) serve(conn net.Conn, h handlerFunc) {
	defer conn.Close()
	if writeFrames(conn, response(domain.NewResponse(0, d.setup, 0))) != nil || d.setup != domain.ResultOK {
		return
	}
	for {
		head := make([]byte, domain.RequestHeaderSize)
		if _, err := io.ReadFull(conn, head); err != nil {
			return
		}
		hdr, _ := domain.ParseRequestHeader(head, domain.HostOrder)
		req := make([]byte, hdr.Size)
		copy(req, head)
		if _, err := io.ReadFull(conn, req[domain.RequestHeaderSize:]); err != nil {
			return
		}
		if writeFrames(conn, h(hdr.ID, req)...) != nil {
			return
		}
	}
}

func writeFrames(w io.Writer, frames ...frame) error {
	for _, f := range frames {
		if _, err := w.Write(append([]byte{f.kind}, f.msg...)); err != nil {
			return err
		}
	}
	return nil
}

// runApp runs the CLI against dir with extra global flags in front of
// args and returns everything it printed.
func runApp(t *testing.T, dir string, global []string, args ...string) (string, error) {
	return runAppInput(t, dir, "", global, args...)
}

func runAppInput(t *testing.T, dir, input string, global []string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	var out bytes.Buffer
	app := App()
	app.Reader = bytes.NewBufferString(input)
	app.Writer, app.ErrWriter = &out, &out
	app.ExitErrHandler = func(*cli.Context, error) {}

	argv := []string{"corosync-cli", "--config", filepath.Join(t.TempDir(), "cli.yaml"), "--socket-dir", dir, "--timeout", "5s"}
	argv = append(argv, global...)
	argv = append(argv, args...)
	err := app.Run(argv)
	return out.String(), err
}

func putName(b []byte, s string) []byte {
	b = order.AppendUint32(b, uint32(len(s)))
	field := make([]byte, service.NameLength)
	copy(field, s)
	return append(b, field...)
}

// patchSize fixes the size field of a hand-built response.
func patchSize(msg []byte) []byte {
	domain.HostOrder.PutUint32(msg[0:4], uint32(len(msg)))
	return msg
}

func notification(quorate bool, ringSeq uint64, nodes ...uint32) []byte {
	msg := domain.NewResponse(service.QuorumResNotification, domain.ResultOK, 0)
	q := uint32(0)
	if quorate {
		q = 1
	}
	msg = order.AppendUint32(msg, q)
	msg = order.AppendUint64(msg, ringSeq)
	msg = order.AppendUint32(msg, uint32(len(nodes)))
	for _, n := range nodes {
		msg = order.AppendUint32(msg, n)
	}
	return patchSize(msg)
}

func delivery(group string, nodeID, pid uint32, payload []byte) []byte {
	msg := domain.NewResponse(service.CPGResDeliverCallback, domain.ResultOK, 0)
	msg = putName(msg, group)
	msg = order.AppendUint32(msg, nodeID)
	msg = order.AppendUint32(msg, pid)
	msg = order.AppendUint32(msg, uint32(len(payload)))
	return patchSize(append(msg, payload...))
}

func ok(id int32) []frame {
	return []frame{response(domain.NewResponse(id, domain.ResultOK, 0))}
}
