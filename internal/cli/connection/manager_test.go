package connection

import (
	"io"
	"net"
	"path/filepath"
	"testing"

	"github.com/russellb/corosync/internal/core/domain"
)

func TestManager_Get(t *testing.T) {
	d := newFakeDaemon(t, domain.ResultOK, func(conn net.Conn) { io.Copy(io.Discard, conn) })
	dir := filepath.Dir(d.path)

	m := NewManager(dir)
	defer m.Close()
	if m.Dir() != dir {
		t.Errorf("Dir() = %q, want %q", m.Dir(), dir)
	}

	ctx := testContext(t)
	first, err := m.Get(ctx, domain.ServiceCPG)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	again, err := m.Get(ctx, domain.ServiceCPG)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if first != again {
		t.Error("Get() dialed a second client for a live connection")
	}

	first.Close()
	redialed, err := m.Get(ctx, domain.ServiceCPG)
	if err != nil {
		t.Fatalf("Get() after close error = %v", err)
	}
	if redialed == first {
		t.Error("Get() returned a closed client")
	}
}

func TestManager_Missing(t *testing.T) {
	m := NewManager(t.TempDir())
	if _, err := m.Get(testContext(t), domain.ServiceQuorum); err == nil {
		t.Fatal("Get() succeeded without a socket")
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
