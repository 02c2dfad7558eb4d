package connection

import (
	"context"
	"errors"
	"sync"

	"github.com/russellb/corosync/internal/core/domain"
)

// Manager keeps one client per service, dialed on first use.
type Manager struct {
	dir  string
	opts []Option

	mu      sync.Mutex
	clients map[domain.ServiceID]*Client
}

// NewManager creates a manager for the sockets under dir.
func NewManager(dir string, opts ...Option) *Manager {
	return &Manager{
		dir:     dir,
		opts:    opts,
		clients: make(map[domain.ServiceID]*Client),
	}
}

// Dir returns the socket directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Get returns the client for svc, dialing it when there is none or the
// previous one has ended.
func (m *Manager) Get(ctx context.Context, svc domain.ServiceID) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.clients[svc]; ok {
		select {
		case <-c.Done():
			delete(m.clients, svc)
		default:
			return c, nil
		}
	}

	c, err := Dial(ctx, SocketPath(m.dir, svc), m.opts...)
	if err != nil {
		return nil, err
	}
	m.clients[svc] = c
	return c, nil
}

// Close closes every client.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for svc, c := range m.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(m.clients, svc)
	}
	return errors.Join(errs...)
}
