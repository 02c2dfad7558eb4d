package service

import (
	"fmt"
	"sync"

	"github.com/russellb/corosync/internal/core/domain"
)

// FlowControl states whether a request must respect transport backpressure.
type FlowControl bool

const (
	FlowControlNotRequired FlowControl = false
	FlowControlRequired    FlowControl = true
)

// LibHandler handles a request from a local client. msg is the raw
// request including its header.
type LibHandler func(api API, conn ConnID, msg []byte)

// ExecHandler handles a message delivered by the cluster transport.
type ExecHandler func(api API, msg []byte, nodeID uint32)

// LibEngine is one entry of a service's library handler table.
type LibEngine struct {
	Handler     LibHandler
	FlowControl FlowControl
}

// ExecEngine is one entry of a service's execution handler table.
type ExecEngine struct {
	Handler ExecHandler
	// EndianConvert rewrites msg in place when it originated on a node
	// with the other byte order. The header id is already converted.
	EndianConvert func(msg []byte)
}

// Descriptor describes a service engine.
type Descriptor struct {
	ID             domain.ServiceID
	Name           string
	AllowInquorate bool

	LibEngines  []LibEngine
	ExecEngines []ExecEngine

	// NewPrivate creates the per-connection private block.
	NewPrivate func() any

	// LibInit runs when a client connection is created.
	LibInit func(api API, conn ConnID) error

	// LibExit runs when a client connection closes. A non-nil error asks
	// the channel layer to retry the close later.
	LibExit func(api API, conn ConnID) error

	// ConfChg runs on every configuration change.
	ConfChg func(api API, change ConfChange)

	// QuorumChange runs when the quorate state flips.
	QuorumChange func(api API, quorate bool)
}

// HasIPC reports whether the service accepts client connections.
func (d *Descriptor) HasIPC() bool {
	return len(d.LibEngines) > 0
}

type entry struct {
	desc      *Descriptor
	unloading bool
}

// Registry holds the loaded services indexed by id.
type Registry struct {
	mu       sync.RWMutex
	services [domain.MaxServices]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a service. Ids must be valid and unique.
func (r *Registry) Register(d *Descriptor) error {
	if d == nil || !d.ID.Valid() {
		return fmt.Errorf("register service: invalid id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.services[d.ID] != nil {
		return fmt.Errorf("register service %s: already registered", d.ID)
	}
	if d.Name == "" {
		d.Name = d.ID.String()
	}
	r.services[d.ID] = &entry{desc: d}
	return nil
}

// Lookup returns the service registered under id.
func (r *Registry) Lookup(id domain.ServiceID) (*Descriptor, bool) {
	if !id.Valid() {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e := r.services[id]
	if e == nil {
		return nil, false
	}
	return e.desc, true
}

// SetUnloading marks a service as unloading; new connections are denied
// while the flag is set.
func (r *Registry) SetUnloading(id domain.ServiceID, unloading bool) error {
	if !id.Valid() {
		return domain.ErrServiceUnknown
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.services[id]
	if e == nil {
		return domain.ErrServiceUnknown
	}
	e.unloading = unloading
	return nil
}

// Unloading reports whether the service is being unloaded.
func (r *Registry) Unloading(id domain.ServiceID) bool {
	if !id.Valid() {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e := r.services[id]
	return e != nil && e.unloading
}

// Each calls fn for every registered service in id order.
func (r *Registry) Each(fn func(d *Descriptor)) {
	r.mu.RLock()
	list := make([]*Descriptor, 0, len(r.services))
	for _, e := range r.services {
		if e != nil {
			list = append(list, e.desc)
		}
	}
	r.mu.RUnlock()

	for _, d := range list {
		fn(d)
	}
}

// RegisterDefaults registers the engines shipped with the daemon.
func RegisterDefaults(r *Registry) error {
	for _, d := range []*Descriptor{
		NewCFG(r),
		NewCPG(),
		NewQuorum(),
		NewPLoad(),
	} {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}
