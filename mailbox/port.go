package mailbox

import (
	"sync"

	"tinykernel/kernel"
	"tinykernel/kernelerr"
	"tinykernel/semaphore"
)

// PortCapacity is the independent, smaller ring-buffer capacity named
// ports use in place of a caller-chosen mailbox capacity.
const PortCapacity = 8

// Port is a named-channel variant of Mailbox, owned by the process
// that created it.
type Port struct {
	*Mailbox
	name  string
	owner kernel.ProcID
}

// Name returns the port's registered name.
func (p *Port) Name() string { return p.name }

// Owner returns the pid that created the port.
func (p *Port) Owner() kernel.ProcID { return p.owner }

// PortRegistry maps unique names to ports. The registry's own mutex is
// a plain sync.Mutex, not the kernel gate: name lookup is metadata
// bookkeeping layered on top of the kernel, not part of its core state.
type PortRegistry struct {
	sems  *semaphore.Table
	mu    sync.Mutex
	ports map[string]*Port
}

// NewPortRegistry constructs an empty registry backed by sems.
func NewPortRegistry(sems *semaphore.Table) *PortRegistry {
	return &PortRegistry{sems: sems, ports: make(map[string]*Port)}
}

// Create allocates a new named port; the name must
// be unique.
func (r *PortRegistry) Create(name string, owner kernel.ProcID) (*Port, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ports[name]; exists {
		return nil, kernelerr.New(kernelerr.Precondition, "port_create", "port name already in use")
	}
	mb, err := Create(r.sems, PortCapacity)
	if err != nil {
		return nil, err
	}
	p := &Port{Mailbox: mb, name: name, owner: owner}
	r.ports[name] = p
	return p, nil
}

// Lookup resolves a port by name.
func (r *PortRegistry) Lookup(name string) (*Port, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.ports[name]
	if !ok {
		return nil, kernelerr.New(kernelerr.InvalidID, "port_lookup", "no such port")
	}
	return p, nil
}

// Delete removes a named port, requiring the caller to be its owner.
func (r *PortRegistry) Delete(name string, caller kernel.ProcID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.ports[name]
	if !ok {
		return kernelerr.New(kernelerr.InvalidID, "port_delete", "no such port")
	}
	if p.owner != caller {
		return kernelerr.New(kernelerr.Precondition, "port_delete", "caller does not own port")
	}
	delete(r.ports, name)
	return p.Mailbox.Delete()
}
