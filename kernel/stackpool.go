package kernel

import (
	"sync"

	"tinykernel/kernelerr"
)

// stackPool is a minimal stand-in for the external memory
// collaborator's getstk/freestk surface. A real free-list heap is out
// of scope; this exists purely so create and kill round-trip the
// stack-pool byte count exactly.
type stackPool struct {
	mu        sync.Mutex
	allocated int
}

func newStackPool() *stackPool {
	return &stackPool{}
}

// alloc returns a freshly allocated byte slice of the requested size
// and accounts for it. Stacks conceptually grow toward lower addresses
// in a real allocator; since Go supplies the real call stack for
// each process goroutine, this slice is never executed on — it exists
// only for the accounting contract.
func (p *stackPool) alloc(n int) ([]byte, error) {
	if n <= 0 {
		return nil, kernelerr.New(kernelerr.Precondition, "getstk", "invalid stack size")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allocated += n
	return make([]byte, n), nil
}

func (p *stackPool) free(stack []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allocated -= len(stack)
}

// Allocated reports the total stack-pool bytes currently outstanding,
// used by round-trip tests (create; kill restores the previous count).
func (p *stackPool) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocated
}
