package syscall

import (
	"sync"

	"tinykernel/kernelerr"
)

// heap is a minimal stand-in for the external memory collaborator's
// getmem/freemem surface. Deliberately trivial, the same way
// kernel/stackpool.go stands in for getstk/freestk: a real free-list
// allocator is an explicit non-goal.
type heap struct {
	mu     sync.Mutex
	blocks map[int][]byte
	nextID int
}

func newHeap() *heap {
	return &heap{blocks: make(map[int][]byte)}
}

// alloc returns an opaque address (really: a map key) naming a
// freshly allocated block of n bytes.
func (h *heap) alloc(n int) (int, error) {
	if n <= 0 {
		return 0, kernelerr.New(kernelerr.Precondition, "getmem", "invalid size")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	addr := h.nextID
	h.blocks[addr] = make([]byte, n)
	return addr, nil
}

// free releases the block named by addr, which must have been
// returned by alloc with the same size.
func (h *heap) free(addr, n int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.blocks[addr]
	if !ok || len(b) != n {
		return kernelerr.New(kernelerr.InvalidID, "freemem", "unknown or mismatched block")
	}
	delete(h.blocks, addr)
	return nil
}
