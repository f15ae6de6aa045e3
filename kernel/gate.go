package kernel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Mask is the reentrancy depth observed by a Disable call, to be handed
// back unchanged to the matching Restore.
type Mask int32

// Gate is the critical-section primitive standing in for a hardware
// interrupt mask. Disable/Restore pairs bracket the body of every
// public kernel operation.
//
// The gate is a mutex owned by a goroutine, not merely held by one:
// Disable from the owning goroutine re-enters without locking, Disable
// from any other goroutine (the clock delivering a tick, an external
// driver goroutine) blocks until the gate is free. Ownership travels
// with the CPU baton across a context switch — the incoming side calls
// transfer — exactly as a real interrupt mask is carried forward by
// the resumed process. Restore by a goroutine that no longer owns the
// gate is a no-op; that is the unwind path of a killed process, whose
// pending Restores must not release a section some other context is
// still inside.
type Gate struct {
	mu    sync.Mutex
	owner int64
	depth int32
}

// NewGate constructs an unheld gate.
func NewGate() *Gate {
	return &Gate{}
}

// Disable enters (or re-enters) the critical section and returns the
// depth observed on entry, to be passed back to Restore.
func (g *Gate) Disable() Mask {
	id := gid()
	if atomic.LoadInt64(&g.owner) == id {
		g.depth++
		return Mask(g.depth - 1)
	}
	g.mu.Lock()
	atomic.StoreInt64(&g.owner, id)
	g.depth = 1
	return 0
}

// Restore leaves the critical section entered by the matching Disable.
// Only the outermost Restore (depth reaching zero) actually releases
// the gate. Calls from a goroutine that does not own the gate are
// no-ops (see type doc).
func (g *Gate) Restore(_ Mask) {
	if atomic.LoadInt64(&g.owner) != gid() {
		return
	}
	g.depth--
	if g.depth == 0 {
		atomic.StoreInt64(&g.owner, 0)
		g.mu.Unlock()
	}
}

// transfer reassigns ownership of a held gate to the calling goroutine.
// Called by the incoming side of a context switch, which inherits the
// outgoing side's critical section along with the CPU.
func (g *Gate) transfer() {
	atomic.StoreInt64(&g.owner, gid())
}

// disown clears ownership of a held gate without releasing it, leaving
// it for the next context to claim via transfer. Used by an exiting
// process immediately before it hands the CPU away for the last time,
// so its own unwinding Restores become no-ops.
func (g *Gate) disown() {
	atomic.StoreInt64(&g.owner, 0)
}

// Held reports whether the gate is currently disabled by anyone. Used
// only for diagnostics/assertions, never for control flow.
func (g *Gate) Held() bool {
	return atomic.LoadInt64(&g.owner) != 0
}

// gid returns the calling goroutine's runtime id, parsed from the
// header line of its stack trace ("goroutine N [running]:"). Slower
// than linking against the runtime's own g pointer, but portable and
// only on the order of a microsecond, which is noise next to a 1 ms
// tick.
func gid() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	const prefix = len("goroutine ")
	var id int64
	for _, c := range buf[prefix:n] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + int64(c-'0')
	}
	return id
}
