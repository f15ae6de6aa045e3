package kernel

// link is one process's linkage slot in the shared queue-entry arena.
// Every queue in the kernel — the ready list, the sleep delta list,
// and every semaphore/mailbox/port FIFO wait queue — threads its
// members through this single array, indexed by ProcID, rather than
// through per-queue allocations: a PCB's linkage lives in one shared
// place, so a PCB physically cannot be linked into two queues without
// one silently clobbering the other's pointers — and the insert-family
// operations
// additionally check the owner marker and panic (an interrupt-context
// invariant violation, never a recoverable error) if the PCB claims to
// already be linked elsewhere, enforcing single membership at the API
// boundary too.
type link struct {
	next, prev ProcID
	key        int32
}

// List is a doubly-linked queue of process ids backed by the shared
// arena. The zero value is not ready for use; construct with newList.
type List struct {
	name       string
	head, tail ProcID
	count      int
}

func newList(name string) *List {
	return &List{name: name, head: noPID, tail: noPID}
}

// IsEmpty reports whether the list has no entries.
func (l *List) IsEmpty() bool { return l.count == 0 }

// Length returns the number of entries in the list.
func (l *List) Length() int { return l.count }

// First returns the head of the list, or noPID if empty.
func (l *List) First() ProcID { return l.head }

// arena is the kernel's shared link storage plus an owner marker per
// PID used to detect double-queue linkage, which callers must make
// unreachable.
type arena struct {
	links []link
	owner []*List
}

func newArena(n int) *arena {
	links := make([]link, n)
	for i := range links {
		links[i].next = noPID
		links[i].prev = noPID
	}
	return &arena{links: links, owner: make([]*List, n)}
}

func (a *arena) claim(l *List, pid ProcID) {
	if a.owner[pid] != nil {
		panic("kernel: pid " + itoa(int(pid)) + " already linked in queue " + a.owner[pid].name)
	}
	a.owner[pid] = l
}

func (a *arena) release(pid ProcID) {
	a.owner[pid] = nil
}

// ownerOf returns the list pid is currently linked into, or nil.
func (a *arena) ownerOf(pid ProcID) *List {
	return a.owner[pid]
}

// enqueue appends pid to the tail of l (FIFO order).
func (a *arena) enqueue(l *List, pid ProcID) {
	a.claim(l, pid)
	a.links[pid].next = noPID
	a.links[pid].prev = l.tail
	if l.tail == noPID {
		l.head = pid
	} else {
		a.links[l.tail].next = pid
	}
	l.tail = pid
	l.count++
}

// dequeue removes and returns the head of l, or noPID if empty.
func (a *arena) dequeue(l *List) ProcID {
	if l.head == noPID {
		return noPID
	}
	pid := l.head
	a.remove(l, pid)
	return pid
}

// insert places pid in descending-key order; equal keys are appended
// after existing equal-key entries (FIFO within key), matching the
// ready list's priority-with-FIFO-tiebreak contract.
func (a *arena) insert(l *List, pid ProcID, key int32) {
	a.claim(l, pid)
	a.links[pid].key = key

	cur := l.head
	for cur != noPID && a.links[cur].key >= key {
		cur = a.links[cur].next
	}
	if cur == noPID {
		// Append at tail.
		a.links[pid].next = noPID
		a.links[pid].prev = l.tail
		if l.tail == noPID {
			l.head = pid
		} else {
			a.links[l.tail].next = pid
		}
		l.tail = pid
	} else {
		// Insert before cur.
		prev := a.links[cur].prev
		a.links[pid].next = cur
		a.links[pid].prev = prev
		a.links[cur].prev = pid
		if prev == noPID {
			l.head = pid
		} else {
			a.links[prev].next = pid
		}
	}
	l.count++
}

// insertd inserts pid into a delta list so that the prefix sum of keys
// from the head through pid equals delta, and adjusts the following
// entry's key so every later entry's absolute expiry is preserved.
func (a *arena) insertd(l *List, pid ProcID, delta int32) {
	a.claim(l, pid)

	cur := l.head
	for cur != noPID && a.links[cur].key <= delta {
		delta -= a.links[cur].key
		cur = a.links[cur].next
	}
	a.links[pid].key = delta
	if cur != noPID {
		a.links[cur].key -= delta
	}

	if cur == noPID {
		a.links[pid].next = noPID
		a.links[pid].prev = l.tail
		if l.tail == noPID {
			l.head = pid
		} else {
			a.links[l.tail].next = pid
		}
		l.tail = pid
	} else {
		prev := a.links[cur].prev
		a.links[pid].next = cur
		a.links[pid].prev = prev
		a.links[cur].prev = pid
		if prev == noPID {
			l.head = pid
		} else {
			a.links[prev].next = pid
		}
	}
	l.count++
}

// remove unlinks pid from l. It is a no-op if pid is not the owner's
// current list (defensive; callers are expected to know where pid is).
func (a *arena) remove(l *List, pid ProcID) bool {
	if a.owner[pid] != l {
		return false
	}
	next := a.links[pid].next
	prev := a.links[pid].prev
	if prev == noPID {
		l.head = next
	} else {
		a.links[prev].next = next
	}
	if next == noPID {
		l.tail = prev
	} else {
		a.links[next].prev = prev
	}
	a.links[pid].next = noPID
	a.links[pid].prev = noPID
	l.count--
	a.release(pid)
	return true
}

// removeDelta unlinks pid from a delta list l, folding its key back
// into the following entry so later absolute wake times are preserved
// (used by unsleep).
func (a *arena) removeDelta(l *List, pid ProcID) bool {
	next := a.links[pid].next
	key := a.links[pid].key
	if !a.remove(l, pid) {
		return false
	}
	if next != noPID {
		a.links[next].key += key
	}
	return true
}

// keyOf returns the key currently stored for pid (priority, or delta).
func (a *arena) keyOf(pid ProcID) int32 {
	return a.links[pid].key
}

// decrementKey subtracts one from pid's stored key, used by the tick
// handler to age the sleep list's head entry.
func (a *arena) decrementKey(pid ProcID) {
	a.links[pid].key--
}

// itoa avoids importing strconv solely for a panic message; kept
// trivial and allocation-light since it only runs on the invariant-
// violation path.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
