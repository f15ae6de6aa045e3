// Package semaphore implements counting semaphores with blocking
// wait, signal, signaln, trywait, and timedwait semantics, built on
// the same fixed-slot-table-plus-FIFO-waiter shape System
// V semaphores use, but threading the FIFO through the kernel's shared
// queue arena instead of a private waiter list.
package semaphore

import (
	"tinykernel/kernel"
	"tinykernel/kernelerr"
	"tinykernel/klog"
)

// freeSentinel terminates the free list threaded through the count
// field of unallocated slots.
const freeSentinel = -1

type semaphore struct {
	allocated bool
	count     int32
	waitList  *kernel.List
}

// Table owns the fixed-size semaphore slot array and is the sole
// object registered with the kernel to restore a semaphore's count
// when a waiting process is killed or its timed wait expires.
type Table struct {
	k        *kernel.Kernel
	sems     [kernel.NSEM]semaphore
	freeHead int32
}

// NewTable constructs the semaphore table and wires its kill/timeout
// hooks into k, so the kernel package never needs to import semaphore.
func NewTable(k *kernel.Kernel) *Table {
	t := &Table{k: k}
	for i := range t.sems {
		t.sems[i].count = int32(i) + 1
	}
	t.sems[len(t.sems)-1].count = freeSentinel
	t.freeHead = 0
	k.SetSemKillHook(t.onWaiterKilled)
	k.SetTimedWaitHook(t.onTimedWaitExpired)
	return t
}

func (t *Table) slot(id kernel.SemID) (*semaphore, error) {
	if id < 0 || int(id) >= len(t.sems) || !t.sems[id].allocated {
		return nil, kernelerr.New(kernelerr.InvalidID, "sem", "bad or unallocated semaphore id")
	}
	return &t.sems[id], nil
}

// SemCreate allocates a semaphore slot from the free list and
// initializes its count.
func (t *Table) SemCreate(count int32) (kernel.SemID, error) {
	if count < 0 {
		return kernel.NoSem, kernelerr.New(kernelerr.Precondition, "semcreate", "count must be >= 0")
	}
	mask := t.k.Gate.Disable()
	defer t.k.Gate.Restore(mask)

	if t.freeHead == freeSentinel {
		return kernel.NoSem, kernelerr.New(kernelerr.QuotaExhausted, "semcreate", "semaphore table full")
	}
	id := kernel.SemID(t.freeHead)
	s := &t.sems[id]
	t.freeHead = s.count
	s.allocated = true
	s.count = count
	s.waitList = t.k.NewWaitList("sem")

	klog.Default().Info("semaphore created", "sid", int(id), "count", count)
	return id, nil
}

// SemDelete drains every waiter to READY with a deletion indication
// and frees the slot.
func (t *Table) SemDelete(id kernel.SemID) error {
	mask := t.k.Gate.Disable()
	defer t.k.Gate.Restore(mask)
	s, err := t.slot(id)
	if err != nil {
		return err
	}
	t.drainLocked(s)

	s.allocated = false
	s.count = t.freeHead
	t.freeHead = int32(id)
	s.waitList = nil

	t.k.ReschedLocked()
	return nil
}

func (t *Table) drainLocked(s *semaphore) {
	for !s.waitList.IsEmpty() {
		pid := t.k.Dequeue(s.waitList)
		t.k.CancelTimedWait(pid)
		t.k.MarkDeleted(pid)
		t.k.WakeReady(pid)
	}
}

// Wait blocks the caller until the semaphore's count is positive. It
// returns a Deleted error if the semaphore was destroyed while the
// caller was blocked.
func (t *Table) Wait(id kernel.SemID) error {
	mask := t.k.Gate.Disable()
	defer t.k.Gate.Restore(mask)
	s, err := t.slot(id)
	if err != nil {
		return err
	}
	if s.count <= 0 && !t.k.InProcContext() {
		return kernelerr.New(kernelerr.Precondition, "wait", "blocking call outside process context")
	}

	s.count--
	if s.count < 0 {
		pid := t.k.GetPID()
		t.k.SetWait(s.waitList, pid, id)
		t.k.ReschedLocked()
		if t.k.WasDeleted(pid) {
			return kernelerr.New(kernelerr.Deleted, "wait", "semaphore deleted while waiting")
		}
	}
	return nil
}

// TryWait acquires the semaphore only if it would not block, without
// mutating state on failure.
func (t *Table) TryWait(id kernel.SemID) error {
	mask := t.k.Gate.Disable()
	defer t.k.Gate.Restore(mask)
	s, err := t.slot(id)
	if err != nil {
		return err
	}
	if s.count <= 0 {
		return kernelerr.New(kernelerr.Precondition, "trywait", "semaphore not available")
	}
	s.count--
	return nil
}

// TimedWait acquires the semaphore, blocking at most the given
// milliseconds before returning a Timeout error. A count already
// positive is a fast-path acquire with no blocking.
func (t *Table) TimedWait(id kernel.SemID, ms int64) error {
	mask := t.k.Gate.Disable()
	defer t.k.Gate.Restore(mask)
	s, err := t.slot(id)
	if err != nil {
		return err
	}
	if s.count > 0 {
		s.count--
		return nil
	}
	if !t.k.InProcContext() {
		return kernelerr.New(kernelerr.Precondition, "timedwait", "blocking call outside process context")
	}

	s.count--
	pid := t.k.GetPID()
	t.k.SetWait(s.waitList, pid, id)
	t.k.InsertTimedWait(pid, msToTicks(ms))
	t.k.ReschedLocked()

	if t.k.WasDeleted(pid) {
		return kernelerr.New(kernelerr.Deleted, "timedwait", "semaphore deleted while waiting")
	}
	if t.k.WasTimedOut(pid) {
		return kernelerr.New(kernelerr.Timeout, "timedwait", "timed out waiting on semaphore")
	}
	return nil
}

// Signal increments the semaphore's count and reschedules, so a
// released waiter of higher priority preempts the signaler before
// Signal returns.
func (t *Table) Signal(id kernel.SemID) error {
	mask := t.k.Gate.Disable()
	defer t.k.Gate.Restore(mask)
	s, err := t.slot(id)
	if err != nil {
		return err
	}
	t.signalLocked(s)
	t.k.ReschedLocked()
	return nil
}

// SignalN performs n signals, rescheduling only once at the end.
func (t *Table) SignalN(id kernel.SemID, n int) error {
	if n <= 0 {
		return kernelerr.New(kernelerr.Precondition, "signaln", "n must be > 0")
	}
	mask := t.k.Gate.Disable()
	defer t.k.Gate.Restore(mask)
	s, err := t.slot(id)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		t.signalLocked(s)
	}
	t.k.ReschedLocked()
	return nil
}

func (t *Table) signalLocked(s *semaphore) {
	s.count++
	if s.count <= 0 {
		pid := t.k.Dequeue(s.waitList)
		t.k.CancelTimedWait(pid)
		t.k.WakeReady(pid)
	}
}

// SemReset drains all waiters (as if deleted) and installs a fresh
// count without freeing the slot.
func (t *Table) SemReset(id kernel.SemID, count int32) error {
	if count < 0 {
		return kernelerr.New(kernelerr.Precondition, "semreset", "count must be >= 0")
	}
	mask := t.k.Gate.Disable()
	defer t.k.Gate.Restore(mask)
	s, err := t.slot(id)
	if err != nil {
		return err
	}
	t.drainLocked(s)
	s.count = count
	t.k.ReschedLocked()
	return nil
}

// SemCount returns the current count, observational only.
func (t *Table) SemCount(id kernel.SemID) (int32, error) {
	mask := t.k.Gate.Disable()
	defer t.k.Gate.Restore(mask)
	s, err := t.slot(id)
	if err != nil {
		return 0, err
	}
	return s.count, nil
}

// SemInfo reports the count and waiter count, observational only.
func (t *Table) SemInfo(id kernel.SemID) (count int32, nwaiters int, err error) {
	mask := t.k.Gate.Disable()
	defer t.k.Gate.Restore(mask)
	s, serr := t.slot(id)
	if serr != nil {
		return 0, 0, serr
	}
	return s.count, s.waitList.Length(), nil
}

// onWaiterKilled restores sid's count to account for a process that
// was WAIT-ing on it being killed out from under it.
func (t *Table) onWaiterKilled(sid kernel.SemID) {
	if sid == kernel.NoSem {
		return
	}
	s, err := t.slot(sid)
	if err != nil {
		return
	}
	s.count++
}

// onTimedWaitExpired is the kernel's timed-wait expiry hook: it
// removes the timed-out waiter from its semaphore's FIFO, restores the
// count, and readies the waiter with its timeout flag already set.
func (t *Table) onTimedWaitExpired(pid kernel.ProcID) {
	sid := t.k.WaitReason(pid)
	if sid == kernel.NoSem {
		return
	}
	s, err := t.slot(sid)
	if err != nil {
		return
	}
	if !t.k.RemoveFromList(s.waitList, pid) {
		// Already unlinked by a racing signal/semdelete.
		return
	}
	s.count++
	t.k.WakeReady(pid)
}

// msToTicks converts milliseconds to ticks, rounding up for non-zero
// inputs, matching kernel.SleepMS's conversion.
func msToTicks(ms int64) int64 {
	if ms <= 0 {
		return 0
	}
	return (ms*kernel.CLKFREQ + 999) / 1000
}
