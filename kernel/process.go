package kernel

import (
	"log/slog"
	"time"

	"tinykernel/klog"
)

// killSignal unwinds a process goroutine that was killed after it
// started running its entry function: ctxsw panics with it instead of
// parking a killed outgoing process, and after the teardown wake of a
// process killed while parked. (A process killed before its first
// dispatch simply returns from processMain.) It is caught by the
// recover in processMain and must never escape a process goroutine.
type killSignal struct{}

// PCB is a process control block.
type PCB struct {
	id    ProcID
	state State
	prio  int
	name  string

	entry func(args ...any)
	args  []any

	// stack is the simulated stack allocation; only its length is
	// meaningful for the create/kill byte-accounting round trip; Go
	// supplies the real goroutine stack.
	stack []byte

	// resumeCh is the baton: ctxsw wakes a process by sending on its
	// resumeCh, and a process blocks itself by receiving on its own.
	resumeCh chan struct{}

	// Single-slot message.
	hasMsg bool
	msg    int32

	// waitSem is the semaphore id recorded while state == StateWait.
	waitSem SemID
	// timedOut is set by the tick handler (or recvtime's timeout path)
	// when a timed wait expires before being satisfied.
	timedOut bool
	// resourceDeleted is set when the sem/mailbox/port a process was
	// waiting on is destroyed out from under it.
	resourceDeleted bool

	quantum int

	killed bool
}

// Kernel is the single owned state value holding every global mutable
// table: the process table, ready list, sleep delta list, and timer
// table. Semaphores, mailboxes, and ports are owned by their own
// packages but share this Kernel's Gate and queue arena.
type Kernel struct {
	Gate *Gate

	procs      [NPROC]*PCB
	freeHint   int
	runningPID ProcID
	runningPCB *PCB

	// runningGID is the runtime id of the goroutine currently embodying
	// the CPU: the running process's goroutine, or the null process's
	// polling goroutine. Only that goroutine may perform an actual
	// context switch; every other caller's resched degrades to a
	// pending flag (see sched.go). Written only under the gate.
	runningGID int64

	arena     *arena
	readyList *List
	sleepList *List

	// timeoutArena/timeoutList is a second, independent delta-list
	// structure used exclusively by timedwait/recvtime. A timed waiter is linked into both the semaphore's
	// FIFO (tracked by arena) and this timeout list simultaneously, so
	// it needs its own separate link storage — sharing the general
	// arena would make the PCB appear linked into two queues within
	// the same arena, which the arena's ownership check forbids.
	timeoutArena *arena
	timeoutList  *List

	timers [NTIMER]timerSlot

	stackPool *stackPool

	tick             int64
	msInSecond       int32
	secondsSinceBoot int64
	deferDepth       int32
	pendingResched   bool
	preemptRequest   bool
	undeferredTicks  int64

	shutdown chan struct{}

	// timedWaitExpire lets the semaphore/mailbox packages finish
	// unwinding a timed wait that the timeout-list drain has just
	// expired (remove from their own FIFO, restore state), without the
	// kernel package importing them.
	timedWaitExpire func(ProcID)

	// semIncrementOnKill lets the semaphore package restore a
	// semaphore's count when a process that was WAIT-ing on it is
	// killed out from under it, without the kernel package
	// importing the semaphore package and creating an import cycle.
	semIncrementOnKill func(SemID)

	log *slog.Logger
}

// SetSemKillHook registers the callback used by Kill to restore a
// semaphore's count when a WAIT-ing process is killed. Called once by
// the semaphore package's constructor.
func (k *Kernel) SetSemKillHook(fn func(SemID)) {
	k.semIncrementOnKill = fn
}

// Arena-and-list accessors the semaphore/mailbox packages need to
// manage their own FIFO wait queues through the kernel's shared arena,
// without the kernel package knowing anything about semaphores or
// mailboxes.

// NewWaitList allocates a new named queue backed by the kernel's
// shared arena (used by the semaphore/mailbox packages for their FIFO
// wait queues).
func (k *Kernel) NewWaitList(name string) *List {
	return newList(name)
}

// Enqueue appends pid to the tail of l.
func (k *Kernel) Enqueue(l *List, pid ProcID) { k.arena.enqueue(l, pid) }

// Dequeue removes and returns the head of l, or noPID if empty.
func (k *Kernel) Dequeue(l *List) ProcID { return k.arena.dequeue(l) }

// RemoveFromList unlinks pid from l if it is currently linked there.
func (k *Kernel) RemoveFromList(l *List, pid ProcID) bool { return k.arena.remove(l, pid) }

// SetWait transitions pid to StateWait, recording sid as its wait
// reason, and links it into l (a semaphore's FIFO wait queue).
func (k *Kernel) SetWait(l *List, pid ProcID, sid SemID) {
	p := k.procs[pid]
	p.state = StateWait
	p.waitSem = sid
	p.resourceDeleted = false
	p.timedOut = false
	k.arena.enqueue(l, pid)
}

// WakeReady transitions pid from WAIT/RECV back to READY and inserts
// it into the ready list at its priority (used by signal/semdelete and
// by mailbox/message delivery).
func (k *Kernel) WakeReady(pid ProcID) {
	p := k.procs[pid]
	p.state = StateReady
	k.arena.insert(k.readyList, pid, int32(p.prio))
}

// MarkDeleted records that the resource pid was waiting on has been
// destroyed, observed by the waiter after it wakes.
func (k *Kernel) MarkDeleted(pid ProcID) {
	k.procs[pid].resourceDeleted = true
}

// WasDeleted reports and clears whether pid's last wait ended because
// the resource it waited on was deleted.
func (k *Kernel) WasDeleted(pid ProcID) bool {
	p := k.procs[pid]
	v := p.resourceDeleted
	p.resourceDeleted = false
	return v
}

// WasTimedOut reports and clears whether pid's last wait ended because
// its timeout expired.
func (k *Kernel) WasTimedOut(pid ProcID) bool {
	p := k.procs[pid]
	v := p.timedOut
	p.timedOut = false
	return v
}

// WaitReason returns the semaphore id recorded when pid entered WAIT,
// used by the semaphore package's timed-wait expiry hook to find which
// semaphore a timed-out waiter belongs to.
func (k *Kernel) WaitReason(pid ProcID) SemID {
	return k.procs[pid].waitSem
}

// HasMessage reports whether pid has an unread single-slot message.
func (k *Kernel) HasMessage(pid ProcID) bool {
	return k.procs[pid].hasMsg
}

// PutMessage deposits msg into pid's single-slot mailbox.
// It is the caller's responsibility to check HasMessage first.
func (k *Kernel) PutMessage(pid ProcID, msg int32) {
	p := k.procs[pid]
	p.hasMsg = true
	p.msg = msg
}

// TakeMessage consumes and clears pid's single-slot message.
func (k *Kernel) TakeMessage(pid ProcID) (int32, bool) {
	p := k.procs[pid]
	if !p.hasMsg {
		return 0, false
	}
	p.hasMsg = false
	return p.msg, true
}

// StateOf returns pid's current state, used by companion packages to
// decide e.g. whether a send target is blocked in RECV.
func (k *Kernel) StateOf(pid ProcID) State {
	return k.procs[pid].state
}

// SetState forcibly sets pid's state; used by the message/mailbox path
// (RECV) which has no dedicated wait-list linkage of its own.
func (k *Kernel) SetState(pid ProcID, s State) {
	k.procs[pid].state = s
}

// Resched triggers a reschedule from outside the kernel package (e.g.
// the semaphore package after mutating a wait queue). Must be called
// without the gate held; it acquires it itself.
func (k *Kernel) Resched() {
	mask := k.Gate.Disable()
	defer k.Gate.Restore(mask)
	k.resched()
}

// ReschedLocked is Resched's counterpart for callers (companion
// packages) that already hold the gate across a multi-step operation
// (e.g. semaphore wait: check count, mutate queue, reschedule, inspect
// post-wake flags, all under one Disable/Restore).
func (k *Kernel) ReschedLocked() {
	k.resched()
}

// Log exposes the kernel's structured logger for companion packages.
func (k *Kernel) Log() *slog.Logger { return k.log }

// New constructs a Kernel with the null process booted and running on
// its own dedicated goroutine. Boot must happen exactly once, before
// any other operation.
func New() *Kernel {
	k := &Kernel{
		Gate:         NewGate(),
		arena:        newArena(NPROC),
		readyList:    newList("ready"),
		sleepList:    newList("sleep"),
		timeoutArena: newArena(NPROC),
		timeoutList:  newList("timeout"),
		stackPool:    newStackPool(),
		shutdown:     make(chan struct{}),
		log:          klog.Default(),
	}
	for i := range k.timers {
		k.timers[i].state = timerFree
	}
	k.boot()
	return k
}

// boot installs PID 0, the idle/null process: priority MinPrio, never
// in the ready list, selected only as resched's fallback. Its body
// runs on a dedicated goroutine (idleMain).
func (k *Kernel) boot() {
	idle := &PCB{
		id:       NullProc,
		state:    StateCurr,
		prio:     MinPrio,
		name:     "null",
		waitSem:  NoSem,
		resumeCh: make(chan struct{}, 1),
		quantum:  DefaultQuantum,
	}
	k.procs[NullProc] = idle
	k.runningPID = NullProc
	k.runningPCB = idle
	k.freeHint = 1
	go k.idleMain()
	klog.WithPID(k.log, int(NullProc)).Info("kernel booted", "prio", MinPrio)
}

// idlePollInterval is how often the null process checks for pending
// work while it holds the CPU. Well under the tick period, so a
// wakeup the clock records is dispatched before the next tick lands.
const idlePollInterval = 100 * time.Microsecond

// idleMain is the null process's body: a polling loop that gives the
// CPU away whenever the clock or an external caller has recorded a
// pending reschedule. While the null process is descheduled, the loop
// is parked inside Checkpoint's context switch like any other
// process; when the ready list runs dry it is handed the CPU back and
// resumes polling.
func (k *Kernel) idleMain() {
	mask := k.Gate.Disable()
	k.runningGID = gid()
	k.Gate.Restore(mask)

	for {
		select {
		case <-k.shutdown:
			return
		default:
		}
		k.Checkpoint()
		time.Sleep(idlePollInterval)
	}
}

// Shutdown stops the null process's polling loop. The kernel is not
// usable afterwards; intended for orderly teardown of short-lived
// instances (CLI commands, tests).
func (k *Kernel) Shutdown() {
	close(k.shutdown)
}

// callerIsCPU reports whether the calling goroutine currently embodies
// the CPU (it is the running process, or the null process's polling
// loop while PID 0 is current). Must be called with the gate held.
func (k *Kernel) callerIsCPU() bool {
	return gid() == k.runningGID
}

// InProcContext reports whether the caller is executing as the running
// process (or the null process). Blocking operations — sleep, wait,
// receive — are only legal in process context; companion packages use
// this to reject them from driver goroutines with a precondition
// error instead of corrupting the running process's state.
func (k *Kernel) InProcContext() bool {
	mask := k.Gate.Disable()
	defer k.Gate.Restore(mask)
	return k.callerIsCPU()
}

// Running returns the currently-CURR process id.
func (k *Kernel) Running() ProcID {
	return k.runningPID
}

// Ticks returns the current 64-bit tick count.
func (k *Kernel) Ticks() int64 {
	return k.tick
}

// Seconds returns whole seconds elapsed since boot, maintained by the
// tick handler.
func (k *Kernel) Seconds() int64 {
	mask := k.Gate.Disable()
	defer k.Gate.Restore(mask)
	return k.secondsSinceBoot
}

// MSInSecond returns the millisecond offset within the current second,
// maintained by the tick handler alongside Seconds.
func (k *Kernel) MSInSecond() int32 {
	mask := k.Gate.Disable()
	defer k.Gate.Restore(mask)
	return k.msInSecond
}

func validPID(pid ProcID) bool {
	return pid >= 0 && int(pid) < NPROC
}
