package kernel

import (
	"context"
	"time"

	"golang.org/x/sys/unix"

	"tinykernel/kernelerr"
)

// Clock drives the kernel's tick handler from a dedicated goroutine
// using a real time.Ticker at CLKFREQ. golang.org/x/sys/unix.ClockGettime
// against CLOCK_MONOTONIC records the boot epoch (bootMono) when the
// clock is constructed. The tick counter and its seconds/milliseconds
// derivations are computed from delivered ticks alone; bootMono is not
// consulted by the tick handler.
type Clock struct {
	k        *Kernel
	irq      *IRQController
	period   time.Duration
	bootMono int64
	stop     chan struct{}
	done     chan struct{}
}

// NewClock constructs a clock driving k at CLKFREQ Hz. The tick is
// delivered through the interrupt-controller stand-in: the handler is
// installed on the clock's IRQ line and the line enabled, so masking
// the line (Disable on the controller) really does stop ticks from
// reaching the kernel.
func NewClock(k *Kernel) *Clock {
	irq := NewIRQController()
	irq.SetHandler(IRQClock, k.tickHandler)
	irq.Enable(IRQClock)
	return &Clock{
		k:        k,
		irq:      irq,
		period:   time.Second / CLKFREQ,
		bootMono: monotonicNanos(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Controller exposes the clock's interrupt controller, letting callers
// mask and unmask the tick line or install exception handlers.
func (c *Clock) Controller() *IRQController {
	return c.irq
}

func monotonicNanos() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return time.Now().UnixNano()
	}
	return ts.Nano()
}

// Run drives ticks until ctx is cancelled or Stop is called. Intended
// to be run in its own goroutine: `go clock.Run(ctx)`.
func (c *Clock) Run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.irq.Raise(IRQClock)
			c.irq.SendEOI(IRQClock)
		}
	}
}

// Stop halts the clock goroutine and waits for it to exit.
func (c *Clock) Stop() {
	close(c.stop)
	<-c.done
}

// tickHandler is the timer interrupt body: count time, fire timers,
// drain sleepers and timed waits, charge the quantum. All of it runs
// here, under the gate, exactly as a real interrupt handler would; the
// resulting context switch, if any, is deferred to the running
// process's next Checkpoint/kernel call, since Go cannot preempt an
// arbitrary running goroutine (see package doc).
func (k *Kernel) tickHandler() {
	mask := k.Gate.Disable()
	defer k.Gate.Restore(mask)

	k.tick++
	k.msInSecond += 1000 / CLKFREQ
	if k.msInSecond >= 1000 {
		k.msInSecond -= 1000
		k.secondsSinceBoot++
	}

	if k.deferDepth > 0 {
		// Deferred: count the tick; ReschedCntl(false) replays the
		// timer/sleep drains once per tick that arrived meanwhile.
		k.undeferredTicks++
		return
	}

	k.fireTimers()
	woke := k.drainSleepList()
	if k.drainTimeoutList() {
		woke = true
	}

	curr := k.runningPCB
	curr.quantum--
	quantumExpired := curr.quantum <= 0
	if quantumExpired {
		curr.quantum = DefaultQuantum
	}

	if woke || quantumExpired {
		k.preemptRequest = true
	}
}

// drainSleepList decrements the sleep list head's delta by one tick,
// then pops every entry whose cumulative delta has reached zero,
// moving each to READY. Returns whether any process was
// woken.
func (k *Kernel) drainSleepList() bool {
	if k.sleepList.IsEmpty() {
		return false
	}
	k.arena.decrementKey(k.sleepList.First())

	woke := false
	for !k.sleepList.IsEmpty() && k.arena.keyOf(k.sleepList.First()) <= 0 {
		pid := k.arena.dequeue(k.sleepList)
		p := k.procs[pid]
		if p.state == StateSleep {
			p.state = StateReady
			k.arena.insert(k.readyList, pid, int32(p.prio))
		}
		woke = true
	}
	return woke
}

// drainTimeoutList is drainSleepList's counterpart for the independent
// timeout delta list used by timedwait/recvtime.
// Expiring an entry here does not by itself ready the process — it
// notifies the owning semaphore/mailbox package via timedWaitExpire,
// which removes the waiter from its own FIFO, restores its count, and
// marks it READY.
func (k *Kernel) drainTimeoutList() bool {
	if k.timeoutList.IsEmpty() {
		return false
	}
	k.timeoutArena.decrementKey(k.timeoutList.First())

	woke := false
	for !k.timeoutList.IsEmpty() && k.timeoutArena.keyOf(k.timeoutList.First()) <= 0 {
		pid := k.timeoutArena.dequeue(k.timeoutList)
		p := k.procs[pid]
		switch p.state {
		case StateRecv:
			// recvtime timeout: no external table to unwind, ready the
			// process directly.
			p.timedOut = true
			p.state = StateReady
			k.arena.insert(k.readyList, pid, int32(p.prio))
			woke = true
		case StateWait:
			// timedwait timeout on a semaphore: the semaphore package
			// owns the count/wait-queue bookkeeping, so hand off.
			p.timedOut = true
			if k.timedWaitExpire != nil {
				k.timedWaitExpire(pid)
			}
			woke = true
		}
	}
	return woke
}

// Sleep blocks the calling process for the given number of ticks.
// Only legal in process context.
func (k *Kernel) Sleep(ticks int64) error {
	if ticks < 0 {
		return kernelerr.New(kernelerr.Precondition, "sleep", "negative duration")
	}
	mask := k.Gate.Disable()
	defer k.Gate.Restore(mask)
	if !k.callerIsCPU() {
		return kernelerr.New(kernelerr.Precondition, "sleep", "blocking call outside process context")
	}
	p := k.runningPCB
	if p.killed {
		// Killed out from under us by an external caller; switching
		// away unwinds this goroutine.
		k.resched()
	}
	if ticks == 0 {
		k.resched()
		return nil
	}
	p.state = StateSleep
	k.arena.insertd(k.sleepList, p.id, int32(ticks))
	k.resched()
	return nil
}

// SleepMS converts milliseconds to ticks, rounding up for non-zero
// inputs, and sleeps that many ticks.
func (k *Kernel) SleepMS(ms int64) error {
	if ms <= 0 {
		return k.Sleep(0)
	}
	ticks := (ms*CLKFREQ + 999) / 1000
	return k.Sleep(ticks)
}

// Unsleep removes pid from the sleep delta list before its time is up,
// folding its remaining delta into the following entry so later
// absolute wake times are preserved.
func (k *Kernel) Unsleep(pid ProcID) error {
	mask := k.Gate.Disable()
	defer k.Gate.Restore(mask)
	p, err := k.pcb(pid)
	if err != nil {
		return err
	}
	if p.state != StateSleep {
		return kernelerr.New(kernelerr.Precondition, "unsleep", "process is not sleeping")
	}
	if !k.arena.removeDelta(k.sleepList, pid) {
		return kernelerr.New(kernelerr.Internal, "unsleep", "process not linked in sleep list")
	}
	p.state = StateReady
	k.arena.insert(k.readyList, pid, int32(p.prio))
	return nil
}

// SetTimedWaitHook registers the callback invoked when a timed
// semaphore wait expires via the timeout-list drain, letting the
// semaphore/mailbox packages finish their own bookkeeping (restoring
// the count, removing the waiter from their own FIFO) without the
// kernel package importing them.
func (k *Kernel) SetTimedWaitHook(fn func(ProcID)) {
	k.timedWaitExpire = fn
}

// InsertTimedWait links pid into the independent timeout delta list in
// parallel with a semaphore/mailbox FIFO wait — the two lists live in
// separate arenas so a waiter can be validly linked into both at once
// without tripping the single-queue-membership check either arena
// enforces on its own.
func (k *Kernel) InsertTimedWait(pid ProcID, ticks int64) {
	k.timeoutArena.insertd(k.timeoutList, pid, int32(ticks))
}

// CancelTimedWait removes pid from the timeout delta list because its
// wait was satisfied before the timeout fired.
func (k *Kernel) CancelTimedWait(pid ProcID) {
	k.timeoutArena.removeDelta(k.timeoutList, pid)
}
