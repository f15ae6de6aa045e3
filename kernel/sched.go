package kernel

import "tinykernel/klog"

// resched: if the running process is still CURR and the ready list's
// head does not strictly exceed its priority, return without
// switching. Otherwise demote CURR to READY (if it still is CURR — a
// caller may have already moved it to WAIT/SLEEP/SUSP/RECV before
// calling in), select the highest priority READY process (falling
// back to the null process), and ctxsw.
//
// Only the goroutine currently embodying the CPU — the one whose id
// was recorded at the last switch — may actually perform the switch.
// Any other caller (the clock goroutine, an external driver goroutine
// poking the kernel from outside process context) merely records a
// pending reschedule; the running process, or the null process's
// polling loop, performs it at its next entry into the kernel. Must be
// called with the gate held.
func (k *Kernel) resched() {
	if k.deferDepth > 0 {
		k.pendingResched = true
		return
	}
	if !k.callerIsCPU() {
		k.pendingResched = true
		return
	}
	old := k.runningPCB

	if old.state == StateCurr {
		if k.readyList.IsEmpty() {
			return
		}
		if int(k.arena.keyOf(k.readyList.First())) <= old.prio {
			return
		}
		k.demote(old)
	}

	k.switchToNext(old)
}

// forceResched always selects a new CURR process even when the
// current one's priority is not exceeded, used by Yield to honor
// cooperative scheduling among equal-priority peers.
func (k *Kernel) forceResched() {
	if k.deferDepth > 0 {
		k.pendingResched = true
		return
	}
	if !k.callerIsCPU() {
		k.pendingResched = true
		return
	}
	old := k.runningPCB
	if old.state == StateCurr {
		k.demote(old)
	}
	k.switchToNext(old)
}

// demote moves a CURR process back to READY. The null process is
// marked READY but never inserted into the ready list; resched's
// fallback reselects it whenever the list runs dry.
func (k *Kernel) demote(p *PCB) {
	p.state = StateReady
	if p.id != NullProc {
		k.arena.insert(k.readyList, p.id, int32(p.prio))
	}
}

func (k *Kernel) switchToNext(old *PCB) {
	var nextID ProcID
	if !k.readyList.IsEmpty() {
		nextID = k.arena.dequeue(k.readyList)
	} else {
		nextID = NullProc
	}
	next := k.procs[nextID]
	next.state = StateCurr
	next.quantum = DefaultQuantum
	prevRunning := k.runningPID
	k.runningPID = nextID
	k.runningPCB = next

	if nextID == prevRunning {
		// Selected ourselves back (e.g. ready list was empty and we
		// are already the null process); nothing to switch.
		return
	}
	k.ctxsw(old, next)
}

// ctxsw is the Go realization of the architecture-specific context
// switch primitive: it swaps which goroutine is allowed to
// run by handing a baton token to next and parking old on its own
// token. The gate's mutex stays locked across the handoff; the
// incoming side claims ownership of it (transfer) along with the CPU,
// and the Restore it is owed unwinds the Disable the outgoing side
// left open — every suspension point parks exactly one level deep, so
// the accounting balances.
func (k *Kernel) ctxsw(old, next *PCB) {
	klog.WithPID(k.log, int(next.id)).Debug("ctxsw", "from", old.id, "to", next.id)

	if old.killed {
		// Exiting context: relinquish the gate for the incoming side
		// to claim, hand the CPU away, and unwind this goroutine
		// without ever parking.
		k.Gate.disown()
		next.resumeCh <- struct{}{}
		panic(killSignal{})
	}

	next.resumeCh <- struct{}{}
	<-old.resumeCh

	if old.killed {
		// Killed while parked: the token was a wake-for-teardown sent
		// by kill, not a scheduling decision. The gate belongs to the
		// killer; touch nothing and unwind.
		panic(killSignal{})
	}

	k.Gate.transfer()
	k.runningGID = gid()
}

// ReschedCntl implements resched_cntl: passing true increments the
// defer depth (suppressing actual switches; a deferred tick only
// counts itself and returns); passing false decrements it and,
// reaching zero, replays the timer-fire and wakeup drains once per
// tick that arrived while deferred, then flushes any pending
// reschedule.
func (k *Kernel) ReschedCntl(defer_ bool) {
	mask := k.Gate.Disable()
	defer k.Gate.Restore(mask)
	if defer_ {
		k.deferDepth++
		return
	}
	if k.deferDepth > 0 {
		k.deferDepth--
	}
	if k.deferDepth > 0 {
		return
	}
	woke := false
	for ; k.undeferredTicks > 0; k.undeferredTicks-- {
		k.fireTimers()
		if k.drainSleepList() {
			woke = true
		}
		if k.drainTimeoutList() {
			woke = true
		}
	}
	if woke {
		k.pendingResched = true
	}
	if k.pendingResched {
		k.pendingResched = false
		k.resched()
	}
}
