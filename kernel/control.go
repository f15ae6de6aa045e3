package kernel

import (
	"tinykernel/kernelerr"
	"tinykernel/klog"
)

func (k *Kernel) pcb(pid ProcID) (*PCB, error) {
	if !validPID(pid) || k.procs[pid] == nil || k.procs[pid].state == StateFree {
		return nil, kernelerr.New(kernelerr.InvalidID, "pcb", "bad or free process id")
	}
	return k.procs[pid], nil
}

// Kill frees pid's process table slot. PID 0 cannot be
// killed. A process blocked on a semaphore has that semaphore's count
// restored to account for the vanished waiter; a queued process is
// unlinked first. Killing the running process reschedules.
func (k *Kernel) Kill(pid ProcID) error {
	mask := k.Gate.Disable()
	defer k.Gate.Restore(mask)
	return k.killLocked(pid)
}

func (k *Kernel) killLocked(pid ProcID) error {
	if pid == NullProc {
		return kernelerr.New(kernelerr.Precondition, "kill", "cannot kill the null process")
	}
	p, err := k.pcb(pid)
	if err != nil {
		return err
	}

	// A timed waiter (timedwait/recvtime) is also linked in the timeout
	// delta list; removeDelta is a no-op for any other process.
	k.timeoutArena.removeDelta(k.timeoutList, pid)

	switch p.state {
	case StateReady:
		k.arena.remove(k.readyList, pid)
	case StateSleep:
		k.arena.removeDelta(k.sleepList, pid)
	case StateWait:
		if l := k.arena.ownerOf(pid); l != nil {
			k.arena.remove(l, pid)
		}
		if k.semIncrementOnKill != nil {
			k.semIncrementOnKill(p.waitSem)
		}
	}

	wasCurr := p.state == StateCurr
	k.stackPool.free(p.stack)
	p.state = StateFree
	p.killed = true
	k.procs[pid] = nil

	klog.WithPID(k.log, int(pid)).Info("process killed")

	switch {
	case wasCurr && k.callerIsCPU():
		// Self-kill (exit trampoline, or kill(getpid())): switch away
		// now; ctxsw sees the killed flag and unwinds this goroutine
		// instead of parking it.
		k.resched()
	case wasCurr:
		// Killed out from under the CPU by an external caller. The
		// victim's goroutine keeps running until its next kernel
		// entry, where the pending reschedule switches away and the
		// killed flag unwinds it.
		k.pendingResched = true
	default:
		// Wake the parked goroutine so it can observe p.killed and
		// unwind; it will never be scheduled normally again since it
		// has already been removed from every queue above.
		select {
		case p.resumeCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// GetPID returns the calling process's id. In this simulation "the
// caller" is always the currently running process.
func (k *Kernel) GetPID() ProcID {
	return k.runningPID
}

// GetPrio returns pid's priority.
func (k *Kernel) GetPrio(pid ProcID) (int, error) {
	mask := k.Gate.Disable()
	defer k.Gate.Restore(mask)
	p, err := k.pcb(pid)
	if err != nil {
		return 0, err
	}
	return p.prio, nil
}

// ChPrio changes pid's priority, reinserting it at its new position in
// the ready list if READY, and reschedules if the change could affect
// who should be running.
func (k *Kernel) ChPrio(pid ProcID, newPrio int) (int, error) {
	mask := k.Gate.Disable()
	defer k.Gate.Restore(mask)
	p, err := k.pcb(pid)
	if err != nil {
		return 0, err
	}
	old := p.prio
	newPrio = clampPriority(newPrio)

	if p.state == StateReady {
		k.arena.remove(k.readyList, pid)
		p.prio = newPrio
		k.arena.insert(k.readyList, pid, int32(newPrio))
	} else {
		p.prio = newPrio
	}
	k.resched()
	return old, nil
}

// ProcessInfo is a point-in-time snapshot of one process table slot,
// used by diagnostics that need more than a single field at once.
type ProcessInfo struct {
	PID   ProcID
	Name  string
	State State
	Prio  int
}

// Processes returns a snapshot of every non-free process table slot,
// ordered by PID. It takes the gate so the snapshot is internally
// consistent, but the result is a copy: by the time the caller reads
// it, the live kernel may have already moved on.
func (k *Kernel) Processes() []ProcessInfo {
	mask := k.Gate.Disable()
	defer k.Gate.Restore(mask)

	out := make([]ProcessInfo, 0, NPROC)
	for pid := ProcID(0); int(pid) < NPROC; pid++ {
		p := k.procs[pid]
		if p == nil || p.state == StateFree {
			continue
		}
		out = append(out, ProcessInfo{PID: pid, Name: p.name, State: p.state, Prio: p.prio})
	}
	return out
}

// GetName returns pid's name.
func (k *Kernel) GetName(pid ProcID) (string, error) {
	mask := k.Gate.Disable()
	defer k.Gate.Restore(mask)
	p, err := k.pcb(pid)
	if err != nil {
		return "", err
	}
	return p.name, nil
}

// Suspend moves pid to SUSP: if pid is CURR this reschedules; if READY
// it is first removed from the ready list.
func (k *Kernel) Suspend(pid ProcID) (int, error) {
	mask := k.Gate.Disable()
	defer k.Gate.Restore(mask)
	p, err := k.pcb(pid)
	if err != nil {
		return 0, err
	}
	if pid == NullProc {
		return 0, kernelerr.New(kernelerr.Precondition, "suspend", "cannot suspend the null process")
	}
	old := p.prio
	switch p.state {
	case StateCurr:
		p.state = StateSusp
		k.resched()
	case StateReady:
		k.arena.remove(k.readyList, pid)
		p.state = StateSusp
	default:
		p.state = StateSusp
	}
	return old, nil
}

// Resume moves a SUSP process to READY and reschedules.
func (k *Kernel) Resume(pid ProcID) (int, error) {
	mask := k.Gate.Disable()
	defer k.Gate.Restore(mask)
	p, err := k.pcb(pid)
	if err != nil {
		return 0, err
	}
	if p.state != StateSusp {
		return 0, kernelerr.New(kernelerr.Precondition, "resume", "process is not suspended")
	}
	old := p.prio
	p.state = StateReady
	k.arena.insert(k.readyList, pid, int32(p.prio))
	k.resched()
	return old, nil
}

// Yield voluntarily gives up the CPU to the next eligible READY
// process, even one of equal priority.
func (k *Kernel) Yield() {
	mask := k.Gate.Disable()
	defer k.Gate.Restore(mask)
	k.forceResched()
}

// Checkpoint is the cooperative preemption point standing in for an
// asynchronous timer interrupt (see package doc). Long-running,
// non-blocking process code should call this periodically; every
// blocking kernel call below calls it implicitly by virtue of calling
// resched.
func (k *Kernel) Checkpoint() {
	mask := k.Gate.Disable()
	defer k.Gate.Restore(mask)
	if k.preemptRequest || k.pendingResched {
		k.preemptRequest = false
		k.pendingResched = false
		k.resched()
	}
}
