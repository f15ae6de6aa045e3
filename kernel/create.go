package kernel

import (
	"tinykernel/kernelerr"
	"tinykernel/klog"
)

// wordAlign rounds n up to the next multiple of 8, standing in for the
// word-alignment the source rounds stack sizes to.
func wordAlign(n int) int {
	const word = 8
	return (n + word - 1) &^ (word - 1)
}

func clampPriority(p int) int {
	if p < MinPrio {
		return MinPrio
	}
	if p > MaxPrio {
		return MaxPrio
	}
	return p
}

func clampStack(n int) int {
	n = wordAlign(n)
	if n < MinStackBytes {
		return MinStackBytes
	}
	return n
}

// Create allocates a process. The null process (PID 0) is not
// allocable. The new process is left SUSP; it must be resumed
// to run.
func (k *Kernel) Create(entry func(args ...any), stackBytes, prio int, name string, args ...any) (ProcID, error) {
	mask := k.Gate.Disable()
	defer k.Gate.Restore(mask)

	prio = clampPriority(prio)
	stackBytes = clampStack(stackBytes)

	pid, err := k.allocSlot()
	if err != nil {
		return 0, err
	}

	stack, err := k.stackPool.alloc(stackBytes)
	if err != nil {
		k.freeSlotLocked(pid)
		return 0, err
	}

	pcb := &PCB{
		id:       pid,
		state:    StateSusp,
		prio:     prio,
		name:     name,
		entry:    entry,
		args:     args,
		stack:    stack,
		waitSem:  NoSem,
		resumeCh: make(chan struct{}, 1),
		quantum:  DefaultQuantum,
	}
	k.procs[pid] = pcb

	go k.processMain(pcb)

	klog.WithPID(k.log, int(pid)).Info("process created", "name", name, "prio", prio, "stack_bytes", stackBytes)
	return pid, nil
}

// allocSlot finds a free PCB slot starting at the rotating hint.
func (k *Kernel) allocSlot() (ProcID, error) {
	for i := 0; i < NPROC; i++ {
		idx := (k.freeHint + i) % NPROC
		if idx == int(NullProc) {
			continue
		}
		if k.procs[idx] == nil || k.procs[idx].state == StateFree {
			k.freeHint = (idx + 1) % NPROC
			return ProcID(idx), nil
		}
	}
	return 0, kernelerr.New(kernelerr.QuotaExhausted, "create", "process table full")
}

func (k *Kernel) freeSlotLocked(pid ProcID) {
	k.procs[pid] = nil
}

// processMain is every non-idle process's goroutine body: park until
// first dispatched, run entry unless killed before ever starting, then
// run the process-exit trampoline. The first dispatch arrives inside
// the switcher's critical section; this side claims the gate and
// closes the one level every suspension point leaves open, so entry
// starts with interrupts enabled — the hand-built initial stack frame
// a real kernel hand-builds, realized as channel-and-gate
// choreography instead of a register image.
func (k *Kernel) processMain(pcb *PCB) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(killSignal); !ok {
				panic(r)
			}
		}
	}()

	<-pcb.resumeCh
	if pcb.killed {
		// Killed before ever running; the token was a teardown wake,
		// the gate belongs to the killer.
		return
	}
	k.Gate.transfer()
	k.runningGID = gid()
	k.Gate.Restore(0)

	pcb.entry(pcb.args...)
	k.exit(pcb.id)
}

// exit is the process-exit trampoline: a process that returns from its
// entry function is killed exactly as if it had called kill(getpid()).
func (k *Kernel) exit(pid ProcID) {
	_ = k.Kill(pid)
}
