// Package syscall implements the system-call dispatcher: a
// fixed table mapping ABI call numbers to handler closures over a
// kernel instance, validating the call number range and counting
// invocations per call and in total.
package syscall

import (
	"tinykernel/kernel"
	"tinykernel/kernelerr"
	"tinykernel/mailbox"
	"tinykernel/semaphore"
)

// Number identifies a system call in the ABI. Gaps between assigned
// numbers are deliberate reserved ranges.
type Number int

const (
	Create  Number = 1
	Kill    Number = 2
	GetPID  Number = 3
	Suspend Number = 4
	Resume  Number = 5
	Yield   Number = 6
	Sleep   Number = 7
	SleepMS Number = 8
	Exit    Number = 9

	GetPrio Number = 11
	SetPrio Number = 12

	GetMem  Number = 20
	FreeMem Number = 21

	SemCreate Number = 30
	SemDelete Number = 31
	Wait      Number = 32
	Signal    Number = 33
	SignalN   Number = 34
	SemCount  Number = 35

	Send     Number = 50
	Receive  Number = 51
	RecvClr  Number = 52
	RecvTime Number = 53

	GetTime  Number = 60
	GetTicks Number = 61
)

// maxSyscall bounds the valid call-number range; dispatch validates
// numbers against [0, 128).
const maxSyscall = 128

// handler decodes args, performs the call, and returns a result or an
// error; neither crosses the kernel boundary any other way.
type handler func(args []any) (any, error)

// Table is the syscall dispatcher.
type Table struct {
	k    *kernel.Kernel
	sems *semaphore.Table

	handlers [maxSyscall]handler
	enabled  [maxSyscall]bool
	counts   [maxSyscall]uint64
	total    uint64

	heap *heap
}

// NewTable builds the dispatcher, registering every ABI call number
// against k and sems.
func NewTable(k *kernel.Kernel, sems *semaphore.Table) *Table {
	t := &Table{k: k, sems: sems, heap: newHeap()}
	t.registerAll()
	return t
}

func (t *Table) register(n Number, h handler) {
	t.handlers[n] = h
	t.enabled[n] = true
}

// Dispatch validates n, confirms the slot is enabled, invokes its
// handler, and increments both the per-call and total counters.
func (t *Table) Dispatch(n Number, args ...any) (any, error) {
	if n < 0 || int(n) >= maxSyscall {
		return nil, kernelerr.New(kernelerr.InvalidID, "syscall", "call number out of range")
	}
	if !t.enabled[n] {
		return nil, kernelerr.New(kernelerr.InvalidID, "syscall", "call number not registered")
	}
	t.counts[n]++
	t.total++
	return t.handlers[n](args)
}

// CallCount returns the number of times n has been dispatched.
func (t *Table) CallCount(n Number) uint64 {
	if n < 0 || int(n) >= maxSyscall {
		return 0
	}
	return t.counts[n]
}

// TotalCalls returns the number of dispatches across every call number
// that passed validation, whether or not the handler then returned an
// error.
func (t *Table) TotalCalls() uint64 {
	return t.total
}

func (t *Table) registerAll() {
	t.register(Create, t.doCreate)
	t.register(Kill, t.doKill)
	t.register(GetPID, t.doGetPID)
	t.register(Suspend, t.doSuspend)
	t.register(Resume, t.doResume)
	t.register(Yield, t.doYield)
	t.register(Sleep, t.doSleep)
	t.register(SleepMS, t.doSleepMS)
	t.register(Exit, t.doExit)

	t.register(GetPrio, t.doGetPrio)
	t.register(SetPrio, t.doSetPrio)

	t.register(GetMem, t.doGetMem)
	t.register(FreeMem, t.doFreeMem)

	t.register(SemCreate, t.doSemCreate)
	t.register(SemDelete, t.doSemDelete)
	t.register(Wait, t.doWait)
	t.register(Signal, t.doSignal)
	t.register(SignalN, t.doSignalN)
	t.register(SemCount, t.doSemCount)

	t.register(Send, t.doSend)
	t.register(Receive, t.doReceive)
	t.register(RecvClr, t.doRecvClr)
	t.register(RecvTime, t.doRecvTime)

	t.register(GetTime, t.doGetTime)
	t.register(GetTicks, t.doGetTicks)
}

func (t *Table) doCreate(args []any) (any, error) {
	entry := args[0].(func(args ...any))
	stackBytes := args[1].(int)
	prio := args[2].(int)
	name := args[3].(string)
	rest := args[4:]
	return t.k.Create(entry, stackBytes, prio, name, rest...)
}

func (t *Table) doKill(args []any) (any, error) {
	pid := args[0].(kernel.ProcID)
	return nil, t.k.Kill(pid)
}

func (t *Table) doGetPID(args []any) (any, error) {
	return t.k.GetPID(), nil
}

func (t *Table) doSuspend(args []any) (any, error) {
	pid := args[0].(kernel.ProcID)
	return t.k.Suspend(pid)
}

func (t *Table) doResume(args []any) (any, error) {
	pid := args[0].(kernel.ProcID)
	return t.k.Resume(pid)
}

func (t *Table) doYield(args []any) (any, error) {
	t.k.Yield()
	return nil, nil
}

func (t *Table) doSleep(args []any) (any, error) {
	ticks := args[0].(int64)
	return nil, t.k.Sleep(ticks)
}

func (t *Table) doSleepMS(args []any) (any, error) {
	ms := args[0].(int64)
	return nil, t.k.SleepMS(ms)
}

func (t *Table) doExit(args []any) (any, error) {
	return nil, t.k.Kill(t.k.GetPID())
}

func (t *Table) doGetPrio(args []any) (any, error) {
	pid := args[0].(kernel.ProcID)
	return t.k.GetPrio(pid)
}

func (t *Table) doSetPrio(args []any) (any, error) {
	pid := args[0].(kernel.ProcID)
	newPrio := args[1].(int)
	return t.k.ChPrio(pid, newPrio)
}

func (t *Table) doGetMem(args []any) (any, error) {
	n := args[0].(int)
	return t.heap.alloc(n)
}

func (t *Table) doFreeMem(args []any) (any, error) {
	addr := args[0].(int)
	n := args[1].(int)
	return nil, t.heap.free(addr, n)
}

func (t *Table) doSemCreate(args []any) (any, error) {
	count := args[0].(int32)
	return t.sems.SemCreate(count)
}

func (t *Table) doSemDelete(args []any) (any, error) {
	sid := args[0].(kernel.SemID)
	return nil, t.sems.SemDelete(sid)
}

func (t *Table) doWait(args []any) (any, error) {
	sid := args[0].(kernel.SemID)
	return nil, t.sems.Wait(sid)
}

func (t *Table) doSignal(args []any) (any, error) {
	sid := args[0].(kernel.SemID)
	return nil, t.sems.Signal(sid)
}

func (t *Table) doSignalN(args []any) (any, error) {
	sid := args[0].(kernel.SemID)
	n := args[1].(int)
	return nil, t.sems.SignalN(sid, n)
}

func (t *Table) doSemCount(args []any) (any, error) {
	sid := args[0].(kernel.SemID)
	return t.sems.SemCount(sid)
}

func (t *Table) doSend(args []any) (any, error) {
	pid := args[0].(kernel.ProcID)
	msg := args[1].(int32)
	return nil, mailbox.Send(t.k, pid, msg)
}

func (t *Table) doReceive(args []any) (any, error) {
	return mailbox.Receive(t.k), nil
}

func (t *Table) doRecvClr(args []any) (any, error) {
	return mailbox.RecvClr(t.k), nil
}

func (t *Table) doRecvTime(args []any) (any, error) {
	ms := args[0].(int64)
	return mailbox.RecvTime(t.k, ms)
}

func (t *Table) doGetTime(args []any) (any, error) {
	return t.k.Seconds(), nil
}

func (t *Table) doGetTicks(args []any) (any, error) {
	return uint32(t.k.Ticks()), nil
}
