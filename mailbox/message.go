// Package mailbox implements the per-PCB single-slot message
// primitives and the bounded ring-buffer mailboxes and named ports
// built on top of them.
package mailbox

import (
	"tinykernel/kernel"
	"tinykernel/kernelerr"
)

// Send deposits msg into target's single message slot. It fails if target already holds an unread message; otherwise, if
// target is blocked in RECV, it is made READY.
func Send(k *kernel.Kernel, target kernel.ProcID, msg int32) error {
	mask := k.Gate.Disable()
	defer k.Gate.Restore(mask)

	if k.HasMessage(target) {
		return kernelerr.New(kernelerr.Precondition, "send", "target already has an unread message")
	}
	k.PutMessage(target, msg)
	if k.StateOf(target) == kernel.StateRecv {
		k.CancelTimedWait(target)
		k.WakeReady(target)
		k.ReschedLocked()
	}
	return nil
}

// Receive blocks the caller in RECV until its slot is full, then
// consumes and returns the message. Only legal in process
// context: "the caller" is by definition the running process.
func Receive(k *kernel.Kernel) int32 {
	mask := k.Gate.Disable()
	defer k.Gate.Restore(mask)

	self := k.GetPID()
	if !k.HasMessage(self) {
		if !k.InProcContext() {
			return 0
		}
		k.SetState(self, kernel.StateRecv)
		k.ReschedLocked()
	}
	msg, _ := k.TakeMessage(self)
	return msg
}

// RecvClr is a non-blocking consume: it returns 0 if the caller has no
// unread message.
func RecvClr(k *kernel.Kernel) int32 {
	mask := k.Gate.Disable()
	defer k.Gate.Restore(mask)

	msg, _ := k.TakeMessage(k.GetPID())
	return msg
}

// RecvTime waits up to ms milliseconds for a message, returning a
// Timeout error if none arrives in time.
func RecvTime(k *kernel.Kernel, ms int64) (int32, error) {
	mask := k.Gate.Disable()
	defer k.Gate.Restore(mask)

	self := k.GetPID()
	if k.HasMessage(self) {
		msg, _ := k.TakeMessage(self)
		return msg, nil
	}
	if !k.InProcContext() {
		return 0, kernelerr.New(kernelerr.Precondition, "recvtime", "blocking call outside process context")
	}

	k.SetState(self, kernel.StateRecv)
	k.InsertTimedWait(self, msToTicks(ms))
	k.ReschedLocked()

	if k.WasTimedOut(self) {
		return 0, kernelerr.New(kernelerr.Timeout, "recvtime", "timed out waiting for message")
	}
	msg, _ := k.TakeMessage(self)
	return msg, nil
}

// msToTicks converts milliseconds to ticks, rounding up for non-zero
// inputs, matching kernel.SleepMS's conversion.
func msToTicks(ms int64) int64 {
	if ms <= 0 {
		return 0
	}
	return (ms*kernel.CLKFREQ + 999) / 1000
}
