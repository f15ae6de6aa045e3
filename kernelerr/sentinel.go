// Package kernelerr: predefined sentinel errors for common kernel failures.
package kernelerr

// Process-table errors.
var (
	// ErrBadPID indicates a process ID outside [0, NPROC) or naming a free slot.
	ErrBadPID = &KernelError{Kind: InvalidID, Detail: "bad process id"}

	// ErrNoFreeProc indicates the process table has no free slot.
	ErrNoFreeProc = &KernelError{Kind: QuotaExhausted, Detail: "process table full"}

	// ErrNullProcess indicates an operation was attempted against the null process.
	ErrNullProcess = &KernelError{Kind: Precondition, Detail: "operation not permitted on null process"}

	// ErrNotSuspended indicates resume was called on a process that isn't suspended.
	ErrNotSuspended = &KernelError{Kind: Precondition, Detail: "process is not suspended"}

	// ErrBadPriority indicates a priority outside [MinPrio, MaxPrio].
	ErrBadPriority = &KernelError{Kind: Precondition, Detail: "priority out of range"}

	// ErrBadStackSize indicates a requested stack size of zero or below the floor.
	ErrBadStackSize = &KernelError{Kind: Precondition, Detail: "invalid stack size"}
)

// Semaphore errors.
var (
	// ErrBadSem indicates a semaphore ID outside range or naming a free slot.
	ErrBadSem = &KernelError{Kind: InvalidID, Detail: "bad semaphore id"}

	// ErrNoFreeSem indicates the semaphore table has no free slot.
	ErrNoFreeSem = &KernelError{Kind: QuotaExhausted, Detail: "semaphore table full"}

	// ErrSemDeleted indicates a waiter was released because its semaphore was deleted.
	ErrSemDeleted = &KernelError{Kind: Deleted, Detail: "semaphore deleted while waiting"}
)

// Timer errors.
var (
	// ErrBadTimer indicates a timer ID outside range or naming a free slot.
	ErrBadTimer = &KernelError{Kind: InvalidID, Detail: "bad timer id"}

	// ErrNoFreeTimer indicates the timer table has no free slot.
	ErrNoFreeTimer = &KernelError{Kind: QuotaExhausted, Detail: "timer table full"}

	// ErrTimerNotActive indicates stop was called on a timer that is not active.
	ErrTimerNotActive = &KernelError{Kind: Precondition, Detail: "timer is not active"}
)

// Message and mailbox errors.
var (
	// ErrMessageWaiting indicates send was attempted while a message is still pending.
	ErrMessageWaiting = &KernelError{Kind: Precondition, Detail: "message already waiting"}

	// ErrNoMessage indicates no single-slot message was pending. RecvClr
	// does not return it; it returns 0 when no message is pending.
	ErrNoMessage = &KernelError{Kind: Precondition, Detail: "no message waiting"}

	// ErrBadMailbox indicates a mailbox ID outside range or naming a free slot.
	ErrBadMailbox = &KernelError{Kind: InvalidID, Detail: "bad mailbox id"}

	// ErrNoFreeMailbox indicates the mailbox table has no free slot.
	ErrNoFreeMailbox = &KernelError{Kind: QuotaExhausted, Detail: "mailbox table full"}

	// ErrMailboxDeleted indicates a waiter was released because its mailbox was deleted.
	ErrMailboxDeleted = &KernelError{Kind: Deleted, Detail: "mailbox deleted while waiting"}
)

// Port errors.
var (
	// ErrBadPort indicates a port ID outside range or naming a free slot.
	ErrBadPort = &KernelError{Kind: InvalidID, Detail: "bad port id"}

	// ErrNoFreePort indicates the port table has no free slot.
	ErrNoFreePort = &KernelError{Kind: QuotaExhausted, Detail: "port table full"}

	// ErrPortNameTaken indicates port_create was called with a name already in use.
	ErrPortNameTaken = &KernelError{Kind: Precondition, Detail: "port name already in use"}

	// ErrPortNotFound indicates port_lookup found no port with the given name.
	ErrPortNotFound = &KernelError{Kind: InvalidID, Detail: "no port with that name"}

	// ErrPortDeleted indicates a waiter was released because its port was deleted.
	ErrPortDeleted = &KernelError{Kind: Deleted, Detail: "port deleted while waiting"}
)

// Timing and dispatch errors.
var (
	// ErrTimeout indicates a timedwait/recvtime/recv-with-timeout expired unsatisfied.
	ErrTimeout = &KernelError{Kind: Timeout, Detail: "operation timed out"}

	// ErrBadSyscall indicates a dispatch call number outside [0, 128).
	ErrBadSyscall = &KernelError{Kind: InvalidID, Detail: "bad syscall number"}
)
