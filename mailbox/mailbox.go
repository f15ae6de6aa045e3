package mailbox

import (
	"sync/atomic"

	"tinykernel/kernel"
	"tinykernel/kernelerr"
	"tinykernel/semaphore"
)

// Mailbox is a bounded ring buffer of 32-bit messages protected by a
// semaphore triple: a binary mutex, an items semaphore
// (initially 0), and a free-slots semaphore (initially capacity). It
// is built entirely on the semaphore package rather than on Go
// channels, so the same FIFO-fairness and deletion-wakeup guarantees
// that govern raw semaphores apply to mailbox blocking too.
type Mailbox struct {
	sems *semaphore.Table

	mutex kernel.SemID
	items kernel.SemID
	slots kernel.SemID

	buf    []int32
	head   int
	tail   int
	count  int
	active bool

	// sendBlocks/recvBlocks count the times a sender found the ring
	// full, or a receiver found it empty, and had to wait. Observable
	// capacity enforcement: with a bounded ring these climb; with an
	// unbounded one sendBlocks would stay zero.
	sendBlocks uint64
	recvBlocks uint64
}

// Create allocates a mailbox of the given capacity. The three
// semaphores it creates live for the mailbox's lifetime; they are
// deleted only by Delete.
func Create(sems *semaphore.Table, capacity int) (*Mailbox, error) {
	if capacity <= 0 {
		return nil, kernelerr.New(kernelerr.Precondition, "mailbox_create", "capacity must be > 0")
	}
	mutex, err := sems.SemCreate(1)
	if err != nil {
		return nil, err
	}
	items, err := sems.SemCreate(0)
	if err != nil {
		_ = sems.SemDelete(mutex)
		return nil, err
	}
	slots, err := sems.SemCreate(int32(capacity))
	if err != nil {
		_ = sems.SemDelete(mutex)
		_ = sems.SemDelete(items)
		return nil, err
	}

	return &Mailbox{
		sems:   sems,
		mutex:  mutex,
		items:  items,
		slots:  slots,
		buf:    make([]int32, capacity),
		active: true,
	}, nil
}

// Send blocks until a free slot is available, then deposits msg:
// wait(slots); wait(mutex); write; advance; signal(mutex);
// signal(items).
func (m *Mailbox) Send(msg int32) error {
	if !m.active {
		return kernelerr.New(kernelerr.Deleted, "mailbox_send", "mailbox deleted")
	}
	if c, err := m.sems.SemCount(m.slots); err == nil && c <= 0 {
		atomic.AddUint64(&m.sendBlocks, 1)
	}
	if err := m.sems.Wait(m.slots); err != nil {
		return err
	}
	if err := m.sems.Wait(m.mutex); err != nil {
		return err
	}
	m.write(msg)
	_ = m.sems.Signal(m.mutex)
	_ = m.sems.Signal(m.items)
	return nil
}

// TrySend is Send's non-blocking variant: it substitutes trywait on
// the slots semaphore, failing immediately if the mailbox is full.
func (m *Mailbox) TrySend(msg int32) error {
	if !m.active {
		return kernelerr.New(kernelerr.Deleted, "mailbox_send", "mailbox deleted")
	}
	if err := m.sems.TryWait(m.slots); err != nil {
		return err
	}
	if err := m.sems.Wait(m.mutex); err != nil {
		return err
	}
	m.write(msg)
	_ = m.sems.Signal(m.mutex)
	_ = m.sems.Signal(m.items)
	return nil
}

// Receive blocks until a message is available, then consumes it;
// symmetric with Send.
func (m *Mailbox) Receive() (int32, error) {
	if c, err := m.sems.SemCount(m.items); err == nil && c <= 0 {
		atomic.AddUint64(&m.recvBlocks, 1)
	}
	if err := m.sems.Wait(m.items); err != nil {
		return 0, err
	}
	if err := m.sems.Wait(m.mutex); err != nil {
		return 0, err
	}
	msg := m.read()
	_ = m.sems.Signal(m.mutex)
	_ = m.sems.Signal(m.slots)
	return msg, nil
}

// TryReceive is Receive's non-blocking variant.
func (m *Mailbox) TryReceive() (int32, error) {
	if err := m.sems.TryWait(m.items); err != nil {
		return 0, err
	}
	if err := m.sems.Wait(m.mutex); err != nil {
		return 0, err
	}
	msg := m.read()
	_ = m.sems.Signal(m.mutex)
	_ = m.sems.Signal(m.slots)
	return msg, nil
}

// TimedReceive waits up to ms milliseconds for a message, using
// timedwait on the items semaphore.
func (m *Mailbox) TimedReceive(ms int64) (int32, error) {
	if err := m.sems.TimedWait(m.items, ms); err != nil {
		return 0, err
	}
	if err := m.sems.Wait(m.mutex); err != nil {
		return 0, err
	}
	msg := m.read()
	_ = m.sems.Signal(m.mutex)
	_ = m.sems.Signal(m.slots)
	return msg, nil
}

func (m *Mailbox) write(msg int32) {
	m.buf[m.tail] = msg
	m.tail = (m.tail + 1) % len(m.buf)
	m.count++
}

func (m *Mailbox) read() int32 {
	msg := m.buf[m.head]
	m.head = (m.head + 1) % len(m.buf)
	m.count--
	return msg
}

// Count returns the number of messages currently queued.
func (m *Mailbox) Count() int { return m.count }

// SendBlocks reports how many times a sender found the ring full and
// had to wait for a free slot.
func (m *Mailbox) SendBlocks() uint64 { return atomic.LoadUint64(&m.sendBlocks) }

// ReceiveBlocks reports how many times a receiver found the ring empty
// and had to wait for a message.
func (m *Mailbox) ReceiveBlocks() uint64 { return atomic.LoadUint64(&m.recvBlocks) }

// Capacity returns the mailbox's fixed ring-buffer size.
func (m *Mailbox) Capacity() int { return len(m.buf) }

// Delete frees the mailbox's three semaphores and marks it inactive.
func (m *Mailbox) Delete() error {
	m.active = false
	if err := m.sems.SemDelete(m.mutex); err != nil {
		return err
	}
	if err := m.sems.SemDelete(m.items); err != nil {
		return err
	}
	return m.sems.SemDelete(m.slots)
}
