package kernel

import (
	"fmt"
	"sync"

	"tinykernel/kernelerr"
)

// IRQ identifies an interrupt request line on the controller.
type IRQ int

// IRQClock is the line the periodic timer interrupt arrives on.
const IRQClock IRQ = 0

const (
	// NIRQ is the number of interrupt request lines.
	NIRQ = 16
	// NEXC is the number of exception vectors.
	NEXC = 32
)

// IRQController is the in-module stand-in for an external interrupt
// controller: a fixed vector of line handlers, a
// per-line enable mask, an in-service flag cleared by EOI, and an
// exception handler table whose default policy is to panic. A line
// raised while masked, or while still in service, is latched and
// redelivered when unmasked / on EOI — one level deep, as on a real
// controller.
type IRQController struct {
	mu        sync.Mutex
	handlers  [NIRQ]func()
	enabled   [NIRQ]bool
	inService [NIRQ]bool
	pending   [NIRQ]bool
	spurious  uint64
	excs      [NEXC]func(code int)
}

// NewIRQController initializes a controller with every line masked and
// no handlers installed (irq_init).
func NewIRQController() *IRQController {
	return &IRQController{}
}

func validIRQ(irq IRQ) bool { return irq >= 0 && int(irq) < NIRQ }

// SetHandler installs fn as the handler for irq (set_irq_handler).
func (c *IRQController) SetHandler(irq IRQ, fn func()) error {
	if !validIRQ(irq) {
		return kernelerr.New(kernelerr.InvalidID, "set_irq_handler", "bad irq line")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[irq] = fn
	return nil
}

// Enable unmasks irq (enable_irq), delivering a latched raise if one
// arrived while the line was masked.
func (c *IRQController) Enable(irq IRQ) error {
	if !validIRQ(irq) {
		return kernelerr.New(kernelerr.InvalidID, "enable_irq", "bad irq line")
	}
	c.mu.Lock()
	c.enabled[irq] = true
	replay := c.pending[irq] && !c.inService[irq]
	c.mu.Unlock()
	if replay {
		c.Raise(irq)
	}
	return nil
}

// Disable masks irq (disable_irq). Raises against a masked line are
// latched, not lost.
func (c *IRQController) Disable(irq IRQ) error {
	if !validIRQ(irq) {
		return kernelerr.New(kernelerr.InvalidID, "disable_irq", "bad irq line")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled[irq] = false
	return nil
}

// SendEOI acknowledges the in-service interrupt on irq (send_eoi),
// allowing the next raise through; a raise latched during service is
// redelivered immediately.
func (c *IRQController) SendEOI(irq IRQ) error {
	if !validIRQ(irq) {
		return kernelerr.New(kernelerr.InvalidID, "send_eoi", "bad irq line")
	}
	c.mu.Lock()
	c.inService[irq] = false
	replay := c.pending[irq] && c.enabled[irq]
	c.mu.Unlock()
	if replay {
		c.Raise(irq)
	}
	return nil
}

// Raise delivers an interrupt on irq: if the line is enabled, has a
// handler, and is not already in service, the handler runs on the
// caller's goroutine (interrupt context); otherwise the raise is
// latched for later, or counted as spurious if no handler is
// installed.
func (c *IRQController) Raise(irq IRQ) {
	if !validIRQ(irq) {
		return
	}
	c.mu.Lock()
	fn := c.handlers[irq]
	if fn == nil {
		c.spurious++
		c.mu.Unlock()
		return
	}
	if !c.enabled[irq] || c.inService[irq] {
		c.pending[irq] = true
		c.mu.Unlock()
		return
	}
	c.pending[irq] = false
	c.inService[irq] = true
	c.mu.Unlock()

	fn()
}

// Spurious returns the count of raises that arrived with no handler
// installed.
func (c *IRQController) Spurious() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spurious
}

// SetExceptionHandler installs fn for exception vector vec, replacing
// the default panic policy.
func (c *IRQController) SetExceptionHandler(vec int, fn func(code int)) error {
	if vec < 0 || vec >= NEXC {
		return kernelerr.New(kernelerr.InvalidID, "set_exc_handler", "bad exception vector")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.excs[vec] = fn
	return nil
}

// RaiseException dispatches exception vec with the given code. An
// exception with no installed handler is a programming bug, not a
// recoverable condition: the default policy panics.
func (c *IRQController) RaiseException(vec, code int) {
	var fn func(code int)
	if vec >= 0 && vec < NEXC {
		c.mu.Lock()
		fn = c.excs[vec]
		c.mu.Unlock()
	}
	if fn == nil {
		panic(fmt.Sprintf("kernel: unhandled exception vector=%d code=%d", vec, code))
	}
	fn(code)
}

// Panic halts the kernel with diagnostic state: interrupts are
// disabled and never restored, the state is logged, and the goroutine
// panics. Never recoverable.
func (k *Kernel) Panic(msg string) {
	k.Gate.Disable()
	k.log.Error("kernel panic",
		"msg", msg,
		"tick", k.tick,
		"running_pid", int(k.runningPID),
		"ready", k.readyList.Length(),
		"sleeping", k.sleepList.Length(),
	)
	panic("kernel panic: " + msg)
}
