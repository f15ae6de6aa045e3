package kernel

import "tinykernel/kernelerr"

// TimerID identifies a timer table slot.
type TimerID int32

type timerState int

const (
	timerFree timerState = iota
	timerActive
	timerExpired
	timerStopped
)

// timerSlot is one entry of the fixed-size timer table.
type timerSlot struct {
	state     timerState
	expiry    int64
	period    int64
	createdAt int64
	callback  func(arg any)
	arg       any
}

// TimerCreate installs a timer that fires delay ticks from now, and
// every period ticks thereafter (period == 0 means one-shot). delay
// must be > 0.
func (k *Kernel) TimerCreate(cb func(arg any), arg any, delay, period int64) (TimerID, error) {
	mask := k.Gate.Disable()
	defer k.Gate.Restore(mask)

	if delay <= 0 {
		return 0, kernelerr.New(kernelerr.Precondition, "timer_create", "delay must be > 0")
	}
	for i := range k.timers {
		if k.timers[i].state == timerFree {
			k.timers[i] = timerSlot{
				state:     timerActive,
				expiry:    k.tick + delay,
				period:    period,
				createdAt: k.tick,
				callback:  cb,
				arg:       arg,
			}
			return TimerID(i), nil
		}
	}
	return 0, kernelerr.New(kernelerr.QuotaExhausted, "timer_create", "timer table full")
}

func (k *Kernel) timerSlot(id TimerID) (*timerSlot, error) {
	if id < 0 || int(id) >= NTIMER || k.timers[id].state == timerFree {
		return nil, kernelerr.New(kernelerr.InvalidID, "timer", "bad timer id")
	}
	return &k.timers[id], nil
}

// TimerStop transitions an ACTIVE timer to STOPPED without freeing its
// slot.
func (k *Kernel) TimerStop(id TimerID) error {
	mask := k.Gate.Disable()
	defer k.Gate.Restore(mask)
	t, err := k.timerSlot(id)
	if err != nil {
		return err
	}
	if t.state != timerActive {
		return kernelerr.New(kernelerr.Precondition, "timer_stop", "timer is not active")
	}
	t.state = timerStopped
	return nil
}

// TimerStart reactivates a STOPPED timer with a fresh expiry delay
// ticks from now.
func (k *Kernel) TimerStart(id TimerID, delay int64) error {
	mask := k.Gate.Disable()
	defer k.Gate.Restore(mask)
	t, err := k.timerSlot(id)
	if err != nil {
		return err
	}
	if t.state != timerStopped {
		return kernelerr.New(kernelerr.Precondition, "timer_start", "timer is not stopped")
	}
	t.expiry = k.tick + delay
	t.createdAt = k.tick
	t.state = timerActive
	return nil
}

// TimerDelete frees a timer slot regardless of its current state.
func (k *Kernel) TimerDelete(id TimerID) error {
	mask := k.Gate.Disable()
	defer k.Gate.Restore(mask)
	_, err := k.timerSlot(id)
	if err != nil {
		return err
	}
	k.timers[id] = timerSlot{state: timerFree}
	return nil
}

// fireTimers scans the timer table for ACTIVE timers whose expiry has
// arrived and invokes their callbacks; any panic from a
// callback is caught and logged so one misbehaving timer cannot take
// the clock goroutine down with it.
func (k *Kernel) fireTimers() {
	for i := range k.timers {
		t := &k.timers[i]
		if t.state != timerActive || t.expiry > k.tick {
			continue
		}
		k.runTimerCallback(t)
		if t.period > 0 {
			t.expiry = k.tick + t.period
		} else {
			t.state = timerExpired
		}
	}
}

func (k *Kernel) runTimerCallback(t *timerSlot) {
	defer func() {
		if r := recover(); r != nil {
			k.log.Error("timer callback panicked", "recover", r)
		}
	}()
	if t.callback != nil {
		t.callback(t.arg)
	}
}
