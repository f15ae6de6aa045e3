package semaphore

import (
	"context"
	"sync"
	"testing"
	"time"

	"tinykernel/kernel"
)

func bootTest() (*kernel.Kernel, *Table, context.CancelFunc) {
	k := kernel.New()
	sems := NewTable(k)
	clk := kernel.NewClock(k)
	ctx, cancel := context.WithCancel(context.Background())
	go clk.Run(ctx)
	return k, sems, func() {
		cancel()
		k.Shutdown()
	}
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) log(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func TestSemCreateDeleteRoundTrip(t *testing.T) {
	_, sems, cancel := bootTest()
	defer cancel()

	sid, err := sems.SemCreate(3)
	if err != nil {
		t.Fatalf("semcreate: %v", err)
	}
	count, err := sems.SemCount(sid)
	if err != nil {
		t.Fatalf("semcount: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}
	if err := sems.SemDelete(sid); err != nil {
		t.Fatalf("semdelete: %v", err)
	}

	sid2, err := sems.SemCreate(0)
	if err != nil {
		t.Fatalf("semcreate after delete: %v", err)
	}
	if sid2 != sid {
		t.Fatalf("expected deleted slot %d reused, got %d", sid, sid2)
	}
}

func TestSemCreateNegativeCount(t *testing.T) {
	_, sems, cancel := bootTest()
	defer cancel()

	if _, err := sems.SemCreate(-1); err == nil {
		t.Fatal("expected error for negative initial count")
	}
}

func TestTryWait(t *testing.T) {
	_, sems, cancel := bootTest()
	defer cancel()

	sid, err := sems.SemCreate(1)
	if err != nil {
		t.Fatalf("semcreate: %v", err)
	}
	if err := sems.TryWait(sid); err != nil {
		t.Fatalf("trywait on available semaphore: %v", err)
	}
	if err := sems.TryWait(sid); err == nil {
		t.Fatal("expected trywait to fail on exhausted semaphore")
	}
}

// TestSemaphoreFIFO: waiters wake in arrival order,
// not priority order.
func TestSemaphoreFIFO(t *testing.T) {
	k, sems, cancel := bootTest()
	defer cancel()

	sid, err := sems.SemCreate(0)
	if err != nil {
		t.Fatalf("semcreate: %v", err)
	}

	rec := &recorder{}
	prios := []int{30, 50, 30}
	names := []string{"P1", "P2", "P3"}
	for i, prio := range prios {
		name := names[i]
		pid, err := k.Create(func(a ...any) {
			_ = sems.Wait(sid)
			rec.log(name)
		}, 0, prio, name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := k.Resume(pid); err != nil {
			t.Fatalf("resume %s: %v", name, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	for i := 0; i < 3; i++ {
		if err := sems.Signal(sid); err != nil {
			t.Fatalf("signal %d: %v", i, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	ev := rec.snapshot()
	want := []string{"P1", "P2", "P3"}
	if len(ev) != len(want) {
		t.Fatalf("expected %v, got %v", want, ev)
	}
	for i := range want {
		if ev[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ev)
		}
	}
}

// TestTimedWaitTimeout: an unsignaled timedwait times
// out near its deadline and restores the semaphore to its prior state.
func TestTimedWaitTimeout(t *testing.T) {
	k, sems, cancel := bootTest()
	defer cancel()

	sid, err := sems.SemCreate(0)
	if err != nil {
		t.Fatalf("semcreate: %v", err)
	}

	start := time.Now()
	errCh := make(chan error, 1)
	pid, err := k.Create(func(a ...any) {
		errCh <- sems.TimedWait(sid, 50)
	}, 0, 30, "waiter")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := k.Resume(pid); err != nil {
		t.Fatalf("resume: %v", err)
	}

	select {
	case werr := <-errCh:
		if werr == nil {
			t.Fatal("expected a timeout error")
		}
		if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
			t.Fatalf("timed out too early: %v", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timedwait never returned")
	}

	count, err := sems.SemCount(sid)
	if err != nil {
		t.Fatalf("semcount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected count restored to 0, got %d", count)
	}
	_, nwaiters, err := sems.SemInfo(sid)
	if err != nil {
		t.Fatalf("seminfo: %v", err)
	}
	if nwaiters != 0 {
		t.Fatalf("expected empty wait queue, got %d", nwaiters)
	}
}

// TestDeletionWakeup: deleting a semaphore wakes
// every blocked waiter with an error and frees the slot.
func TestDeletionWakeup(t *testing.T) {
	k, sems, cancel := bootTest()
	defer cancel()

	sid, err := sems.SemCreate(0)
	if err != nil {
		t.Fatalf("semcreate: %v", err)
	}

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		pid, err := k.Create(func(a ...any) {
			results <- sems.Wait(sid)
		}, 0, 30, "waiter")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := k.Resume(pid); err != nil {
			t.Fatalf("resume: %v", err)
		}
	}

	time.Sleep(20 * time.Millisecond)

	if err := sems.SemDelete(sid); err != nil {
		t.Fatalf("semdelete: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case err := <-results:
			if err == nil {
				t.Fatal("expected an error from a waiter on a deleted semaphore")
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("waiter %d never woke", i)
		}
	}
}

// TestKillRestoresCount: killing a process blocked in WAIT
// restores the semaphore's count to account for the vanished waiter.
func TestKillRestoresCount(t *testing.T) {
	k, sems, cancel := bootTest()
	defer cancel()

	sid, err := sems.SemCreate(0)
	if err != nil {
		t.Fatalf("semcreate: %v", err)
	}

	pid, err := k.Create(func(a ...any) {
		_ = sems.Wait(sid)
	}, 0, 30, "blocked")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := k.Resume(pid); err != nil {
		t.Fatalf("resume: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	before, err := sems.SemCount(sid)
	if err != nil {
		t.Fatalf("semcount: %v", err)
	}
	if before != -1 {
		t.Fatalf("expected count -1 with one waiter, got %d", before)
	}

	if err := k.Kill(pid); err != nil {
		t.Fatalf("kill: %v", err)
	}

	after, err := sems.SemCount(sid)
	if err != nil {
		t.Fatalf("semcount: %v", err)
	}
	if after != 0 {
		t.Fatalf("expected count restored to 0, got %d", after)
	}
}

func TestSignalN(t *testing.T) {
	k, sems, cancel := bootTest()
	defer cancel()

	sid, err := sems.SemCreate(0)
	if err != nil {
		t.Fatalf("semcreate: %v", err)
	}

	results := make(chan error, 3)
	for i := 0; i < 3; i++ {
		pid, err := k.Create(func(a ...any) {
			results <- sems.Wait(sid)
		}, 0, 30, "waiter")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := k.Resume(pid); err != nil {
			t.Fatalf("resume: %v", err)
		}
	}
	time.Sleep(20 * time.Millisecond)

	if err := sems.SignalN(sid, 3); err != nil {
		t.Fatalf("signaln: %v", err)
	}

	for i := 0; i < 3; i++ {
		select {
		case err := <-results:
			if err != nil {
				t.Fatalf("waiter %d returned error: %v", i, err)
			}
		case <-time.After(time.Second):
			t.Fatalf("waiter %d never woke", i)
		}
	}
}
