package cmd

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tinykernel/mailbox"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the seed end-to-end scenarios and report PASS/FAIL",
	Long: `Runs six end-to-end scenarios — priority preemption, bounded
mailbox producer/consumer, semaphore FIFO wakeup, sleep delta
correctness, timed-wait timeout, and deletion wakeup — each against its
own fresh kernel instance, concurrently, and prints a PASS/FAIL line
per scenario.`,
	Args: cobra.NoArgs,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

// scenario is one end-to-end check: a name and a function that returns nil on
// success or a descriptive error on failure.
type scenario struct {
	name string
	run  func() error
}

func runDemo(cmd *cobra.Command, args []string) error {
	scenarios := []scenario{
		{"priority-preemption", scenarioPriorityPreemption},
		{"bounded-mailbox", scenarioBoundedMailbox},
		{"semaphore-fifo", scenarioSemaphoreFIFO},
		{"sleep-delta", scenarioSleepDelta},
		{"timed-wait-timeout", scenarioTimedWaitTimeout},
		{"deletion-wakeup", scenarioDeletionWakeup},
	}

	results := make([]error, len(scenarios))
	var g errgroup.Group
	for i, sc := range scenarios {
		i, sc := i, sc
		g.Go(func() error {
			results[i] = sc.run()
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, sc := range scenarios {
		if results[i] != nil {
			failed++
			fmt.Printf("FAIL  %-20s %v\n", sc.name, results[i])
		} else {
			fmt.Printf("PASS  %-20s\n", sc.name)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d/%d scenarios failed", failed, len(scenarios))
	}
	return nil
}

// recorder is a thread-safe event log used by scenarios to observe
// ordering across the goroutines standing in for processes; scenario
// code itself never touches a mutex directly, only this.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) log(format string, a ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, a...))
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func bootRuntime() (*runtime, context.CancelFunc) {
	rt := newRuntime()
	ctx, cancel := context.WithCancel(context.Background())
	go rt.clock.Run(ctx)
	return rt, func() {
		cancel()
		rt.k.Shutdown()
	}
}

// scenarioPriorityPreemption: A (prio 50) preempts B (prio 40) the
// instant A wakes from sleep(10). B spins at checkpoints until A's
// wakeup is visible, so "A woke" must appear strictly before "B done";
// if the wakeup failed to preempt B, B runs out its deadline first and
// the order check fails.
func scenarioPriorityPreemption() error {
	rt, cancel := bootRuntime()
	defer cancel()

	rec := &recorder{}
	var aWoke atomic.Bool

	aPID, err := rt.k.Create(func(a ...any) {
		rec.log("A start")
		_ = rt.k.Sleep(10)
		rec.log("A woke")
		aWoke.Store(true)
	}, 0, 50, "A")
	if err != nil {
		return err
	}

	bPID, err := rt.k.Create(func(a ...any) {
		rec.log("B start")
		deadline := time.Now().Add(2 * time.Second)
		for !aWoke.Load() && time.Now().Before(deadline) {
			rt.k.Checkpoint()
		}
		rec.log("B done")
	}, 0, 40, "B")
	if err != nil {
		return err
	}

	if _, err := rt.k.Resume(aPID); err != nil {
		return err
	}
	if _, err := rt.k.Resume(bPID); err != nil {
		return err
	}

	deadline := time.Now().Add(3 * time.Second)
	for len(rec.snapshot()) < 4 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	ev := rec.snapshot()
	if len(ev) < 2 || ev[0] != "A start" || ev[1] != "B start" {
		return fmt.Errorf("unexpected event order: %v", ev)
	}
	wokeIdx, doneIdx := -1, -1
	for i, e := range ev {
		switch e {
		case "A woke":
			wokeIdx = i
		case "B done":
			doneIdx = i
		}
	}
	if wokeIdx < 0 {
		return fmt.Errorf("A never woke: %v", ev)
	}
	if doneIdx < 0 {
		return fmt.Errorf("B never finished: %v", ev)
	}
	if wokeIdx > doneIdx {
		return fmt.Errorf("A's wakeup did not preempt B: %v", ev)
	}
	return nil
}

// scenarioBoundedMailbox: a capacity-4 mailbox carries values 1..10
// from producer to consumer in order. The producer outranks the
// consumer, so each signal on the slots semaphore preempts the
// consumer immediately, the ring is full again at every send from the
// fifth on, and the producer blocks exactly 6 times — the observable
// proof the capacity bound is enforced.
func scenarioBoundedMailbox() error {
	rt, cancel := bootRuntime()
	defer cancel()

	mb, err := mailbox.Create(rt.sems, 4)
	if err != nil {
		return err
	}
	defer mb.Delete()

	var mu sync.Mutex
	var received []int32

	consumerDone := make(chan struct{})
	producerPID, err := rt.k.Create(func(a ...any) {
		for i := int32(1); i <= 10; i++ {
			_ = mb.Send(i)
		}
	}, 0, 40, "producer")
	if err != nil {
		return err
	}

	consumerPID, err := rt.k.Create(func(a ...any) {
		for i := 0; i < 10; i++ {
			v, err := mb.Receive()
			if err != nil {
				break
			}
			mu.Lock()
			received = append(received, v)
			mu.Unlock()
		}
		close(consumerDone)
	}, 0, 30, "consumer")
	if err != nil {
		return err
	}

	if _, err := rt.k.Resume(producerPID); err != nil {
		return err
	}
	if _, err := rt.k.Resume(consumerPID); err != nil {
		return err
	}

	select {
	case <-consumerDone:
	case <-time.After(2 * time.Second):
		return fmt.Errorf("consumer never finished")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 10 {
		return fmt.Errorf("expected 10 messages, got %d: %v", len(received), received)
	}
	for i, v := range received {
		if v != int32(i+1) {
			return fmt.Errorf("out of order at index %d: %v", i, received)
		}
	}
	if mb.Count() != 0 {
		return fmt.Errorf("mailbox not drained, count=%d", mb.Count())
	}
	if got := mb.SendBlocks(); got != 6 {
		return fmt.Errorf("expected the producer to block 6 times on a full ring, blocked %d times", got)
	}
	return nil
}

// scenarioSemaphoreFIFO: waiters wake in arrival
// order regardless of priority.
func scenarioSemaphoreFIFO() error {
	rt, cancel := bootRuntime()
	defer cancel()

	sid, err := rt.sems.SemCreate(0)
	if err != nil {
		return err
	}

	rec := &recorder{}
	prios := []int{30, 50, 30}
	names := []string{"P1", "P2", "P3"}
	for i, prio := range prios {
		name := names[i]
		pid, err := rt.k.Create(func(a ...any) {
			_ = rt.sems.Wait(sid)
			rec.log("%s", name)
		}, 0, prio, name)
		if err != nil {
			return err
		}
		if _, err := rt.k.Resume(pid); err != nil {
			return err
		}
		time.Sleep(10 * time.Millisecond)
	}

	for i := 0; i < 3; i++ {
		if err := rt.sems.Signal(sid); err != nil {
			return err
		}
		time.Sleep(10 * time.Millisecond)
	}

	ev := rec.snapshot()
	want := []string{"P1", "P2", "P3"}
	if len(ev) != len(want) {
		return fmt.Errorf("expected %v, got %v", want, ev)
	}
	for i := range want {
		if ev[i] != want[i] {
			return fmt.Errorf("expected %v, got %v", want, ev)
		}
	}
	return nil
}

// scenarioSleepDelta: three sleepers issued back to
// back wake in the order their absolute deadlines fall due, not the
// order they were issued.
func scenarioSleepDelta() error {
	rt, cancel := bootRuntime()
	defer cancel()

	rec := &recorder{}
	specs := []struct {
		name  string
		ticks int64
	}{
		{"P1", 5}, {"P2", 3}, {"P3", 7},
	}
	for _, s := range specs {
		s := s
		pid, err := rt.k.Create(func(a ...any) {
			_ = rt.k.Sleep(s.ticks)
			rec.log("%s", s.name)
		}, 0, 30, s.name)
		if err != nil {
			return err
		}
		if _, err := rt.k.Resume(pid); err != nil {
			return err
		}
	}

	time.Sleep(50 * time.Millisecond)

	ev := rec.snapshot()
	want := []string{"P2", "P1", "P3"}
	if len(ev) != len(want) {
		return fmt.Errorf("expected %v, got %v", want, ev)
	}
	for i := range want {
		if ev[i] != want[i] {
			return fmt.Errorf("expected %v, got %v", want, ev)
		}
	}
	return nil
}

// scenarioTimedWaitTimeout: an unsignaled timedwait
// returns TIMEOUT near its deadline and leaves the semaphore's count
// and wait queue as if the wait never happened.
func scenarioTimedWaitTimeout() error {
	rt, cancel := bootRuntime()
	defer cancel()

	sid, err := rt.sems.SemCreate(0)
	if err != nil {
		return err
	}

	start := time.Now()
	errCh := make(chan error, 1)
	pid, err := rt.k.Create(func(a ...any) {
		errCh <- rt.sems.TimedWait(sid, 50)
	}, 0, 30, "waiter")
	if err != nil {
		return err
	}
	if _, err := rt.k.Resume(pid); err != nil {
		return err
	}

	select {
	case werr := <-errCh:
		elapsed := time.Since(start)
		if werr == nil {
			return fmt.Errorf("expected timeout error, got nil")
		}
		if elapsed < 50*time.Millisecond {
			return fmt.Errorf("timed out too early: %v", elapsed)
		}
	case <-time.After(2 * time.Second):
		return fmt.Errorf("never timed out")
	}

	count, err := rt.sems.SemCount(sid)
	if err != nil {
		return err
	}
	if count != 0 {
		return fmt.Errorf("expected count 0 after timeout, got %d", count)
	}
	_, nwaiters, err := rt.sems.SemInfo(sid)
	if err != nil {
		return err
	}
	if nwaiters != 0 {
		return fmt.Errorf("expected empty wait queue, got %d waiters", nwaiters)
	}
	return nil
}

// scenarioDeletionWakeup: deleting a semaphore wakes
// every blocked waiter with an error instead of leaving them parked
// forever.
func scenarioDeletionWakeup() error {
	rt, cancel := bootRuntime()
	defer cancel()

	sid, err := rt.sems.SemCreate(0)
	if err != nil {
		return err
	}

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		pid, err := rt.k.Create(func(a ...any) {
			results <- rt.sems.Wait(sid)
		}, 0, 30, fmt.Sprintf("waiter-%d", i))
		if err != nil {
			return err
		}
		if _, err := rt.k.Resume(pid); err != nil {
			return err
		}
	}

	time.Sleep(20 * time.Millisecond)

	if err := rt.sems.SemDelete(sid); err != nil {
		return err
	}

	for i := 0; i < 2; i++ {
		select {
		case err := <-results:
			if err == nil {
				return fmt.Errorf("expected an error from a waiter on a deleted semaphore")
			}
		case <-time.After(2 * time.Second):
			return fmt.Errorf("waiter %d never woke", i)
		}
	}

	if _, err := rt.sems.SemCreate(0); err != nil {
		return fmt.Errorf("deleted slot not returned to free list: %w", err)
	}
	return nil
}
