package mailbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"tinykernel/kernel"
	"tinykernel/semaphore"
)

func bootTest() (*kernel.Kernel, *semaphore.Table, context.CancelFunc) {
	k := kernel.New()
	sems := semaphore.NewTable(k)
	clk := kernel.NewClock(k)
	ctx, cancel := context.WithCancel(context.Background())
	go clk.Run(ctx)
	return k, sems, func() {
		cancel()
		k.Shutdown()
	}
}

func TestMailboxCreateRejectsZeroCapacity(t *testing.T) {
	_, sems, cancel := bootTest()
	defer cancel()

	if _, err := Create(sems, 0); err == nil {
		t.Fatal("expected error for zero capacity")
	}
}

func TestMailboxSendReceiveOrder(t *testing.T) {
	_, sems, cancel := bootTest()
	defer cancel()

	mb, err := Create(sems, 4)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer mb.Delete()

	for i := int32(1); i <= 3; i++ {
		if err := mb.Send(i); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	for i := int32(1); i <= 3; i++ {
		got, err := mb.Receive()
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		if got != i {
			t.Fatalf("expected %d, got %d", i, got)
		}
	}
	if mb.Count() != 0 {
		t.Fatalf("expected empty mailbox, count=%d", mb.Count())
	}
}

func TestMailboxTrySendFullAndTryReceiveEmpty(t *testing.T) {
	_, sems, cancel := bootTest()
	defer cancel()

	mb, err := Create(sems, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer mb.Delete()

	if _, err := mb.TryReceive(); err == nil {
		t.Fatal("expected error receiving from an empty mailbox")
	}
	if err := mb.TrySend(1); err != nil {
		t.Fatalf("trysend into empty slot: %v", err)
	}
	if err := mb.TrySend(2); err == nil {
		t.Fatal("expected error sending into a full mailbox")
	}
}

// TestBoundedMailboxProducerConsumer: capacity 4, producer sends
// 1..10, consumer observes them in order, and the mailbox drains to 0.
// The producer outranks the consumer, so every slots signal preempts
// the consumer immediately and the ring is full again at each send
// from the fifth on: the producer must block exactly 6 times, which
// an unbounded buffer would fail.
func TestBoundedMailboxProducerConsumer(t *testing.T) {
	k, sems, cancel := bootTest()
	defer cancel()

	mb, err := Create(sems, 4)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer mb.Delete()

	var mu sync.Mutex
	var received []int32
	done := make(chan struct{})

	producerPID, err := k.Create(func(a ...any) {
		for i := int32(1); i <= 10; i++ {
			_ = mb.Send(i)
		}
	}, 0, 40, "producer")
	if err != nil {
		t.Fatalf("create producer: %v", err)
	}

	consumerPID, err := k.Create(func(a ...any) {
		for i := 0; i < 10; i++ {
			v, err := mb.Receive()
			if err != nil {
				break
			}
			mu.Lock()
			received = append(received, v)
			mu.Unlock()
		}
		close(done)
	}, 0, 30, "consumer")
	if err != nil {
		t.Fatalf("create consumer: %v", err)
	}

	if _, err := k.Resume(producerPID); err != nil {
		t.Fatalf("resume producer: %v", err)
	}
	if _, err := k.Resume(consumerPID); err != nil {
		t.Fatalf("resume consumer: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer never finished")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 10 {
		t.Fatalf("expected 10 messages, got %d: %v", len(received), received)
	}
	for i, v := range received {
		if v != int32(i+1) {
			t.Fatalf("out of order at index %d: %v", i, received)
		}
	}
	if mb.Count() != 0 {
		t.Fatalf("mailbox not drained, count=%d", mb.Count())
	}
	if got := mb.SendBlocks(); got != 6 {
		t.Fatalf("expected the producer to block 6 times on a full ring, blocked %d times", got)
	}
}

// TestMailboxTimedReceiveTimeout runs TimedReceive inside a created
// process, not the test goroutine directly: the test goroutine is
// outside process context, where TimedWait rejects a wait that would
// block with a precondition error instead of blocking, so a blocking
// call only genuinely blocks when issued by a process with its own
// dedicated goroutine.
func TestMailboxTimedReceiveTimeout(t *testing.T) {
	k, sems, cancel := bootTest()
	defer cancel()

	mb, err := Create(sems, 2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer mb.Delete()

	start := time.Now()
	errCh := make(chan error, 1)
	pid, err := k.Create(func(a ...any) {
		_, err := mb.TimedReceive(30)
		errCh <- err
	}, 0, 30, "receiver")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := k.Resume(pid); err != nil {
		t.Fatalf("resume: %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected timeout error")
		}
		if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
			t.Fatalf("timed out too early: %v", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timedreceive never returned")
	}
}
