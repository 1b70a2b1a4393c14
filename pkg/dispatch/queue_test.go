package dispatch

import (
	"sync"
	"testing"
	"time"
)

func TestSerialQueueOrder(t *testing.T) {
	q := NewSerialQueue()
	defer q.Close()

	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 100; i++ {
		i := i
		q.Async(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	q.Sync(func() {})

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 100 {
		t.Fatalf("expected 100 closures to run, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("closure %d ran at position %d", v, i)
		}
	}
}

func TestSerialQueueAsyncFromClosure(t *testing.T) {
	q := NewSerialQueue()
	defer q.Close()

	done := make(chan struct{})
	q.Async(func() {
		// Must not deadlock: Async never waits for the queue.
		q.Async(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("nested closure did not run")
	}
}

func TestSerialQueueSurvivesPanic(t *testing.T) {
	q := NewSerialQueue()
	defer q.Close()

	ran := false
	q.Async(func() { panic("boom") })
	q.Sync(func() { ran = true })
	if !ran {
		t.Fatalf("queue stopped after a panicking closure")
	}
}

func TestSerialQueueCloseDrains(t *testing.T) {
	q := NewSerialQueue()

	count := 0
	for i := 0; i < 10; i++ {
		q.Async(func() { count++ })
	}
	q.Close()
	if count != 10 {
		t.Fatalf("expected queued closures to run before close, got %d", count)
	}

	q.Async(func() { count++ })
	q.Close()
	if count != 10 {
		t.Fatalf("closure submitted after close should be dropped")
	}
}
