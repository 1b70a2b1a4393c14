// Package dispatch provides the execution contexts and deadline timers that
// asynchronous components are driven by.
package dispatch

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Queue runs closures on an execution context.
type Queue interface {
	Async(fn func())
}

// QueueFunc adapts an ordinary function to the Queue interface.
type QueueFunc func(fn func())

func (f QueueFunc) Async(fn func()) { f(fn) }

var (
	// Immediate runs closures inline on the calling goroutine.
	Immediate Queue = QueueFunc(func(fn func()) { fn() })

	// Background runs every closure on its own goroutine.
	Background Queue = QueueFunc(func(fn func()) { go fn() })
)

// SerialQueue runs closures one at a time, in submission order, on a single
// goroutine. Async never blocks, so it may be called with locks held.
type SerialQueue struct {
	mu      sync.Mutex
	pending []func()
	closed  bool

	wake chan struct{}
	done chan struct{}
}

// NewSerialQueue starts a SerialQueue.
func NewSerialQueue() *SerialQueue {
	q := &SerialQueue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// Async enqueues fn. Closures submitted after Close are dropped.
func (q *SerialQueue) Async(fn func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		logrus.Debug("serial queue closed, dropping closure")
		return
	}
	q.pending = append(q.pending, fn)
	q.mu.Unlock()

	q.signal()
}

// Sync enqueues fn and waits until it has run. Every closure submitted
// before it has run by then.
func (q *SerialQueue) Sync(fn func()) {
	ran := make(chan struct{})
	q.Async(func() {
		defer close(ran)
		fn()
	})
	select {
	case <-ran:
	case <-q.done:
	}
}

// Close runs what is already queued and stops the queue.
func (q *SerialQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.signal()
	<-q.done
}

func (q *SerialQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *SerialQueue) run() {
	defer close(q.done)

	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		closed := q.closed
		q.mu.Unlock()

		for _, fn := range batch {
			invoke(fn)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-q.wake
	}
}

func invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Error("closure on serial queue panicked")
		}
	}()
	fn()
}
