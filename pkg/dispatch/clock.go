package dispatch

import (
	"sort"
	"sync"
	"time"
)

// Timer is a single-shot deadline. It fires at most once, either when it
// expires or when it is forced.
type Timer interface {
	// Stop prevents the timer from firing. It returns false if the timer
	// already fired.
	Stop() bool
	// Fire runs the callback now on the calling goroutine, unless it
	// already ran or the timer was stopped.
	Fire()
}

// Clock schedules deadline callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type onceTimer struct {
	once   sync.Once
	f      func()
	cancel func() bool
}

func (t *onceTimer) expire() {
	t.once.Do(t.f)
}

func (t *onceTimer) Stop() bool {
	stopped := false
	t.once.Do(func() { stopped = true })
	t.cancel()
	return stopped
}

func (t *onceTimer) Fire() {
	t.cancel()
	t.expire()
}

// RealClock is backed by the runtime timer.
var RealClock Clock = realClock{}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &onceTimer{f: f, cancel: func() bool { return false }}
	rt := time.AfterFunc(d, t.expire)
	t.cancel = rt.Stop
	return t
}

// FakeClock only moves when Advance is called.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers map[int]*fakeTimer
}

type fakeTimer struct {
	onceTimer
	deadline time.Time
	seq      int
}

// NewFakeClock returns a FakeClock reading now.
func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now, timers: map[int]*fakeTimer{}}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	seq := c.seq
	t := &fakeTimer{deadline: c.now.Add(d), seq: seq}
	t.f = f
	t.cancel = func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		_, ok := c.timers[seq]
		delete(c.timers, seq)
		return ok
	}
	c.timers[seq] = t
	return t
}

// Advance moves the clock forward and fires every timer that became due,
// in deadline order, on the calling goroutine.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for seq, t := range c.timers {
		if !t.deadline.After(c.now) {
			due = append(due, t)
			delete(c.timers, seq)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline.Equal(due[j].deadline) {
			return due[i].seq < due[j].seq
		}
		return due[i].deadline.Before(due[j].deadline)
	})
	for _, t := range due {
		t.expire()
	}
}

// Pending returns the number of armed timers.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}
