package calibration

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/airlocator/airlocator/pkg/beacon"
	"github.com/airlocator/airlocator/pkg/dispatch"
)

var testRegion = beacon.NewRegion(uuid.MustParse("B9407F30-F5F8-466E-AFF9-25556B57FE6D"))

func reading(rssi int) beacon.Observation {
	return beacon.Observation{
		Identity: beacon.Identity{UUID: testRegion.UUID, Major: 1, Minor: 1},
		RSSI:     rssi,
	}
}

// fakeSource records subscriptions and lets the test push batches.
type fakeSource struct {
	mu           sync.Mutex
	listeners    map[string]beacon.Listener
	unsubscribes int
}

func newFakeSource() *fakeSource {
	return &fakeSource{listeners: map[string]beacon.Listener{}}
}

func (f *fakeSource) Subscribe(r beacon.Region, l beacon.Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners[r.Key()] = l
}

func (f *fakeSource) Unsubscribe(r beacon.Region, _ beacon.Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.listeners, r.Key())
	f.unsubscribes++
}

func (f *fakeSource) subscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners) > 0
}

func (f *fakeSource) deliver(batch beacon.Batch) {
	f.mu.Lock()
	l := f.listeners[testRegion.Key()]
	f.mu.Unlock()
	if l != nil {
		l.OnSamplesDelivered(batch)
	}
}

type harness struct {
	clock   *dispatch.FakeClock
	source  *fakeSource
	session *Session
	results chan Result

	mu                 sync.Mutex
	subscribedAtResult []bool
}

func newHarness(t *testing.T, main dispatch.Queue, opts ...Option) *harness {
	h := &harness{
		clock:   dispatch.NewFakeClock(time.Unix(1700000000, 0)),
		source:  newFakeSource(),
		results: make(chan Result, 8),
	}
	if main == nil {
		q := dispatch.NewSerialQueue()
		t.Cleanup(q.Close)
		main = q
	}
	opts = append([]Option{
		WithClock(h.clock),
		WithMainQueue(main),
		WithBackgroundQueue(dispatch.Immediate),
	}, opts...)
	h.session = NewSession(testRegion, h.source, func(r Result) {
		h.mu.Lock()
		h.subscribedAtResult = append(h.subscribedAtResult, h.source.subscribed())
		h.mu.Unlock()
		h.results <- r
	}, opts...)
	return h
}

func (h *harness) waitResult(t *testing.T) Result {
	t.Helper()
	select {
	case r := <-h.results:
		return r
	case <-time.After(time.Second):
		t.Fatalf("no result delivered")
	}
	return Result{}
}

func (h *harness) expectNoResult(t *testing.T) {
	t.Helper()
	select {
	case r := <-h.results:
		t.Fatalf("unexpected result: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSessionMeasuredPower(t *testing.T) {
	h := newHarness(t, nil)
	h.session.Perform(nil)

	if !h.source.subscribed() {
		t.Fatalf("session should subscribe to the source when a run starts")
	}
	if st := h.session.Status(); st.State != StateRunning {
		t.Fatalf("expected running state, got %s", st.State)
	}

	for _, rssi := range []int{-70, -65, -64, -63, -60, -58, -55, -50, -48, -40} {
		h.source.deliver(beacon.Batch{reading(rssi)})
	}
	h.clock.Advance(DefaultDwell)

	res := h.waitResult(t)
	if res.Err != nil {
		t.Fatalf("calibration failed: %v", res.Err)
	}
	if res.MeasuredPower != -58 {
		t.Fatalf("expected measured power -58, got %d", res.MeasuredPower)
	}
	if res.Samples != 10 {
		t.Fatalf("expected 10 samples, got %d", res.Samples)
	}
	if res.FinishedAt.Sub(res.StartedAt) != DefaultDwell {
		t.Fatalf("expected run to last the dwell, got %s", res.FinishedAt.Sub(res.StartedAt))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribedAtResult[0] {
		t.Fatalf("result delivered before the source subscription was released")
	}
	if st := h.session.Status(); st.State != StateCompleted || st.Last == nil || st.Last.MeasuredPower != -58 {
		t.Fatalf("unexpected status after completion: %+v", st)
	}
}

func TestSessionAmbiguousSignal(t *testing.T) {
	h := newHarness(t, nil)
	h.session.Perform(nil)

	h.source.deliver(beacon.Batch{reading(-60)})
	h.source.deliver(beacon.Batch{reading(-61), reading(-80)})
	h.source.deliver(beacon.Batch{reading(-59)})
	h.clock.Advance(DefaultDwell)

	res := h.waitResult(t)
	if !errors.Is(res.Err, ErrAmbiguousSignal) {
		t.Fatalf("expected ErrAmbiguousSignal, got %v", res.Err)
	}
	if res.MeasuredPower != 0 {
		t.Fatalf("failed result must not carry a measured power, got %d", res.MeasuredPower)
	}
	if st := h.session.Status(); st.State != StateCompleted {
		t.Fatalf("session should be reusable after an error, got %s", st.State)
	}
}

func TestSessionNoSignal(t *testing.T) {
	h := newHarness(t, nil)
	h.session.Perform(nil)

	for i := 0; i < 20; i++ {
		h.source.deliver(beacon.Batch{})
	}
	h.clock.Advance(DefaultDwell)

	res := h.waitResult(t)
	if !errors.Is(res.Err, ErrNoSignal) {
		t.Fatalf("expected ErrNoSignal, got %v", res.Err)
	}

	// Nothing delivered at all.
	h.session.Perform(nil)
	h.clock.Advance(DefaultDwell)
	res = h.waitResult(t)
	if !errors.Is(res.Err, ErrNoSignal) {
		t.Fatalf("expected ErrNoSignal, got %v", res.Err)
	}
}

func TestSessionAlreadyInProgress(t *testing.T) {
	h := newHarness(t, nil)
	h.session.Perform(nil)
	h.source.deliver(beacon.Batch{reading(-60)})

	h.session.Perform(nil)
	res := h.waitResult(t)
	if !errors.Is(res.Err, ErrAlreadyInProgress) {
		t.Fatalf("expected ErrAlreadyInProgress, got %v", res.Err)
	}
	if st := h.session.Status(); st.State != StateRunning || st.Batches != 1 {
		t.Fatalf("in-flight run was altered: %+v", st)
	}

	h.source.deliver(beacon.Batch{reading(-62)})
	h.clock.Advance(DefaultDwell)

	res = h.waitResult(t)
	if res.Err != nil || res.MeasuredPower != -61 {
		t.Fatalf("expected in-flight run to finish with -61, got %d (%v)", res.MeasuredPower, res.Err)
	}
	h.expectNoResult(t)
}

func TestSessionCancel(t *testing.T) {
	var (
		progressMu sync.Mutex
		progress   []float64
		cancelled  bool
		late       bool
	)
	h := newHarness(t, dispatch.Immediate)
	h.session.Perform(func(p float64) {
		progressMu.Lock()
		defer progressMu.Unlock()
		if cancelled {
			late = true
		}
		progress = append(progress, p)
	})

	for i := 0; i < 3; i++ {
		h.source.deliver(beacon.Batch{reading(-60)})
	}

	h.session.Cancel()
	progressMu.Lock()
	cancelled = true
	progressMu.Unlock()

	res := h.waitResult(t)
	if !errors.Is(res.Err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", res.Err)
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("dwell timer should have been consumed by cancellation")
	}
	if h.source.subscribed() {
		t.Fatalf("source subscription should be released after cancellation")
	}

	h.source.deliver(beacon.Batch{reading(-60)})
	h.session.Cancel()
	h.clock.Advance(DefaultDwell)
	h.expectNoResult(t)

	progressMu.Lock()
	defer progressMu.Unlock()
	if late {
		t.Fatalf("progress reported after cancellation")
	}
	if len(progress) != 3 {
		t.Fatalf("expected 3 progress updates, got %d", len(progress))
	}
}

func TestSessionCancelWhenIdle(t *testing.T) {
	h := newHarness(t, nil)
	h.session.Cancel()
	h.expectNoResult(t)
	if st := h.session.Status(); st.State != StateIdle {
		t.Fatalf("expected idle state, got %s", st.State)
	}
}

func TestSessionProgress(t *testing.T) {
	q := dispatch.NewSerialQueue()
	t.Cleanup(q.Close)

	var values []float64
	h := newHarness(t, q)
	h.session.Perform(func(p float64) { values = append(values, p) })

	for i := 0; i < 25; i++ {
		h.source.deliver(beacon.Batch{reading(-60)})
	}
	q.Sync(func() {})

	if len(values) != 25 {
		t.Fatalf("expected 25 progress updates, got %d", len(values))
	}
	if values[0] != 1/DefaultDwell.Seconds() {
		t.Fatalf("expected first step of %v, got %v", 1/DefaultDwell.Seconds(), values[0])
	}
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			t.Fatalf("progress decreased at %d: %v -> %v", i, values[i-1], values[i])
		}
		if values[i] > 1 {
			t.Fatalf("progress exceeded 1: %v", values[i])
		}
	}
	if values[len(values)-1] != 1 {
		t.Fatalf("expected progress to saturate at 1, got %v", values[len(values)-1])
	}

	h.clock.Advance(DefaultDwell)
	if res := h.waitResult(t); res.Err != nil {
		t.Fatalf("calibration failed: %v", res.Err)
	}
	if st := h.session.Status(); st.PercentComplete != 0 {
		t.Fatalf("progress should reset after a run, got %v", st.PercentComplete)
	}
}

func TestSessionSequentialRuns(t *testing.T) {
	h := newHarness(t, nil)

	h.session.Perform(nil)
	for i := 0; i < 5; i++ {
		h.source.deliver(beacon.Batch{reading(-50)})
	}
	h.clock.Advance(DefaultDwell)
	first := h.waitResult(t)
	if first.Err != nil || first.MeasuredPower != -50 {
		t.Fatalf("unexpected first result: %d (%v)", first.MeasuredPower, first.Err)
	}

	h.session.Perform(nil)
	if st := h.session.Status(); st.Batches != 0 {
		t.Fatalf("samples from the first run leaked into the second: %d", st.Batches)
	}
	for i := 0; i < 4; i++ {
		h.source.deliver(beacon.Batch{reading(-70)})
	}
	h.clock.Advance(DefaultDwell)
	second := h.waitResult(t)
	if second.Err != nil || second.MeasuredPower != -70 || second.Samples != 4 {
		t.Fatalf("unexpected second result: %+v", second)
	}
}

func TestSessionDropsSamplesWhenNotRunning(t *testing.T) {
	h := newHarness(t, nil)
	h.session.OnSamplesDelivered(beacon.Batch{reading(-60)})
	if st := h.session.Status(); st.Batches != 0 {
		t.Fatalf("idle session accepted samples")
	}
}

func TestSessionCustomDwell(t *testing.T) {
	h := newHarness(t, nil, WithDwell(5*time.Second), WithTrimFraction(0))
	h.session.Perform(nil)
	h.source.deliver(beacon.Batch{reading(-40)})
	h.source.deliver(beacon.Batch{reading(-80)})

	h.clock.Advance(4 * time.Second)
	h.expectNoResult(t)

	h.clock.Advance(time.Second)
	res := h.waitResult(t)
	if res.Err != nil || res.MeasuredPower != -60 {
		t.Fatalf("unexpected result: %d (%v)", res.MeasuredPower, res.Err)
	}
}

func TestSessionConcurrentDelivery(t *testing.T) {
	results := make(chan Result, 4)
	src := newFakeSource()
	s := NewSession(testRegion, src, func(r Result) { results <- r },
		WithDwell(time.Hour),
	)
	s.Perform(func(float64) {})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				src.deliver(beacon.Batch{reading(-60)})
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(time.Millisecond)
		s.Cancel()
		s.Cancel()
	}()
	wg.Wait()

	select {
	case r := <-results:
		if !errors.Is(r.Err, ErrCancelled) {
			t.Fatalf("expected ErrCancelled, got %v", r.Err)
		}
	case <-time.After(time.Second):
		t.Fatalf("no result delivered")
	}
	select {
	case r := <-results:
		t.Fatalf("result delivered twice: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSessionRealClock(t *testing.T) {
	results := make(chan Result, 1)
	src := newFakeSource()
	s := NewSession(testRegion, src, func(r Result) { results <- r },
		WithDwell(50*time.Millisecond),
	)
	s.Perform(nil)
	src.deliver(beacon.Batch{reading(-66)})

	select {
	case r := <-results:
		if r.Err != nil || r.MeasuredPower != -66 {
			t.Fatalf("unexpected result: %d (%v)", r.MeasuredPower, r.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("dwell timer never fired")
	}
}
