package calibration

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/airlocator/airlocator/pkg/beacon"
	"github.com/airlocator/airlocator/pkg/dispatch"
)

// DefaultDwell is how long a run collects samples.
const DefaultDwell = 20 * time.Second

// Option configures a Session.
type Option func(*Session)

// WithClock sets the clock the dwell timer is armed on.
func WithClock(c dispatch.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithMainQueue sets the queue progress and results are delivered on.
func WithMainQueue(q dispatch.Queue) Option {
	return func(s *Session) { s.main = q }
}

// WithBackgroundQueue sets the queue finalization runs on.
func WithBackgroundQueue(q dispatch.Queue) Option {
	return func(s *Session) { s.background = q }
}

// WithDwell overrides DefaultDwell. Non-positive values are ignored.
func WithDwell(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.dwell = d
		}
	}
}

// WithTrimFraction overrides DefaultTrimFraction.
func WithTrimFraction(f float64) Option {
	return func(s *Session) { s.trimFraction = f }
}

// run is the state owned by a single Perform call.
type run struct {
	progress  ProgressHandler
	result    ResultHandler
	startedAt time.Time
	timer     dispatch.Timer
	cancelled atomic.Bool
}

// Session calibrates the measured power of the beacons in one region.
type Session struct {
	region     beacon.Region
	source     BeaconSource
	onResult   ResultHandler
	clock      dispatch.Clock
	main       dispatch.Queue
	background dispatch.Queue

	dwell        time.Duration
	trimFraction float64
	log          *logrus.Entry

	mu      sync.Mutex
	state   State
	samples []beacon.Batch
	percent float64
	current *run
	last    *Result
}

// NewSession returns an idle session for region. Ranging batches are taken
// from source and every run reports to onResult.
func NewSession(region beacon.Region, source BeaconSource, onResult ResultHandler, opts ...Option) *Session {
	s := &Session{
		region:       region,
		source:       source,
		onResult:     onResult,
		clock:        dispatch.RealClock,
		main:         dispatch.Main(),
		background:   dispatch.Background,
		dwell:        DefaultDwell,
		trimFraction: DefaultTrimFraction,
		state:        StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logrus.WithFields(logrus.Fields{
		"region":    region.Key(),
		"operation": "calibration",
	})
	return s
}

// Region returns the region being calibrated.
func (s *Session) Region() beacon.Region { return s.region }

// Perform starts a run. If one is already active, the result handler
// receives ErrAlreadyInProgress and the active run is left untouched.
func (s *Session) Perform(progress ProgressHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning || s.state == StateFinishing {
		s.log.WithField("state", s.state).Warn("calibration already in progress")
		now := s.clock.Now()
		res := Result{Region: s.region, StartedAt: now, FinishedAt: now, Err: ErrAlreadyInProgress}
		onResult := s.onResult
		s.main.Async(func() { onResult(res) })
		return
	}

	r := &run{
		progress:  progress,
		result:    s.onResult,
		startedAt: s.clock.Now(),
	}
	s.samples = nil
	s.percent = 0
	s.current = r
	s.state = StateRunning

	s.source.Subscribe(s.region, s)
	r.timer = s.clock.AfterFunc(s.dwell, func() { s.dwellElapsed(r) })

	s.log.WithField("dwell", s.dwell).Info("calibration started")
}

// OnSamplesDelivered accepts one ranging batch. Batches delivered while no
// run is collecting are dropped.
func (s *Session) OnSamplesDelivered(batch beacon.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.current
	if s.state != StateRunning || r == nil || r.cancelled.Load() {
		return
	}
	s.samples = append(s.samples, append(beacon.Batch(nil), batch...))

	if r.progress == nil {
		return
	}
	s.percent = math.Min(1, s.percent+1/s.dwell.Seconds())
	percent := s.percent
	// Dispatched under the lock so the main queue sees values in delivery order.
	s.main.Async(func() {
		if r.cancelled.Load() {
			return
		}
		r.progress(percent)
	})
}

// Cancel ends the active run early with ErrCancelled. It does nothing when
// no run is collecting samples.
func (s *Session) Cancel() {
	s.mu.Lock()
	r := s.current
	if s.state != StateRunning || r == nil || r.cancelled.Load() {
		s.mu.Unlock()
		return
	}
	r.cancelled.Store(true)
	s.mu.Unlock()

	s.log.Info("cancelling calibration")
	r.timer.Fire()
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:           s.state,
		Region:          s.region.Key(),
		PercentComplete: s.percent,
		Batches:         len(s.samples),
	}
	if s.current != nil {
		st.StartedAt = s.current.startedAt
		st.Cancelled = s.current.cancelled.Load()
	}
	if s.last != nil {
		st.Last = NewOutcome(*s.last)
	}
	return st
}

func (s *Session) dwellElapsed(r *run) {
	s.mu.Lock()
	if s.current != r || s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateFinishing
	s.source.Unsubscribe(s.region, s)
	s.mu.Unlock()

	s.background.Async(func() { s.finish(r) })
}

func (s *Session) finish(r *run) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := Result{Region: s.region, StartedAt: r.startedAt}
	if r.cancelled.Load() {
		res.Err = ErrCancelled
	} else {
		res.MeasuredPower, res.Samples, res.Err = s.measure()
	}
	res.FinishedAt = s.clock.Now()

	s.samples = nil
	s.percent = 0
	s.current = nil
	s.last = &res
	s.state = StateCompleted

	log := s.log.WithFields(logrus.Fields{
		"samples":  res.Samples,
		"duration": res.FinishedAt.Sub(res.StartedAt),
	})
	if res.Err != nil {
		log.WithError(res.Err).Warn("calibration failed")
	} else {
		log.WithField("measuredPower", res.MeasuredPower).Info("calibration finished")
	}

	done := r.result
	s.main.Async(func() { done(res) })
}

func (s *Session) measure() (power, n int, err error) {
	values, err := Flatten(s.samples)
	if err != nil {
		return 0, 0, err
	}
	power, err = TrimmedMean(values, s.trimFraction)
	if err != nil {
		return 0, 0, err
	}
	return power, len(values), nil
}
