package ranging

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/airlocator/airlocator/pkg/beacon"
)

// RegionState is whether this machine is within range of a monitored region.
type RegionState string

const (
	RegionUnknown RegionState = "unknown"
	RegionInside  RegionState = "inside"
	RegionOutside RegionState = "outside"
)

// MonitorOptions selects which transitions of a region are reported.
type MonitorOptions struct {
	NotifyOnEntry bool `json:"notifyOnEntry"`
	NotifyOnExit  bool `json:"notifyOnExit"`
}

// Transition is a reported change of a monitored region's state.
type Transition struct {
	Region beacon.Region
	State  RegionState
	At     time.Time
}

// RegionStatus describes one monitored region.
type RegionStatus struct {
	Key    string        `json:"key"`
	Region beacon.Region `json:"region"`
	MonitorOptions
	State RegionState `json:"state"`
	Since time.Time   `json:"since"`
}

// Monitor tracks whether monitored regions are in range. A region is inside
// as soon as a tick delivers a matching reading, and outside once the ranger
// has evicted all of them.
//
// Entries are reported when a region turns inside from any other state. Exits
// are reported only for a region that was inside, so the first determination
// of an empty region is recorded silently.
type Monitor struct {
	ranger       *Ranger
	onTransition func(Transition)

	mu      sync.Mutex
	regions map[string]*monitoredRegion
}

type monitoredRegion struct {
	m      *Monitor
	region beacon.Region
	opts   MonitorOptions
	state  RegionState
	since  time.Time
}

func (mr *monitoredRegion) OnSamplesDelivered(batch beacon.Batch) {
	mr.m.update(mr, len(batch) > 0)
}

// NewMonitor returns a Monitor fed by r. onTransition is called from the
// ranging goroutine, in tick order.
func NewMonitor(r *Ranger, onTransition func(Transition)) *Monitor {
	return &Monitor{
		ranger:       r,
		onTransition: onTransition,
		regions:      map[string]*monitoredRegion{},
	}
}

// Start monitors region. Monitoring a region again only replaces its
// options; its state is kept.
func (m *Monitor) Start(region beacon.Region, opts MonitorOptions) error {
	if err := region.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := region.Key()
	if mr, ok := m.regions[key]; ok {
		mr.opts = opts
		return nil
	}

	mr := &monitoredRegion{
		m:      m,
		region: region,
		opts:   opts,
		state:  RegionUnknown,
		since:  m.ranger.clock.Now(),
	}
	m.regions[key] = mr
	m.ranger.Subscribe(region, mr)

	logrus.WithFields(logrus.Fields{
		"region":        key,
		"notifyOnEntry": opts.NotifyOnEntry,
		"notifyOnExit":  opts.NotifyOnExit,
	}).Info("region monitoring started")
	return nil
}

// Stop reports whether region was monitored.
func (m *Monitor) Stop(region beacon.Region) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := region.Key()
	mr, ok := m.regions[key]
	if !ok {
		return false
	}
	delete(m.regions, key)
	m.ranger.Unsubscribe(mr.region, mr)

	logrus.WithField("region", key).Info("region monitoring stopped")
	return true
}

// Regions returns every monitored region ordered by key.
func (m *Monitor) Regions() []RegionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]RegionStatus, 0, len(m.regions))
	for key, mr := range m.regions {
		out = append(out, RegionStatus{
			Key:            key,
			Region:         mr.region,
			MonitorOptions: mr.opts,
			State:          mr.state,
			Since:          mr.since,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// State returns the state of region, RegionUnknown if it is not monitored.
func (m *Monitor) State(region beacon.Region) RegionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mr, ok := m.regions[region.Key()]; ok {
		return mr.state
	}
	return RegionUnknown
}

func (m *Monitor) update(mr *monitoredRegion, seen bool) {
	next := RegionOutside
	if seen {
		next = RegionInside
	}

	m.mu.Lock()
	// A batch delivered while Stop ran belongs to a region no longer monitored.
	if m.regions[mr.region.Key()] != mr || mr.state == next {
		m.mu.Unlock()
		return
	}
	prev := mr.state
	now := m.ranger.clock.Now()
	mr.state = next
	mr.since = now

	var notify bool
	switch next {
	case RegionInside:
		notify = mr.opts.NotifyOnEntry
	case RegionOutside:
		notify = prev == RegionInside && mr.opts.NotifyOnExit
	}
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"region": mr.region.Key(),
		"from":   prev,
		"to":     next,
	}).Debug("region state determined")

	if notify && m.onTransition != nil {
		m.onTransition(Transition{Region: mr.region, State: next, At: now})
	}
}
