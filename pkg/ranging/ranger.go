// Package ranging turns a stream of beacon advertisements into periodic
// ranging batches for subscribed regions.
package ranging

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/sirupsen/logrus"

	"github.com/airlocator/airlocator/pkg/beacon"
	"github.com/airlocator/airlocator/pkg/dispatch"
)

// DefaultInterval is the ranging tick period.
const DefaultInterval = time.Second

type subscription struct {
	region   beacon.Region
	listener beacon.Listener
}

// Ranger keeps the latest reading of every beacon in range and delivers one
// batch per subscribed region on every tick.
type Ranger struct {
	interval time.Duration
	clock    dispatch.Clock

	mu sync.Mutex
	// subscribed holds subscription keys; subs maps them to listeners.
	subscribed mapset.Set
	subs       map[string]subscription
	latest     map[beacon.Identity]beacon.Observation
}

// NewRanger returns a Ranger ticking every interval. A non-positive interval
// selects DefaultInterval.
func NewRanger(interval time.Duration, clock dispatch.Clock) *Ranger {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clock == nil {
		clock = dispatch.RealClock
	}
	return &Ranger{
		interval:   interval,
		clock:      clock,
		subscribed: mapset.NewSet(),
		subs:       map[string]subscription{},
		latest:     map[beacon.Identity]beacon.Observation{},
	}
}

// Interval returns the tick period.
func (r *Ranger) Interval() time.Duration { return r.interval }

// listenerID identifies a listener by address. Listeners must be pointers.
func listenerID(l beacon.Listener) string {
	return fmt.Sprintf("%T:%p", l, l)
}

func subscriptionKey(region beacon.Region, l beacon.Listener) string {
	return region.Key() + "@" + listenerID(l)
}

// Subscribe starts delivering batches for region to l. Subscribing the same
// pair twice has no effect.
func (r *Ranger) Subscribe(region beacon.Region, l beacon.Listener) {
	key := subscriptionKey(region, l)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.subscribed.Add(key) {
		return
	}
	r.subs[key] = subscription{region: region, listener: l}
	logrus.WithFields(logrus.Fields{
		"region":        region.Key(),
		"subscriptions": r.subscribed.Cardinality(),
	}).Debug("ranging subscription added")
}

// Unsubscribe stops deliveries for the pair. A batch already being delivered
// when Unsubscribe is called may still arrive.
func (r *Ranger) Unsubscribe(region beacon.Region, l beacon.Listener) {
	key := subscriptionKey(region, l)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.subscribed.Contains(key) {
		return
	}
	r.subscribed.Remove(key)
	delete(r.subs, key)
	logrus.WithFields(logrus.Fields{
		"region":        region.Key(),
		"subscriptions": r.subscribed.Cardinality(),
	}).Debug("ranging subscription removed")
}

// Subscriptions returns the number of active subscriptions.
func (r *Ranger) Subscriptions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subscribed.Cardinality()
}

// Observe records an advertisement. Only the newest reading of each beacon is
// kept.
func (r *Ranger) Observe(adv beacon.Advertisement) {
	if adv.Timestamp.IsZero() {
		adv.Timestamp = r.clock.Now()
	}
	obs := beacon.NewObservation(adv)

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.latest[obs.Identity]; ok && prev.Timestamp.After(obs.Timestamp) {
		return
	}
	r.latest[obs.Identity] = obs
}

// Tick evicts stale readings and delivers one batch to every subscriber.
// Subscribers with no matching beacons get an empty batch.
func (r *Ranger) Tick(now time.Time) {
	type delivery struct {
		listener beacon.Listener
		batch    beacon.Batch
	}

	r.mu.Lock()
	r.evict(now)
	deliveries := make([]delivery, 0, len(r.subs))
	for _, key := range r.sortedKeys() {
		sub := r.subs[key]
		deliveries = append(deliveries, delivery{
			listener: sub.listener,
			batch:    r.matching(sub.region),
		})
	}
	r.mu.Unlock()

	// Listeners may call back into Subscribe or Unsubscribe.
	for _, d := range deliveries {
		d.listener.OnSamplesDelivered(d.batch)
	}
}

// Run ticks until ctx is done.
func (r *Ranger) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logrus.WithField("interval", r.interval).Info("ranging started")
	for {
		select {
		case <-ctx.Done():
			logrus.Info("ranging stopped")
			return
		case <-ticker.C:
			r.Tick(r.clock.Now())
		}
	}
}

// Visible returns the beacons in range that belong to any of regions, grouped
// by proximity. An empty regions slice matches every beacon.
func (r *Ranger) Visible(regions []beacon.Region) map[beacon.Proximity][]beacon.Observation {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evict(r.clock.Now())
	out := map[beacon.Proximity][]beacon.Observation{}
	for _, obs := range r.sortedObservations() {
		if len(regions) > 0 && !matchesAny(regions, obs.Identity) {
			continue
		}
		out[obs.Proximity] = append(out[obs.Proximity], obs)
	}
	return out
}

func matchesAny(regions []beacon.Region, id beacon.Identity) bool {
	for _, region := range regions {
		if region.Matches(id) {
			return true
		}
	}
	return false
}

func (r *Ranger) evict(now time.Time) {
	cutoff := now.Add(-2 * r.interval)
	for id, obs := range r.latest {
		if obs.Timestamp.Before(cutoff) {
			delete(r.latest, id)
		}
	}
}

func (r *Ranger) matching(region beacon.Region) beacon.Batch {
	batch := beacon.Batch{}
	for _, obs := range r.sortedObservations() {
		if region.Matches(obs.Identity) {
			batch = append(batch, obs)
		}
	}
	return batch
}

func (r *Ranger) sortedKeys() []string {
	keys := make([]string, 0, len(r.subs))
	for key := range r.subs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// sortedObservations orders readings by accuracy, nearest first, with unknown
// distances last.
func (r *Ranger) sortedObservations() []beacon.Observation {
	list := make([]beacon.Observation, 0, len(r.latest))
	for _, obs := range r.latest {
		list = append(list, obs)
	}
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if (a.Accuracy < 0) != (b.Accuracy < 0) {
			return b.Accuracy < 0
		}
		if a.Accuracy != b.Accuracy {
			return a.Accuracy < b.Accuracy
		}
		return a.Identity.String() < b.Identity.String()
	})
	return list
}
