package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// subscriberBuffer is how many events a subscriber may lag behind before
// events are dropped for it.
const subscriberBuffer = 32

// EventHub fans daemon events out to SSE subscribers. Publishing never
// blocks; a subscriber that falls behind misses events.
type EventHub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	now  func() time.Time
}

func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[chan Event]struct{}), now: time.Now}
}

// Subscribe returns a channel receiving every event published from now on.
func (h *EventHub) Subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	logrus.WithField("subscribers", n).Debug("event subscriber connected")
	return ch
}

// Unsubscribe removes and closes ch.
func (h *EventHub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Subscribers returns the number of connected subscribers.
func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// PublishProgress reports how far the calibration of region has come.
func (h *EventHub) PublishProgress(region string, percent float64) {
	h.Publish(CalibrationProgress, CalibrationProgressEvent{
		Region:          region,
		PercentComplete: percent,
		Ts:              h.stamp(0),
	})
}

// PublishResult reports a finished calibration.
func (h *EventHub) PublishResult(ev CalibrationResultEvent) {
	ev.Ts = h.stamp(ev.Ts)
	h.Publish(CalibrationResult, ev)
}

// PublishAdvertising reports what this machine advertises.
func (h *EventHub) PublishAdvertising(ev AdvertisingStateEvent) {
	if !ev.Enabled {
		ev = AdvertisingStateEvent{Ts: ev.Ts}
	}
	ev.Ts = h.stamp(ev.Ts)
	h.Publish(AdvertisingState, ev)
}

// PublishRegionState reports a monitored region turning inside or outside.
func (h *EventHub) PublishRegionState(region, state string, at time.Time) {
	var ts int64
	if !at.IsZero() {
		ts = at.Unix()
	}
	h.Publish(RegionState, RegionStateEvent{Region: region, State: state, Ts: h.stamp(ts)})
}

// stamp returns ts, or the current time when ts is unset.
func (h *EventHub) stamp(ts int64) int64 {
	if ts != 0 || h == nil {
		return ts
	}
	return h.now().Unix()
}

// Publish sends payload as event name to every subscriber.
func (h *EventHub) Publish(name string, payload any) {
	if h == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).WithField("event", name).Error("failed to encode event")
		return
	}
	msg := Event{Name: name, Data: b}
	h.mu.RLock()
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
			logrus.WithField("event", name).Debug("subscriber is slow, event dropped")
		}
	}
	h.mu.RUnlock()
}
