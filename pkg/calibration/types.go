package calibration

import (
	"time"

	"github.com/airlocator/airlocator/pkg/beacon"
)

// State is the lifecycle state of a calibration session.
type State string

const (
	StateIdle      State = "Idle"
	StateRunning   State = "Running"
	StateFinishing State = "Finishing"
	// StateCompleted is reported after a run delivered its result. A
	// completed session accepts a new run like an idle one.
	StateCompleted State = "Completed"
)

// ProgressHandler receives the fraction of the dwell window that has elapsed.
type ProgressHandler func(percentComplete float64)

// ResultHandler receives the outcome of a run.
type ResultHandler func(Result)

// BeaconSource delivers ranging batches for a region to its listeners.
type BeaconSource interface {
	Subscribe(region beacon.Region, l beacon.Listener)
	Unsubscribe(region beacon.Region, l beacon.Listener)
}

// Result is the outcome of one run: a measured power, or an error.
type Result struct {
	Region        beacon.Region
	MeasuredPower int
	Samples       int
	StartedAt     time.Time
	FinishedAt    time.Time
	Err           error
}

// OK reports whether the run produced a measured power.
func (r Result) OK() bool { return r.Err == nil }

// Status is a snapshot of a session.
type Status struct {
	State           State     `json:"state"`
	Region          string    `json:"region"`
	PercentComplete float64   `json:"percentComplete"`
	Batches         int       `json:"batches"`
	StartedAt       time.Time `json:"startedAt,omitempty"`
	Cancelled       bool      `json:"cancelled"`
	Last            *Outcome  `json:"last,omitempty"`
}

// Outcome is the JSON form of a Result.
type Outcome struct {
	Region        string    `json:"region"`
	MeasuredPower int       `json:"measuredPower,omitempty"`
	Samples       int       `json:"samples"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`
	Error         string    `json:"error,omitempty"`
	Code          ErrorCode `json:"code,omitempty"`
}

// NewOutcome converts a Result for the wire.
func NewOutcome(r Result) *Outcome {
	o := &Outcome{
		Region:        r.Region.Key(),
		MeasuredPower: r.MeasuredPower,
		Samples:       r.Samples,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
	}
	if r.Err != nil {
		o.Error = r.Err.Error()
		o.Code = CodeOf(r.Err)
	}
	return o
}
