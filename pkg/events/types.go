package events

import "encoding/json"

// Event name constants
const (
	CalibrationProgress = "calibration.progress"
	CalibrationResult   = "calibration.result"
	AdvertisingState    = "advertising.state"
	RegionState         = "region.state"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// CalibrationProgressEvent is the typed payload for calibration.progress.
type CalibrationProgressEvent struct {
	Region          string  `json:"region"`
	PercentComplete float64 `json:"percentComplete"`
	Ts              int64   `json:"ts"`
}

// CalibrationResultEvent is the typed payload for calibration.result. Error
// and Code are only set when the run failed.
type CalibrationResultEvent struct {
	Region        string `json:"region"`
	MeasuredPower int    `json:"measuredPower,omitempty"`
	Samples       int    `json:"samples"`
	Error         string `json:"error,omitempty"`
	Code          int    `json:"code,omitempty"`
	Ts            int64  `json:"ts"`
}

// AdvertisingStateEvent is the typed payload for advertising.state.
type AdvertisingStateEvent struct {
	Enabled       bool   `json:"enabled"`
	UUID          string `json:"uuid,omitempty"`
	Major         uint16 `json:"major"`
	Minor         uint16 `json:"minor"`
	MeasuredPower int    `json:"measuredPower"`
	Ts            int64  `json:"ts"`
}

// RegionStateEvent is the typed payload for region.state.
type RegionStateEvent struct {
	Region string `json:"region"`
	State  string `json:"state"`
	Ts     int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.CalibrationResultEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.MeasuredPower)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
