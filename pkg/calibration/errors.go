package calibration

import "errors"

// ErrorCode is the numeric code of a calibration failure.
type ErrorCode int

const (
	CodeAmbiguousSignal   ErrorCode = 1
	CodeCancelled         ErrorCode = 2
	CodeNoSignal          ErrorCode = 3
	CodeAlreadyInProgress ErrorCode = 4
)

// Error is a calibration failure delivered through the result handler.
type Error struct {
	Code ErrorCode
	msg  string
}

func (e *Error) Error() string { return e.msg }

var (
	// ErrAmbiguousSignal indicates more than one beacon of the calibrated
	// identity was seen in a single ranging tick.
	ErrAmbiguousSignal = &Error{CodeAmbiguousSignal, "more than one beacon of the specified identity was found"}

	// ErrCancelled indicates the run was cancelled before the dwell elapsed.
	ErrCancelled = &Error{CodeCancelled, "calibration was cancelled"}

	// ErrNoSignal indicates no reading was collected during the dwell.
	ErrNoSignal = &Error{CodeNoSignal, "no beacon of the specified identity was found"}

	// ErrAlreadyInProgress indicates a run was requested while one is active.
	ErrAlreadyInProgress = &Error{CodeAlreadyInProgress, "calibration is already in progress"}
)

// CodeOf returns the code of a calibration error, or 0.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}
