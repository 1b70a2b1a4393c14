package beacon

import "errors"

var (
	// ErrNotIBeacon indicates manufacturer data that is not an iBeacon frame.
	ErrNotIBeacon = errors.New("not an iBeacon frame")

	// ErrInvalidUUID indicates a proximity UUID that cannot be parsed.
	ErrInvalidUUID = errors.New("invalid proximity UUID")

	// ErrInvalidMajorMinor indicates a major or minor value outside 0-65535.
	ErrInvalidMajorMinor = errors.New("major and minor must be between 0 and 65535")

	// ErrMinorWithoutMajor indicates a region with a minor but no major value.
	ErrMinorWithoutMajor = errors.New("minor requires major")
)
