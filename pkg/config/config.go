package config

import (
	"time"

	"github.com/google/uuid"
)

type Config interface {
	Dwell() time.Duration
	TrimFraction() float64
	RangingInterval() time.Duration
	DefaultMeasuredPower() int
	ProximityUUIDs() []uuid.UUID
	AllowNonRootAccess() bool
	MQTTBroker() string
	MQTTTopic() string

	SetDwell(time.Duration)
	SetTrimFraction(float64)
	SetDefaultMeasuredPower(int)
	SetAllowNonRootAccess(bool)

	// Validate checks every value is within its allowed range.
	Validate() error
	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
