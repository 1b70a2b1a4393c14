package beacon

import "math"

// Proximity is a coarse distance class of a ranged beacon.
type Proximity string

const (
	ProximityUnknown   Proximity = "Unknown"
	ProximityImmediate Proximity = "Immediate"
	ProximityNear      Proximity = "Near"
	ProximityFar       Proximity = "Far"
)

// Proximities lists the classes in display order.
var Proximities = []Proximity{ProximityImmediate, ProximityNear, ProximityFar, ProximityUnknown}

const (
	pathLossExponent = 2.0

	immediateMeters = 0.5
	nearMeters      = 4.0
)

// EstimateAccuracy estimates the distance in meters to a beacon from its
// RSSI and measured power. It returns -1 when either value is unknown.
func EstimateAccuracy(rssi, measuredPower int) float64 {
	if rssi == 0 || measuredPower == 0 {
		return -1
	}
	return math.Pow(10, float64(measuredPower-rssi)/(10*pathLossExponent))
}

// ClassifyProximity maps an accuracy estimate to a proximity class.
func ClassifyProximity(accuracy float64) Proximity {
	switch {
	case accuracy < 0:
		return ProximityUnknown
	case accuracy < immediateMeters:
		return ProximityImmediate
	case accuracy < nearMeters:
		return ProximityNear
	default:
		return ProximityFar
	}
}
