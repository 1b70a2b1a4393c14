package beacon

import "github.com/google/uuid"

const (
	// DefaultIdentifier names regions created without an explicit identifier.
	DefaultIdentifier = "airlocator"

	// DefaultMeasuredPower is the reference RSSI at 1 meter used when a beacon
	// has not been calibrated.
	DefaultMeasuredPower = -59

	// AppleCompanyID is the Bluetooth SIG company identifier carried in
	// iBeacon manufacturer data.
	AppleCompanyID uint16 = 0x004C
)

// DefaultProximityUUIDs is the set of proximity UUIDs ranged when the
// configuration does not list any.
var DefaultProximityUUIDs = []uuid.UUID{
	uuid.MustParse("B9407F30-F5F8-466E-AFF9-25556B57FE6D"),
	uuid.MustParse("5A4BCFCE-174E-4BAC-A814-092E77F6B7E5"),
	uuid.MustParse("74278BDA-B644-4520-8F0C-720EAF059935"),
}
