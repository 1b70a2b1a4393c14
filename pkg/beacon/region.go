package beacon

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Identity is the full identity a beacon advertises.
type Identity struct {
	UUID  uuid.UUID `json:"uuid"`
	Major uint16    `json:"major"`
	Minor uint16    `json:"minor"`
}

func (i Identity) String() string {
	return fmt.Sprintf("%s/%d/%d", strings.ToUpper(i.UUID.String()), i.Major, i.Minor)
}

// Region selects beacons by proximity UUID and, optionally, major and minor.
type Region struct {
	UUID       uuid.UUID `json:"uuid"`
	Major      *uint16   `json:"major,omitempty"`
	Minor      *uint16   `json:"minor,omitempty"`
	Identifier string    `json:"identifier,omitempty"`
}

// NewRegion returns a region matching every beacon with the given UUID.
func NewRegion(u uuid.UUID) Region {
	return Region{UUID: u, Identifier: strings.ToUpper(u.String())}
}

// RegionFor returns the narrowest region containing the given beacon.
func RegionFor(id Identity) Region {
	major, minor := id.Major, id.Minor
	return Region{UUID: id.UUID, Major: &major, Minor: &minor, Identifier: DefaultIdentifier}
}

// ParseRegion builds a region from user input. Empty major or minor strings
// leave the corresponding field unset.
func ParseRegion(u, major, minor string) (Region, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(u))
	if err != nil {
		return Region{}, fmt.Errorf("%w: %q", ErrInvalidUUID, u)
	}
	r := Region{UUID: parsed, Identifier: DefaultIdentifier}

	if major = strings.TrimSpace(major); major != "" {
		v, err := parseUint16(major)
		if err != nil {
			return Region{}, err
		}
		r.Major = &v
	}
	if minor = strings.TrimSpace(minor); minor != "" {
		v, err := parseUint16(minor)
		if err != nil {
			return Region{}, err
		}
		r.Minor = &v
	}

	return r, r.Validate()
}

func parseUint16(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMajorMinor, s)
	}
	return uint16(v), nil
}

// Validate checks the region is one of the three forms a beacon region can take.
func (r Region) Validate() error {
	if r.UUID == uuid.Nil {
		return ErrInvalidUUID
	}
	if r.Minor != nil && r.Major == nil {
		return ErrMinorWithoutMajor
	}
	return nil
}

// Matches reports whether a beacon with the given identity belongs to r.
func (r Region) Matches(id Identity) bool {
	if id.UUID != r.UUID {
		return false
	}
	if r.Major != nil && *r.Major != id.Major {
		return false
	}
	if r.Minor != nil && *r.Minor != id.Minor {
		return false
	}
	return true
}

// Key is a stable string form of the region, used as a map key.
func (r Region) Key() string {
	k := strings.ToUpper(r.UUID.String())
	if r.Major != nil {
		k += "/" + strconv.Itoa(int(*r.Major))
		if r.Minor != nil {
			k += "/" + strconv.Itoa(int(*r.Minor))
		}
	}
	return k
}

func (r Region) String() string {
	return r.Key()
}

// Advertisement is one decoded iBeacon broadcast as seen by the radio.
type Advertisement struct {
	Address   string
	RSSI      int
	Frame     Frame
	Timestamp time.Time
}

// Observation is a ranged beacon reading.
type Observation struct {
	Identity
	Address       string    `json:"address,omitempty"`
	RSSI          int       `json:"rssi"`
	MeasuredPower int       `json:"measuredPower"`
	Accuracy      float64   `json:"accuracy"`
	Proximity     Proximity `json:"proximity"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewObservation derives proximity and accuracy for an advertisement.
func NewObservation(adv Advertisement) Observation {
	power := int(adv.Frame.MeasuredPower)
	accuracy := EstimateAccuracy(adv.RSSI, power)
	return Observation{
		Identity:      adv.Frame.Identity,
		Address:       adv.Address,
		RSSI:          adv.RSSI,
		MeasuredPower: power,
		Accuracy:      accuracy,
		Proximity:     ClassifyProximity(accuracy),
		Timestamp:     adv.Timestamp,
	}
}

// Batch is the set of readings delivered by one ranging tick.
type Batch []Observation

// Listener receives ranging batches for a region it subscribed to.
type Listener interface {
	OnSamplesDelivered(batch Batch)
}
