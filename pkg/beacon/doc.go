// Package beacon contains the beacon identity model shared by the ranger, the
// calibration session and the daemon:
//
//   - Region: a proximity UUID with optional major/minor values
//   - Frame: the iBeacon manufacturer data payload
//   - Observation: one ranged reading of a beacon, with derived proximity
//
// It has no dependency on a radio stack.
package beacon
