// Package calibration determines the measured power of a beacon, the RSSI a
// receiver observes at 1 meter. It contains:
//
//   - Session: a single-region calibration run driven by ranging callbacks and
//     a dwell timer
//   - Flatten and TrimmedMean: the statistics applied to the collected samples
//   - Status and Result: the view models reported to the daemon, client and CLI
//
// A Session collects one reading per ranging tick for DefaultDwell, discards
// the lowest and highest 10% of the readings and reports the rounded mean of
// the rest.
package calibration
