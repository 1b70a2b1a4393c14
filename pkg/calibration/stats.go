package calibration

import (
	"math"
	"sort"

	"github.com/airlocator/airlocator/pkg/beacon"
)

// DefaultTrimFraction is the share of readings discarded at each end.
const DefaultTrimFraction = 0.1

// Flatten returns the RSSI of every reading in delivery order. Each batch
// may hold at most one reading; a batch with more means the region matched
// several beacons and the samples cannot be attributed.
func Flatten(batches []beacon.Batch) ([]int, error) {
	var values []int
	for _, b := range batches {
		if len(b) > 1 {
			return nil, ErrAmbiguousSignal
		}
		for _, o := range b {
			values = append(values, o.RSSI)
		}
	}
	return values, nil
}

// TrimmedMean sorts values, drops floor(n*fraction) from each end and returns
// the mean of the rest rounded half away from zero. At least one value is
// always kept.
func TrimmedMean(values []int, fraction float64) (int, error) {
	n := len(values)
	if n == 0 {
		return 0, ErrNoSignal
	}

	sorted := make([]int, n)
	copy(sorted, values)
	sort.Ints(sorted)

	trim := trimCount(n, fraction)
	kept := sorted[trim : n-trim]

	sum := 0
	for _, v := range kept {
		sum += v
	}
	return int(math.Round(float64(sum) / float64(len(kept)))), nil
}

func trimCount(n int, fraction float64) int {
	if fraction <= 0 {
		return 0
	}
	trim := int(math.Floor(float64(n) * fraction))
	if n-2*trim < 1 {
		trim = (n - 1) / 2
	}
	return trim
}
