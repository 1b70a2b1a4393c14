package calibration

import (
	"errors"
	"testing"

	"gotest.tools/assert"

	"github.com/airlocator/airlocator/pkg/beacon"
)

func TestTrimmedMean(t *testing.T) {
	values := []int{-48, -70, -64, -55, -40, -63, -60, -65, -58, -50}

	got, err := TrimmedMean(values, DefaultTrimFraction)
	assert.NilError(t, err)
	// mean of [-65 -64 -63 -60 -58 -55 -50 -48] is -57.875
	assert.Equal(t, got, -58)

	// input is left unsorted
	assert.Equal(t, values[0], -48)
}

func TestTrimmedMeanSmallSamples(t *testing.T) {
	tests := []struct {
		name     string
		values   []int
		fraction float64
		want     int
	}{
		{name: "single", values: []int{-61}, fraction: DefaultTrimFraction, want: -61},
		{name: "nine values keep all", values: []int{-60, -60, -60, -60, -60, -60, -60, -60, -51}, fraction: DefaultTrimFraction, want: -59},
		{name: "half trim of two keeps both", values: []int{-60, -70}, fraction: 0.5, want: -65},
		{name: "half trim of three keeps median", values: []int{-40, -60, -90}, fraction: 0.5, want: -60},
		{name: "zero fraction", values: []int{-40, -60, -90}, fraction: 0, want: -63},
		{name: "negative fraction", values: []int{-40, -60, -90}, fraction: -1, want: -63},
		{name: "rounds half away from zero", values: []int{-60, -61}, fraction: DefaultTrimFraction, want: -61},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TrimmedMean(tt.values, tt.fraction)
			assert.NilError(t, err)
			assert.Equal(t, got, tt.want)
		})
	}
}

func TestTrimmedMeanEmpty(t *testing.T) {
	_, err := TrimmedMean(nil, DefaultTrimFraction)
	assert.Assert(t, errors.Is(err, ErrNoSignal))
}

func TestTrimCountKeepsOne(t *testing.T) {
	for n := 1; n <= 50; n++ {
		for _, f := range []float64{0, 0.1, 0.25, 0.5, 0.9} {
			trim := trimCount(n, f)
			assert.Assert(t, n-2*trim >= 1, "n=%d fraction=%v trim=%d", n, f, trim)
		}
	}
	assert.Equal(t, trimCount(10, 0.1), 1)
	assert.Equal(t, trimCount(30, 0.1), 3)
}

func TestFlatten(t *testing.T) {
	batches := []beacon.Batch{
		{reading(-60)},
		{},
		{reading(-62)},
		nil,
		{reading(-58)},
	}
	values, err := Flatten(batches)
	assert.NilError(t, err)
	assert.DeepEqual(t, values, []int{-60, -62, -58})
}

func TestFlattenAmbiguous(t *testing.T) {
	batches := []beacon.Batch{
		{reading(-60)},
		{reading(-61), reading(-75)},
		{reading(-62)},
	}
	_, err := Flatten(batches)
	assert.Assert(t, errors.Is(err, ErrAmbiguousSignal))
	assert.Equal(t, CodeOf(err), CodeAmbiguousSignal)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeOf(ErrCancelled), CodeCancelled)
	assert.Equal(t, CodeOf(ErrNoSignal), CodeNoSignal)
	assert.Equal(t, CodeOf(ErrAlreadyInProgress), CodeAlreadyInProgress)
	assert.Equal(t, CodeOf(errors.New("other")), ErrorCode(0))
	assert.Equal(t, CodeOf(nil), ErrorCode(0))
}
