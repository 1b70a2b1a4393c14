package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/assert"

	"github.com/airlocator/airlocator/pkg/beacon"
	"github.com/airlocator/airlocator/pkg/utils/ptr"
)

func TestFileDefaultsWhenMissing(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.NilError(t, err)

	assert.Equal(t, f.Dwell(), 20*time.Second)
	assert.Equal(t, f.TrimFraction(), 0.1)
	assert.Equal(t, f.RangingInterval(), time.Second)
	assert.Equal(t, f.DefaultMeasuredPower(), -59)
	assert.DeepEqual(t, f.ProximityUUIDs(), beacon.DefaultProximityUUIDs)
	assert.Equal(t, f.AllowNonRootAccess(), false)
	assert.Equal(t, f.MQTTBroker(), "")
	assert.Equal(t, f.MQTTTopic(), "airlocator/calibration")
	assert.NilError(t, f.Validate())
}

func TestFileDefaultsWhenEmpty(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	assert.NilError(t, os.WriteFile(p, []byte("  \n"), 0644))

	f, err := NewFile(p)
	assert.NilError(t, err)
	assert.Equal(t, f.Dwell(), 20*time.Second)
}

func TestFileLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	content := `{
  "dwellSeconds": 30,
  "trimFraction": 0.2,
  "rangingIntervalMillis": 500,
  "proximityUUIDs": ["74278bda-b644-4520-8f0c-720eaf059935"],
  "mqttBroker": "tcp://localhost:1883"
}`
	assert.NilError(t, os.WriteFile(p, []byte(content), 0644))

	f, err := NewFile(p)
	assert.NilError(t, err)
	assert.Equal(t, f.Dwell(), 30*time.Second)
	assert.Equal(t, f.TrimFraction(), 0.2)
	assert.Equal(t, f.RangingInterval(), 500*time.Millisecond)
	assert.Equal(t, len(f.ProximityUUIDs()), 1)
	assert.Equal(t, f.MQTTBroker(), "tcp://localhost:1883")
	assert.Equal(t, f.DefaultMeasuredPower(), -59)
	assert.NilError(t, f.Validate())
}

func TestFileLoadInvalidJSON(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	assert.NilError(t, os.WriteFile(p, []byte("{"), 0644))

	_, err := NewFile(p)
	assert.ErrorContains(t, err, "failed to unmarshal")
}

func TestFileValidate(t *testing.T) {
	tests := []struct {
		name string
		raw  *RawFileConfig
		want string
	}{
		{name: "dwell", raw: &RawFileConfig{DwellSeconds: ptr.To(0)}, want: "dwellSeconds"},
		{name: "trim high", raw: &RawFileConfig{TrimFraction: ptr.To(0.6)}, want: "trimFraction"},
		{name: "trim negative", raw: &RawFileConfig{TrimFraction: ptr.To(-0.1)}, want: "trimFraction"},
		{name: "interval", raw: &RawFileConfig{RangingIntervalMillis: ptr.To(10)}, want: "rangingIntervalMillis"},
		{name: "power", raw: &RawFileConfig{DefaultMeasuredPower: ptr.To(5)}, want: "defaultMeasuredPower"},
		{name: "uuid", raw: &RawFileConfig{ProximityUUIDs: []string{"nope"}}, want: "invalid proximity UUID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFileFromConfig(tt.raw, "")
			assert.ErrorContains(t, f.Validate(), tt.want)
		})
	}
}

func TestFileSaveRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", "config.json")
	f := NewFileFromConfig(DefaultRawFileConfig(), p)
	f.SetDwell(15 * time.Second)
	f.SetTrimFraction(0.25)
	f.SetDefaultMeasuredPower(62)
	f.SetAllowNonRootAccess(true)
	assert.NilError(t, f.Save())

	loaded, err := NewFile(p)
	assert.NilError(t, err)
	assert.Equal(t, loaded.Dwell(), 15*time.Second)
	assert.Equal(t, loaded.TrimFraction(), 0.25)
	assert.Equal(t, loaded.DefaultMeasuredPower(), -62)
	assert.Equal(t, loaded.AllowNonRootAccess(), true)

	raw, err := NewRawFileConfigFromConfig(loaded)
	assert.NilError(t, err)
	assert.Equal(t, *raw.DwellSeconds, 15)
	assert.Equal(t, len(raw.ProximityUUIDs), 3)
}

func TestSetTrimFractionPanicsOutOfRange(t *testing.T) {
	f := NewFileFromConfig(nil, "")
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	f.SetTrimFraction(0.9)
}
