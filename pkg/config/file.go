package config

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/airlocator/airlocator/pkg/beacon"
	"github.com/airlocator/airlocator/pkg/utils/ptr"
)

const (
	// MaxTrimFraction keeps at least the middle of the samples.
	MaxTrimFraction = 0.5

	minRangingInterval = 100 * time.Millisecond
)

var (
	defaultFileConfig = &RawFileConfig{
		DwellSeconds:          ptr.To(20),
		TrimFraction:          ptr.To(0.1),
		RangingIntervalMillis: ptr.To(1000),
		DefaultMeasuredPower:  ptr.To(beacon.DefaultMeasuredPower),
		ProximityUUIDs:        defaultProximityUUIDs(),
		AllowNonRootAccess:    ptr.To(false),
		MQTTBroker:            ptr.To(""),
		MQTTTopic:             ptr.To("airlocator/calibration"),
	}
)

func defaultProximityUUIDs() []string {
	out := make([]string, 0, len(beacon.DefaultProximityUUIDs))
	for _, u := range beacon.DefaultProximityUUIDs {
		out = append(out, strings.ToUpper(u.String()))
	}
	return out
}

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

// Path returns the file the configuration is loaded from.
func (f *File) Path() string { return f.filepath }

type RawFileConfig struct {
	DwellSeconds          *int     `json:"dwellSeconds,omitempty"`
	TrimFraction          *float64 `json:"trimFraction,omitempty"`
	RangingIntervalMillis *int     `json:"rangingIntervalMillis,omitempty"`
	DefaultMeasuredPower  *int     `json:"defaultMeasuredPower,omitempty"`
	ProximityUUIDs        []string `json:"proximityUUIDs,omitempty"`
	AllowNonRootAccess    *bool    `json:"allowNonRootAccess,omitempty"`
	MQTTBroker            *string  `json:"mqttBroker,omitempty"`
	MQTTTopic             *string  `json:"mqttTopic,omitempty"`
}

// DefaultRawFileConfig returns a copy of the defaults with every key set.
func DefaultRawFileConfig() *RawFileConfig {
	return &RawFileConfig{
		DwellSeconds:          ptr.To(*defaultFileConfig.DwellSeconds),
		TrimFraction:          ptr.To(*defaultFileConfig.TrimFraction),
		RangingIntervalMillis: ptr.To(*defaultFileConfig.RangingIntervalMillis),
		DefaultMeasuredPower:  ptr.To(*defaultFileConfig.DefaultMeasuredPower),
		ProximityUUIDs:        append([]string(nil), defaultFileConfig.ProximityUUIDs...),
		AllowNonRootAccess:    ptr.To(*defaultFileConfig.AllowNonRootAccess),
		MQTTBroker:            ptr.To(*defaultFileConfig.MQTTBroker),
		MQTTTopic:             ptr.To(*defaultFileConfig.MQTTTopic),
	}
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	uuids := make([]string, 0)
	for _, u := range c.ProximityUUIDs() {
		uuids = append(uuids, strings.ToUpper(u.String()))
	}

	rawConfig := &RawFileConfig{
		DwellSeconds:          ptr.To(int(c.Dwell() / time.Second)),
		TrimFraction:          ptr.To(c.TrimFraction()),
		RangingIntervalMillis: ptr.To(int(c.RangingInterval() / time.Millisecond)),
		DefaultMeasuredPower:  ptr.To(c.DefaultMeasuredPower()),
		ProximityUUIDs:        uuids,
		AllowNonRootAccess:    ptr.To(c.AllowNonRootAccess()),
		MQTTBroker:            ptr.To(c.MQTTBroker()),
		MQTTTopic:             ptr.To(c.MQTTTopic()),
	}

	return rawConfig, nil
}

func (f *File) Dwell() time.Duration {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return time.Duration(ptr.Deref(f.c.DwellSeconds, *defaultFileConfig.DwellSeconds)) * time.Second
}

func (f *File) TrimFraction() float64 {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.TrimFraction, *defaultFileConfig.TrimFraction)
}

func (f *File) RangingInterval() time.Duration {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	ms := ptr.Deref(f.c.RangingIntervalMillis, *defaultFileConfig.RangingIntervalMillis)
	return time.Duration(ms) * time.Millisecond
}

func (f *File) DefaultMeasuredPower() int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.DefaultMeasuredPower, *defaultFileConfig.DefaultMeasuredPower)
}

// ProximityUUIDs returns the UUIDs ranged by default. Entries that do not
// parse are skipped; Validate reports them.
func (f *File) ProximityUUIDs() []uuid.UUID {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	raw := f.c.ProximityUUIDs
	if len(raw) == 0 {
		raw = defaultFileConfig.ProximityUUIDs
	}

	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		u, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		out = append(out, u)
	}
	return out
}

func (f *File) AllowNonRootAccess() bool {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.AllowNonRootAccess, *defaultFileConfig.AllowNonRootAccess)
}

func (f *File) MQTTBroker() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.MQTTBroker, *defaultFileConfig.MQTTBroker)
}

func (f *File) MQTTTopic() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	topic := ptr.Deref(f.c.MQTTTopic, *defaultFileConfig.MQTTTopic)
	if topic == "" {
		topic = *defaultFileConfig.MQTTTopic
	}
	return topic
}

func (f *File) SetDwell(d time.Duration) {
	if f.c == nil {
		panic("config is nil")
	}

	if d < time.Second {
		panic("dwell must be at least one second")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.DwellSeconds = ptr.To(int(d / time.Second))
}

func (f *File) SetTrimFraction(v float64) {
	if f.c == nil {
		panic("config is nil")
	}

	if v < 0 || v > MaxTrimFraction {
		panic("trim fraction must be between 0 and 0.5")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.TrimFraction = &v
}

func (f *File) SetDefaultMeasuredPower(p int) {
	if f.c == nil {
		panic("config is nil")
	}

	v := int(beacon.NormalizePower(p))

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.DefaultMeasuredPower = &v
}

func (f *File) SetAllowNonRootAccess(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.c.AllowNonRootAccess = &b
}

func (f *File) Validate() error {
	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	if d := f.Dwell(); d < time.Second {
		return pkgerrors.Errorf("dwellSeconds must be at least 1, got %d", int(d/time.Second))
	}
	if v := f.TrimFraction(); v < 0 || v > MaxTrimFraction {
		return pkgerrors.Errorf("trimFraction must be between 0 and %v, got %v", MaxTrimFraction, v)
	}
	if iv := f.RangingInterval(); iv < minRangingInterval {
		return pkgerrors.Errorf("rangingIntervalMillis must be at least %d, got %d", minRangingInterval/time.Millisecond, iv/time.Millisecond)
	}
	if p := f.DefaultMeasuredPower(); p >= 0 || p < -128 {
		return pkgerrors.Errorf("defaultMeasuredPower must be between -128 and -1, got %d", p)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.c.ProximityUUIDs {
		if _, err := uuid.Parse(s); err != nil {
			return pkgerrors.Wrapf(err, "invalid proximity UUID %q", s)
		}
	}

	return nil
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	if dir := filepath.Dir(f.filepath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return pkgerrors.Wrapf(err, "failed to create directory %s", dir)
		}
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"dwell":                f.Dwell(),
		"trimFraction":         f.TrimFraction(),
		"rangingInterval":      f.RangingInterval(),
		"defaultMeasuredPower": f.DefaultMeasuredPower(),
		"proximityUUIDs":       len(f.ProximityUUIDs()),
		"allowNonRootAccess":   f.AllowNonRootAccess(),
		"mqttBroker":           f.MQTTBroker(),
		"mqttTopic":            f.MQTTTopic(),
	}
}
