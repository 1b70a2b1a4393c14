package client

import (
	"encoding/json"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"github.com/airlocator/airlocator/pkg/beacon"
	"github.com/airlocator/airlocator/pkg/calibration"
	"github.com/airlocator/airlocator/pkg/config"
	"github.com/airlocator/airlocator/pkg/ranging"
)

// CalibrationStatus is the body of GET /calibration/status.
type CalibrationStatus struct {
	calibration.Status
	History []calibration.Outcome `json:"history,omitempty"`
}

// Advertising is the body of GET and PUT /advertising.
type Advertising struct {
	Enabled       bool   `json:"enabled"`
	UUID          string `json:"uuid,omitempty"`
	Major         uint16 `json:"major"`
	Minor         uint16 `json:"minor"`
	MeasuredPower int    `json:"measuredPower"`
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}

	return &conf, nil
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	return unquote(ret), nil
}

// GetBeacons lists beacons in range grouped by proximity. A nil region
// selects the daemon's configured proximity UUIDs.
func (c *Client) GetBeacons(region *beacon.Region) (map[beacon.Proximity][]beacon.Observation, error) {
	path := "/beacons"
	if region != nil {
		path += "?uuid=" + region.UUID.String()
		if region.Major != nil {
			path += "&major=" + itoa(*region.Major)
			if region.Minor != nil {
				path += "&minor=" + itoa(*region.Minor)
			}
		}
	}

	ret, err := c.Get(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get beacons")
	}

	var out map[beacon.Proximity][]beacon.Observation
	if err := json.Unmarshal([]byte(ret), &out); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal beacons")
	}
	return out, nil
}

func (c *Client) StartCalibration(region beacon.Region) (string, error) {
	payload, err := json.Marshal(region)
	if err != nil {
		return "", err
	}
	ret, err := c.Post("/calibration/start", string(payload))
	if err != nil {
		return "", err
	}
	return unquote(ret), nil
}

func (c *Client) CancelCalibration() (string, error) {
	ret, err := c.Post("/calibration/cancel", "")
	if err != nil {
		return "", err
	}
	return unquote(ret), nil
}

func (c *Client) GetCalibrationStatus() (*CalibrationStatus, error) {
	ret, err := c.Get("/calibration/status")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get calibration status")
	}

	var st CalibrationStatus
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal calibration status")
	}
	return &st, nil
}

func (c *Client) GetAdvertising() (*Advertising, error) {
	ret, err := c.Get("/advertising")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get advertising state")
	}
	return parseAdvertising(ret)
}

func (c *Client) SetAdvertising(a Advertising) (*Advertising, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	ret, err := c.Put("/advertising", string(payload))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to set advertising state")
	}
	return parseAdvertising(ret)
}

func parseAdvertising(ret string) (*Advertising, error) {
	var a Advertising
	if err := json.Unmarshal([]byte(ret), &a); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal advertising state")
	}
	if !a.Enabled {
		a.UUID = ""
	}
	return &a, nil
}

// Monitoring is the body of PUT /monitoring. Nil notify flags leave the
// daemon default, which is on.
type Monitoring struct {
	beacon.Region
	NotifyOnEntry *bool `json:"notifyOnEntry,omitempty"`
	NotifyOnExit  *bool `json:"notifyOnExit,omitempty"`
	Enabled       bool  `json:"enabled"`
}

func (c *Client) GetMonitoring() ([]ranging.RegionStatus, error) {
	ret, err := c.Get("/monitoring")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get monitored regions")
	}
	return parseRegionStatuses(ret)
}

// SetMonitoring starts or stops monitoring a region and returns every
// region monitored afterwards. Stopping an unmonitored region returns
// ErrNotFound.
func (c *Client) SetMonitoring(m Monitoring) ([]ranging.RegionStatus, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	ret, err := c.Put("/monitoring", string(payload))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to set monitoring")
	}
	return parseRegionStatuses(ret)
}

func parseRegionStatuses(ret string) ([]ranging.RegionStatus, error) {
	var out []ranging.RegionStatus
	if err := json.Unmarshal([]byte(ret), &out); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal monitored regions")
	}
	return out, nil
}

func itoa(v uint16) string {
	return strconv.Itoa(int(v))
}
