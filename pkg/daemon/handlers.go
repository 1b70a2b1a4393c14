package daemon

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/airlocator/airlocator/pkg/beacon"
	"github.com/airlocator/airlocator/pkg/calibration"
	"github.com/airlocator/airlocator/pkg/config"
	"github.com/airlocator/airlocator/pkg/events"
	"github.com/airlocator/airlocator/pkg/version"
)

func getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

// BeaconsResponse groups visible beacons by proximity.
type BeaconsResponse map[beacon.Proximity][]beacon.Observation

func getBeacons(c *gin.Context) {
	var regions []beacon.Region
	if u := c.Query("uuid"); u != "" {
		r, err := beacon.ParseRegion(u, c.Query("major"), c.Query("minor"))
		if err != nil {
			c.IndentedJSON(http.StatusBadRequest, err.Error())
			_ = c.AbortWithError(http.StatusBadRequest, err)
			return
		}
		regions = append(regions, r)
	} else {
		for _, u := range conf.ProximityUUIDs() {
			regions = append(regions, beacon.NewRegion(u))
		}
	}

	c.IndentedJSON(http.StatusOK, BeaconsResponse(ranger.Visible(regions)))
}

func postStartCalibration(c *gin.Context) {
	var region beacon.Region
	if err := c.BindJSON(&region); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	if region.Identifier == "" {
		region.Identifier = beacon.DefaultIdentifier
	}

	err := startCalibration(region)
	switch {
	case errors.Is(err, calibration.ErrAlreadyInProgress):
		c.IndentedJSON(http.StatusConflict, err.Error())
		_ = c.AbortWithError(http.StatusConflict, err)
		return
	case err != nil:
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("calibrating %s for %s, hold the beacon 1 meter away", region.Key(), conf.Dwell()))
}

func postCancelCalibration(c *gin.Context) {
	if !cancelCalibration() {
		c.IndentedJSON(http.StatusOK, "no calibration in progress")
		return
	}
	c.IndentedJSON(http.StatusOK, "calibration cancelled")
}

func getCalibrationStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, currentCalibrationStatus())
}

// AdvertisingState is the body of GET and PUT /advertising.
type AdvertisingState struct {
	Enabled       bool      `json:"enabled"`
	UUID          uuid.UUID `json:"uuid"`
	Major         uint16    `json:"major"`
	Minor         uint16    `json:"minor"`
	MeasuredPower int       `json:"measuredPower"`
}

func currentAdvertising() AdvertisingState {
	frame, ok := radioDev.Advertising()
	if !ok {
		return AdvertisingState{}
	}
	return AdvertisingState{
		Enabled:       true,
		UUID:          frame.UUID,
		Major:         frame.Major,
		Minor:         frame.Minor,
		MeasuredPower: int(frame.MeasuredPower),
	}
}

func getAdvertising(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, currentAdvertising())
}

func setAdvertising(c *gin.Context) {
	var req AdvertisingState
	if err := c.BindJSON(&req); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if !req.Enabled {
		if err := radioDev.StopAdvertising(); err != nil {
			logrus.Errorf("stopAdvertising failed: %v", err)
			c.IndentedJSON(http.StatusInternalServerError, err.Error())
			_ = c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		publishAdvertisingState()
		c.IndentedJSON(http.StatusCreated, currentAdvertising())
		return
	}

	if req.UUID == uuid.Nil {
		err := beacon.ErrInvalidUUID
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	power := req.MeasuredPower
	if power == 0 {
		power = conf.DefaultMeasuredPower()
	}

	frame := beacon.Frame{
		Identity:      beacon.Identity{UUID: req.UUID, Major: req.Major, Minor: req.Minor},
		MeasuredPower: beacon.NormalizePower(power),
	}
	if err := radioDev.Advertise(frame); err != nil {
		logrus.Errorf("advertise failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	publishAdvertisingState()
	c.IndentedJSON(http.StatusCreated, currentAdvertising())
}

func publishAdvertisingState() {
	st := currentAdvertising()
	sseHub.PublishAdvertising(events.AdvertisingStateEvent{
		Enabled:       st.Enabled,
		UUID:          st.UUID.String(),
		Major:         st.Major,
		Minor:         st.Minor,
		MeasuredPower: st.MeasuredPower,
	})
}

func getEvents(c *gin.Context) {
	ch := sseHub.Subscribe()
	defer sseHub.Unsubscribe(ch)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, ev.Data)
			return true
		}
	})
}
