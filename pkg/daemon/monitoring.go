package daemon

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/airlocator/airlocator/pkg/beacon"
	"github.com/airlocator/airlocator/pkg/dispatch"
	"github.com/airlocator/airlocator/pkg/ranging"
	"github.com/airlocator/airlocator/pkg/utils/ptr"
)

// transitionQueue is where region transitions leave the ranging goroutine.
var transitionQueue = func() dispatch.Queue { return dispatch.Main() }

// MonitoringRequest is the body of PUT /monitoring. Entry and exit
// notifications default to on.
type MonitoringRequest struct {
	beacon.Region
	NotifyOnEntry *bool `json:"notifyOnEntry,omitempty"`
	NotifyOnExit  *bool `json:"notifyOnExit,omitempty"`
	Enabled       bool  `json:"enabled"`
}

func onRegionTransition(t ranging.Transition) {
	transitionQueue().Async(func() {
		logrus.WithFields(logrus.Fields{
			"region": t.Region.Key(),
			"state":  t.State,
		}).Info("region state changed")

		sseHub.PublishRegionState(t.Region.Key(), string(t.State), t.At)
		if publisher != nil {
			if err := publisher.PublishTransition(t); err != nil {
				logrus.WithError(err).Warn("failed to publish region state")
			}
		}
	})
}

func getMonitoring(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, monitor.Regions())
}

func setMonitoring(c *gin.Context) {
	var req MonitoringRequest
	if err := c.BindJSON(&req); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	if req.Identifier == "" {
		req.Identifier = beacon.DefaultIdentifier
	}

	if !req.Enabled {
		if !monitor.Stop(req.Region) {
			c.IndentedJSON(http.StatusNotFound, "region is not monitored")
			return
		}
		c.IndentedJSON(http.StatusOK, monitor.Regions())
		return
	}

	opts := ranging.MonitorOptions{
		NotifyOnEntry: ptr.Deref(req.NotifyOnEntry, true),
		NotifyOnExit:  ptr.Deref(req.NotifyOnExit, true),
	}
	if err := monitor.Start(req.Region, opts); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, monitor.Regions())
}
