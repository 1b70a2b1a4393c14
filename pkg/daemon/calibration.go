package daemon

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/airlocator/airlocator/pkg/beacon"
	"github.com/airlocator/airlocator/pkg/calibration"
	"github.com/airlocator/airlocator/pkg/events"
)

// sessionOptions is a test seam for the clock and queues sessions run on.
var sessionOptions = func() []calibration.Option {
	return []calibration.Option{
		calibration.WithDwell(conf.Dwell()),
		calibration.WithTrimFraction(conf.TrimFraction()),
	}
}

var (
	calibrationMu      = &sync.Mutex{}
	activeSession      *calibration.Session
	activeDone         chan struct{}
	lastCalibration    *calibration.Outcome
	calibrationHistory []calibration.Outcome
)

const maxCalibrationHistory = 20

// startCalibration starts a run for region. Only one run is active at a
// time, whatever its region.
func startCalibration(region beacon.Region) error {
	if err := region.Validate(); err != nil {
		return err
	}

	calibrationMu.Lock()
	defer calibrationMu.Unlock()

	if activeSession != nil {
		return calibration.ErrAlreadyInProgress
	}

	var s *calibration.Session
	s = calibration.NewSession(region, ranger, func(res calibration.Result) {
		onCalibrationResult(s, res)
	}, sessionOptions()...)
	activeSession = s
	activeDone = make(chan struct{})

	key := region.Key()
	s.Perform(func(percent float64) {
		sseHub.PublishProgress(key, percent)
	})

	logrus.WithField("region", region.Key()).Info("calibration requested")
	return nil
}

func onCalibrationResult(s *calibration.Session, res calibration.Result) {
	outcome := calibration.NewOutcome(res)

	calibrationMu.Lock()
	var done chan struct{}
	if activeSession == s {
		activeSession = nil
		done, activeDone = activeDone, nil
	}
	lastCalibration = outcome
	calibrationHistory = append(calibrationHistory, *outcome)
	if len(calibrationHistory) > maxCalibrationHistory {
		calibrationHistory = calibrationHistory[len(calibrationHistory)-maxCalibrationHistory:]
	}
	calibrationMu.Unlock()

	// Closed once the outcome has left the daemon.
	if done != nil {
		defer close(done)
	}

	sseHub.PublishResult(events.CalibrationResultEvent{
		Region:        outcome.Region,
		MeasuredPower: outcome.MeasuredPower,
		Samples:       outcome.Samples,
		Error:         outcome.Error,
		Code:          int(outcome.Code),
		Ts:            outcome.FinishedAt.Unix(),
	})

	if publisher != nil {
		if err := publisher.Publish(*outcome); err != nil {
			logrus.WithError(err).Warn("failed to publish calibration result")
		}
	}
}

// cancelCalibration reports whether a run was active. The cancelled result
// arrives through the result handler.
func cancelCalibration() bool {
	calibrationMu.Lock()
	s := activeSession
	calibrationMu.Unlock()

	if s == nil {
		return false
	}
	s.Cancel()
	return true
}

// stopCalibration cancels the active run and waits up to timeout for its
// cancelled outcome to be recorded and published. It reports false on
// timeout.
func stopCalibration(timeout time.Duration) bool {
	calibrationMu.Lock()
	done := activeDone
	calibrationMu.Unlock()

	if done == nil || !cancelCalibration() {
		return true
	}

	select {
	case <-done:
		logrus.Info("cancelled active calibration")
		return true
	case <-time.After(timeout):
		logrus.Warnf("calibration did not finish within %s", timeout)
		return false
	}
}

type calibrationStatusResponse struct {
	calibration.Status
	History []calibration.Outcome `json:"history,omitempty"`
}

func currentCalibrationStatus() calibrationStatusResponse {
	calibrationMu.Lock()
	defer calibrationMu.Unlock()

	var st calibration.Status
	if activeSession != nil {
		st = activeSession.Status()
	} else {
		st = calibration.Status{State: calibration.StateIdle}
	}
	if st.Last == nil {
		st.Last = lastCalibration
	}

	return calibrationStatusResponse{
		Status:  st,
		History: append([]calibration.Outcome(nil), calibrationHistory...),
	}
}
