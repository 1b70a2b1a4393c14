// Package radio connects the Bluetooth controller to the beacon packages.
package radio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/airlocator/airlocator/pkg/beacon"
)

// ErrNotEnabled is returned when the adapter is used before Enable.
var ErrNotEnabled = errors.New("bluetooth adapter is not enabled")

// Adapter scans for iBeacon advertisements and advertises the host as one.
type Adapter struct {
	bt *bluetooth.Adapter

	mu          sync.Mutex
	enabled     bool
	adv         *bluetooth.Advertisement
	advertising *beacon.Frame
}

// NewAdapter wraps the default Bluetooth adapter.
func NewAdapter() *Adapter {
	return &Adapter{bt: bluetooth.DefaultAdapter}
}

// Enable powers up the Bluetooth stack.
func (a *Adapter) Enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.enabled {
		return nil
	}
	if err := a.bt.Enable(); err != nil {
		return fmt.Errorf("failed to enable bluetooth adapter: %w (try running as root or with cap_net_admin)", err)
	}
	a.enabled = true
	return nil
}

// Scan reports every iBeacon advertisement to fn until ctx is done. Other
// advertisements are ignored.
func (a *Adapter) Scan(ctx context.Context, fn func(beacon.Advertisement)) error {
	a.mu.Lock()
	enabled := a.enabled
	a.mu.Unlock()
	if !enabled {
		return ErrNotEnabled
	}

	stop := context.AfterFunc(ctx, func() {
		if err := a.bt.StopScan(); err != nil {
			logrus.WithError(err).Warn("failed to stop scan")
		}
	})
	defer stop()

	logrus.Info("bluetooth scan started")
	err := a.bt.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		for _, md := range result.ManufacturerData() {
			if md.CompanyID != beacon.AppleCompanyID {
				continue
			}
			frame, err := beacon.ParseFrame(md.Data)
			if err != nil {
				continue
			}
			fn(beacon.Advertisement{
				Address:   result.Address.String(),
				RSSI:      int(result.RSSI),
				Frame:     frame,
				Timestamp: time.Now(),
			})
		}
	})
	if ctx.Err() != nil {
		logrus.Info("bluetooth scan stopped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("bluetooth scan failed: %w", err)
	}
	return nil
}

// Advertise starts broadcasting frame, replacing any frame already being
// advertised.
func (a *Adapter) Advertise(frame beacon.Frame) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.enabled {
		return ErrNotEnabled
	}
	if a.adv == nil {
		a.adv = a.bt.DefaultAdvertisement()
	}
	if a.advertising != nil {
		if err := a.adv.Stop(); err != nil {
			return fmt.Errorf("failed to stop advertisement: %w", err)
		}
		a.advertising = nil
	}

	err := a.adv.Configure(bluetooth.AdvertisementOptions{
		AdvertisementType: bluetooth.AdvertisingTypeNonConnInd,
		ManufacturerData: []bluetooth.ManufacturerDataElement{
			{CompanyID: beacon.AppleCompanyID, Data: frame.Bytes()},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to configure advertisement: %w", err)
	}
	if err := a.adv.Start(); err != nil {
		return fmt.Errorf("failed to start advertisement: %w", err)
	}

	a.advertising = &frame
	logrus.WithFields(logrus.Fields{
		"beacon":        frame.Identity.String(),
		"measuredPower": frame.MeasuredPower,
	}).Info("advertising started")
	return nil
}

// StopAdvertising stops the current broadcast. It is a no-op when nothing is
// being advertised.
func (a *Adapter) StopAdvertising() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.advertising == nil {
		return nil
	}
	if err := a.adv.Stop(); err != nil {
		return fmt.Errorf("failed to stop advertisement: %w", err)
	}
	a.advertising = nil
	logrus.Info("advertising stopped")
	return nil
}

// Advertising returns the frame being broadcast, if any.
func (a *Adapter) Advertising() (beacon.Frame, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.advertising == nil {
		return beacon.Frame{}, false
	}
	return *a.advertising, true
}
