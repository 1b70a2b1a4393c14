package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/airlocator/airlocator/pkg/beacon"
	"github.com/airlocator/airlocator/pkg/calibration"
	"github.com/airlocator/airlocator/pkg/config"
	"github.com/airlocator/airlocator/pkg/dispatch"
	"github.com/airlocator/airlocator/pkg/events"
	"github.com/airlocator/airlocator/pkg/publish"
	"github.com/airlocator/airlocator/pkg/radio"
	"github.com/airlocator/airlocator/pkg/ranging"
)

// Radio is the Bluetooth device the daemon scans and advertises with.
type Radio interface {
	Enable() error
	Scan(ctx context.Context, fn func(beacon.Advertisement)) error
	Advertise(frame beacon.Frame) error
	StopAdvertising() error
	Advertising() (beacon.Frame, bool)
}

// ResultPublisher forwards finished calibrations and region transitions
// outside the daemon.
type ResultPublisher interface {
	Publish(o calibration.Outcome) error
	PublishTransition(t ranging.Transition) error
	Close()
}

// shutdownGrace bounds how long shutdown waits for a cancelled calibration
// to deliver its result.
const shutdownGrace = 2 * time.Second

var (
	conf      config.Config
	ranger    *ranging.Ranger
	monitor   *ranging.Monitor
	radioDev  Radio
	sseHub    *events.EventHub
	publisher ResultPublisher
)

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/config", getConfig)
	router.GET("/version", getVersion)
	router.GET("/beacons", getBeacons)
	router.POST("/calibration/start", postStartCalibration)
	router.POST("/calibration/cancel", postCancelCalibration)
	router.GET("/calibration/status", getCalibrationStatus)
	router.GET("/advertising", getAdvertising)
	router.PUT("/advertising", setAdvertising)
	router.GET("/monitoring", getMonitoring)
	router.PUT("/monitoring", setMonitoring)
	router.GET("/events", getEvents)

	return router
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	var err error
	conf, err = config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	if err := conf.Validate(); err != nil {
		logrus.Fatalf("invalid config %s: %v", configPath, err)
	}
	if f, ok := conf.(*config.File); ok {
		logrus.WithFields(f.LogrusFields()).Infof("config loaded")
	}

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			if err := conf.Validate(); err != nil {
				logrus.Errorf("reloaded config is invalid: %v", err)
				continue
			}
			logrus.Infof("config reloaded, changes apply to the next calibration")
		}
	}()

	sseHub = events.NewEventHub()
	ranger = ranging.NewRanger(conf.RangingInterval(), dispatch.RealClock)
	monitor = ranging.NewMonitor(ranger, onRegionTransition)

	if broker := conf.MQTTBroker(); broker != "" {
		p, err := publish.NewMQTT(publish.MQTTOptions{Broker: broker, Topic: conf.MQTTTopic()})
		if err != nil {
			logrus.WithError(err).Warn("mqtt publishing disabled")
		} else {
			publisher = p
		}
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	radioDev = radio.NewAdapter()
	if err := radioDev.Enable(); err != nil {
		// The API stays up so advertising and status calls report the problem.
		logrus.WithError(err).Error("bluetooth is unavailable")
	} else {
		go func() {
			if err := radioDev.Scan(ctx, ranger.Observe); err != nil {
				logrus.WithError(err).Error("bluetooth scan exited")
			}
		}()
	}
	go ranger.Run(ctx)

	srv := &http.Server{
		Handler: setupRoutes(),
		// Event streams end with ctx.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// Remove a stale socket left by a daemon that did not exit cleanly.
	if _, err := os.Stat(unixSocketPath); err == nil {
		logrus.Warnf("removing stale socket %s", unixSocketPath)
		_ = os.Remove(unixSocketPath)
	}

	// Create the socket to listen on:
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	stopCalibration(shutdownGrace)
	stop()

	logrus.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	if err := radioDev.StopAdvertising(); err != nil {
		logrus.Errorf("failed to stop advertising before exiting: %v", err)
	}

	if publisher != nil {
		publisher.Close()
	}

	dispatch.Main().Close()

	logrus.Info("exiting")
	return nil
}
