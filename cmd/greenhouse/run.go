package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/greenhouse/internal/config"
	"github.com/sweeney/greenhouse/internal/controller"
	"github.com/sweeney/greenhouse/internal/csvlog"
	"github.com/sweeney/greenhouse/internal/metrics"
	"github.com/sweeney/greenhouse/internal/monitor"
	"github.com/sweeney/greenhouse/internal/mqtt"
	"github.com/sweeney/greenhouse/internal/rotate"
	"github.com/sweeney/greenhouse/internal/state"
	"github.com/sweeney/greenhouse/internal/status"
	"github.com/sweeney/greenhouse/internal/web"
)

const lockName = ".greenhouse.lock"

// signalCause records which signal stopped the daemon.
type signalCause struct {
	name string
}

func (s signalCause) Error() string { return "received " + s.name }

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// shutdownReason names why ctx ended, for the SHUTDOWN event.
func shutdownReason(ctx context.Context, err error) string {
	var sig signalCause
	if errors.As(context.Cause(ctx), &sig) {
		return sig.name
	}
	if err != nil {
		return "ERROR"
	}
	return "UNKNOWN"
}

func formatLevels(levels [2]bool) string {
	return fmt.Sprintf("LEVEL1: %s, LEVEL2: %s", state.Level(levels[0]), state.Level(levels[1]))
}

// pi-helper exports the network state into our environment.
func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

func trackerConfig(cfg config.Config) status.Config {
	return status.Config{
		Board:         cfg.Board,
		IntervalMs:    cfg.Interval.Milliseconds(),
		TachWindow:    cfg.TachWindow,
		FanMinCelsius: cfg.Policy.FanMinCelsius,
		FanMaxCelsius: cfg.Policy.FanMaxCelsius,
		Broker:        cfg.Broker,
		HTTPAddr:      cfg.HTTPAddr,
		CSVDir:        cfg.CSVDir,
	}
}

func run(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	if err := os.MkdirAll(cfg.CSVDir, 0o755); err != nil {
		return fmt.Errorf("csv dir: %w", err)
	}
	lock := flock.New(filepath.Join(cfg.CSVDir, lockName))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("another greenhouse is already running (%s is locked)", lock.Path())
	}
	defer lock.Unlock()

	hw, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := hw.Close(); err != nil {
			log.WithError(err).Error("release hardware")
		}
	}()

	startTime := time.Now()
	shared := state.New()
	tracker := status.NewTracker(startTime, trackerConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	m := metrics.New()

	sink := csvlog.New(controller.Columns...)
	defer sink.Close()
	rotator := rotate.New(sink, cfg.CSVDir, time.Local)
	rotator.OnRotate = tracker.SetCSVPath
	if err := rotator.Start(); err != nil {
		return err
	}
	defer rotator.Stop()

	water := monitor.NewWaterLevel(hw.water, cfg.Pins.WaterLevel[:], shared)
	tach, err := monitor.NewTachometer(hw.tach, cfg.Pins.Tach[0], cfg.TachWindow, shared)
	if err != nil {
		return err
	}

	ctrlCfg := controller.Config{
		Sensors:        hw.sensors,
		Outputs:        hw.outputs,
		Pumps:          cfg.Pins.Pumps,
		FanRelay:       cfg.Pins.FanRelay,
		Fan:            hw.fan,
		State:          shared,
		Sink:           sink,
		Tracker:        tracker,
		Metrics:        m,
		Policy:         cfg.Policy,
		AverageSamples: cfg.AverageSamples,
		Interval:       cfg.Interval,
	}
	var publisher *mqtt.RealPublisher
	if cfg.Broker != "" {
		publisher = mqtt.NewRealPublisher(cfg.Broker, cfg.BufferSize)
		defer publisher.Close()
		ctrlCfg.Publisher = publisher
		publishSystem(publisher, tracker, "STARTUP", "")
	}
	ctrl, err := controller.New(ctrlCfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case s := <-sigCh:
			log.Infof("received %v, shutting down", s)
			cancel(signalCause{name: signalName(s)})
		case <-ctx.Done():
		}
	}()

	// Only the control loop can stop the group. A monitor that fails leaves
	// its readings stale and the loop keeps driving the actuators.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return monitor.Supervise(gctx, "water", water) })
	g.Go(func() error { return monitor.Supervise(gctx, "tach", tach) })
	g.Go(func() error { return task("control", ctrl.Run(gctx)) })

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, m.Handler())
		g.Go(func() error {
			log.Infof("http status server listening on %s", cfg.HTTPAddr)
			if err := srv.Run(gctx, nil); err != nil {
				log.WithError(err).Error("http server")
			}
			return nil
		})
	}

	log.WithFields(log.Fields{
		"board":    cfg.Board,
		"interval": cfg.Interval,
		"csv_dir":  cfg.CSVDir,
		"broker":   cfg.Broker,
	}).Info("started")

	err = g.Wait()
	if publisher != nil {
		publishSystem(publisher, tracker, "SHUTDOWN", shutdownReason(ctx, err))
	}
	log.Infof("stopped after %d ticks", tracker.Snapshot().Ticks)
	return err
}

// task logs the control loop's failure and passes it on so the group stops.
func task(name string, err error) error {
	if err != nil {
		log.WithField("task", name).WithError(err).Error("task failed")
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func publishSystem(p *mqtt.RealPublisher, tracker *status.Tracker, event, reason string) {
	tracker.SetMQTTConnected(p.IsConnected())
	snap := tracker.Snapshot()
	err := p.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		log.WithError(err).Warnf("publish %s event", event)
		return
	}
	log.Infof("published %s event", event)
}
