// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package service wires the location pipeline together and runs the session event loop.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/vorlif/spreak"

	"github.com/wneessen/geotrack/internal/broadcast"
	"github.com/wneessen/geotrack/internal/compass"
	"github.com/wneessen/geotrack/internal/config"
	"github.com/wneessen/geotrack/internal/fault"
	"github.com/wneessen/geotrack/internal/geosample"
	"github.com/wneessen/geotrack/internal/info"
	"github.com/wneessen/geotrack/internal/location"
	"github.com/wneessen/geotrack/internal/logger"
	"github.com/wneessen/geotrack/internal/mapview"
	"github.com/wneessen/geotrack/internal/marker"
	"github.com/wneessen/geotrack/internal/notify"
	"github.com/wneessen/geotrack/internal/recorder"
)

const (
	DesktopID = "geotrack"

	readoutJobName = "info_readout_job"
)

var ErrProvidersEnded = errors.New("all location providers ended")

type Service struct {
	config    *config.Config
	logger    *logger.Logger
	t         *spreak.Localizer
	reporter  *fault.Router
	scheduler gocron.Scheduler
	signals   signalSource

	providers   []location.Provider
	broadcaster *broadcast.Broadcaster
	recorder    *recorder.Recorder
	readout     *info.Readout
	canvas      *mapview.Canvas
	marker      *marker.Synchronizer
	heading     *compass.HeadingState
	negotiator  *compass.Negotiator

	mapOut     io.WriteCloser
	watchSleep bool
}

// New creates the service for conf. The readout is written to stdout.
func New(conf *config.Config, log *logger.Logger, t *spreak.Localizer) (*Service, error) {
	mapOut, err := openMapOutput(conf.Map.Output)
	if err != nil {
		return nil, err
	}
	service, err := newService(conf, log, t, os.Stdout, mapOut)
	if err != nil {
		if mapOut != nil {
			_ = mapOut.Close()
		}
		return nil, err
	}

	providers, err := service.selectLocationProviders()
	if err != nil {
		service.close()
		return nil, err
	}
	service.providers = providers
	service.watchSleep = true
	service.negotiator = compass.NewNegotiator(log, service.selectCompassPlatform(),
		compass.NewBinding(log, service.heading, service.canvas.Redraw), service.reporter)
	return service, nil
}

// newService builds the pipeline without location providers and compass platform.
func newService(conf *config.Config, log *logger.Logger, t *spreak.Localizer, out io.Writer,
	mapOut io.WriteCloser,
) (*Service, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	var notifier fault.Notifier
	if !conf.Notifications.Disable {
		notifier = notify.New(log, DesktopID, conf.Notifications.Icon)
	}

	tpls, err := info.NewTemplates(conf.Templates.Text, conf.Templates.Tooltip, t)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	service := &Service{
		config:    conf,
		logger:    log,
		t:         t,
		reporter:  fault.NewRouter(log, notifier),
		scheduler: scheduler,
		signals:   stdLibSignalSource{},
		heading:   &compass.HeadingState{},
		mapOut:    mapOut,
	}

	var frames io.Writer
	if mapOut != nil {
		frames = mapOut
	}
	service.canvas = mapview.NewCanvas(log, frames, service.heading, mapview.Options{
		Width:   conf.Map.Width,
		Height:  conf.Map.Height,
		Padding: conf.Map.Padding,
	})
	service.marker = marker.New(log, service.canvas, service.reporter, marker.Options{
		Vertices:    conf.Map.Vertices,
		MaxZoom:     conf.Map.MaxZoom,
		FitDuration: conf.Map.FitDuration,
	})
	service.recorder = recorder.New(log, service.onTrack)
	service.readout = info.New(log, out, tpls, service.heading, service.recorder)

	service.broadcaster, err = broadcast.New(log, service.reporter)
	if err != nil {
		return nil, fmt.Errorf("failed to create broadcaster: %w", err)
	}
	service.broadcaster.Subscribe("recorder", service.recorder)
	service.broadcaster.Subscribe("info", service.readout)
	service.broadcaster.Subscribe("marker", service.marker)

	return service, nil
}

// Run starts the location providers, the heading negotiation and the readout job and processes
// events until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if err := s.createScheduledJob(ctx, s.config.Intervals.Output, s.readout.Print, readoutJobName); err != nil {
		return err
	}
	s.scheduler.Start()
	if s.watchSleep {
		go s.monitorSleepResume(ctx)
	}

	recordCh := make(chan os.Signal, 1)
	locateCh := make(chan os.Signal, 1)
	s.signals.Notify(recordCh, syscall.SIGUSR1)
	s.signals.Notify(locateCh, syscall.SIGUSR2)
	defer s.signals.Stop(recordCh)
	defer s.signals.Stop(locateCh)

	s.negotiator.Start(ctx)
	s.readout.Print(ctx)

	opts := location.WatchOptions{HighAccuracy: s.config.Location.HighAccuracy}
	s.loop(ctx, location.Merge(ctx, s.logger, opts, s.providers...), recordCh, locateCh)

	s.close()
	return s.scheduler.Shutdown()
}

// loop is the single session goroutine. Every dispatch runs inside it.
func (s *Service) loop(ctx context.Context, updates <-chan location.Update, recordCh, locateCh <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				if ctx.Err() == nil {
					s.reporter.Report(&fault.CapabilityUnavailableError{Capability: fault.CapabilityLocation,
						Err: ErrProvidersEnded})
				}
				updates = nil
				continue
			}
			s.handleUpdate(ctx, update)
		case <-recordCh:
			s.Record(ctx)
		case <-locateCh:
			s.Locate()
		}
	}
}

// handleUpdate normalizes a location update and dispatches it to the observers.
func (s *Service) handleUpdate(ctx context.Context, update location.Update) {
	if update.Err != nil {
		var posErr *location.PositionError
		if errors.As(update.Err, &posErr) {
			s.reporter.Report(posErr.Fault(false))
			return
		}
		s.reporter.Report(update.Err)
		return
	}

	sample, err := geosample.Normalize(update.Raw)
	if err != nil {
		s.reporter.Report(err)
		return
	}
	s.logger.Debug("received location update", slog.Float64("lat", sample.Latitude),
		slog.Float64("lon", sample.Longitude), slog.Float64("accuracy", sample.AccuracyMeters),
		slog.String("source", sample.Source))
	s.broadcaster.Dispatch(ctx, sample)
}

// Record toggles the track recorder.
func (s *Service) Record(ctx context.Context) recorder.Mode {
	mode := s.recorder.Toggle()
	s.logger.Info("track recording toggled", slog.String("mode", mode.String()))
	s.readout.Print(ctx)
	return mode
}

// Locate fits the map to the current marker and continues a pending heading permission request.
func (s *Service) Locate() {
	s.negotiator.OnUserGesture()
	s.marker.Locate()
}

// onTrack receives finished tracks from the recorder.
func (s *Service) onTrack(track recorder.Track) {
	data, err := track.GeoJSON()
	if err != nil {
		s.logger.Error("failed to encode recorded track", logger.Err(err))
		return
	}
	s.logger.Info("track recorded", slog.Int("points", track.Summary.Points),
		slog.Float64("distance_m", track.Summary.DistanceM),
		slog.Duration("duration", track.Summary.Duration),
		slog.String("avg_speed_mps", track.Summary.AvgSpeed.String()),
		slog.String("geojson", string(data)))
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration, task func(context.Context),
	jobName string,
) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	return nil
}

func (s *Service) close() {
	s.canvas.Close()
	if s.mapOut == nil {
		return
	}
	if err := s.mapOut.Close(); err != nil {
		s.logger.Error("failed to close map output", logger.Err(err))
	}
}

// openMapOutput opens the GeoJSON frame output. A FIFO is opened read-write so that the open does
// not block until a reader appears.
func openMapOutput(path string) (io.WriteCloser, error) {
	if path == "" {
		return nil, nil
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open map output: %w", err)
	}
	return file, nil
}
