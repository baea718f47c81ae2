// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"errors"
	"log/slog"

	"github.com/wneessen/geotrack/internal/compass"
	compassgpsd "github.com/wneessen/geotrack/internal/compass/provider/gpsd"
	"github.com/wneessen/geotrack/internal/compass/provider/sensorproxy"
	"github.com/wneessen/geotrack/internal/config"
	"github.com/wneessen/geotrack/internal/http"
	"github.com/wneessen/geotrack/internal/location"
	"github.com/wneessen/geotrack/internal/location/provider/geolocation_file"
	"github.com/wneessen/geotrack/internal/location/provider/gpsd"
	"github.com/wneessen/geotrack/internal/location/provider/gpspoll"
	"github.com/wneessen/geotrack/internal/location/provider/ichnaea"
	"github.com/wneessen/geotrack/internal/logger"
)

var ErrNoProviders = errors.New("no location providers enabled")

func (s *Service) selectLocationProviders() ([]location.Provider, error) {
	conf := s.config.Location
	var providers []location.Provider

	if !conf.File.Disable {
		providers = append(providers, geolocation_file.New(conf.File.Path, conf.File.Interval))
	}

	if !conf.GPSD.Disable {
		if conf.GPSD.Poll {
			providers = append(providers, gpspoll.New(conf.GPSD.Host, conf.GPSD.Port, conf.GPSD.PollInterval))
		} else {
			providers = append(providers, gpsd.New(s.logger, conf.GPSD.Host, conf.GPSD.Port))
		}
	}

	if !conf.Ichnaea.Disable {
		mls, err := ichnaea.New(s.logger, http.New(s.logger), conf.Ichnaea.Endpoint, conf.Ichnaea.Interval)
		if err != nil {
			s.logger.Error("failed to create ichnaea provider", logger.Err(err))
		} else {
			providers = append(providers, mls)
		}
	}

	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	s.logger.Debug("location providers enabled", slog.Any("providers", providerNames(providers)))
	return providers, nil
}

func (s *Service) selectCompassPlatform() compass.Platform {
	switch s.config.Compass.Provider {
	case config.CompassSensorProxy:
		return sensorproxy.New(s.logger)
	case config.CompassGPSD:
		return compassgpsd.New(s.logger, s.config.Location.GPSD.Host, s.config.Location.GPSD.Port)
	default:
		return nil
	}
}

func providerNames(providers []location.Provider) []string {
	names := make([]string, 0, len(providers))
	for _, provider := range providers {
		names = append(names, provider.Name())
	}
	return names
}
