// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package ichnaea locates the device through nearby WiFi access points and an Ichnaea compatible
// geolocation API like beaconDB.
package ichnaea

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	stdhttp "net/http"
	"strings"
	"sync"
	"time"

	"github.com/mdlayher/wifi"

	"github.com/wneessen/geotrack/internal/geosample"
	"github.com/wneessen/geotrack/internal/http"
	"github.com/wneessen/geotrack/internal/location"
	"github.com/wneessen/geotrack/internal/logger"
	"github.com/wneessen/geotrack/internal/vartype"
)

const (
	DefaultEndpoint = "https://api.beacondb.net/v1/geolocate"
	DefaultPeriod   = time.Minute * 5

	lookupTimeout = time.Second * 5
	wifiScanTime  = time.Minute * 2
	name          = "ichnaea"
)

// APIResult is the response of the geolocate endpoint.
type APIResult struct {
	Location struct {
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
}

// WirelessNetwork is an access point as sent to the geolocate endpoint.
type WirelessNetwork struct {
	LastSeen       int64  `json:"age"`
	MACAddress     string `json:"macAddress"`
	SignalStrength int32  `json:"signalStrength"`
}

// scanner lists the access points in range.
type scanner interface {
	AccessPoints() ([]WirelessNetwork, error)
}

// Provider periodically looks up the device location.
type Provider struct {
	logger   *logger.Logger
	name     string
	http     *http.Client
	endpoint string
	period   time.Duration
	wlan     scanner
	locateFn func(ctx context.Context) (geosample.Raw, error)

	apLock sync.RWMutex
	aps    []WirelessNetwork
}

// New returns a Provider that queries endpoint every period. Without WiFi support the lookup falls
// back to the IP address of the request.
func New(log *logger.Logger, client *http.Client, endpoint string, period time.Duration) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if period <= 0 {
		period = DefaultPeriod
	}

	provider := &Provider{
		logger:   log,
		name:     name,
		http:     client,
		endpoint: endpoint,
		period:   period,
	}
	wlan, err := wifi.New()
	if err != nil {
		log.Warn("no WiFi support, locating by IP address only", logger.Err(err))
	} else {
		provider.wlan = &wifiScanner{client: wlan}
	}
	provider.locateFn = provider.locate
	return provider, nil
}

// Name returns the name of the provider.
func (p *Provider) Name() string {
	return p.name
}

// Watch implements location.Provider. A rejected API key ends the stream with a PermissionDenied
// error; every other failure is recoverable.
func (p *Provider) Watch(ctx context.Context, _ location.WatchOptions) <-chan location.Update {
	stream := location.NewStream()
	if p.wlan != nil {
		go p.monitorWifiAccessPoints(ctx)
	}

	go func() {
		defer stream.Close()
		firstRun := true

		for {
			if !firstRun {
				if !location.SleepOrDone(ctx, p.period) {
					return
				}
			}
			firstRun = false

			raw, err := p.locateFn(ctx)
			if err != nil {
				update := location.NewError(p.name, errorCode(err), err)
				if !stream.Send(ctx, update) {
					return
				}
				if location.IsPermissionDenied(update.Err) {
					return
				}
				continue
			}
			if !stream.Send(ctx, location.Update{Raw: raw}) {
				return
			}
		}
	}()
	return stream.C()
}

func (p *Provider) monitorWifiAccessPoints(ctx context.Context) {
	firstRun := true
	for {
		if !firstRun {
			if !location.SleepOrDone(ctx, wifiScanTime) {
				return
			}
		}
		firstRun = false

		list, err := p.wlan.AccessPoints()
		if err != nil {
			p.logger.Debug("failed to scan WiFi access points", logger.Err(err))
			continue
		}
		p.apLock.Lock()
		p.aps = list
		p.apLock.Unlock()
	}
}

func (p *Provider) locate(ctx context.Context) (geosample.Raw, error) {
	p.apLock.RLock()
	wifiList := p.aps
	p.apLock.RUnlock()

	type request struct {
		ConsiderIP   bool              `json:"considerIp"`
		Accesspoints []WirelessNetwork `json:"wifiAccessPoints,omitempty"`
	}
	req := request{
		ConsiderIP:   true,
		Accesspoints: wifiList,
	}
	bodyBuffer := bytes.NewBuffer(nil)
	if err := json.NewEncoder(bodyBuffer).Encode(req); err != nil {
		return geosample.Raw{}, fmt.Errorf("failed to encode wifi list to JSON: %w", err)
	}

	result := new(APIResult)
	if _, err := p.http.PostWithTimeout(ctx, p.endpoint, result, bodyBuffer,
		map[string]string{"Content-Type": "application/json"}, lookupTimeout); err != nil {
		return geosample.Raw{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}
	p.logger.Debug("located via geolocation API", slog.Int("access_points", len(wifiList)),
		slog.Float64("accuracy", result.Accuracy))

	return geosample.Raw{
		Latitude:  vartype.NewVariable(result.Location.Latitude),
		Longitude: vartype.NewVariable(result.Location.Longitude),
		Accuracy:  vartype.NewVariable(result.Accuracy),
		Timestamp: time.Now(),
		Source:    p.name,
	}, nil
}

// errorCode maps a lookup failure to a position error code.
func errorCode(err error) location.ErrorCode {
	var statusErr *http.StatusError
	switch {
	case errors.As(err, &statusErr) && (statusErr.StatusCode == stdhttp.StatusUnauthorized ||
		statusErr.StatusCode == stdhttp.StatusForbidden):
		return location.PermissionDenied
	case errors.Is(err, context.DeadlineExceeded):
		return location.Timeout
	default:
		return location.PositionUnavailable
	}
}

type wifiScanner struct {
	client *wifi.Client
}

func (w *wifiScanner) AccessPoints() ([]WirelessNetwork, error) {
	var checkIfaces []*wifi.Interface
	var list []WirelessNetwork

	ifaces, err := w.client.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Type != wifi.InterfaceTypeStation {
			continue
		}
		checkIfaces = append(checkIfaces, iface)
	}

	for _, iface := range checkIfaces {
		aps, err := w.client.AccessPoints(iface)
		if err != nil {
			continue
		}
		for _, ap := range aps {
			// Access points opting out of location services are never sent
			if ap.SSID == "" || ap.SSID[0] == '\x00' || strings.HasSuffix(ap.SSID, "_nomap") {
				continue
			}
			list = append(list, WirelessNetwork{
				SignalStrength: ap.Signal / 100,
				MACAddress:     ap.BSSID.String(),
				LastSeen:       ap.LastSeen.Milliseconds(),
			})
		}
	}
	return list, nil
}
