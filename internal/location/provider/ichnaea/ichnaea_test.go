// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package ichnaea

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	stdhttp "net/http"
	"os"
	"strings"
	"testing"
	"testing/synctest"
	"time"

	"github.com/wneessen/geotrack/internal/geosample"
	"github.com/wneessen/geotrack/internal/http"
	"github.com/wneessen/geotrack/internal/location"
	"github.com/wneessen/geotrack/internal/logger"
	"github.com/wneessen/geotrack/internal/testhelper"
	"github.com/wneessen/geotrack/internal/vartype"
)

const testFile = "../../../../testdata/beacondb.json"

func testLogger() *logger.Logger {
	return logger.NewLogger(slog.LevelDebug, io.Discard)
}

type fakeScanner struct {
	aps []WirelessNetwork
	err error
}

func (f *fakeScanner) AccessPoints() ([]WirelessNetwork, error) {
	return f.aps, f.err
}

func newTestProvider(t *testing.T, fn func(*stdhttp.Request) (*stdhttp.Response, error)) *Provider {
	t.Helper()
	client := http.New(testLogger())
	client.Transport = testhelper.MockRoundTripper{Fn: fn}
	provider, err := New(testLogger(), client, testhelper.TestOnlineAPIURL, time.Minute)
	if err != nil {
		t.Fatalf("failed to create provider: %s", err)
	}
	provider.wlan = nil
	return provider
}

func TestNew(t *testing.T) {
	t.Run("defaults are applied", func(t *testing.T) {
		provider, err := New(testLogger(), http.New(testLogger()), "", 0)
		if err != nil {
			t.Fatalf("failed to create provider: %s", err)
		}
		if provider.endpoint != DefaultEndpoint {
			t.Errorf("expected endpoint to be %s, got %s", DefaultEndpoint, provider.endpoint)
		}
		if provider.period != DefaultPeriod {
			t.Errorf("expected period to be %s, got %s", DefaultPeriod, provider.period)
		}
		if !strings.EqualFold(provider.Name(), name) {
			t.Errorf("expected provider name to be %s, got %s", name, provider.Name())
		}
	})
	t.Run("missing http client fails", func(t *testing.T) {
		if _, err := New(testLogger(), nil, "", 0); err == nil {
			t.Fatal("expected error for missing http client")
		}
	})
}

func TestProvider_locate(t *testing.T) {
	t.Run("API result is converted", func(t *testing.T) {
		var sent struct {
			ConsiderIP   bool              `json:"considerIp"`
			Accesspoints []WirelessNetwork `json:"wifiAccessPoints"`
		}
		provider := newTestProvider(t, func(req *stdhttp.Request) (*stdhttp.Response, error) {
			if req.Method != stdhttp.MethodPost {
				t.Errorf("expected POST request, got %s", req.Method)
			}
			if err := json.NewDecoder(req.Body).Decode(&sent); err != nil {
				t.Errorf("failed to decode request body: %s", err)
			}
			data, err := os.Open(testFile)
			if err != nil {
				t.Fatalf("failed to open JSON response file: %s", err)
			}
			return &stdhttp.Response{StatusCode: 200, Body: data, Header: make(stdhttp.Header)}, nil
		})
		provider.aps = []WirelessNetwork{{MACAddress: "00:11:22:33:44:55", SignalStrength: -60}}

		raw, err := provider.locate(t.Context())
		if err != nil {
			t.Fatalf("failed to locate: %s", err)
		}
		if !sent.ConsiderIP {
			t.Error("expected considerIp to be set")
		}
		if len(sent.Accesspoints) != 1 || sent.Accesspoints[0].MACAddress != "00:11:22:33:44:55" {
			t.Errorf("expected access point list to be sent, got %+v", sent.Accesspoints)
		}
		if raw.Latitude.Value() != 40.7185 || raw.Longitude.Value() != -74.0025 {
			t.Errorf("unexpected coordinates: %f/%f", raw.Latitude.Value(), raw.Longitude.Value())
		}
		if raw.Accuracy.Value() != 2000 {
			t.Errorf("expected accuracy to be 2000, got %f", raw.Accuracy.Value())
		}
		if raw.Source != name {
			t.Errorf("expected source to be %s, got %s", name, raw.Source)
		}
		if _, err = geosample.Normalize(raw); err != nil {
			t.Errorf("expected result to normalize, got %s", err)
		}
	})
	t.Run("error status is returned", func(t *testing.T) {
		provider := newTestProvider(t, func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return &stdhttp.Response{
				StatusCode: 404, Status: "404 Not Found",
				Body: io.NopCloser(strings.NewReader(`{"error":"not found"}`)), Header: make(stdhttp.Header),
			}, nil
		})
		_, err := provider.locate(t.Context())
		var statusErr *http.StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("expected status error, got %v", err)
		}
		if errorCode(err) != location.PositionUnavailable {
			t.Errorf("expected not found to be position unavailable, got %s", errorCode(err))
		}
	})
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want location.ErrorCode
	}{
		{"unauthorized", &http.StatusError{StatusCode: 401}, location.PermissionDenied},
		{"forbidden", &http.StatusError{StatusCode: 403}, location.PermissionDenied},
		{"not found", &http.StatusError{StatusCode: 404}, location.PositionUnavailable},
		{"server error", &http.StatusError{StatusCode: 500}, location.PositionUnavailable},
		{"deadline", context.DeadlineExceeded, location.Timeout},
		{"other", errors.New("boom"), location.PositionUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := errorCode(tc.err); got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestProvider_Watch(t *testing.T) {
	t.Run("locations are looked up periodically", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			provider := newTestProvider(t, nil)
			calls := 0
			provider.locateFn = func(context.Context) (geosample.Raw, error) {
				calls++
				if calls == 2 {
					return geosample.Raw{}, errors.New("lookup failed")
				}
				return geosample.Raw{
					Latitude:  vartype.NewVariable(float64(calls)),
					Longitude: vartype.NewVariable(7.0),
					Accuracy:  vartype.NewVariable(100.0),
				}, nil
			}

			updates := provider.Watch(ctx, location.WatchOptions{})
			first := <-updates
			if first.Err != nil || first.Raw.Latitude.Value() != 1 {
				t.Fatalf("unexpected first update: %+v", first)
			}
			second := <-updates
			var posErr *location.PositionError
			if !errors.As(second.Err, &posErr) || posErr.Code != location.PositionUnavailable {
				t.Fatalf("expected position unavailable error, got %v", second.Err)
			}
			third := <-updates
			if third.Err != nil || third.Raw.Latitude.Value() != 3 {
				t.Fatalf("unexpected third update: %+v", third)
			}

			cancel()
			synctest.Wait()
			if _, ok := <-updates; ok {
				t.Error("expected stream to be closed after cancellation")
			}
		})
	})
	t.Run("rejected API key ends the stream", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			provider := newTestProvider(t, nil)
			provider.locateFn = func(context.Context) (geosample.Raw, error) {
				return geosample.Raw{}, &http.StatusError{StatusCode: 401, Status: "401 Unauthorized"}
			}

			updates := provider.Watch(t.Context(), location.WatchOptions{})
			update := <-updates
			if !location.IsPermissionDenied(update.Err) {
				t.Fatalf("expected permission denied, got %v", update.Err)
			}
			if _, ok := <-updates; ok {
				t.Error("expected stream to be closed after permission denied")
			}
		})
	})
	t.Run("access points are refreshed in the background", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			provider := newTestProvider(t, nil)
			provider.wlan = &fakeScanner{aps: []WirelessNetwork{{MACAddress: "aa:bb:cc:dd:ee:ff"}}}
			seen := make(chan int, 1)
			provider.locateFn = func(context.Context) (geosample.Raw, error) {
				provider.apLock.RLock()
				seen <- len(provider.aps)
				provider.apLock.RUnlock()
				return geosample.Raw{}, errors.New("stop")
			}

			updates := provider.Watch(ctx, location.WatchOptions{})
			synctest.Wait()
			<-seen
			<-updates
			time.Sleep(provider.period)
			synctest.Wait()
			if n := <-seen; n != 1 {
				t.Errorf("expected 1 access point, got %d", n)
			}
			cancel()
		})
	})
}
