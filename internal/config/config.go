// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kkyr/fig"
)

const (
	configEnv = "GEOTRACK"

	DefaultTextTpl    = "Long: {{floatFormat .Longitude 6}} | Lat: {{floatFormat .Latitude 6}} (±{{num .Accuracy}} m)"
	DefaultTooltipTpl = "{{label \"altitude\"}} {{if .Altitude.IsSet}}{{floatFormat .Altitude.Value 2}} m" +
		"{{if .AltitudeAccuracy.IsSet}} (±{{num .AltitudeAccuracy.Value}} m){{end}}{{else}}{{na}}{{end}}\n" +
		"{{label \"heading\"}} {{optional .Heading 2 \"°\"}}\n" +
		"{{label \"speed\"}} {{optional .Speed 2 \" m/s\"}}\n" +
		"{{label \"compass\"}} {{optional .Compass 0 \"°\"}}\n" +
		"{{label \"recording\"}} {{if .Recording}}{{loc \"active\"}} ({{.TrackPoints}}){{else}}{{loc \"off\"}}{{end}}\n" +
		"{{label \"sunrise\"}} {{timeFormat .SunriseTime \"15:04\"}}\n" +
		"{{label \"sunset\"}} {{timeFormat .SunsetTime \"15:04\"}}\n" +
		"{{label \"updated\"}} {{naturalTime .Timestamp}} ({{.Source}})"

	CompassSensorProxy = "sensorproxy"
	CompassGPSD        = "gpsd"
	CompassNone        = "none"
)

// Config represents the application's configuration structure.
type Config struct {
	Locale   string     `fig:"locale"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	Location struct {
		HighAccuracy bool `fig:"high_accuracy"`

		GPSD struct {
			Disable bool   `fig:"disable"`
			Host    string `fig:"host" default:"localhost"`
			Port    string `fig:"port" default:"2947"`
			// Poll queries a single fix per interval instead of streaming every report
			Poll         bool          `fig:"poll"`
			PollInterval time.Duration `fig:"poll_interval" default:"30s"`
		} `fig:"gpsd"`

		File struct {
			Disable  bool          `fig:"disable"`
			Path     string        `fig:"path"`
			Interval time.Duration `fig:"interval" default:"2m"`
		} `fig:"file"`

		Ichnaea struct {
			Disable  bool          `fig:"disable"`
			Endpoint string        `fig:"endpoint" default:"https://api.beacondb.net/v1/geolocate"`
			Interval time.Duration `fig:"interval" default:"5m"`
		} `fig:"ichnaea"`
	} `fig:"location"`

	Compass struct {
		// Allowed values: sensorproxy, gpsd, none
		Provider string `fig:"provider" default:"sensorproxy"`
	} `fig:"compass"`

	Map struct {
		// Output is the file or FIFO the GeoJSON frames are written to. Empty disables the output.
		Output      string        `fig:"output"`
		Width       int           `fig:"width" default:"800"`
		Height      int           `fig:"height" default:"600"`
		Padding     int           `fig:"padding" default:"40"`
		Vertices    int           `fig:"vertices" default:"64"`
		MaxZoom     float64       `fig:"max_zoom" default:"18"`
		FitDuration time.Duration `fig:"fit_duration" default:"500ms"`
	} `fig:"map"`

	Intervals struct {
		Output time.Duration `fig:"output" default:"30s"`
	} `fig:"intervals"`

	Templates struct {
		Text    string `fig:"text"`
		Tooltip string `fig:"tooltip"`
	} `fig:"templates"`

	Notifications struct {
		Disable bool   `fig:"disable"`
		Icon    string `fig:"icon" default:"find-location"`
	} `fig:"notifications"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read Config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func (c *Config) Validate() error {
	switch c.Compass.Provider {
	case CompassSensorProxy, CompassGPSD, CompassNone:
	default:
		return fmt.Errorf("invalid compass provider: %s", c.Compass.Provider)
	}
	if c.Map.Width <= 0 || c.Map.Height <= 0 {
		return fmt.Errorf("invalid map size: %dx%d", c.Map.Width, c.Map.Height)
	}
	if c.Map.Padding < 0 || 2*c.Map.Padding >= min(c.Map.Width, c.Map.Height) {
		return fmt.Errorf("invalid map padding: %d", c.Map.Padding)
	}
	if c.Map.Vertices < 3 {
		return fmt.Errorf("invalid number of accuracy circle vertices: %d", c.Map.Vertices)
	}
	if c.Map.MaxZoom < 0 || c.Map.MaxZoom > 24 {
		return fmt.Errorf("invalid max zoom: %g", c.Map.MaxZoom)
	}
	if c.Map.FitDuration < 0 {
		return fmt.Errorf("invalid fit duration: %s", c.Map.FitDuration)
	}
	if c.Intervals.Output <= 0 {
		return fmt.Errorf("invalid output interval: %s", c.Intervals.Output)
	}
	if c.Locale == "" {
		c.Locale = getLocale()
	}
	if c.Templates.Text == "" {
		c.Templates.Text = DefaultTextTpl
	}
	if c.Templates.Tooltip == "" {
		c.Templates.Tooltip = DefaultTooltipTpl
	}
	if c.Location.File.Path == "" {
		home, _ := os.UserHomeDir()
		c.Location.File.Path = filepath.Join(home, ".config", "geotrack", "geolocation")
	}

	return nil
}

func getLocale() string {
	locale := os.Getenv("LC_MESSAGES")
	if idx := strings.Index(locale, "."); idx != -1 {
		lang := locale[:idx]
		return strings.ReplaceAll(lang, "_", "-")
	}
	return locale
}
