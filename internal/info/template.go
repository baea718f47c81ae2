// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package info

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/vorlif/humanize"
	"github.com/vorlif/spreak"
	"github.com/vorlif/spreak/localize"

	"github.com/wneessen/geotrack/internal/i18n"
	"github.com/wneessen/geotrack/internal/vartype"
)

// TemplateContext is the data the readout templates are executed with.
type TemplateContext struct {
	Longitude        float64
	Latitude         float64
	Accuracy         float64
	Altitude         vartype.VarFloat64
	AltitudeAccuracy vartype.VarFloat64
	Heading          vartype.VarFloat64
	Speed            vartype.VarFloat64
	Timestamp        time.Time
	Source           string

	// Compass is the device heading, independent of the direction of travel
	Compass     vartype.VarFloat64
	Recording   bool
	TrackPoints int
	SunriseTime time.Time
	SunsetTime  time.Time
}

type Templates struct {
	Text      *template.Template
	Tooltip   *template.Template
	localizer *spreak.Localizer
	humanizer *humanize.Humanizer
	width     int
}

var i18nVars = map[string]localize.MsgID{
	"altitude":  "Altitude",
	"heading":   "Heading",
	"speed":     "Speed",
	"compass":   "Compass",
	"recording": "Recording",
	"sunrise":   "Sunrise",
	"sunset":    "Sunset",
	"updated":   "Updated",
	"active":    "active",
	"off":       "off",
	"na":        "N/A",
	"nofix":     "My Location",
}

// labels are the keys rendered by the label function; their widest translation sets the padding.
var labels = []string{"altitude", "heading", "speed", "compass", "recording", "sunrise", "sunset", "updated"}

// NewTemplates parses the text and tooltip templates. A nil localizer renders English labels.
func NewTemplates(text, tooltip string, loc *spreak.Localizer) (*Templates, error) {
	tpls := &Templates{
		localizer: loc,
		humanizer: i18n.Humanizer(loc),
	}
	for _, key := range labels {
		tpls.width = max(tpls.width, runewidth.StringWidth(tpls.loc(key)))
	}

	tpl, err := template.New("text").Funcs(tpls.templateFuncMap()).Parse(text)
	if err != nil {
		return tpls, fmt.Errorf("failed to parse text template: %w", err)
	}
	tpls.Text = tpl

	tpl, err = template.New("tooltip").Funcs(tpls.templateFuncMap()).Parse(tooltip)
	if err != nil {
		return tpls, fmt.Errorf("failed to parse tooltip template: %w", err)
	}
	tpls.Tooltip = tpl

	return tpls, nil
}

func (t *Templates) templateFuncMap() template.FuncMap {
	return template.FuncMap{
		"timeFormat":  timeFormat,
		"naturalTime": t.naturalTime,
		"floatFormat": floatFormat,
		"num":         num,
		"optional":    t.optional,
		"label":       t.label,
		"loc":         t.loc,
		"na":          func() string { return t.loc("na") },
		"lc":          strings.ToLower,
		"uc":          strings.ToUpper,
	}
}

func (t *Templates) loc(val string) string {
	raw, ok := i18nVars[strings.ToLower(val)]
	if !ok {
		return val
	}
	if t.localizer == nil {
		return raw
	}
	return t.localizer.Get(raw)
}

// label returns the localized label followed by a colon, padded to the widest label.
func (t *Templates) label(key string) string {
	return runewidth.FillRight(t.loc(key)+":", t.width+1)
}

// optional formats a known value with precision and suffix, or N/A for an unknown one.
func (t *Templates) optional(val vartype.VarFloat64, precision int, suffix string) string {
	v, ok := val.Get()
	if !ok {
		return t.loc("na")
	}
	return floatFormat(v, precision) + suffix
}

func (t *Templates) naturalTime(val time.Time) string {
	if val.IsZero() {
		return t.loc("na")
	}
	return t.humanizer.NaturalTime(val)
}

func timeFormat(val time.Time, fmt string) string {
	if val.IsZero() {
		return "--:--"
	}
	return val.Local().Format(fmt)
}

func floatFormat(val float64, precision int) string {
	return strconv.FormatFloat(val, 'f', precision, 64)
}

// num formats val with the least number of digits that represent it.
func num(val float64) string {
	if math.IsInf(val, 0) || math.IsNaN(val) {
		return "?"
	}
	return strconv.FormatFloat(val, 'f', -1, 64)
}
