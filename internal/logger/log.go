// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package logger

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps a slog.Logger so that all geotrack components share a single, leveled log output.
type Logger struct {
	*slog.Logger
}

// New returns a Logger writing to stderr at the given level.
func New(level slog.Level) *Logger {
	return NewLogger(level)
}

// NewLogger returns a Logger at the given level. If no writer is given, the logger writes to stderr,
// otherwise all given writers receive the log output.
func NewLogger(level slog.Level, writers ...io.Writer) *Logger {
	var output io.Writer = os.Stderr
	switch len(writers) {
	case 0:
	case 1:
		output = writers[0]
	default:
		output = io.MultiWriter(writers...)
	}
	return &Logger{slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: level}))}
}

// Err returns a slog attribute for the given error.
func Err(err error) slog.Attr {
	return slog.Any("error", err)
}
