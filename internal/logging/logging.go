// Copyright (c) 2026 Cilo Authors
// SPDX-License-Identifier: MIT
// See LICENSES/MIT.txt for full license text

// Package logging provides a small leveled wrapper around the standard
// library's log package, writing to stderr by default or to a file under a
// configured LogDirectory.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// Level controls which messages are emitted.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger is a minimal leveled logger. Build one with New or NewForDirectory;
// the zero value has no destination and is not usable.
type Logger struct {
	level  Level
	prefix string
	std    *log.Logger
}

// New creates a Logger writing to w with the given prefix (typically a
// component name), defaulting to LevelInfo.
func New(w io.Writer, prefix string) *Logger {
	return &Logger{
		level:  LevelInfo,
		prefix: prefix,
		std:    log.New(w, "", log.LstdFlags),
	}
}

// NewForDirectory opens (creating if necessary) "<dir>/<fileName>" for append
// and returns a Logger writing to it. If dir is empty, logs go to stderr.
func NewForDirectory(dir, fileName, prefix string) (*Logger, error) {
	if dir == "" {
		return New(os.Stderr, prefix), nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, fileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return New(f, prefix), nil
}

// SetLevel changes the minimum emitted level.
func (l *Logger) SetLevel(level Level) { l.level = level }

func (l *Logger) log(level Level, format string, args ...any) {
	if level < l.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if l.prefix != "" {
		l.std.Printf("[%s] %s: %s", level, l.prefix, msg)
	} else {
		l.std.Printf("[%s] %s", level, msg)
	}
}

func (l *Logger) Debug(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...any) { l.log(LevelError, format, args...) }

// With returns a child Logger sharing the same destination but with a
// sub-scoped prefix, e.g. a per-request identifier.
func (l *Logger) With(suffix string) *Logger {
	prefix := suffix
	if l.prefix != "" {
		prefix = l.prefix + " " + suffix
	}
	return &Logger{level: l.level, prefix: prefix, std: l.std}
}
