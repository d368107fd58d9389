// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for QuestGraph components.
//
// Built on Go's standard library slog package with two destinations:
// stderr (default, text format, Unix CLI convention) and an optional
// log file per service per day. A zero-value Config gives Info+ text on
// stderr.
//
// # Basic Usage
//
//	logger := logging.Default()
//	logger.Info("starting sync service", "addr", addr)
//
// # File Logging
//
//	logger, err := logging.New(logging.Config{
//	    Level:   logging.LevelDebug,
//	    LogDir:  "/var/log/questgraph",
//	    Service: "sync",
//	})
//	defer logger.Close()
//
// # Security Considerations
//
// This package does NOT automatically redact sensitive data. Callers
// must ensure tokens and secrets are not logged.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Level represents log severity, ordered Debug < Info < Warn < Error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
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

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps a case-insensitive level name to a Level, defaulting
// to Info for unrecognized input.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Config configures Logger behavior. The zero value writes Info+ text
// to stderr.
type Config struct {
	// Level is the minimum level; lower messages are discarded.
	Level Level

	// LogDir enables file logging when set. The file is named
	// "{Service}_{YYYY-MM-DD}.log" in JSON format; the directory is
	// created with 0750 permissions.
	LogDir string

	// Service is attached to every entry as the "service" attribute.
	Service string

	// JSON switches output to JSON for all destinations.
	JSON bool

	// Quiet disables stderr output (file/daemon-only logging).
	Quiet bool
}

// Logger wraps slog.Logger with file lifecycle management.
type Logger struct {
	*slog.Logger
	file *os.File
}

// Default returns a stderr-only Logger at Info level.
func Default() *Logger {
	l, _ := New(Config{})
	return l
}

// New creates a Logger from cfg. The error is non-nil only when file
// logging was requested and the file cannot be opened.
func New(cfg Config) (*Logger, error) {
	var writers []io.Writer
	var file *os.File

	if !cfg.Quiet {
		writers = append(writers, os.Stderr)
	}
	if cfg.LogDir != "" {
		dir := expandHome(cfg.LogDir)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create log directory %s: %w", dir, err)
		}
		name := fmt.Sprintf("%s_%s.log", cfg.Service, time.Now().Format("2006-01-02"))
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		file = f
		writers = append(writers, f)
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	opts := &slog.HandlerOptions{Level: cfg.Level.toSlogLevel()}
	out := io.MultiWriter(writers...)

	var handler slog.Handler
	if cfg.JSON || (cfg.Quiet && file != nil) {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With(slog.String("service", cfg.Service))
	}
	return &Logger{Logger: logger, file: file}, nil
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
