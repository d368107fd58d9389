// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads sync service configuration from an optional YAML
// file with environment-variable overrides. Precedence: defaults <
// file < environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// configValidate is the validator instance for Config.
var configValidate = validator.New()

// Config is the full sync service configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr" validate:"required"`

	// DataDir is the BadgerDB directory.
	DataDir string `yaml:"dataDir" validate:"required"`

	// LogLevel is debug|info|warn|error.
	LogLevel string `yaml:"logLevel"`

	// LogDir enables file logging when set.
	LogDir string `yaml:"logDir"`

	// HistoryTTL bounds per-save history snapshots.
	HistoryTTL time.Duration `yaml:"historyTTL" validate:"gt=0"`

	// QueueWorkers bounds concurrent queue task execution.
	QueueWorkers int `yaml:"queueWorkers" validate:"gte=1"`

	// PingInterval is the websocket liveness ping cadence.
	PingInterval time.Duration `yaml:"pingInterval"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Addr:         ":8087",
		DataDir:      "./data/questgraph",
		LogLevel:     "info",
		HistoryTTL:   24 * time.Hour,
		QueueWorkers: 4,
		PingInterval: 30 * time.Second,
	}
}

// Load builds a Config: defaults, then the YAML file at path (skipped
// when path is empty or the file does not exist), then QUESTGRAPH_*
// environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// A missing file is fine; env and defaults still apply.
		case err != nil:
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("QUESTGRAPH_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("QUESTGRAPH_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("QUESTGRAPH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("QUESTGRAPH_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv("QUESTGRAPH_HISTORY_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.HistoryTTL = d
		}
	}
	if v := os.Getenv("QUESTGRAPH_QUEUE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueueWorkers = n
		}
	}
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
