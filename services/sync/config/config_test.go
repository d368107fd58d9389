// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8087", cfg.Addr)
	assert.Equal(t, "./data/questgraph", cfg.DataDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 24*time.Hour, cfg.HistoryTTL)
	assert.Equal(t, 4, cfg.QueueWorkers)
	assert.Equal(t, 30*time.Second, cfg.PingInterval)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8087", cfg.Addr)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9999"
dataDir: /var/lib/questgraph
logLevel: debug
historyTTL: 48h
queueWorkers: 8
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, "/var/lib/questgraph", cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 48*time.Hour, cfg.HistoryTTL)
	assert.Equal(t, 8, cfg.QueueWorkers)
	// Untouched keys keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.PingInterval)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`addr: ":9999"`), 0600))

	t.Setenv("QUESTGRAPH_ADDR", ":7777")
	t.Setenv("QUESTGRAPH_QUEUE_WORKERS", "2")
	t.Setenv("QUESTGRAPH_HISTORY_TTL", "1h")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Addr)
	assert.Equal(t, 2, cfg.QueueWorkers)
	assert.Equal(t, time.Hour, cfg.HistoryTTL)
}

func TestEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("QUESTGRAPH_QUEUE_WORKERS", "lots")
	t.Setenv("QUESTGRAPH_HISTORY_TTL", "soon")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.QueueWorkers)
	assert.Equal(t, 24*time.Hour, cfg.HistoryTTL)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: [:::"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults pass", func(*Config) {}, false},
		{"empty addr", func(c *Config) { c.Addr = "" }, true},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, true},
		{"zero workers", func(c *Config) { c.QueueWorkers = 0 }, true},
		{"negative ttl", func(c *Config) { c.HistoryTTL = -time.Hour }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
