// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chuli1122/chuli-home-sub001/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zap.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zap.ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, zap.InfoLevel, ParseLevel("bogus"))
}

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chuli.log")
	log, err := New(Options{Level: "info", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("page loaded", zap.Int("count", 30))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "page loaded", rec["message"])
	assert.Equal(t, "INFO", rec["level"])
	assert.EqualValues(t, 30, rec["count"])
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "debug", Console: true, ConsoleOut: &buf})
	require.NoError(t, err)

	log.Debug("stream chunk")
	assert.Contains(t, buf.String(), "stream chunk")
}

func TestNewNop(t *testing.T) {
	log, err := New(Options{})
	require.NoError(t, err)
	assert.NotPanics(t, func() { log.Info("nothing") })
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.DataDir = "/data"
	cfg.Log.Level = "warn"

	opts, err := FromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data", "chuli.log"), opts.File)
	assert.Equal(t, "warn", opts.Level)
	assert.Equal(t, 10, opts.MaxSizeMB)
}

func TestNamedNil(t *testing.T) {
	assert.NotNil(t, Named(nil, "x"))
}
