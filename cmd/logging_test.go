// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{" warn ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := parseLogLevel(tt.name)
		require.NoError(t, err, "level %q", tt.name)
		assert.Equal(t, tt.want, got, "level %q", tt.name)
	}

	_, err := parseLogLevel("loud")
	assert.Error(t, err)
}

func TestNewLogger_FiltersByLevel(t *testing.T) {
	var out bytes.Buffer
	l := newLogger(&out, zerolog.WarnLevel, true)

	l.Info().Msg("quiet")
	assert.Empty(t, out.String())

	l.Warn().Str("port", "/dev/ttyUSB0").Msg("loud")
	assert.Contains(t, out.String(), "loud")
	assert.Contains(t, out.String(), "port=/dev/ttyUSB0")
	assert.Contains(t, out.String(), "app=ibuscope")
}

func TestMuteLogging(t *testing.T) {
	var out bytes.Buffer
	saved := logger
	t.Cleanup(func() { logger = saved })

	logger = newLogger(&out, zerolog.DebugLevel, true)
	restore := muteLogging()
	logger.Error().Msg("hidden")
	assert.Empty(t, out.String())

	restore()
	logger.Error().Msg("shown")
	assert.Contains(t, out.String(), "shown")
}
