// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/ibuscope/pkg/ibus"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0 seconds"},
		{time.Second, "1 second"},
		{59 * time.Second, "59 seconds"},
		{61 * time.Second, "1 minute and 1 second"},
		{time.Hour, "1 hour"},
		{26*time.Hour + 3*time.Minute + 4*time.Second, "1 day, 2 hours, 3 minutes, and 4 seconds"},
		{1500 * time.Millisecond, "1 second"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatUptime(tt.d), "duration %v", tt.d)
	}
}

func update(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	updated, _ := m.Update(msg)
	next, ok := updated.(model)
	require.True(t, ok)
	return next
}

func TestModel_DecodeErrorsAfterSyncOnly(t *testing.T) {
	m := initialModel("test", ibus.RoleSensor, false, nil)

	m = update(t, m, serialDataMsg{at: time.Now(), decodeErr: ibus.ErrInvalidLength})
	assert.Equal(t, uint64(0), m.stats.ResyncBytes)
	assert.Empty(t, m.errorLog)

	m = update(t, m, syncMsg{invalidBytes: 1})
	m = update(t, m, serialDataMsg{at: time.Now(), decodeErr: ibus.ErrChecksumMismatch, synchronized: true})
	assert.True(t, m.synchronized)
	assert.Equal(t, uint64(1), m.stats.ChecksumErrors)
	require.Len(t, m.errorLog, 2)
	assert.Contains(t, m.errorLog[0].message, "skipping 1 invalid bytes")
	assert.True(t, m.errorLog[1].isError)
}

func TestModel_TracksMessages(t *testing.T) {
	m := initialModel("test", ibus.RoleMonitor, true, nil)
	now := time.Now()

	var channels ibus.SetChannels
	channels.Channels[0] = 1500
	for _, msg := range []ibus.Message{
		channels,
		ibus.ValueRequest{Address: 2},
		ibus.ValueRequest{Address: 2},
		ibus.TypeResponse{Address: 2, Sensor: ibus.SensorRPM, Width: ibus.WidthShort},
		ibus.ValueResponseShort{Address: 2, Value: 3000},
	} {
		m = update(t, m, serialDataMsg{at: now, msg: msg, synchronized: true, validationErrors: ibus.ValidateMessage(msg)})
	}

	require.NotNil(t, m.channels)
	assert.Equal(t, uint16(1500), m.channels.Channels[0])

	seen := m.sensors[2]
	require.NotNil(t, seen)
	assert.Equal(t, uint64(2), seen.polls)
	assert.True(t, seen.typed)
	assert.Equal(t, ibus.SensorRPM, seen.sensor)
	assert.True(t, seen.hasValue)
	assert.Equal(t, uint32(3000), seen.value)
	assert.Equal(t, now, seen.lastHeard)

	assert.Equal(t, uint64(5), m.stats.TotalFrames)
	assert.Len(t, m.errorLog, 5, "show-all logs every valid frame")
}

func TestModel_TickAddsDropped(t *testing.T) {
	var dropped uint64
	m := initialModel("test", ibus.RoleSensor, false, func() uint64 { return dropped })

	dropped = 7
	m = update(t, m, tickMsg(time.Now()))
	assert.Equal(t, uint64(7), m.stats.DroppedBytes)

	m = update(t, m, tickMsg(time.Now()))
	assert.Equal(t, uint64(7), m.stats.DroppedBytes, "no new drops")

	dropped = 10
	m = update(t, m, tickMsg(time.Now()))
	assert.Equal(t, uint64(10), m.stats.DroppedBytes)
}

func TestModel_ResetAndQuit(t *testing.T) {
	m := initialModel("test", ibus.RoleSensor, false, nil)
	m = update(t, m, serialDataMsg{at: time.Now(), msg: ibus.DiscoveryRequest{Address: 1}, synchronized: true})
	require.Equal(t, uint64(1), m.stats.TotalFrames)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	assert.Equal(t, uint64(0), m.stats.TotalFrames)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.True(t, updated.(model).quitting)
	assert.NotNil(t, cmd)
}

func TestFrameLine(t *testing.T) {
	line := frameLine(ibus.DiscoveryRequest{Address: 1})
	assert.Equal(t, "  Frame: "+ibus.FormatFrame([]byte{0x04, 0x81, 0x7A, 0xFF}), line)

	line = frameLine(ibus.SetChannels{})
	assert.True(t, strings.HasPrefix(line, "  Frame (re-encoded): "), line)
}

func TestWriteRecord(t *testing.T) {
	var out bytes.Buffer
	at := time.UnixMilli(1700000000123)

	require.NoError(t, writeRecord(&out, busEvent{at: at, decodeErr: ibus.ErrInvalidLength, synchronized: true}))
	assert.Zero(t, out.Len(), "decode errors are not recorded")

	msg := ibus.TypeResponse{Address: 4, Sensor: ibus.SensorTemperature, Width: ibus.WidthShort}
	require.NoError(t, writeRecord(&out, busEvent{at: at, msg: msg}))

	rec, err := ibus.UnmarshalRecord(out.Bytes())
	require.NoError(t, err)
	decoded, err := rec.Message()
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}
