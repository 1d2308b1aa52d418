// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/Thermoquad/ibuscope/pkg/ibus"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records writes and never yields data
type fakeConn struct {
	written  bytes.Buffer
	writeErr error
}

func (c *fakeConn) Read(p []byte) (int, error) { return 0, ErrConnectionClosed }

func (c *fakeConn) Write(p []byte) (int, error) {
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	return c.written.Write(p)
}

func (c *fakeConn) Close() error { return nil }

func testSensors(t *testing.T) *ibus.SensorSet {
	t.Helper()
	set := ibus.NewSensorSet()
	require.NoError(t, set.Add(ibus.Sensor{Address: 1, Type: ibus.SensorTemperature, Value: 650}))
	require.NoError(t, set.Add(ibus.Sensor{Address: 2, Type: ibus.SensorPressure, Value: 101325}))
	return set
}

func mustEncode(t *testing.T, m ibus.Message) []byte {
	t.Helper()
	frame, err := ibus.EncodeMessage(m)
	require.NoError(t, err)
	return frame
}

// requestFrame builds a 4-byte request frame for cmd at addr
func requestFrame(cmd ibus.Command, addr uint8) []byte {
	frame := []byte{0x04, byte(cmd) | addr}
	sum := ibus.ChecksumBytes(frame)
	return append(frame, byte(sum), byte(sum>>8))
}

func drainEvents(cm *connectionManager) []emulatorEvent {
	var out []emulatorEvent
	for {
		select {
		case ev := <-cm.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestConnectionManager_AnswersRequests(t *testing.T) {
	conn := &fakeConn{}
	cm := newConnectionManager(conn, "test", testSensors(t))
	stream := ibus.NewStream(256, ibus.RoleSensor)

	stream.Feed(requestFrame(ibus.CmdDiscover, 1))
	stream.Feed(requestFrame(ibus.CmdType, 1))
	stream.Feed(requestFrame(ibus.CmdValue, 2))
	stream.Feed(requestFrame(ibus.CmdValue, 9)) // nobody home
	require.Equal(t, 4, stream.Drain(cm.handler(stream, conn)))

	var want []byte
	want = append(want, mustEncode(t, ibus.DiscoveryResponse{Address: 1})...)
	want = append(want, mustEncode(t, ibus.TypeResponse{Address: 1, Sensor: ibus.SensorTemperature, Width: ibus.WidthShort})...)
	want = append(want, mustEncode(t, ibus.ValueResponseLong{Address: 2, Value: 101325})...)
	assert.Equal(t, want, conn.written.Bytes())

	events := drainEvents(cm)
	require.Len(t, events, 4)
	assert.Equal(t, ibus.DiscoveryResponse{Address: 1}, events[0].response)
	assert.Nil(t, events[3].response)
	assert.Equal(t, ibus.ValueRequest{Address: 9}, events[3].request)
	for _, ev := range events {
		assert.NoError(t, ev.writeErr)
		assert.True(t, ev.synchronized)
	}
}

func TestConnectionManager_UsesLatestValue(t *testing.T) {
	conn := &fakeConn{}
	sensors := testSensors(t)
	cm := newConnectionManager(conn, "test", sensors)
	stream := ibus.NewStream(256, ibus.RoleSensor)
	handler := cm.handler(stream, conn)

	stream.Feed(requestFrame(ibus.CmdValue, 1))
	stream.Drain(handler)
	require.NoError(t, sensors.SetValue(1, 700))
	stream.Feed(requestFrame(ibus.CmdValue, 1))
	stream.Drain(handler)

	var want []byte
	want = append(want, mustEncode(t, ibus.ValueResponseShort{Address: 1, Value: 650})...)
	want = append(want, mustEncode(t, ibus.ValueResponseShort{Address: 1, Value: 700})...)
	assert.Equal(t, want, conn.written.Bytes())
}

func TestConnectionManager_WriteError(t *testing.T) {
	conn := &fakeConn{writeErr: errors.New("port gone")}
	cm := newConnectionManager(conn, "test", testSensors(t))
	stream := ibus.NewStream(256, ibus.RoleSensor)

	stream.Feed(requestFrame(ibus.CmdType, 1))
	stream.Drain(cm.handler(stream, conn))

	events := drainEvents(cm)
	require.Len(t, events, 1)
	require.Error(t, events[0].writeErr)
	assert.Contains(t, events[0].writeErr.Error(), "TYPE_RESPONSE")
	assert.Contains(t, events[0].writeErr.Error(), "port gone")
}

func TestWriteResponse_ReusesBuffer(t *testing.T) {
	var out bytes.Buffer
	buf := make([]byte, 0, ibus.MaxLength)

	frame, err := writeResponse(&out, buf, ibus.ValueResponseShort{Address: 3, Value: 0x1234})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x06, 0xA3, 0x34, 0x12, 0x10, 0xFF}, frame)
	assert.Same(t, &buf[:1][0], &frame[0], "frame should reuse buf")

	_, err = writeResponse(&out, frame[:0], ibus.ValueRequest{Address: 3})
	assert.ErrorIs(t, err, ibus.ErrUnsupportedVariant)
	assert.Equal(t, 6, out.Len(), "nothing written for unsupported messages")
}

func TestSensorCounters(t *testing.T) {
	c := newSensorCounters()
	now := time.Now()

	c.count(emulatorEvent{at: now, decodeErr: ibus.ErrInvalidLength})
	c.count(emulatorEvent{at: now, decodeErr: ibus.ErrInvalidLength, synchronized: true})
	c.count(emulatorEvent{at: now, request: ibus.SetChannels{}, synchronized: true})
	c.count(emulatorEvent{at: now, request: ibus.ValueRequest{Address: 1}, response: ibus.ValueResponseShort{Address: 1}, synchronized: true})
	c.count(emulatorEvent{at: now, request: ibus.ValueRequest{Address: 1}, response: ibus.ValueResponseShort{Address: 1}, synchronized: true})
	c.count(emulatorEvent{at: now, request: ibus.ValueRequest{Address: 7}, synchronized: true})
	c.count(emulatorEvent{at: now, request: ibus.TypeRequest{Address: 2}, response: ibus.TypeResponse{Address: 2}, writeErr: errors.New("x"), synchronized: true})

	assert.Equal(t, uint64(1), c.decodeErrors, "errors before sync are not counted")
	assert.Equal(t, uint64(1), c.setFrames)
	assert.Equal(t, uint64(4), c.requests)
	assert.Equal(t, uint64(3), c.answered)
	assert.Equal(t, uint64(1), c.writeErrors)
	assert.Equal(t, uint64(2), c.polls[1])
	assert.Equal(t, uint64(1), c.polls[2])

	summary := c.summary(testSensors(t))
	assert.Contains(t, summary, "Requests: 4")
	assert.Contains(t, summary, "polls=2")
}

func TestSensorModel_ApplyValue(t *testing.T) {
	sensors := testSensors(t)
	m := initialSensorModel(sensors, "test")

	// Enter on the list opens the editor for the first sensor
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(sensorModel)
	require.Equal(t, focusValueInput, m.focusedField)

	m.valueInput.SetValue("30")
	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(sensorModel)

	sensor, ok := sensors.Get(1)
	require.True(t, ok)
	assert.Equal(t, uint32(700), sensor.Value, "30 C in tenths above -40")
	assert.Equal(t, focusSensorList, m.focusedField)
	assert.Empty(t, m.valueInput.Value())
	require.NotEmpty(t, m.eventLog)
	assert.False(t, m.eventLog[len(m.eventLog)-1].isError)
}

func TestSensorModel_ApplyInvalidValue(t *testing.T) {
	sensors := testSensors(t)
	m := initialSensorModel(sensors, "test")
	m.toggleFocus()
	m.valueInput.SetValue("hot")
	m.applyValue()

	sensor, _ := sensors.Get(1)
	assert.Equal(t, uint32(650), sensor.Value, "value unchanged")
	assert.Equal(t, focusValueInput, m.focusedField, "editor stays open")
	require.NotEmpty(t, m.eventLog)
	assert.True(t, m.eventLog[len(m.eventLog)-1].isError)
}

func TestSensorModel_QuitOnlyFromList(t *testing.T) {
	m := initialSensorModel(testSensors(t), "test")
	m.toggleFocus()

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m = updated.(sensorModel)
	assert.False(t, m.quitting, "q types into the editor")

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(sensorModel)
	require.Equal(t, focusSensorList, m.focusedField)

	updated, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m = updated.(sensorModel)
	assert.True(t, m.quitting)
	assert.NotNil(t, cmd)
}

func TestSensorModel_Batch(t *testing.T) {
	m := initialSensorModel(testSensors(t), "test")
	now := time.Now()

	updated, _ := m.Update(sensorBatchMsg{events: []emulatorEvent{
		{at: now, request: ibus.DiscoveryRequest{Address: 1}, response: ibus.DiscoveryResponse{Address: 1}, synchronized: true, skippedBytes: 3},
		{at: now, request: ibus.ValueRequest{Address: 1}, response: ibus.ValueResponseShort{Address: 1, Value: 650}, synchronized: true, skippedBytes: 3},
	}})
	m = updated.(sensorModel)

	assert.True(t, m.synchronized)
	assert.Equal(t, uint64(2), m.counters.requests)
	assert.Equal(t, uint64(2), m.counters.polls[1])
	assert.Equal(t, now, m.lastPoll[1])

	var messages []string
	for _, entry := range m.eventLog {
		messages = append(messages, entry.message)
	}
	assert.Contains(t, messages, "Synchronized after skipping 3 invalid bytes")
	assert.Contains(t, messages, "Sensor 1 discovered by receiver")

	item, ok := m.sensorList.SelectedItem().(sensorItem)
	require.True(t, ok)
	assert.Equal(t, uint64(2), item.polls)
}

func TestSensorModel_ConnectionLost(t *testing.T) {
	m := initialSensorModel(testSensors(t), "test")
	m.synchronized = true

	updated, _ := m.Update(connectionLostMsg{err: ErrConnectionClosed})
	m = updated.(sensorModel)
	assert.True(t, m.connectionLost)
	assert.False(t, m.synchronized)
	assert.Contains(t, m.View(), "RECONNECTING")

	updated, _ = m.Update(reconnectedMsg{connInfo: "Serial: /dev/ttyUSB1 @ 115200 baud"})
	m = updated.(sensorModel)
	assert.False(t, m.connectionLost)
	assert.Equal(t, "Serial: /dev/ttyUSB1 @ 115200 baud", m.connInfo)
}
