// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/ibuscope/pkg/ibus"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

// A sensor not polled for this long is shown as idle
const sensorIdleSeconds = 2

// Focus states
const (
	focusSensorList = iota
	focusValueInput
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// sensorItem is one emulated sensor in the list
type sensorItem struct {
	sensor   ibus.Sensor
	polls    uint64
	lastPoll time.Time
}

// Implement list.Item interface
func (s sensorItem) Title() string {
	return fmt.Sprintf("[%2d] %s", s.sensor.Address, ibus.FormatSensorType(s.sensor.Type))
}

func (s sensorItem) Description() string {
	state := "idle"
	if !s.lastPoll.IsZero() && time.Since(s.lastPoll) < sensorIdleSeconds*time.Second {
		state = "polled"
	}
	return fmt.Sprintf("%s  %s (%d)", ibus.FormatSensorValue(s.sensor.Type, s.sensor.Value), state, s.polls)
}

func (s sensorItem) FilterValue() string { return fmt.Sprintf("%d", s.sensor.Address) }

// sensorModel is the Bubble Tea model for the sensor emulator TUI
type sensorModel struct {
	connInfo string
	sensors  *ibus.SensorSet

	// Sensor list and value editor
	sensorList   list.Model
	valueInput   textinput.Model
	focusedField int

	// Traffic
	counters      *sensorCounters
	lastPoll      map[uint8]time.Time
	eventLog      []errorLogEntry
	maxLogEntries int
	startTime     time.Time

	// UI state
	width          int
	height         int
	synchronized   bool
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type sensorTickMsg time.Time

type sensorBatchMsg struct {
	events []emulatorEvent
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialSensorModel(sensors *ibus.SensorSet, connInfo string) sensorModel {
	ti := textinput.New()
	ti.Placeholder = "new value"
	ti.CharLimit = 12
	ti.Width = 14

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	sensorList := list.New([]list.Item{}, delegate, 30, 10)
	sensorList.Title = "Sensors"
	sensorList.SetShowStatusBar(false)
	sensorList.SetShowHelp(false)
	sensorList.SetFilteringEnabled(false)

	m := sensorModel{
		connInfo:      connInfo,
		sensors:       sensors,
		sensorList:    sensorList,
		valueInput:    ti,
		focusedField:  focusSensorList,
		counters:      newSensorCounters(),
		lastPoll:      make(map[uint8]time.Time),
		eventLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		startTime:     time.Now(),
		width:         80,
		height:        24,
	}
	m.updateSensorList()
	return m
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m sensorModel) Init() tea.Cmd {
	return sensorTickCmd()
}

func sensorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return sensorTickMsg(t)
	})
}

func (m sensorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case sensorTickMsg:
		// Redraw poll state even when traffic stops
		m.updateSensorList()
		return m, sensorTickCmd()

	case sensorBatchMsg:
		for _, ev := range msg.events {
			m.processEvent(ev)
		}
		m.updateSensorList()

	case connectionLostMsg:
		m.connectionLost = true
		m.synchronized = false
		m.addLogEntry(fmt.Sprintf("Connection lost (%v) - reconnecting...", msg.err), true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry("Reconnected", false)
	}

	return m, nil
}

func (m sensorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "q":
		if m.focusedField == focusSensorList {
			m.quitting = true
			return m, tea.Quit
		}

	case "tab", "shift+tab":
		m.toggleFocus()
		return m, nil

	case "esc":
		if m.focusedField == focusValueInput {
			m.valueInput.SetValue("")
			m.toggleFocus()
		}
		return m, nil

	case "enter":
		if m.focusedField == focusSensorList {
			m.toggleFocus()
			return m, nil
		}
		m.applyValue()
		return m, nil
	}

	var cmd tea.Cmd
	if m.focusedField == focusValueInput {
		m.valueInput, cmd = m.valueInput.Update(msg)
	} else {
		m.sensorList, cmd = m.sensorList.Update(msg)
	}
	return m, cmd
}

func (m *sensorModel) toggleFocus() {
	if m.focusedField == focusSensorList {
		if _, ok := m.selectedSensor(); !ok {
			return
		}
		m.focusedField = focusValueInput
		m.valueInput.Focus()
		return
	}
	m.focusedField = focusSensorList
	m.valueInput.Blur()
}

func (m sensorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	// Header
	helpText := "q=quit Tab=switch Enter=edit"
	if m.focusedField == focusValueInput {
		helpText = "Enter=apply Esc=cancel"
	}
	s.WriteString(titleStyle.Render("IBUSCOPE SENSOR"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | %s", connStatus, helpText)))
	s.WriteString("\n")
	s.WriteString(fmt.Sprintf(" %s %s", statsLabelStyle.Render("Uptime:"), statsValueStyle.Render(formatUptime(time.Since(m.startTime)))))
	if !m.synchronized {
		s.WriteString("  " + warningStyle.Render("waiting for receiver..."))
	}
	s.WriteString("\n\n")

	// Layout: left panel (sensors) | right panel (editor)
	leftWidth := 30
	rightWidth := m.width - leftWidth - 6

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusSensorList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	sensorPanel := listStyle.Render(m.sensorList.View())

	editorStyle := boxStyle.Width(rightWidth)
	if m.focusedField == focusValueInput {
		editorStyle = focusedBoxStyle.Width(rightWidth)
	}
	editorPanel := editorStyle.Render(m.renderEditor(statsLabelStyle, statsValueStyle, headerStyle))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, sensorPanel, " ", editorPanel))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle))
	s.WriteString("\n\n")

	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m sensorModel) renderEditor(statsLabelStyle, statsValueStyle, headerStyle lipgloss.Style) string {
	var s strings.Builder

	sensor, ok := m.selectedSensor()
	if !ok {
		s.WriteString(headerStyle.Render("No sensor selected"))
		return s.String()
	}

	s.WriteString(fmt.Sprintf("%s %d\n", statsLabelStyle.Render("Address:"), sensor.Address))
	s.WriteString(fmt.Sprintf("%s %s (0x%02X)\n", statsLabelStyle.Render("Type:"), ibus.FormatSensorType(sensor.Type), uint8(sensor.Type)))
	s.WriteString(fmt.Sprintf("%s %d bytes\n", statsLabelStyle.Render("Width:"), sensor.Width))
	s.WriteString(fmt.Sprintf("%s %s (raw %d)\n", statsLabelStyle.Render("Value:"),
		statsValueStyle.Render(ibus.FormatSensorValue(sensor.Type, sensor.Value)), sensor.Value))
	s.WriteString(fmt.Sprintf("%s %d\n\n", statsLabelStyle.Render("Polls:"), m.counters.polls[sensor.Address]))

	s.WriteString(statsLabelStyle.Render("New value: "))
	if m.focusedField == focusValueInput {
		s.WriteString(m.valueInput.View())
	} else {
		s.WriteString("[Enter to edit]")
	}
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(valueHint(sensor.Type)))

	return s.String()
}

// valueHint describes the units parseSensorValue expects
func valueHint(t ibus.SensorType) string {
	switch t {
	case ibus.SensorTemperature:
		return "degrees Celsius, e.g. 21.5"
	case ibus.SensorInternalVoltage, ibus.SensorExternalVoltage:
		return "volts, e.g. 12.6"
	case ibus.SensorRPM:
		return "revolutions per minute"
	case ibus.SensorPressure:
		return "pascals"
	default:
		return "raw value"
	}
}

func (m sensorModel) renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle lipgloss.Style) string {
	c := m.counters
	var answeredPercent float64
	if c.requests > 0 {
		answeredPercent = float64(c.answered) * 100.0 / float64(c.requests)
	}

	errCount := statsValueStyle.Render("0")
	if n := c.writeErrors + c.decodeErrors; n > 0 {
		errCount = errorStyle.Render(fmt.Sprintf("%d", n))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("SET:"), statsValueStyle.Render(fmt.Sprintf("%d", c.setFrames)),
		statsLabelStyle.Render("Requests:"), statsValueStyle.Render(fmt.Sprintf("%d", c.requests)),
		statsLabelStyle.Render("Answered:"), statsValueStyle.Render(fmt.Sprintf("%.1f%%", answeredPercent)),
		statsLabelStyle.Render("Errors:"), errCount,
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m sensorModel) renderEventLog(statsLabelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	logHeight := 8
	if len(m.eventLog) < logHeight {
		logHeight = len(m.eventLog)
	}
	startIdx := len(m.eventLog) - logHeight

	if len(m.eventLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyleLocal
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(timestamp),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *sensorModel) processEvent(ev emulatorEvent) {
	m.counters.count(ev)

	if ev.decodeErr != nil {
		return
	}
	if ev.request == nil {
		return
	}

	if !m.synchronized {
		m.synchronized = true
		if ev.skippedBytes > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", ev.skippedBytes), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}
	}

	if ev.writeErr != nil {
		m.addLogEntry(ev.writeErr.Error(), true)
		return
	}
	if ev.response == nil {
		return
	}

	addr, _ := ibus.AddressOf(ev.response)
	m.lastPoll[addr] = ev.at

	switch resp := ev.response.(type) {
	case ibus.DiscoveryResponse:
		m.addLogEntry(fmt.Sprintf("Sensor %d discovered by receiver", addr), false)
	case ibus.TypeResponse:
		m.addLogEntry(fmt.Sprintf("Sensor %d reported type %s", addr, ibus.FormatSensorType(resp.Sensor)), false)
	}
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

// applyValue sets the selected sensor to the value typed in the editor
func (m *sensorModel) applyValue() {
	sensor, ok := m.selectedSensor()
	if !ok {
		return
	}

	value, err := parseSensorValue(sensor, m.valueInput.Value())
	if err != nil {
		m.addLogEntry(fmt.Sprintf("Sensor %d: %v", sensor.Address, err), true)
		return
	}
	if err := m.sensors.SetValue(sensor.Address, value); err != nil {
		m.addLogEntry(err.Error(), true)
		return
	}

	m.addLogEntry(fmt.Sprintf("Sensor %d set to %s", sensor.Address, ibus.FormatSensorValue(sensor.Type, value)), false)
	m.valueInput.SetValue("")
	m.focusedField = focusSensorList
	m.valueInput.Blur()
	m.updateSensorList()
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *sensorModel) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m *sensorModel) selectedSensor() (ibus.Sensor, bool) {
	item, ok := m.sensorList.SelectedItem().(sensorItem)
	if !ok {
		return ibus.Sensor{}, false
	}
	// The list holds a snapshot; read the live value
	return m.sensors.Get(item.sensor.Address)
}

func (m *sensorModel) updateSensorList() {
	sensors := m.sensors.Sensors()
	items := make([]list.Item, len(sensors))
	for i, sensor := range sensors {
		items[i] = sensorItem{
			sensor:   sensor,
			polls:    m.counters.polls[sensor.Address],
			lastPoll: m.lastPoll[sensor.Address],
		}
	}
	m.sensorList.SetItems(items)
}

func (m *sensorModel) updateListSize() {
	listHeight := m.height / 3
	if listHeight < 5 {
		listHeight = 5
	}
	m.sensorList.SetSize(28, listHeight)
}
