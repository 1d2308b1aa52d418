// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Thermoquad/ibuscope/pkg/ibus"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for warnings
}

// sensorSeen is what the bus has told us about one sensor address
type sensorSeen struct {
	sensor    ibus.SensorType
	width     ibus.SensorWidth
	typed     bool
	value     uint32
	hasValue  bool
	polls     uint64
	lastHeard time.Time
}

// TUI model
type model struct {
	connInfo      string
	role          ibus.Role
	showAll       bool
	stats         *ibus.Statistics
	dropped       func() uint64
	lastDropped   uint64
	errorLog      []errorLogEntry
	maxLogEntries int
	synchronized  bool
	invalidBytes  int
	width         int
	height        int
	quitting      bool
	channels      *ibus.SetChannels
	sensors       map[uint8]*sensorSeen
	connErr       error
}

// Messages
type tickMsg time.Time
type serialDataMsg busEvent
type syncMsg struct {
	invalidBytes int
}
type connErrMsg struct {
	err error
}

// formatUptime formats a duration as a human-friendly string
func formatUptime(d time.Duration) string {
	total := uint64(d / time.Second)

	seconds := total % 60
	minutes := (total / 60) % 60
	hours := (total / 3600) % 24
	days := total / 86400

	plural := func(n uint64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(connInfo string, role ibus.Role, showAll bool, dropped func() uint64) model {
	return model{
		connInfo:      connInfo,
		role:          role,
		showAll:       showAll,
		stats:         ibus.NewStatistics(),
		dropped:       dropped,
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
		sensors:       make(map[uint8]*sensorSeen),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		if m.dropped != nil {
			if d := m.dropped(); d > m.lastDropped {
				m.stats.AddDropped(d - m.lastDropped)
				m.addLogEntry(fmt.Sprintf("Receive buffer full, dropped %d bytes", d-m.lastDropped), true)
				m.lastDropped = d
			}
		}
		m.stats.CalculateRates()
		return m, tickCmd()

	case syncMsg:
		m.synchronized = true
		m.invalidBytes = msg.invalidBytes
		if msg.invalidBytes > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", msg.invalidBytes), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}

	case connErrMsg:
		m.connErr = msg.err
		m.addLogEntry(fmt.Sprintf("CONNECTION ERROR: %v", msg.err), true)

	case serialDataMsg:
		if msg.decodeErr != nil {
			if msg.synchronized {
				m.stats.Update(nil, msg.decodeErr, nil)
				m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", msg.decodeErr), true)
			}
		} else if msg.msg != nil {
			m.stats.Update(msg.msg, nil, msg.validationErrors)
			m.trackMessage(msg.msg, msg.at)

			name := ibus.FormatMessageName(msg.msg)
			if len(msg.validationErrors) > 0 {
				for _, err := range msg.validationErrors {
					m.addLogEntry(fmt.Sprintf("%s: %s", name, err.Message), true)
				}
			} else if m.showAll {
				if addr, ok := ibus.AddressOf(msg.msg); ok {
					m.addLogEntry(fmt.Sprintf("%s addr=%d (valid)", name, addr), false)
				} else {
					m.addLogEntry(fmt.Sprintf("%s (valid)", name), false)
				}
			}
		}
	}

	return m, nil
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	// Keep only last N entries
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

// sensor returns the entry for addr, creating it on first sight
func (m *model) sensor(addr uint8) *sensorSeen {
	s, ok := m.sensors[addr]
	if !ok {
		s = &sensorSeen{}
		m.sensors[addr] = s
	}
	return s
}

// trackMessage keeps the latest channel values and per-sensor state
func (m *model) trackMessage(msg ibus.Message, at time.Time) {
	switch v := msg.(type) {
	case ibus.SetChannels:
		channels := v
		m.channels = &channels

	case ibus.ValueRequest:
		m.sensor(v.Address).polls++

	case ibus.DiscoveryResponse:
		m.sensor(v.Address).lastHeard = at

	case ibus.TypeResponse:
		s := m.sensor(v.Address)
		s.sensor = v.Sensor
		s.width = v.Width
		s.typed = true
		s.lastHeard = at

	case ibus.ValueResponseShort:
		s := m.sensor(v.Address)
		s.value = uint32(v.Value)
		s.hasValue = true
		s.lastHeard = at

	case ibus.ValueResponseLong:
		s := m.sensor(v.Address)
		s.value = v.Value
		s.hasValue = true
		s.lastHeard = at
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

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

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("IBUSCOPE - ERROR DETECTION"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Role: %s | Mode: %s | Up: %s | 'r' reset, 'q' quit",
		m.connInfo, m.role, func() string {
			if m.showAll {
				return "All frames"
			}
			return "Errors only"
		}(), formatUptime(time.Since(m.stats.StartTime)))))
	s.WriteString("\n\n")

	// Sync status
	switch {
	case m.connErr != nil:
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ Connection lost: %v", m.connErr)))
	case !m.synchronized:
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
	default:
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.invalidBytes > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d invalid bytes)", m.invalidBytes)))
		}
	}
	s.WriteString("\n\n")

	// Statistics
	st := m.stats
	var validPercent, errorPercent float64
	observed := st.TotalFrames + st.Errors()
	if st.TotalFrames > 0 {
		validPercent = float64(st.ValidFrames) * 100.0 / float64(st.TotalFrames)
	}
	if observed > 0 {
		errorPercent = float64(st.Errors()) * 100.0 / float64(observed)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", st.TotalFrames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.ValidFrames, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.Errors(), errorPercent)),
	))

	statsContent.WriteString(fmt.Sprintf("%s SET %d  DISCOVER %d  TYPE %d  VALUE %d\n",
		statsLabelStyle.Render("Frames:"), st.SetFrames, st.DiscoveryFrames, st.TypeFrames, st.ValueFrames,
	))

	if st.ResyncBytes > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d, %s: %d)\n",
			statsLabelStyle.Render("Resync:"), errorStyle.Render(fmt.Sprintf("%d bytes", st.ResyncBytes)),
			headerStyle.Render("checksum"), st.ChecksumErrors,
			headerStyle.Render("length"), st.LengthErrors,
			headerStyle.Render("command"), st.CommandErrors,
		))
	}

	if st.AnomalousFrames > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d, %s: %d, %s: %d)\n",
			statsLabelStyle.Render("Anomalous:"), warningStyle.Render(fmt.Sprintf("%d", st.AnomalousFrames)),
			headerStyle.Render("channel range"), st.ChannelRange,
			headerStyle.Render("unknown sensor"), st.UnknownSensors,
			headerStyle.Render("width"), st.InvalidWidths,
			headerStyle.Render("address 0"), st.InvalidAddress,
		))
	}

	if st.DroppedBytes > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Dropped:"), errorStyle.Render(fmt.Sprintf("%d bytes (buffer full)", st.DroppedBytes)),
		))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f frames/s", st.FrameRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if st.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Latest servo channels
	if m.channels != nil {
		s.WriteString(statsLabelStyle.Render("Latest Channels:"))
		s.WriteString("\n")

		channelContent := strings.Builder{}
		for i, value := range m.channels.Channels {
			style := statsValueStyle
			if value != 0 && (value < ibus.ChannelMin || value > ibus.ChannelMax) {
				style = warningStyle
			}
			channelContent.WriteString(fmt.Sprintf("%s %s  ",
				statsLabelStyle.Render(fmt.Sprintf("CH%-2d", i+1)), style.Render(fmt.Sprintf("%4d", value))))
			if i%7 == 6 && i != len(m.channels.Channels)-1 {
				channelContent.WriteString("\n")
			}
		}
		s.WriteString(boxStyle.Render(channelContent.String()))
		s.WriteString("\n\n")
	}

	// Sensors seen on the bus
	if len(m.sensors) > 0 {
		s.WriteString(statsLabelStyle.Render("Sensors:"))
		s.WriteString("\n")

		addrs := make([]int, 0, len(m.sensors))
		for addr := range m.sensors {
			addrs = append(addrs, int(addr))
		}
		sort.Ints(addrs)

		sensorContent := strings.Builder{}
		for i, addr := range addrs {
			seen := m.sensors[uint8(addr)]
			kind := headerStyle.Render("untyped")
			if seen.typed {
				kind = statsValueStyle.Render(fmt.Sprintf("%s/%d", ibus.FormatSensorType(seen.sensor), seen.width))
			}
			value := headerStyle.Render("-")
			if seen.hasValue {
				value = statsValueStyle.Render(ibus.FormatSensorValue(seen.sensor, seen.value))
			}
			sensorContent.WriteString(fmt.Sprintf("%s %s  %s", statsLabelStyle.Render(fmt.Sprintf("#%-2d", addr)), kind, value))
			if seen.polls > 0 {
				sensorContent.WriteString(headerStyle.Render(fmt.Sprintf("  polled %d", seen.polls)))
			}
			if !seen.lastHeard.IsZero() {
				sensorContent.WriteString(headerStyle.Render(fmt.Sprintf("  heard %s ago", time.Since(seen.lastHeard).Truncate(time.Second))))
			}
			if i != len(addrs)-1 {
				sensorContent.WriteString("\n")
			}
		}
		s.WriteString(boxStyle.Render(sensorContent.String()))
		s.WriteString("\n\n")
	}

	// Error log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 15 // Reserve space for header and stats
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.errorLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.errorLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}
