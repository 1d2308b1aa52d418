// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/ibuscope/pkg/ibus"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	sensorConfigPath string
	sensorUseTUI     bool
	sensorInterval   int
)

var sensorCmd = &cobra.Command{
	Use:   "sensor",
	Short: "Emulate iBus telemetry sensors",
	Long: `Answer receiver requests on behalf of the sensors listed in a TOML file.

The receiver polls each address with discovery, type and value requests;
every request addressed to a configured sensor is answered on the same
connection. Requests for other addresses are left for real sensors.

Example roster:

  [[sensor]]
  address = 1
  type = "temp"      # intv, temp, rpm, extv, pressure, servo
  celsius = 21.5

  [[sensor]]
  address = 2
  type = "extv"
  volts = 12.6

  [[sensor]]
  address = 3
  type = "pressure"
  width = "long"     # short or long, default depends on type
  value = 101325

The sensor role is always used for decoding. In the TUI, select a sensor and
type a new value to change what it reports. The connection is reopened with
exponential backoff if it drops.

On a single-wire bus our own responses are echoed back and show up as
decode errors.`,
	RunE: runSensor,
}

func init() {
	rootCmd.AddCommand(sensorCmd)
	sensorCmd.Flags().StringVarP(&sensorConfigPath, "config", "c", "", "Sensor roster (TOML)")
	sensorCmd.Flags().BoolVar(&sensorUseTUI, "tui", true, "Use terminal UI (false for text mode)")
	sensorCmd.Flags().IntVar(&sensorInterval, "stats-interval", 10, "Text mode summary interval (seconds)")
	sensorCmd.MarkFlagRequired("config")
}

// emulatorEvent is one request seen by the emulator and what it did about it
type emulatorEvent struct {
	at           time.Time
	request      ibus.Message
	response     ibus.Message
	decodeErr    error
	writeErr     error
	synchronized bool
	skippedBytes int
}

type connectionLostMsg struct {
	err error
}

type reconnectedMsg struct {
	connInfo string
}

// connectionManager handles connection lifecycle and reconnection
type connectionManager struct {
	mu       sync.RWMutex
	conn     Connection
	connInfo string

	sensors *ibus.SensorSet
	events  chan emulatorEvent
	notify  func(any)
}

func newConnectionManager(conn Connection, connInfo string, sensors *ibus.SensorSet) *connectionManager {
	return &connectionManager{
		conn:     conn,
		connInfo: connInfo,
		sensors:  sensors,
		events:   make(chan emulatorEvent, 256),
		notify:   func(any) {},
	}
}

func (cm *connectionManager) getConn() (Connection, string) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.conn, cm.connInfo
}

func (cm *connectionManager) setConn(conn Connection, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conn = conn
	cm.connInfo = connInfo
}

func runSensor(cmd *cobra.Command, args []string) error {
	if sensorInterval <= 0 {
		return fmt.Errorf("--stats-interval must be positive, got %d", sensorInterval)
	}
	if busRole != ibus.RoleSensor {
		logger.Warn().Stringer("role", busRole).Msg("sensor emulation always decodes as sensor role")
		busRole = ibus.RoleSensor
	}

	sensors, err := loadSensorConfig(sensorConfigPath)
	if err != nil {
		return err
	}
	logger.Info().Int("sensors", sensors.Len()).Str("config", sensorConfigPath).Msg("sensor roster loaded")

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	ctx, cancel := interruptContext()
	defer cancel()

	cm := newConnectionManager(conn, connInfo, sensors)

	if sensorUseTUI {
		return runSensorTUI(ctx, cancel, cm)
	}
	return runSensorText(ctx, cm)
}

// run serves sessions until ctx is done, reconnecting whenever the
// connection is lost
func (cm *connectionManager) run(ctx context.Context) {
	for {
		err := cm.session(ctx)
		if ctx.Err() != nil {
			return
		}

		cm.notify(connectionLostMsg{err: err})
		if !cm.reconnect(ctx) {
			return
		}
	}
}

// session answers requests on the current connection until it fails
func (cm *connectionManager) session(ctx context.Context) error {
	conn, _ := cm.getConn()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	closeOnDone(sessionCtx, conn)

	// Each session starts unsynchronized with an empty buffer
	stream := newStream()
	pumpDone := startPump(sessionCtx, conn, stream)
	go stream.Run(sessionCtx, cm.handler(stream, conn))

	err := <-pumpDone
	if err == nil {
		err = ErrConnectionClosed
	}
	return err
}

// handler answers each decoded request. It runs on the stream consumer
// goroutine, the only writer on conn.
func (cm *connectionManager) handler(stream *ibus.Stream, conn Connection) ibus.Handler {
	frame := make([]byte, 0, ibus.MaxLength)
	return func(msg ibus.Message, err error) {
		d := stream.Decoder()
		ev := emulatorEvent{
			at:           time.Now(),
			request:      msg,
			decodeErr:    err,
			synchronized: d.Synchronized(),
			skippedBytes: d.SkippedBytes(),
		}

		if msg != nil {
			if resp, ok := cm.sensors.Respond(msg); ok {
				ev.response = resp
				frame, ev.writeErr = writeResponse(conn, frame[:0], resp)
			}
		}

		// Dropping events never delays a response
		select {
		case cm.events <- ev:
		default:
		}
	}
}

// writeResponse encodes resp into buf and writes it to w. The returned slice
// is buf grown to hold the frame, for reuse on the next response.
func writeResponse(w io.Writer, buf []byte, resp ibus.Message) ([]byte, error) {
	frame, err := ibus.AppendMessage(buf, resp)
	if err != nil {
		return buf, err
	}
	if _, err := w.Write(frame); err != nil {
		return frame, fmt.Errorf("failed to send %s: %w", ibus.FormatMessageName(resp), err)
	}
	logger.Debug().Str("frame", ibus.FormatFrame(frame)).Msg("response sent")
	return frame, nil
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (cm *connectionManager) reconnect(ctx context.Context) bool {
	if conn, _ := cm.getConn(); conn != nil {
		conn.Close()
	}

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		conn, connInfo, err := OpenConnection()
		if err == nil {
			cm.setConn(conn, connInfo)
			cm.notify(reconnectedMsg{connInfo: connInfo})
			return true
		}
		logger.Debug().Err(err).Dur("backoff", backoff).Msg("reconnect failed")

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// sensorCounters summarizes emulator traffic
type sensorCounters struct {
	setFrames    uint64
	requests     uint64
	answered     uint64
	writeErrors  uint64
	decodeErrors uint64
	polls        map[uint8]uint64
}

func newSensorCounters() *sensorCounters {
	return &sensorCounters{polls: make(map[uint8]uint64)}
}

// count records one event. Decode errors before sync are not counted.
func (c *sensorCounters) count(ev emulatorEvent) {
	switch {
	case ev.decodeErr != nil:
		if ev.synchronized {
			c.decodeErrors++
		}
	case ev.request == nil:
	case ev.request.Command() == ibus.CmdSet:
		c.setFrames++
	default:
		c.requests++
		if ev.response != nil {
			c.answered++
			if addr, ok := ibus.AddressOf(ev.response); ok {
				c.polls[addr]++
			}
		}
		if ev.writeErr != nil {
			c.writeErrors++
		}
	}
}

// summary formats the counters and the current value of each sensor
func (c *sensorCounters) summary(sensors *ibus.SensorSet) string {
	s := fmt.Sprintf("SET frames: %d  Requests: %d  Answered: %d  Write errors: %d  Decode errors: %d\n",
		c.setFrames, c.requests, c.answered, c.writeErrors, c.decodeErrors)
	for _, sensor := range sensors.Sensors() {
		s += fmt.Sprintf("  [%2d] %-18s %-12s polls=%d\n",
			sensor.Address,
			ibus.FormatSensorType(sensor.Type),
			ibus.FormatSensorValue(sensor.Type, sensor.Value),
			c.polls[sensor.Address])
	}
	return s
}

// runSensorText runs the emulator with periodic text summaries
func runSensorText(ctx context.Context, cm *connectionManager) error {
	_, connInfo := cm.getConn()
	fmt.Printf("ibuscope - Sensor Emulator\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Sensors: %d\n", cm.sensors.Len())
	fmt.Printf("Press Ctrl+C to exit\n\n")

	cm.notify = func(msg any) {
		switch msg := msg.(type) {
		case connectionLostMsg:
			logger.Warn().Err(msg.err).Msg("connection lost, reconnecting")
		case reconnectedMsg:
			logger.Info().Str("connection", msg.connInfo).Msg("reconnected")
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		cm.run(ctx)
	}()

	counters := newSensorCounters()
	ticker := time.NewTicker(time.Duration(sensorInterval) * time.Second)
	defer ticker.Stop()

	announced := false
	for {
		select {
		case ev := <-cm.events:
			counters.count(ev)
			if ev.request != nil && !announced {
				announced = true
				fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", ev.skippedBytes)
			}
			if ev.writeErr != nil {
				logger.Error().Err(ev.writeErr).Msg("response failed")
			}
			// Discovery and type exchanges happen once per sensor per power-up
			if ev.response != nil && ev.response.Command() != ibus.CmdValue {
				fmt.Print(ibus.FormatMessage(ev.request, ev.at))
				fmt.Print(ibus.FormatMessage(ev.response, ev.at))
			}

		case <-ticker.C:
			fmt.Println()
			fmt.Print(counters.summary(cm.sensors))
			fmt.Println()

		case <-done:
			fmt.Println()
			fmt.Print(counters.summary(cm.sensors))
			return nil
		}
	}
}

// runSensorTUI runs the emulator behind the sensor TUI
func runSensorTUI(ctx context.Context, cancel context.CancelFunc, cm *connectionManager) error {
	_, connInfo := cm.getConn()
	m := initialSensorModel(cm.sensors, connInfo)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	restoreLogging := muteLogging()
	cm.notify = func(msg any) { p.Send(msg) }

	done := make(chan struct{})
	go func() {
		defer close(done)
		cm.run(ctx)
	}()
	go cm.batchEvents(ctx, p)

	_, err := p.Run()
	cancel()
	<-done
	restoreLogging()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// batchEvents sends emulator events to the TUI at a fixed rate, since the
// receiver polls far faster than the screen needs to redraw
func (cm *connectionManager) batchEvents(ctx context.Context, p *tea.Program) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var batch sensorBatchMsg
		drainLoop:
			for {
				select {
				case ev := <-cm.events:
					batch.events = append(batch.events, ev)
				default:
					break drainLoop
				}
			}
			if len(batch.events) > 0 {
				p.Send(batch)
			}
		}
	}
}
