// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/ibuscope/pkg/ibus"
	"github.com/spf13/cobra"
)

var (
	discoveryTimeout int
	discoveryFirst   int
	discoveryLast    int
	discoveryEcho    bool
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Discover sensors by polling as a receiver",
	Long: `Act as the receiver: send DISCOVERY requests to each sensor address and
report the sensors that answer.

For every address that acknowledges discovery, a TYPE request and a VALUE
request follow, the same sequence a receiver runs at power-up. The round
trip time of each reply is shown.

Only use this on a sensor bus with no receiver attached; two masters on one
bus collide.

Many single-wire adapters echo transmitted bytes back. Use --echo so the echo
of each DISCOVERY request is not mistaken for the sensor's reply.

Examples:
  ibuscope discovery --port /dev/ttyUSB0
  ibuscope discovery --port /dev/ttyUSB0 --echo --first 2 --last 4

Exit codes:
  0 - Discovery successful (at least one sensor found)
  1 - Discovery failed (no sensors answered)
  2 - Connection error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().IntVar(&discoveryTimeout, "timeout", 100, "Reply timeout per request in milliseconds")
	discoveryCmd.Flags().IntVar(&discoveryFirst, "first", 1, "First address to poll")
	discoveryCmd.Flags().IntVar(&discoveryLast, "last", ibus.MaxAddress, "Last address to poll")
	discoveryCmd.Flags().BoolVar(&discoveryEcho, "echo", false, "Adapter echoes transmitted bytes")
}

var errNoReply = errors.New("no reply")

// discoveredSensor is what one address reported
type discoveredSensor struct {
	address  uint8
	sensor   ibus.SensorType
	width    ibus.SensorWidth
	typed    bool
	value    uint32
	hasValue bool
	latency  time.Duration
}

// poller sends receiver requests and waits for matching replies
type poller struct {
	conn     Connection
	replies  <-chan ibus.Message
	pumpDone <-chan error
	timeout  time.Duration
	echo     bool
}

// exchange sends req and returns the first reply with the same command and
// address, along with the round trip time.
func (p *poller) exchange(ctx context.Context, req ibus.Message) (ibus.Message, time.Duration, error) {
	addr, _ := ibus.AddressOf(req)

	// Replies that arrived late for an earlier request are stale
	for drained := false; !drained; {
		select {
		case <-p.replies:
		default:
			drained = true
		}
	}

	frame, err := ibus.EncodeFrame(req)
	if err != nil {
		return nil, 0, err
	}
	start := time.Now()
	if _, err := p.conn.Write(frame); err != nil {
		return nil, 0, fmt.Errorf("failed to send %s: %w", ibus.FormatMessageName(req), err)
	}

	// A 4-byte DISCOVER frame reads the same in both directions
	skip := 0
	if p.echo && req.Command() == ibus.CmdDiscover {
		skip = 1
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()

		case err := <-p.pumpDone:
			if err == nil {
				err = ErrConnectionClosed
			}
			return nil, 0, err

		case <-timer.C:
			return nil, 0, errNoReply

		case reply := <-p.replies:
			if reply.Command() != req.Command() {
				continue
			}
			if replyAddr, ok := ibus.AddressOf(reply); !ok || replyAddr != addr {
				continue
			}
			if skip > 0 {
				skip--
				continue
			}
			return reply, time.Since(start), nil
		}
	}
}

// probe runs the discovery, type and value exchange for one address
func (p *poller) probe(ctx context.Context, addr uint8) (discoveredSensor, error) {
	found := discoveredSensor{address: addr}

	_, latency, err := p.exchange(ctx, ibus.DiscoveryRequest{Address: addr})
	if err != nil {
		return found, err
	}
	found.latency = latency

	reply, _, err := p.exchange(ctx, ibus.TypeRequest{Address: addr})
	switch {
	case err == nil:
		if t, ok := reply.(ibus.TypeResponse); ok {
			found.sensor = t.Sensor
			found.width = t.Width
			found.typed = true
		}
	case !errors.Is(err, errNoReply):
		return found, err
	}

	reply, _, err = p.exchange(ctx, ibus.ValueRequest{Address: addr})
	switch {
	case err == nil:
		switch v := reply.(type) {
		case ibus.ValueResponseShort:
			found.value = uint32(v.Value)
			found.hasValue = true
		case ibus.ValueResponseLong:
			found.value = v.Value
			found.hasValue = true
		}
	case !errors.Is(err, errNoReply):
		return found, err
	}

	return found, nil
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	if discoveryFirst < 1 || discoveryLast > ibus.MaxAddress || discoveryFirst > discoveryLast {
		return fmt.Errorf("address range %d-%d invalid (use 1-%d)", discoveryFirst, discoveryLast, ibus.MaxAddress)
	}
	if discoveryTimeout <= 0 {
		return fmt.Errorf("--timeout must be positive, got %d", discoveryTimeout)
	}
	// Replies are what a receiver hears
	busRole = ibus.RoleReceiver

	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("ibuscope - Sensor Discovery\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Addresses: %d-%d\n", discoveryFirst, discoveryLast)
	fmt.Printf("Reply timeout: %d ms\n\n", discoveryTimeout)

	ctx, cancel := interruptContext()
	defer cancel()
	closeOnDone(ctx, conn)

	stream := newStream()
	replies := make(chan ibus.Message, 16)
	pumpDone := startPump(ctx, conn, stream)
	go stream.Run(ctx, func(msg ibus.Message, err error) {
		if err != nil {
			logger.Debug().Err(err).Msg("dropped byte")
			return
		}
		select {
		case replies <- msg:
		default:
		}
	})

	p := &poller{
		conn:     conn,
		replies:  replies,
		pumpDone: pumpDone,
		timeout:  time.Duration(discoveryTimeout) * time.Millisecond,
		echo:     discoveryEcho,
	}

	sensors := make([]discoveredSensor, 0)
	for addr := discoveryFirst; addr <= discoveryLast; addr++ {
		found, err := p.probe(ctx, uint8(addr))
		if errors.Is(err, errNoReply) {
			fmt.Printf("Address %2d: no reply\n", addr)
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			fmt.Printf("READ FAILED: %v\n", err)
			os.Exit(2)
		}

		sensors = append(sensors, found)
		printDiscovered(found)
	}

	fmt.Printf("\n--- Discovery summary ---\n")
	fmt.Printf("Sensors found: %d\n", len(sensors))

	if len(sensors) == 0 {
		fmt.Printf("No sensors discovered. Check wiring, baud rate and sensor power.\n")
		os.Exit(1)
	}

	return nil
}

func printDiscovered(s discoveredSensor) {
	fmt.Printf("Address %2d: found (%s round trip)\n", s.address, s.latency.Truncate(time.Microsecond))
	if s.typed {
		fmt.Printf("  Type: %s (0x%02X), %d byte value\n", ibus.FormatSensorType(s.sensor), uint8(s.sensor), s.width)
	} else {
		fmt.Printf("  Type: no reply\n")
	}
	if s.hasValue {
		fmt.Printf("  Value: %s (raw %d)\n", ibus.FormatSensorValue(s.sensor, s.value), s.value)
	} else {
		fmt.Printf("  Value: no reply\n")
	}
}
