// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/ibuscope/pkg/ibus"
	"github.com/spf13/cobra"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid iBus frame",
	Long: `Wait for a valid iBus frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any frame
that is well-formed for the selected --role and passes its checksum. Bytes
that cannot start a frame are dropped and counted.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for checking wiring and baud rate before running the other commands.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("ibuscope - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Role: %s\n", busRole)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid iBus frame...\n\n")

	ctx, cancel := interruptContext()
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, time.Duration(packetTestTimeout)*time.Second)
	defer cancelTimeout()
	closeOnDone(ctx, conn)

	stream := newStream()
	frames := make(chan busEvent, 1)
	pumpDone := startPump(ctx, conn, stream)
	go stream.Run(ctx, eventHandler(stream, func(ev busEvent) {
		if ev.msg == nil {
			return
		}
		select {
		case frames <- ev:
		default:
		}
	}))

	select {
	case ev := <-frames:
		os.Exit(reportFrame(ev))

	case err := <-pumpDone:
		// A frame may have been decoded just before the connection ended
		select {
		case ev := <-frames:
			os.Exit(reportFrame(ev))
		default:
		}
		if ctx.Err() != nil {
			// The timeout closed the connection
			fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", packetTestTimeout)
			os.Exit(1)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Connection closed before a valid frame arrived\n")
		}
		os.Exit(2)

	case <-ctx.Done():
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", packetTestTimeout)
		os.Exit(1)
	}

	return nil
}

// reportFrame prints the first valid frame and returns the exit code
func reportFrame(ev busEvent) int {
	if ev.skippedBytes > 0 {
		fmt.Printf("(skipped %d invalid bytes before sync)\n", ev.skippedBytes)
	}
	fmt.Printf("SUCCESS: Received valid frame\n")
	fmt.Printf("  Type: %s\n", ibus.FormatMessageName(ev.msg))
	fmt.Printf("  Command: %s (0x%02X)\n", ibus.FormatCommand(ev.msg.Command()), uint8(ev.msg.Command()))
	if addr, ok := ibus.AddressOf(ev.msg); ok {
		fmt.Printf("  Address: %d\n", addr)
	}
	printFrame(ev.msg)
	return 0
}
