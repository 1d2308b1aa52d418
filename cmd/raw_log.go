// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/Thermoquad/ibuscope/pkg/ibus"
	"github.com/spf13/cobra"
)

var (
	rawLogCBOR   bool
	rawLogFrames bool
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display decoded frames in human-readable format",
	Long: `Continuously decode and display iBus frames as they arrive.

Each frame is shown with timestamp, message name and decoded payload. Bytes
that cannot start a frame are dropped one at a time and reported.

With --cbor, each decoded message is written to stdout as a CBOR record
(a CBOR sequence, one map per message) for machine processing; status
output moves to stderr.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogCBOR, "cbor", false, "Write CBOR records to stdout instead of text")
	rawLogCmd.Flags().BoolVar(&rawLogFrames, "hex", false, "Also print the frame bytes of each message (text mode)")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	status := io.Writer(os.Stdout)
	if rawLogCBOR {
		status = os.Stderr
	}
	fmt.Fprintf(status, "ibuscope - Raw Frame Log\n")
	fmt.Fprintf(status, "Connection: %s\n", connInfo)
	fmt.Fprintf(status, "Role: %s\n", busRole)
	fmt.Fprintf(status, "Press Ctrl+C to exit\n\n")

	ctx, cancel := interruptContext()
	defer cancel()
	closeOnDone(ctx, conn)

	stream := newStream()
	events := make(chan busEvent, 64)
	pumpDone := startPump(ctx, conn, stream)
	go stream.Run(ctx, eventHandler(stream, chanEmitter(ctx, events)))

	var writeErr error
	for {
		select {
		case ev := <-events:
			if rawLogCBOR {
				writeErr = writeRecord(os.Stdout, ev)
			} else {
				printRawEvent(ev)
			}
			if writeErr != nil {
				return writeErr
			}

		case err := <-pumpDone:
			if d := stream.Dropped(); d > 0 {
				logger.Warn().Uint64("bytes", d).Msg("receive buffer overflowed")
			}
			return err

		case <-ctx.Done():
			return nil
		}
	}
}

// printRawEvent prints one decode result in text form
func printRawEvent(ev busEvent) {
	if ev.decodeErr != nil {
		if ev.synchronized {
			fmt.Printf("[ERROR] %v\n", ev.decodeErr)
		}
		return
	}
	fmt.Print(ibus.FormatMessage(ev.msg, ev.at))
	if rawLogFrames {
		printFrame(ev.msg)
	}
}

// writeRecord writes one message as a CBOR record. Decode errors are not
// recorded.
func writeRecord(w io.Writer, ev busEvent) error {
	if ev.msg == nil {
		if ev.synchronized {
			logger.Debug().Err(ev.decodeErr).Msg("dropped byte")
		}
		return nil
	}
	data, err := ibus.MarshalRecord(ibus.NewRecord(ev.msg, ev.at))
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// printFrame prints the frame bytes of m
func printFrame(m ibus.Message) {
	if line := frameLine(m); line != "" {
		fmt.Println(line)
	}
}

// frameLine formats the frame bytes of m. SET frames are re-encoded with all
// channels, so a short SET frame shows longer than it was on the wire.
func frameLine(m ibus.Message) string {
	frame, err := ibus.EncodeFrame(m)
	if err != nil {
		return ""
	}
	label := "Frame"
	if m.Command() == ibus.CmdSet {
		label = "Frame (re-encoded)"
	}
	return fmt.Sprintf("  %s: %s", label, ibus.FormatFrame(frame))
}
