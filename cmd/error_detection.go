// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/ibuscope/pkg/ibus"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed frames and errors",
	Long: `Track frame errors, resynchronization and anomalous values with statistics.

This command validates each frame and detects:
  - Malformed frames (bad length byte, unknown command, wrong length for the role)
  - Checksum errors
  - Anomalous values (channels outside 800-2200, unknown sensor types,
    invalid value widths, sensors answering at address 0)
  - Bytes dropped because the receive buffer was full
  - Statistics and trends (frame rate, error rate, success rate)

By default, only errors are displayed. Use --show-all to display valid frames too.

Frames are validated in real-time, with errors highlighted immediately and
periodic statistics summaries displayed at configurable intervals.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	if statsInterval <= 0 {
		return fmt.Errorf("--stats-interval must be positive, got %d", statsInterval)
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := interruptContext()
	defer cancel()
	closeOnDone(ctx, conn)

	if useTUI {
		return runTUIMode(ctx, cancel, conn, connInfo)
	}
	return runTextMode(ctx, conn, connInfo)
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(ev busEvent) {
	timestamp := ev.at.Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, ev.decodeErr)
	fmt.Printf("  >>> 1 BYTE DROPPED <<<\n\n")
}

// printValidationErrors prints validation errors for a frame
func printValidationErrors(ev busEvent) {
	timestamp := ev.at.Format("15:04:05.000")
	name := ibus.FormatMessageName(ev.msg)

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (0x%02X)\n", timestamp, name, uint8(ev.msg.Command()))
	fmt.Printf("  Checksum: \033[1;32mOK\033[0m\n")

	for i, err := range ev.validationErrors {
		switch err.Type {
		case ibus.AnomalyChannelRange:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)

		case ibus.AnomalyUnknownSensor:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
			if sensor, ok := err.Details["sensor"].(uint8); ok {
				fmt.Printf("    sensor_type=0x%02X\n", sensor)
			}

		case ibus.AnomalyInvalidWidth:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)

		case ibus.AnomalyInvalidAddress:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}

	fmt.Print(ibus.FormatPayload(ev.msg))
	fmt.Printf("  >>> FRAME FLAGGED <<<\n\n")
}

// syncDropped moves new ring buffer drops into stats
func syncDropped(stats *ibus.Statistics, stream *ibus.Stream, last *uint64) {
	dropped := stream.Dropped()
	if dropped > *last {
		stats.AddDropped(dropped - *last)
		*last = dropped
	}
}

// runTUIMode runs error detection in TUI mode
func runTUIMode(ctx context.Context, cancel context.CancelFunc, conn Connection, connInfo string) error {
	stream := newStream()

	m := initialModel(connInfo, busRole, showAll, stream.Dropped)
	p := tea.NewProgram(m, tea.WithContext(ctx))

	restoreLogging := muteLogging()

	pumpDone := startPump(ctx, conn, stream)

	announced := false
	go stream.Run(ctx, eventHandler(stream, func(ev busEvent) {
		if ev.msg != nil && !announced {
			announced = true
			p.Send(syncMsg{invalidBytes: ev.skippedBytes})
		}
		p.Send(serialDataMsg(ev))
	}))

	pumpFinished := make(chan struct{})
	go func() {
		defer close(pumpFinished)
		if err := <-pumpDone; err != nil {
			p.Send(connErrMsg{err: err})
		}
	}()

	_, err := p.Run()
	cancel()
	<-pumpFinished
	restoreLogging()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runTextMode runs error detection in text mode
func runTextMode(ctx context.Context, conn Connection, connInfo string) error {
	fmt.Printf("ibuscope - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Role: %s\n", busRole)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stream := newStream()
	stats := ibus.NewStatistics()
	var lastDropped uint64

	events := make(chan busEvent, 64)
	pumpDone := startPump(ctx, conn, stream)
	go stream.Run(ctx, eventHandler(stream, chanEmitter(ctx, events)))

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	announced := false
	for {
		select {
		case ev := <-events:
			if ev.decodeErr != nil {
				// Garbage before the first good frame is just joining mid-stream
				if !ev.synchronized {
					continue
				}
				stats.Update(nil, ev.decodeErr, nil)
				printDecodeError(ev)
				continue
			}

			if !announced {
				announced = true
				if ev.skippedBytes > 0 {
					fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", ev.skippedBytes)
				} else {
					fmt.Printf("[SYNC] Synchronized\n\n")
				}
			}

			stats.Update(ev.msg, nil, ev.validationErrors)
			if len(ev.validationErrors) > 0 {
				printValidationErrors(ev)
			} else if showAll {
				fmt.Print(ibus.FormatMessage(ev.msg, ev.at))
			}

		case <-statsTicker.C:
			syncDropped(stats, stream, &lastDropped)
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()

		case err := <-pumpDone:
			syncDropped(stats, stream, &lastDropped)
			fmt.Println()
			fmt.Print(stats.String())
			return err

		case <-ctx.Done():
			syncDropped(stats, stream, &lastDropped)
			fmt.Println()
			fmt.Print(stats.String())
			return nil
		}
	}
}
