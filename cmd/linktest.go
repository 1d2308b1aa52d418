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
	linkTestDuration int
	linkTestHex      bool
)

var linkTestCmd = &cobra.Command{
	Use:   "link_test",
	Short: "Test raw connection stability",
	Long: `Read from the connection without decoding, reporting chunks and byte rate.

This command connects and just listens, counting the chunks each Read
returns and the bytes inside them. Useful for debugging baud rate, adapter or
WebSocket bridge issues before looking at frames.

Exit codes:
  0 - Test completed normally
  1 - Connection failed during test
  2 - Connection error`,
	RunE: runLinkTest,
}

func init() {
	rootCmd.AddCommand(linkTestCmd)
	linkTestCmd.Flags().IntVar(&linkTestDuration, "duration", 30, "Test duration in seconds")
	linkTestCmd.Flags().BoolVar(&linkTestHex, "hex", false, "Print every chunk as hex")
}

// linkCounters accumulates what the link delivered
type linkCounters struct {
	chunks    int
	bytes     int
	largest   int
	firstByte time.Time
	lastByte  time.Time
}

func (c *linkCounters) add(n int, at time.Time) {
	c.chunks++
	c.bytes += n
	if n > c.largest {
		c.largest = n
	}
	if c.firstByte.IsZero() {
		c.firstByte = at
	}
	c.lastByte = at
}

// rate returns bytes per second between the first and last chunk
func (c *linkCounters) rate() float64 {
	elapsed := c.lastByte.Sub(c.firstByte).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(c.bytes) / elapsed
}

func (c *linkCounters) report(elapsed time.Duration) string {
	s := "\n--- Test Results ---\n"
	s += fmt.Sprintf("Duration: %s\n", elapsed.Truncate(time.Millisecond))
	s += fmt.Sprintf("Chunks received: %d\n", c.chunks)
	s += fmt.Sprintf("Bytes received: %d\n", c.bytes)
	if c.chunks > 0 {
		s += fmt.Sprintf("Average chunk: %.1f bytes (largest %d)\n", float64(c.bytes)/float64(c.chunks), c.largest)
		s += fmt.Sprintf("Byte rate: %.0f bytes/s (%.1f frames/s at %d bytes)\n", c.rate(), c.rate()/ibus.MaxLength, ibus.MaxLength)
	}
	return s
}

func runLinkTest(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("ibuscope - Link Stability Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %d seconds\n\n", linkTestDuration)

	ctx, cancel := interruptContext()
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, time.Duration(linkTestDuration)*time.Second)
	defer cancelTimeout()
	closeOnDone(ctx, conn)

	readChan := make(chan []byte, 100)
	errChan := make(chan error, 1)

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				select {
				case readChan <- data:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	start := time.Now()
	counters := &linkCounters{}
	heartbeat := time.NewTicker(time.Second)
	defer heartbeat.Stop()

	fmt.Printf("Listening for data...\n\n")

	for {
		select {
		case data := <-readChan:
			now := time.Now()
			counters.add(len(data), now)
			if linkTestHex {
				fmt.Printf("[%s] Received %d bytes:\n%s\n", now.Format("15:04:05.000"), len(data), ibus.FormatFrame(data))
			}

		case err := <-errChan:
			if ctx.Err() != nil {
				// Closed by us at the end of the test
				continue
			}
			fmt.Printf("\n[%s] Connection error: %v\n", time.Now().Format("15:04:05.000"), err)
			fmt.Print(counters.report(time.Since(start)))
			fmt.Printf("Result: FAILED (connection error)\n")
			os.Exit(1)

		case <-heartbeat.C:
			remaining := time.Until(start.Add(time.Duration(linkTestDuration) * time.Second)).Seconds()
			fmt.Printf("[%s] Still connected... %d bytes so far (%.0fs remaining)\n",
				time.Now().Format("15:04:05.000"), counters.bytes, remaining)

		case <-ctx.Done():
			fmt.Print(counters.report(time.Since(start)))
			fmt.Printf("Result: PASSED (connection stable)\n")
			return nil
		}
	}
}
