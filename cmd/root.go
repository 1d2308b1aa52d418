// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/ibuscope/pkg/ibus"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Decoding flags
	roleName   string
	bufferSize int
	logLevel   string

	// Parsed from roleName before any command runs
	busRole ibus.Role
)

var rootCmd = &cobra.Command{
	Use:   "ibuscope",
	Short: "FlySky iBus Sensor Bus Analyzer",
	Long: `ibuscope - A CLI tool for monitoring, validating and emulating FlySky iBus
telemetry traffic.

Provides commands for raw frame logging, error detection, connectivity
testing and sensor emulation.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

Decoding roles (--role):
  sensor    frames a sensor hears: SET and 4-byte requests (default)
  receiver  frames a receiver hears: discovery, type and value responses
  monitor   both directions, for a passive tap on the bus

For WebSocket authentication, the password is read from the IBUS_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setupLogging(logLevel); err != nil {
			return err
		}
		role, err := ibus.ParseRole(roleName)
		if err != nil {
			return err
		}
		busRole = role
		if bufferSize < 2*ibus.MaxLength {
			return fmt.Errorf("--buffer must be at least %d bytes to hold two frames, got %d", 2*ibus.MaxLength, bufferSize)
		}
		return nil
	},
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Decoding flags
	rootCmd.PersistentFlags().StringVar(&roleName, "role", "sensor", "Decoding role: sensor, receiver or monitor")
	rootCmd.PersistentFlags().IntVar(&bufferSize, "buffer", 64*ibus.MaxLength, "Receive ring buffer size in bytes")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default from IBUSCOPE_LOG_LEVEL or info)")
}

// Execute runs the root command
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		logger.Error().Err(err).Msg("command failed")
	}
	return err
}
