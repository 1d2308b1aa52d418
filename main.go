// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// ibuscope - FlySky iBus Sensor Bus Analyzer
//
// A CLI tool for monitoring, validating and emulating iBus telemetry
// traffic over a serial port or a WebSocket bridge.

package main

import (
	"os"

	"github.com/Thermoquad/ibuscope/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
