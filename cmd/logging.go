// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Diagnostics go to stderr through logger; decoded traffic goes to stdout.
var logger = newLogger(os.Stderr, zerolog.InfoLevel, false)

// newLogger builds a console logger writing to out
func newLogger(out io.Writer, level zerolog.Level, noColor bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.TimeOnly,
		NoColor:    noColor,
	}
	return zerolog.New(output).Level(level).With().Timestamp().Str("app", "ibuscope").Logger()
}

// parseLogLevel maps a level name to a zerolog level. Empty means info.
func parseLogLevel(name string) (zerolog.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return zerolog.InfoLevel, nil
	}
	if name == "warning" {
		name = "warn"
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}

// setupLogging configures the package logger from the --log-level flag, or
// IBUSCOPE_LOG_LEVEL when the flag is empty.
func setupLogging(flagLevel string) error {
	name := flagLevel
	if name == "" {
		name = os.Getenv("IBUSCOPE_LOG_LEVEL")
	}
	level, err := parseLogLevel(name)
	if err != nil {
		return err
	}

	noColor := os.Getenv("IBUSCOPE_LOG_NOCOLOR") != ""
	logger = newLogger(os.Stderr, level, noColor)
	log.Logger = logger
	return nil
}

// muteLogging stops console logging while a full-screen TUI owns the
// terminal. The returned function restores the previous logger.
func muteLogging() (restore func()) {
	saved := logger
	logger = zerolog.Nop()
	log.Logger = logger
	return func() {
		logger = saved
		log.Logger = saved
	}
}
