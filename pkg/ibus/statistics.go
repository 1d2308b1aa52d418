// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ibus

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks frame statistics and error rates.
// It is not safe for concurrent use; the goroutine that consumes decoder
// output owns it.
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames     uint64
	ValidFrames     uint64
	SetFrames       uint64
	DiscoveryFrames uint64
	TypeFrames      uint64
	ValueFrames     uint64
	ResyncBytes     uint64
	LengthErrors    uint64
	CommandErrors   uint64
	ChecksumErrors  uint64
	AnomalousFrames uint64
	ChannelRange    uint64
	UnknownSensors  uint64
	InvalidWidths   uint64
	InvalidAddress  uint64
	DroppedBytes    uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update updates statistics with one decoder result. Pass the message, or the
// malformed-frame error returned by Decoder.Next, plus any validation errors
// for the message. ErrIncompleteFrame is ignored.
func (s *Statistics) Update(msg Message, decodeErr error, validationErrors []ValidationError) {
	if decodeErr != nil {
		if errors.Is(decodeErr, ErrIncompleteFrame) {
			return
		}
		// Every malformed result costs exactly one dropped byte
		s.ResyncBytes++
		switch {
		case errors.Is(decodeErr, ErrChecksumMismatch):
			s.ChecksumErrors++
		case errors.Is(decodeErr, ErrInvalidLength):
			s.LengthErrors++
		case errors.Is(decodeErr, ErrInvalidCommand):
			s.CommandErrors++
		}
		s.LastUpdateTime = time.Now()
		return
	}

	if msg == nil {
		return
	}

	s.TotalFrames++
	switch msg.Command() {
	case CmdSet:
		s.SetFrames++
	case CmdDiscover:
		s.DiscoveryFrames++
	case CmdType:
		s.TypeFrames++
	case CmdValue:
		s.ValueFrames++
	}

	if len(validationErrors) > 0 {
		s.AnomalousFrames++
		for _, err := range validationErrors {
			switch err.Type {
			case AnomalyChannelRange:
				s.ChannelRange++
			case AnomalyUnknownSensor:
				s.UnknownSensors++
			case AnomalyInvalidWidth:
				s.InvalidWidths++
			case AnomalyInvalidAddress:
				s.InvalidAddress++
			}
		}
	} else {
		s.ValidFrames++
	}

	s.LastUpdateTime = time.Now()
}

// AddDropped records bytes the ring buffer refused because it was full
func (s *Statistics) AddDropped(n uint64) {
	s.DroppedBytes += n
}

// Errors returns the number of checksum, length and command errors
func (s *Statistics) Errors() uint64 {
	return s.ChecksumErrors + s.LengthErrors + s.CommandErrors
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent, anomalousPercent float64
	if s.TotalFrames > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.TotalFrames)
		anomalousPercent = float64(s.AnomalousFrames) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, validPercent)
	result += fmt.Sprintf("  SET:           %8d\n", s.SetFrames)
	result += fmt.Sprintf("  DISCOVER:      %8d\n", s.DiscoveryFrames)
	result += fmt.Sprintf("  TYPE:          %8d\n", s.TypeFrames)
	result += fmt.Sprintf("  VALUE:         %8d\n", s.ValueFrames)

	if s.ResyncBytes > 0 {
		result += fmt.Sprintf("Resync Bytes:    %8d\n", s.ResyncBytes)
		if s.ChecksumErrors > 0 {
			result += fmt.Sprintf("  Checksum:         %5d\n", s.ChecksumErrors)
		}
		if s.LengthErrors > 0 {
			result += fmt.Sprintf("  Bad Length:       %5d\n", s.LengthErrors)
		}
		if s.CommandErrors > 0 {
			result += fmt.Sprintf("  Bad Command:      %5d\n", s.CommandErrors)
		}
	}
	if s.AnomalousFrames > 0 {
		result += fmt.Sprintf("Anomalous Frames:%8d (%.1f%%)\n", s.AnomalousFrames, anomalousPercent)
		if s.ChannelRange > 0 {
			result += fmt.Sprintf("  Channel Range:    %5d\n", s.ChannelRange)
		}
		if s.UnknownSensors > 0 {
			result += fmt.Sprintf("  Unknown Sensor:   %5d\n", s.UnknownSensors)
		}
		if s.InvalidWidths > 0 {
			result += fmt.Sprintf("  Invalid Width:    %5d\n", s.InvalidWidths)
		}
		if s.InvalidAddress > 0 {
			result += fmt.Sprintf("  Address 0:        %5d\n", s.InvalidAddress)
		}
	}
	if s.DroppedBytes > 0 {
		result += fmt.Sprintf("Dropped Bytes:   %8d (buffer full)\n", s.DroppedBytes)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = Statistics{}
	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
}
