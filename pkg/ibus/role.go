// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ibus

import (
	"fmt"
	"strings"
)

// Role selects which frames a parser accepts. The same command code is used
// for a request and its response, so the frame length and the side of the
// bus the reader sits on decide what a frame means.
type Role int

const (
	// RoleSensor decodes what a sensor hears from the receiver: SET frames
	// and 4-byte discovery, type and value requests.
	RoleSensor Role = iota

	// RoleReceiver decodes what a receiver hears from sensors: discovery,
	// type and value responses.
	RoleReceiver

	// RoleMonitor decodes both directions, as seen by a passive tap on the
	// bus. A 4-byte discovery frame is reported as a request.
	RoleMonitor
)

// Response frame lengths
const (
	typeResponseLength      = 6
	valueShortLength        = 6
	valueLongLength         = 8
	requestFrameLength      = MinLength
	discoveryResponseLength = MinLength
)

// String returns the role name used on the command line.
func (r Role) String() string {
	switch r {
	case RoleSensor:
		return "sensor"
	case RoleReceiver:
		return "receiver"
	case RoleMonitor:
		return "monitor"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ParseRole parses a role name.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sensor", "":
		return RoleSensor, nil
	case "receiver":
		return RoleReceiver, nil
	case "monitor":
		return RoleMonitor, nil
	}
	return RoleSensor, fmt.Errorf("unknown role %q (use sensor, receiver or monitor)", s)
}

// accepts reports whether a frame with this command and declared length is
// well-formed for the role.
func (r Role) accepts(cmd Command, length int) bool {
	switch r {
	case RoleSensor:
		switch cmd {
		case CmdSet:
			return true
		case CmdDiscover, CmdType, CmdValue:
			return length == requestFrameLength
		}

	case RoleReceiver:
		switch cmd {
		case CmdDiscover:
			return length == discoveryResponseLength
		case CmdType:
			return length == typeResponseLength
		case CmdValue:
			return length == valueShortLength || length == valueLongLength
		}

	case RoleMonitor:
		switch cmd {
		case CmdSet:
			return true
		case CmdDiscover:
			return length == requestFrameLength
		case CmdType:
			return length == requestFrameLength || length == typeResponseLength
		case CmdValue:
			return length == requestFrameLength || length == valueShortLength || length == valueLongLength
		}
	}
	return false
}
