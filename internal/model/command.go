// internal/model/command.go
package model

import (
	"fmt"
	"strings"
)

// Command is a literal instruction understood by the Butterfly firmware.
// The text is never parsed on this side of the wire.
type Command string

const (
	CommandHello      Command = "hello"
	CommandLogRegOff  Command = "logreg 0"
	CommandVoltCounts Command = "vcounts?"
	CommandVolt       Command = "volt?"
)

const vslopeName = "vslope"

// Terminator ends every command sent to the device.
const Terminator = '\r'

// VSlope builds the slope calibration command. The firmware reads its
// argument as lowercase hex without padding.
func VSlope(value uint16) Command {
	return Command(fmt.Sprintf("%s %x", vslopeName, value))
}

// Wire returns the command text with any carriage returns removed, so the
// caller can append exactly one terminator.
func (c Command) Wire() string {
	return strings.Map(func(r rune) rune {
		if r == Terminator {
			return -1
		}
		return r
	}, string(c))
}

// String returns the command text
func (c Command) String() string {
	return string(c)
}
