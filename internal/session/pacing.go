// internal/session/pacing.go
package session

import (
	"context"
	"fmt"
	"time"
)

// PacingMode selects how a command is clocked out to the device
type PacingMode int

const (
	// WholeCommand writes the command and terminator in one go, then waits
	WholeCommand PacingMode = iota
	// PerCharacter writes one character at a time. The firmware's receive
	// logging cannot keep up with full speed lines while it is enabled.
	PerCharacter
)

func (m PacingMode) String() string {
	switch m {
	case WholeCommand:
		return "whole-command"
	case PerCharacter:
		return "per-character"
	default:
		return fmt.Sprintf("pacing(%d)", int(m))
	}
}

// Delays are the pauses the device needs between inputs
type Delays struct {
	CommandDelay time.Duration
	CharDelay    time.Duration
	SettleDelay  time.Duration
}

// DefaultDelays match the timings the Butterfly was tuned against
func DefaultDelays() Delays {
	return Delays{
		CommandDelay: time.Second,
		CharDelay:    100 * time.Millisecond,
		SettleDelay:  time.Second,
	}
}

// Pacing is the delay policy applied to one command
type Pacing struct {
	Mode PacingMode
	// CommandDelay follows a whole-command write
	CommandDelay time.Duration
	// CharDelay follows every character in per-character mode
	CharDelay time.Duration
	// SettleDelay follows the terminator in per-character mode
	SettleDelay time.Duration
}

// Whole returns whole-command pacing built from d
func (d Delays) Whole() Pacing {
	return Pacing{Mode: WholeCommand, CommandDelay: nonNegative(d.CommandDelay)}
}

// PerChar returns per-character pacing built from d
func (d Delays) PerChar() Pacing {
	return Pacing{
		Mode:        PerCharacter,
		CharDelay:   nonNegative(d.CharDelay),
		SettleDelay: nonNegative(d.SettleDelay),
	}
}

// Sleeper blocks for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the wall-clock Sleeper
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
