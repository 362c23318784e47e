// internal/procedure/procedures.go
package procedure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"buttcom/internal/model"
	"buttcom/internal/session"
)

// Operator prompts used by the calibration and console procedures
const (
	PromptVccSource   = "Connect the Vcc source"
	PromptZeroSource  = "Connect the 0V source"
	PromptCalibration = "Calibration value? > "
	PromptConsole     = "> "
)

// ErrInvalidCalibration is returned for calibration input the firmware
// cannot take
var ErrInvalidCalibration = errors.New("invalid calibration value")

var maxCalibration = decimal.NewFromInt(math.MaxUint16)

// SendHello says hello and reads the reply
func SendHello(ctx context.Context, s *session.Session) error {
	_, err := s.Exchange(ctx, model.CommandHello, s.Delays().Whole())
	return err
}

// DisableLogging clears the firmware's log enable register. The command is
// typed out slowly because receive logging is still on while it arrives.
// A hello afterwards checks the device is still listening.
func DisableLogging(ctx context.Context, s *session.Session) error {
	if err := s.SendCommand(ctx, model.CommandLogRegOff, s.Delays().PerChar()); err != nil {
		return err
	}

	_, err := s.Exchange(ctx, model.CommandHello, s.Delays().Whole())
	return err
}

// Calibrate walks the operator through a two-point voltage calibration:
// raw counts at Vcc, raw counts at 0V, then the slope they worked out.
func Calibrate(ctx context.Context, s *session.Session) error {
	whole := s.Delays().Whole()

	s.ClearPending(ctx)

	if _, err := s.Prompt(ctx, PromptVccSource); err != nil {
		return err
	}
	if _, err := s.Exchange(ctx, model.CommandVoltCounts, whole); err != nil {
		return err
	}

	if _, err := s.Prompt(ctx, PromptZeroSource); err != nil {
		return err
	}
	if _, err := s.Exchange(ctx, model.CommandVoltCounts, whole); err != nil {
		return err
	}

	value, err := askCalibrationValue(ctx, s)
	if err != nil {
		return err
	}
	if err := s.SendCommand(ctx, model.VSlope(value), whole); err != nil {
		return err
	}

	_, err = s.Exchange(ctx, model.CommandVolt, whole)
	return err
}

// Console forwards operator lines to the device until quit, exit or EOF
func Console(ctx context.Context, s *session.Session) error {
	for {
		line, err := s.Prompt(ctx, PromptConsole)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		text := strings.TrimSpace(line)
		switch text {
		case "":
			continue
		case "quit", "exit":
			return nil
		}

		if _, err := s.Exchange(ctx, model.Command(text), s.Delays().Whole()); err != nil {
			return err
		}
	}
}

// ParseCalibrationValue reads the operator's slope. The firmware takes a
// 16-bit argument, so only whole numbers in 0..65535 are accepted.
func ParseCalibrationValue(text string) (uint16, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidCalibration, text)
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("%w: %s is not a whole number", ErrInvalidCalibration, d)
	}
	if d.IsNegative() || d.GreaterThan(maxCalibration) {
		return 0, fmt.Errorf("%w: %s is outside 0..%s", ErrInvalidCalibration, d, maxCalibration)
	}
	return uint16(d.IntPart()), nil
}

func askCalibrationValue(ctx context.Context, s *session.Session) (uint16, error) {
	prompt := PromptCalibration
	for {
		answer, err := s.Prompt(ctx, prompt)
		if err != nil {
			return 0, err
		}

		value, err := ParseCalibrationValue(answer)
		if err == nil {
			return value, nil
		}
		prompt = fmt.Sprintf("%v\n%s", err, PromptCalibration)
	}
}
