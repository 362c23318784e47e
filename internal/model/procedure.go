// internal/model/procedure.go
package model

import (
	"fmt"
	"strings"
)

// Procedure names one scripted interaction with the device
type Procedure string

const (
	ProcedureSendHello      Procedure = "hello"
	ProcedureDisableLogging Procedure = "disable-logging"
	ProcedureCalibrate      Procedure = "calibrate"
	ProcedureConsole        Procedure = "console"
)

// Procedures lists every known procedure in display order
func Procedures() []Procedure {
	return []Procedure{
		ProcedureSendHello,
		ProcedureDisableLogging,
		ProcedureCalibrate,
		ProcedureConsole,
	}
}

// ParseProcedure maps a user supplied name onto a Procedure
func ParseProcedure(name string) (Procedure, error) {
	p := Procedure(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Procedures() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown procedure %q", name)
}

// IsInteractive reports whether the procedure needs an operator at a terminal
func (p Procedure) IsInteractive() bool {
	return p == ProcedureCalibrate || p == ProcedureConsole
}
