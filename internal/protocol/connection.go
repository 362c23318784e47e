// internal/protocol/connection.go
package protocol

import (
	"errors"
	"fmt"
)

// Transport operations reported in TransportError
const (
	OpOpen  = "open"
	OpWrite = "write"
	OpRead  = "read"
	OpClose = "close"
)

// ErrNotOpen is returned when an operation runs against a closed transport
var ErrNotOpen = errors.New("transport not open")

// TransportError reports a failure of the link itself: the port could not be
// opened or configured, or a write/read failed. It is fatal for a session.
type TransportError struct {
	Op   string
	Port string
	Err  error
}

// NewTransportError wraps err with the failing operation and port
func NewTransportError(op, port string, err error) *TransportError {
	return &TransportError{Op: op, Port: port, Err: err}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("serial %s %s: %v", e.Op, e.Port, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err carries a TransportError
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
