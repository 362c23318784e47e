// internal/protocol/protocol.go
package protocol

import (
	"context"
	"time"

	"buttcom/internal/model"
)

// Transport is a line-oriented link to the device. Implementations are not
// safe for concurrent use; the session serializes access.
type Transport interface {
	// Connection lifecycle
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// Data communication
	Write(ctx context.Context, data []byte) error
	ReadLine(ctx context.Context) (model.ResponseLine, error)

	// Diagnostics
	Name() string
	Stats() ProtocolStats
}

// ProtocolStats provides protocol-level statistics
type ProtocolStats struct {
	BytesWritten int64     `json:"bytes_written"`
	BytesRead    int64     `json:"bytes_read"`
	WriteCount   int64     `json:"write_count"`
	LineCount    int64     `json:"line_count"`
	TimeoutCount int64     `json:"timeout_count"`
	ErrorCount   int64     `json:"error_count"`
	OpenedAt     time.Time `json:"opened_at"`
	LastActivity time.Time `json:"last_activity"`
	IsConnected  bool      `json:"is_connected"`
}
