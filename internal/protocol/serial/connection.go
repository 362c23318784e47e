// internal/protocol/serial/connection.go
package serial

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"buttcom/internal/model"
	"buttcom/internal/protocol"
)

// Butterfly wire contract. The USART is set up for 9600 8N1 and the
// calibration scripts wait at most one second for a reply.
const (
	BaudRate    = 9600
	DataBits    = 8
	StopBits    = 1
	Parity      = "none"
	ReadTimeout = time.Second
)

const readChunkSize = 64

// Port is the subset of go.bug.st/serial.Port used by Connection
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	Close() error
}

// PortOpener opens a port with the given mode
type PortOpener func(name string, mode *serial.Mode) (Port, error)

// OpenPort opens a real serial device
func OpenPort(name string, mode *serial.Mode) (Port, error) {
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// Config represents serial port configuration
type Config struct {
	Port     string        `json:"port"`
	BaudRate int           `json:"baud_rate"`
	DataBits int           `json:"data_bits"`
	StopBits int           `json:"stop_bits"`
	Parity   string        `json:"parity"`
	Timeout  time.Duration `json:"timeout"`

	// Opener defaults to OpenPort
	Opener PortOpener `json:"-"`
}

// DefaultConfig returns the Butterfly framing for the given device path
func DefaultConfig(port string) *Config {
	return &Config{
		Port:     port,
		BaudRate: BaudRate,
		DataBits: DataBits,
		StopBits: StopBits,
		Parity:   Parity,
		Timeout:  ReadTimeout,
	}
}

// Connection represents a serial port connection
type Connection struct {
	config  *Config
	port    Port
	logger  *zap.Logger
	mutex   sync.Mutex
	isOpen  bool
	pending []byte
	stats   protocol.ProtocolStats
}

var _ protocol.Transport = (*Connection)(nil)

// NewConnection creates a new serial connection
func NewConnection(config *Config, logger *zap.Logger) (*Connection, error) {
	if config == nil || config.Port == "" {
		return nil, fmt.Errorf("port is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = ReadTimeout
	}
	if config.Opener == nil {
		config.Opener = OpenPort
	}

	return &Connection{
		config: config,
		logger: logger.With(
			zap.String("protocol", "serial"),
			zap.String("port", config.Port),
		),
	}, nil
}

// Open opens the serial connection
func (c *Connection) Open(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.isOpen {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	mode, err := c.mode()
	if err != nil {
		return protocol.NewTransportError(protocol.OpOpen, c.config.Port, err)
	}

	port, err := c.config.Opener(c.config.Port, mode)
	if err != nil {
		c.logger.Error("Failed to open serial port", zap.Error(err))
		return protocol.NewTransportError(protocol.OpOpen, c.config.Port, err)
	}

	if err := port.SetReadTimeout(c.config.Timeout); err != nil {
		port.Close()
		return protocol.NewTransportError(protocol.OpOpen, c.config.Port,
			fmt.Errorf("failed to set read timeout: %w", err))
	}

	if err := port.ResetInputBuffer(); err != nil {
		c.logger.Warn("Failed to reset input buffer", zap.Error(err))
	}

	c.port = port
	c.isOpen = true
	c.pending = c.pending[:0]
	c.stats.IsConnected = true
	c.stats.OpenedAt = time.Now()
	c.stats.LastActivity = c.stats.OpenedAt

	c.logger.Info("Serial port opened successfully",
		zap.Int("baud_rate", mode.BaudRate),
		zap.Int("data_bits", mode.DataBits),
		zap.String("parity", c.config.Parity),
		zap.Duration("timeout", c.config.Timeout),
	)

	return nil
}

// Close closes the serial connection
func (c *Connection) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.isOpen || c.port == nil {
		return nil
	}

	err := c.port.Close()
	c.port = nil
	c.isOpen = false
	c.stats.IsConnected = false

	if err != nil {
		c.logger.Error("Failed to close serial port", zap.Error(err))
		return protocol.NewTransportError(protocol.OpClose, c.config.Port, err)
	}

	c.logger.Info("Serial port closed")
	return nil
}

// IsOpen returns whether the connection is open
func (c *Connection) IsOpen() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.isOpen && c.port != nil
}

// Write writes data to the serial port
func (c *Connection) Write(ctx context.Context, data []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.isOpen || c.port == nil {
		return protocol.NewTransportError(protocol.OpWrite, c.config.Port, protocol.ErrNotOpen)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	n, err := c.port.Write(data)
	if err != nil {
		c.stats.ErrorCount++
		c.logger.Error("Failed to write to serial port",
			zap.Error(err),
			zap.Int("bytes_to_write", len(data)),
		)
		return protocol.NewTransportError(protocol.OpWrite, c.config.Port, err)
	}

	if n != len(data) {
		c.stats.ErrorCount++
		return protocol.NewTransportError(protocol.OpWrite, c.config.Port,
			fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data)))
	}

	c.stats.BytesWritten += int64(n)
	c.stats.WriteCount++
	c.stats.LastActivity = time.Now()

	c.logger.Debug("Data written to serial port",
		zap.Int("bytes_written", n),
		zap.ByteString("data", data),
	)

	return nil
}

// ReadLine reads up to the next '\n' or until the read timeout elapses.
// A timeout is not an error: whatever arrived is returned with TimedOut set.
func (c *Connection) ReadLine(ctx context.Context) (model.ResponseLine, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.isOpen || c.port == nil {
		return model.ResponseLine{}, protocol.NewTransportError(protocol.OpRead, c.config.Port, protocol.ErrNotOpen)
	}

	start := time.Now()
	deadline := start.Add(c.config.Timeout)
	buffer := make([]byte, readChunkSize)

	for {
		if text, ok := c.takeLine(); ok {
			return c.finishLine(text, false, start), nil
		}

		if err := ctx.Err(); err != nil {
			return model.ResponseLine{}, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return c.finishLine(c.takePartial(), true, start), nil
		}

		// Bound each read by what is left of the line budget
		if err := c.port.SetReadTimeout(remaining); err != nil {
			c.stats.ErrorCount++
			return model.ResponseLine{}, protocol.NewTransportError(protocol.OpRead, c.config.Port, err)
		}

		n, err := c.port.Read(buffer)
		if err != nil {
			c.stats.ErrorCount++
			c.logger.Error("Failed to read from serial port", zap.Error(err))
			return model.ResponseLine{}, protocol.NewTransportError(protocol.OpRead, c.config.Port, err)
		}

		if n == 0 {
			return c.finishLine(c.takePartial(), true, start), nil
		}

		c.pending = append(c.pending, buffer[:n]...)
		c.stats.BytesRead += int64(n)
		c.stats.LastActivity = time.Now()
	}
}

// Name returns the device path
func (c *Connection) Name() string {
	return c.config.Port
}

// Stats returns a snapshot of the connection statistics
func (c *Connection) Stats() protocol.ProtocolStats {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.stats
}

// GetConfig returns the connection configuration
func (c *Connection) GetConfig() *Config {
	return c.config
}

func (c *Connection) takeLine() (string, bool) {
	idx := bytes.IndexByte(c.pending, '\n')
	if idx < 0 {
		return "", false
	}
	line := string(bytes.TrimRight(c.pending[:idx], "\r"))
	c.pending = append(c.pending[:0], c.pending[idx+1:]...)
	return line, true
}

func (c *Connection) takePartial() string {
	line := string(bytes.TrimRight(c.pending, "\r\n"))
	c.pending = c.pending[:0]
	return line
}

func (c *Connection) finishLine(text string, timedOut bool, start time.Time) model.ResponseLine {
	line := model.ResponseLine{
		Text:     text,
		TimedOut: timedOut,
		Elapsed:  time.Since(start),
	}

	if timedOut {
		c.stats.TimeoutCount++
	} else {
		c.stats.LineCount++
	}

	c.logger.Debug("Line read from serial port",
		zap.String("text", text),
		zap.Bool("timed_out", timedOut),
		zap.Duration("elapsed", line.Elapsed),
	)

	return line
}

// mode translates the configuration into a go.bug.st/serial mode
func (c *Connection) mode() (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: c.config.BaudRate,
		DataBits: c.config.DataBits,
	}

	switch c.config.StopBits {
	case 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits: %d", c.config.StopBits)
	}

	switch c.config.Parity {
	case "none", "":
		mode.Parity = serial.NoParity
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		return nil, fmt.Errorf("unsupported parity: %s", c.config.Parity)
	}

	return mode, nil
}
