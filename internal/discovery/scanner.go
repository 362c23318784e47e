// internal/discovery/scanner.go
package discovery

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

// DiscoveredPort is a serial port that matched the scan patterns
type DiscoveredPort struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

// String formats the port for a listing
func (p DiscoveredPort) String() string {
	if !p.IsUSB {
		return p.Name
	}
	s := fmt.Sprintf("%s (USB %s:%s", p.Name, p.VID, p.PID)
	if p.Product != "" {
		s += " " + p.Product
	}
	if p.SerialNumber != "" {
		s += " serial " + p.SerialNumber
	}
	return s + ")"
}

// EnumerateFunc lists the ports present on the host
type EnumerateFunc func() ([]*enumerator.PortDetails, error)

// Scanner lists serial ports whose names match any of its patterns
type Scanner struct {
	patterns  []string
	enumerate EnumerateFunc
	logger    *zap.Logger
}

// Option customizes a Scanner
type Option func(*Scanner)

// WithEnumerator replaces the host port enumeration
func WithEnumerator(fn EnumerateFunc) Option {
	return func(s *Scanner) {
		s.enumerate = fn
	}
}

// NewScanner creates a scanner. With no patterns every port is listed.
func NewScanner(patterns []string, logger *zap.Logger, opts ...Option) (*Scanner, error) {
	for _, pattern := range patterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid port pattern %q: %w", pattern, err)
		}
	}

	s := &Scanner{
		patterns:  patterns,
		enumerate: enumerator.GetDetailedPortsList,
		logger:    logger.With(zap.String("scanner", "serial")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Scan returns the matching ports sorted by name
func (s *Scanner) Scan(ctx context.Context) ([]DiscoveredPort, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.logger.Debug("Starting serial port scan", zap.Strings("patterns", s.patterns))

	details, err := s.enumerate()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}

	ports := make([]DiscoveredPort, 0, len(details))
	for _, d := range details {
		if d == nil || !s.matches(d.Name) {
			continue
		}
		ports = append(ports, DiscoveredPort{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })

	s.logger.Info("Serial scan completed",
		zap.Int("ports_present", len(details)),
		zap.Int("ports_matched", len(ports)),
	)
	return ports, nil
}

func (s *Scanner) matches(name string) bool {
	if len(s.patterns) == 0 {
		return true
	}
	for _, pattern := range s.patterns {
		// Patterns were validated in NewScanner
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
