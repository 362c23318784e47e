// internal/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"buttcom/internal/model"
	"buttcom/internal/protocol"
	"buttcom/internal/utils"
)

// ErrNoOperator is returned by Prompt when the session has no operator
var ErrNoOperator = errors.New("no operator attached to session")

// Operator is the person at the bench. Prompt blocks until they answer.
type Operator interface {
	Prompt(ctx context.Context, message string) (string, error)
	Show(exchange model.Exchange)
}

// Config holds the session behavior knobs
type Config struct {
	Delays Delays
	// DrainOnClear reads and discards one line after ClearPending
	DrainOnClear bool
}

// DefaultConfig returns the timings of the original bench scripts
func DefaultConfig() Config {
	return Config{
		Delays:       DefaultDelays(),
		DrainOnClear: true,
	}
}

// Option customizes a Session
type Option func(*Session)

// WithSleeper replaces wall-clock sleeping
func WithSleeper(sleeper Sleeper) Option {
	return func(s *Session) {
		s.sleep = sleeper
	}
}

// WithOperator attaches the operator used by Prompt and Show
func WithOperator(operator Operator) Option {
	return func(s *Session) {
		s.operator = operator
	}
}

// WithID pins the session id
func WithID(id uuid.UUID) Option {
	return func(s *Session) {
		s.id = id
	}
}

// Session drives one device over one exclusively owned transport.
// Operations are strictly sequential.
type Session struct {
	id        uuid.UUID
	transport protocol.Transport
	operator  Operator
	sleep     Sleeper
	config    Config
	logger    *utils.SessionLogger

	mutex     sync.Mutex
	exchanges []model.Exchange
}

// Open opens transport and returns a session owning it. The caller must
// Close the session on every exit path.
func Open(ctx context.Context, transport protocol.Transport, cfg Config, logger *zap.Logger, opts ...Option) (*Session, error) {
	s := &Session{
		id:        uuid.New(),
		transport: transport,
		operator:  nopOperator{},
		sleep:     SleepContext,
		config:    cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.NewSessionLogger(logger, s.id.String(), transport.Name())

	if err := transport.Open(ctx); err != nil {
		s.logger.LogConnection("open", false, err)
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	s.logger.LogConnection("open", true, nil)

	return s, nil
}

// ID returns the session id
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Port returns the device path
func (s *Session) Port() string {
	return s.transport.Name()
}

// Delays returns the configured pacing delays
func (s *Session) Delays() Delays {
	return s.config.Delays
}

// ClearPending sends a bare terminator so the device drops any half typed
// command, then optionally drains one stale line. It never fails: a
// timed out drain is the expected outcome.
func (s *Session) ClearPending(ctx context.Context) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.transport.Write(ctx, []byte{model.Terminator}); err != nil {
		s.logger.Warn("Failed to clear pending input", zap.Error(err))
		return
	}

	if !s.config.DrainOnClear {
		return
	}

	line, err := s.transport.ReadLine(ctx)
	if err != nil {
		s.logger.Warn("Failed to drain stale response", zap.Error(err))
		return
	}

	s.logger.Debug("Cleared pending input",
		zap.String("drained", line.Text),
		zap.Bool("timed_out", line.TimedOut),
	)
}

// SendCommand transmits cmd followed by exactly one carriage return and
// waits out the pacing delay.
func (s *Session) SendCommand(ctx context.Context, cmd model.Command, pacing Pacing) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.send(ctx, cmd, pacing)
}

// ReadLine reads one response line. A timeout yields an empty or partial
// line, not an error.
func (s *Session) ReadLine(ctx context.Context) (model.ResponseLine, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.transport.ReadLine(ctx)
}

// Exchange sends cmd, reads the reply and surfaces it to the operator
func (s *Session) Exchange(ctx context.Context, cmd model.Command, pacing Pacing) (model.Exchange, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	sentAt := time.Now()
	if err := s.send(ctx, cmd, pacing); err != nil {
		return model.Exchange{}, err
	}

	line, err := s.transport.ReadLine(ctx)
	if err != nil {
		return model.Exchange{}, fmt.Errorf("failed to read response to %q: %w", cmd, err)
	}

	ex := model.Exchange{
		Command:  cmd,
		Response: line,
		SentAt:   sentAt,
	}
	s.exchanges = append(s.exchanges, ex)
	s.logger.LogExchange(ex)
	s.operator.Show(ex)

	return ex, nil
}

// Prompt asks the operator for a line of text
func (s *Session) Prompt(ctx context.Context, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	answer, err := s.operator.Prompt(ctx, message)
	if err != nil {
		return "", fmt.Errorf("prompt %q: %w", message, err)
	}

	s.logger.Debug("Operator answered", zap.String("prompt", message), zap.String("answer", answer))
	return answer, nil
}

// Exchanges returns the exchanges recorded so far
func (s *Session) Exchanges() []model.Exchange {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	out := make([]model.Exchange, len(s.exchanges))
	copy(out, s.exchanges)
	return out
}

// Close releases the transport. Safe to call more than once.
func (s *Session) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.transport.IsOpen() {
		return nil
	}

	stats := s.transport.Stats()
	err := s.transport.Close()
	s.logger.LogConnection("close", err == nil, err)
	s.logger.LogStats(stats)

	return err
}

func (s *Session) send(ctx context.Context, cmd model.Command, pacing Pacing) error {
	text := cmd.Wire()
	start := time.Now()

	var err error
	switch pacing.Mode {
	case WholeCommand:
		err = s.sendWhole(ctx, text, pacing)
	case PerCharacter:
		err = s.sendPerChar(ctx, text, pacing)
	default:
		err = fmt.Errorf("unsupported pacing mode %s", pacing.Mode)
	}

	s.logger.LogCommand(cmd.String(), pacing.Mode.String(), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to send %q: %w", cmd, err)
	}
	return nil
}

func (s *Session) sendWhole(ctx context.Context, text string, pacing Pacing) error {
	if err := s.transport.Write(ctx, append([]byte(text), model.Terminator)); err != nil {
		return err
	}
	return s.sleep(ctx, nonNegative(pacing.CommandDelay))
}

func (s *Session) sendPerChar(ctx context.Context, text string, pacing Pacing) error {
	for _, r := range text {
		if err := s.transport.Write(ctx, []byte(string(r))); err != nil {
			return err
		}
		if err := s.sleep(ctx, nonNegative(pacing.CharDelay)); err != nil {
			return err
		}
	}

	if err := s.transport.Write(ctx, []byte{model.Terminator}); err != nil {
		return err
	}
	return s.sleep(ctx, nonNegative(pacing.SettleDelay))
}

type nopOperator struct{}

func (nopOperator) Prompt(context.Context, string) (string, error) {
	return "", ErrNoOperator
}

func (nopOperator) Show(model.Exchange) {}
