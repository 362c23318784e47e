// internal/procedure/runner.go
package procedure

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"buttcom/internal/model"
	"buttcom/internal/protocol"
	"buttcom/internal/session"
	"buttcom/internal/utils"
)

// Runner opens a session, runs one procedure and always releases the port
type Runner struct {
	registry *Registry
	config   session.Config
	logger   *zap.Logger
	options  []session.Option
}

// NewRunner creates a runner over registry
func NewRunner(registry *Registry, cfg session.Config, logger *zap.Logger, opts ...session.Option) *Runner {
	return &Runner{
		registry: registry,
		config:   cfg,
		logger:   logger,
		options:  opts,
	}
}

// Run executes p on transport. The returned transcript holds every exchange
// made before a failure, so it is non-nil whenever the port was opened.
func (r *Runner) Run(ctx context.Context, transport protocol.Transport, p model.Procedure) (transcript *model.Transcript, err error) {
	fn, err := r.registry.Lookup(p)
	if err != nil {
		return nil, err
	}

	s, err := session.Open(ctx, transport, r.config, r.logger, r.options...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close session: %w", closeErr)
		}
	}()

	procLogger := utils.NewProcedureLogger(r.logger, string(p), s.ID().String())
	procLogger.Start(zap.String("port", s.Port()))

	transcript = model.NewTranscript(s.ID(), p, s.Port())
	runErr := fn(ctx, s)

	for _, ex := range s.Exchanges() {
		transcript.Add(ex)
	}
	transcript.Finish()

	if runErr != nil {
		procLogger.Error(runErr, zap.Int("exchanges", len(transcript.Exchanges)))
		return transcript, fmt.Errorf("procedure %s: %w", p, runErr)
	}

	procLogger.Success(zap.Int("exchanges", len(transcript.Exchanges)))
	return transcript, nil
}
