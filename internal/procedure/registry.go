// internal/procedure/registry.go
package procedure

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"buttcom/internal/model"
	"buttcom/internal/session"
)

// ErrUnknownProcedure is returned for a procedure nobody registered
var ErrUnknownProcedure = errors.New("unknown procedure")

// Func is one scripted, non-branching interaction with the device
type Func func(ctx context.Context, s *session.Session) error

// Registry maps procedure names to their implementation
type Registry struct {
	procedures map[model.Procedure]Func
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		procedures: make(map[model.Procedure]Func),
		logger:     logger,
	}
}

// Register adds or replaces a procedure
func (r *Registry) Register(p model.Procedure, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.procedures[p] = fn
	r.logger.Debug("Procedure registered", zap.String("procedure", string(p)))
}

// Lookup returns the implementation of p
func (r *Registry) Lookup(p model.Procedure) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.procedures[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcedure, p)
	}
	return fn, nil
}

// List returns the registered procedures sorted by name
func (r *Registry) List() []model.Procedure {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Procedure, 0, len(r.procedures))
	for p := range r.procedures {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RegisterDefaultProcedures registers the bench procedures
func RegisterDefaultProcedures(registry *Registry) {
	registry.Register(model.ProcedureSendHello, SendHello)
	registry.Register(model.ProcedureDisableLogging, DisableLogging)
	registry.Register(model.ProcedureCalibrate, Calibrate)
	registry.Register(model.ProcedureConsole, Console)
}
