// Package emitter publishes scan results to logs, metrics and files.
package emitter

import (
	"context"
	"errors"

	"github.com/LeoncioXavier/elasticache-inventory/internal/orchestrator"
)

// Emitter outputs a finished run to a backend.
type Emitter interface {
	// Emit publishes the result of one run.
	Emit(ctx context.Context, result *orchestrator.Result) error

	// Close cleans up resources.
	Close() error
}

// MultiEmitter fans out to multiple emitters.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates an emitter that sends to multiple backends.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit sends to every emitter and joins their errors.
func (m *MultiEmitter) Emit(ctx context.Context, result *orchestrator.Result) error {
	var errs []error
	for _, e := range m.emitters {
		if err := e.Emit(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every emitter and joins their errors.
func (m *MultiEmitter) Close() error {
	var errs []error
	for _, e := range m.emitters {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
