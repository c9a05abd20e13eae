package tutorial

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/born-ml/mnist-tutorial/internal/config"
	"github.com/born-ml/mnist-tutorial/internal/dataset"
	"github.com/born-ml/mnist-tutorial/internal/model"
	"github.com/born-ml/mnist-tutorial/internal/trainer"
	"github.com/born-ml/mnist-tutorial/internal/visor"
)

// Failure kinds. Every one of them ends the run.
var (
	// ErrDataLoad: the dataset could not be fetched or decoded.
	ErrDataLoad = errors.New("data load failed")
	// ErrConfig: shapes or settings are inconsistent.
	ErrConfig = errors.New("configuration error")
	// ErrNumeric: training produced non-finite values.
	ErrNumeric = errors.New("numeric failure")
)

// StageError reports which pipeline stage failed. Kind is one of the failure kinds
// above, or nil for cancellation and output I/O failures.
type StageError struct {
	Stage string
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	if e.Kind != nil {
		return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap exposes both Kind and Err to errors.Is and errors.As.
func (e *StageError) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Err}
	}
	return []error{e.Kind, e.Err}
}

// classify maps a lower-level error to a failure kind, falling back to fallback.
func classify(err, fallback error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil
	case errors.Is(err, trainer.ErrNumericInstability):
		return ErrNumeric
	case errors.Is(err, model.ErrShape),
		errors.Is(err, config.ErrInvalid),
		errors.Is(err, trainer.ErrInvalidOptions),
		errors.Is(err, visor.ErrSurface),
		errors.Is(err, visor.ErrUnknownMetric):
		return ErrConfig
	case errors.Is(err, dataset.ErrChecksum),
		errors.Is(err, dataset.ErrInvalidMagic),
		errors.Is(err, dataset.ErrInvalidHeader),
		errors.Is(err, dataset.ErrNotLoaded),
		errors.Is(err, os.ErrNotExist):
		return ErrDataLoad
	default:
		return fallback
	}
}

// stage runs fn, converting both returned errors and panics into a *StageError.
// panicKind is the failure kind reported for a panic.
func stage(name string, fallback, panicKind error, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Stage: name, Kind: panicKind, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := fn(); err != nil {
		return &StageError{Stage: name, Kind: classify(err, fallback), Err: err}
	}
	return nil
}
