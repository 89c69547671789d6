package engine

import (
	"errors"
	"fmt"

	"github.com/openagua/go-evaluator/internal/helpers"
)

var (
	ErrInvalidOffset      = errors.New("reference offset is outside the calendar")
	ErrCyclicReference    = errors.New("cyclic reference")
	ErrMaxDepth           = errors.New("reference nesting is too deep")
	ErrExternalRead       = errors.New("external read failed")
	ErrNotFound           = errors.New("resource attribute not found")
	ErrNoDataAccess       = errors.New("no data access configured")
	ErrNoTableReader      = errors.New("no table reader configured")
	ErrInvalidResult      = errors.New("expression returned a value of the wrong shape")
	ErrNoCalendar         = errors.New("no calendar available for a time-varying dataset")
	ErrBatchAborted       = errors.New("batch aborted")
	ErrNoDataset          = errors.New("dataset is nil")
	ErrUnknownAggregation = errors.New("unknown aggregation")
)

// lenientHint is appended to errors recovered after the first step. Such errors often
// come from data that exists only once a model has run.
const lenientHint = "This error was encountered after the first time step, and might not occur during a model run."

// EvaluationError is a failure of a function-based dataset in strict mode. Date is empty
// for datasets that are not time-varying.
type EvaluationError struct {
	Hash       string
	Date       string
	Expression string
	Err        error
}

func (e *EvaluationError) Error() string {
	if e.Date == "" {
		return fmt.Sprintf("evaluation of %s failed: %v", helpers.ShortID(e.Hash), e.Err)
	}
	return fmt.Sprintf("evaluation of %s failed at date %s: %v", helpers.ShortID(e.Hash), e.Date, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}
