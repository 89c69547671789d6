package compiler

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/openagua/go-evaluator/function"
)

// FunctionalOption is a function that configures a Compiler instance
type FunctionalOption func(*Compiler) error

// WithParamNames replaces the recognized context parameter names. Names that the
// expression text does not mention are never bound.
func WithParamNames(names []string) FunctionalOption {
	return func(c *Compiler) error {
		if len(names) == 0 {
			return fmt.Errorf("parameter names cannot be empty")
		}
		c.params = slices.Clone(names)
		return nil
	}
}

// WithMaxSteps bounds the number of Starlark execution steps of a single routine call.
// Zero means unbounded.
func WithMaxSteps(n uint64) FunctionalOption {
	return func(c *Compiler) error {
		c.maxSteps = n
		return nil
	}
}

// WithLogHandler creates an option to set the log handler for the compiler.
func WithLogHandler(handler slog.Handler) FunctionalOption {
	return func(c *Compiler) error {
		if handler == nil {
			return fmt.Errorf("log handler cannot be nil")
		}
		c.logHandler = handler
		c.logger = nil
		return nil
	}
}

// WithLogger creates an option to set a specific logger for the compiler.
func WithLogger(logger *slog.Logger) FunctionalOption {
	return func(c *Compiler) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = logger
		c.logHandler = nil
		return nil
	}
}

func (c *Compiler) validate() error {
	if c.logHandler == nil && c.logger == nil {
		return fmt.Errorf("either log handler or logger must be specified")
	}
	for _, p := range c.params {
		if p == function.RoutineName || c.predeclared.Has(p) {
			return fmt.Errorf("parameter name %q shadows a predeclared name", p)
		}
	}
	return nil
}

func (c *Compiler) applyDefaults() {
	if c.logHandler == nil && c.logger == nil {
		c.logHandler = slog.NewTextHandler(os.Stderr, nil)
	}
	if c.params == nil {
		c.params = slices.Clone(function.ContextParams)
	}
}
