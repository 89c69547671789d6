package engine

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/openagua/go-evaluator/function/compiler"
)

// GuardScope selects how cross-resource references are checked for cycles.
type GuardScope int

const (
	// GuardChain rejects a key already anywhere in the chain of in-flight resolutions.
	GuardChain GuardScope = iota
	// GuardParent rejects only a key equal to the immediate parent of the requesting
	// attribute. Longer cycles run until the depth limit.
	GuardParent
)

func (g GuardScope) String() string {
	switch g {
	case GuardChain:
		return "chain"
	case GuardParent:
		return "parent"
	default:
		return fmt.Sprintf("GuardScope(%d)", int(g))
	}
}

// ParseGuardScope converts a configuration value into a GuardScope.
func ParseGuardScope(s string) (GuardScope, error) {
	switch s {
	case "", "chain":
		return GuardChain, nil
	case "parent":
		return GuardParent, nil
	default:
		return 0, fmt.Errorf("unknown guard scope %q", s)
	}
}

// ErrorPolicy is what a lenient evaluation does after a step fails.
type ErrorPolicy int

const (
	// ContinueOnError gives each failing step the default value and keeps calling the
	// routine for later steps.
	ContinueOnError ErrorPolicy = iota
	// DefaultRemainder gives the failing step and every later step the default value
	// without calling the routine again.
	DefaultRemainder
)

func (p ErrorPolicy) String() string {
	switch p {
	case ContinueOnError:
		return "continue"
	case DefaultRemainder:
		return "default-remainder"
	default:
		return fmt.Sprintf("ErrorPolicy(%d)", int(p))
	}
}

// ParseErrorPolicy converts a configuration value into an ErrorPolicy.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch s {
	case "", "continue":
		return ContinueOnError, nil
	case "default-remainder", "remainder":
		return DefaultRemainder, nil
	default:
		return 0, fmt.Errorf("unknown error policy %q", s)
	}
}

// DefaultMaxDepth bounds the nesting of cross-resource references.
const DefaultMaxDepth = 16

// Option is a function that configures an Engine instance.
type Option func(*Engine) error

// WithDataAccess sets the collaborator used to fetch referenced datasets and scenario
// calendars.
func WithDataAccess(d DataAccess) Option {
	return func(e *Engine) error {
		if d == nil {
			return fmt.Errorf("data access cannot be nil")
		}
		e.data = d
		return nil
	}
}

// WithTableReader sets the reader behind read_csv.
func WithTableReader(r TableReader) Option {
	return func(e *Engine) error {
		if r == nil {
			return fmt.Errorf("table reader cannot be nil")
		}
		e.tables = r
		return nil
	}
}

// WithCompiler shares a compiler, and its routine cache, with other engines.
func WithCompiler(c *compiler.Compiler) Option {
	return func(e *Engine) error {
		if c == nil {
			return fmt.Errorf("compiler cannot be nil")
		}
		e.compiler = c
		return nil
	}
}

// WithDefaultValue sets the value substituted for failed or empty steps.
func WithDefaultValue(v float64) Option {
	return func(e *Engine) error {
		e.defaultValue = v
		return nil
	}
}

// WithGuardScope sets the cycle check of cross-resource references.
func WithGuardScope(g GuardScope) Option {
	return func(e *Engine) error {
		if g != GuardChain && g != GuardParent {
			return fmt.Errorf("invalid guard scope: %s", g)
		}
		e.guard = g
		return nil
	}
}

// WithMaxDepth bounds the nesting of cross-resource references.
func WithMaxDepth(n int) Option {
	return func(e *Engine) error {
		if n < 1 {
			return fmt.Errorf("max depth must be positive, got %d", n)
		}
		e.maxDepth = n
		return nil
	}
}

// WithErrorPolicy sets what lenient evaluations do after a failing step.
func WithErrorPolicy(p ErrorPolicy) Option {
	return func(e *Engine) error {
		if p != ContinueOnError && p != DefaultRemainder {
			return fmt.Errorf("invalid error policy: %s", p)
		}
		e.policy = p
		return nil
	}
}

// WithConcurrency bounds the number of runs EvaluateBatch executes at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) error {
		if n < 1 {
			return fmt.Errorf("concurrency must be positive, got %d", n)
		}
		e.concurrency = n
		return nil
	}
}

// WithLogHandler creates an option to set the log handler for the engine.
func WithLogHandler(handler slog.Handler) Option {
	return func(e *Engine) error {
		if handler == nil {
			return fmt.Errorf("log handler cannot be nil")
		}
		e.logHandler = handler
		e.logger = nil
		return nil
	}
}

// WithLogger creates an option to set a specific logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		e.logger = logger
		e.logHandler = nil
		return nil
	}
}

func (e *Engine) applyDefaults() {
	if e.logHandler == nil && e.logger == nil {
		e.logHandler = slog.NewTextHandler(os.Stderr, nil)
	}
	if e.maxDepth == 0 {
		e.maxDepth = DefaultMaxDepth
	}
	if e.concurrency == 0 {
		e.concurrency = runtime.GOMAXPROCS(0)
	}
}

func (e *Engine) validate() error {
	if e.logHandler == nil && e.logger == nil {
		return fmt.Errorf("either log handler or logger must be specified")
	}
	return nil
}
