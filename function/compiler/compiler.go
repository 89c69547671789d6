// Package compiler turns expression text into function.Routine values and caches them by
// content hash. A Compiler is safe for concurrent use and is meant to be shared across
// evaluation runs; routines carry no run state.
package compiler

import (
	"fmt"
	"log/slog"
	"sync"

	starlarkLib "go.starlark.net/starlark"
	"golang.org/x/sync/singleflight"

	"github.com/openagua/go-evaluator/dataset"
	"github.com/openagua/go-evaluator/function"
	"github.com/openagua/go-evaluator/internal/helpers"
)

type entry struct {
	routine *function.Routine
	err     error
}

// Compiler compiles expressions once per (text, type) and remembers the outcome, failures
// included.
type Compiler struct {
	params      []string
	maxSteps    uint64
	predeclared starlarkLib.StringDict
	logHandler  slog.Handler
	logger      *slog.Logger

	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
}

// New creates a Compiler with the provided options.
func New(opts ...FunctionalOption) (*Compiler, error) {
	predeclared := function.Predeclared()
	predeclared.Freeze()

	c := &Compiler{
		predeclared: predeclared,
		entries:     make(map[string]entry),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("error applying compiler option: %w", err)
		}
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid compiler configuration: %w", err)
	}

	c.logHandler, c.logger = helpers.LoggerOrHandler(c.logger, c.logHandler, "compiler", "Compiler")
	return c, nil
}

func (c *Compiler) String() string {
	return "compiler.Compiler"
}

// Key returns the cache key of text compiled for type t.
func Key(text string, t dataset.Type) string {
	return helpers.SHA256Parts(normalize(text), string(t))
}

// Compile returns the routine for text compiled to produce type t. Concurrent calls for
// the same key compile once; a failed compile returns the same *CompileError every time.
func (c *Compiler) Compile(text string, t dataset.Type) (*function.Routine, error) {
	norm := normalize(text)
	key := helpers.SHA256Parts(norm, string(t))

	if e, ok := c.lookup(key); ok {
		return e.routine, e.err
	}

	v, _, _ := c.group.Do(key, func() (any, error) {
		if e, ok := c.lookup(key); ok {
			return e, nil
		}
		r, err := c.compile(key, norm, t)
		e := entry{routine: r, err: err}

		c.mu.Lock()
		c.entries[key] = e
		c.mu.Unlock()
		return e, nil
	})
	e := v.(entry)
	return e.routine, e.err
}

func (c *Compiler) lookup(key string) (entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Len is the number of cached outcomes.
func (c *Compiler) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Purge drops every cached outcome.
func (c *Compiler) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

func (c *Compiler) compile(key, text string, t dataset.Type) (*function.Routine, error) {
	logger := c.logger.With("hash", helpers.ShortID(key), "type", t)

	w, err := wrap(text, c.params)
	if err != nil {
		logger.Warn("Expression rejected", "error", err)
		return nil, err
	}

	f, err := fileOptions.Parse("expression", w.program, 0)
	if err != nil {
		cerr := compileError(text, err, 1)
		logger.Warn("Compilation failed", "error", cerr)
		return nil, cerr
	}

	prog, err := starlarkLib.FileProgram(f, c.predeclared.Has)
	if err != nil {
		cerr := compileError(text, err, 1)
		logger.Warn("Compilation failed", "error", cerr)
		return nil, cerr
	}

	thread := &starlarkLib.Thread{Name: "compile"}
	globals, err := prog.Init(thread, c.predeclared)
	if err != nil {
		cerr := compileError(text, err, 1)
		logger.Warn("Initialization failed", "error", cerr)
		return nil, cerr
	}
	globals.Freeze()

	fn, ok := globals[function.RoutineName].(*starlarkLib.Function)
	if !ok {
		return nil, &CompileError{Text: text, Msg: ErrNoRoutine.Error(), Err: ErrNoRoutine}
	}

	r, err := function.NewRoutine(fn, function.Definition{
		Hash:     key,
		Source:   text,
		Type:     t,
		Refs:     w.refs,
		MaxSteps: c.maxSteps,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("Expression compiled", "params", w.params)
	return r, nil
}
