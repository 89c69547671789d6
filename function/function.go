// Package function holds compiled expression routines and the context they run in.
//
// A Routine is the compiled form of one expression text. It receives only the context
// parameters its text references and reaches data through the Host bound to each call; it
// has no access to the engine that runs it.
package function

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	starlarkTime "go.starlark.net/lib/time"
	starlarkLib "go.starlark.net/starlark"

	"github.com/openagua/go-evaluator/dataset"
	"github.com/openagua/go-evaluator/internal/helpers"
	"github.com/openagua/go-evaluator/timestep"
)

// Host serves the data builtins of one evaluation run.
type Host interface {
	// Get resolves a GET(key, ...) call made at cc.
	Get(ctx context.Context, cc *CallContext, req GetRequest) (any, error)

	// ReadCSV resolves a read_csv(locator, **opts) call made at cc.
	ReadCSV(ctx context.Context, cc *CallContext, locator string, opts map[string]any) (any, error)
}

// GetRequest carries the arguments of a GET call.
type GetRequest struct {
	Key        string
	Offset     int
	Start      time.Time
	End        time.Time
	Agg        string
	Default    any
	HasDefault bool
	Flatten    bool
}

// HasRange reports whether the request aggregates over a date range.
func (r GetRequest) HasRange() bool {
	return !r.Start.IsZero() || !r.End.IsZero()
}

// CallContext is the context a routine is called with. Timestep is nil for calls that are
// not bound to a step.
type CallContext struct {
	Timestep  *timestep.Timestep
	Depth     int
	ParentKey string
	Flavor    string
	StartDate time.Time
	EndDate   time.Time
	Host      Host
	Logger    *slog.Logger
}

// Definition describes a compiled routine.
type Definition struct {
	Hash   string
	Source string
	Type   dataset.Type
	// Refs lists the data builtins the source references.
	Refs     []string
	MaxSteps uint64
}

// Routine is a compiled expression. It is immutable and safe to call concurrently.
type Routine struct {
	hash     string
	source   string
	typ      dataset.Type
	params   []string
	refs     []string
	maxSteps uint64
	fn       *starlarkLib.Function
}

// NewRoutine wraps a frozen Starlark function. The routine's parameters are read from the
// function's signature.
func NewRoutine(fn *starlarkLib.Function, def Definition) (*Routine, error) {
	if fn == nil {
		return nil, ErrRoutineNil
	}
	params := make([]string, 0, fn.NumParams())
	for i := range fn.NumParams() {
		name, _ := fn.Param(i)
		params = append(params, name)
	}
	return &Routine{
		hash:     def.Hash,
		source:   def.Source,
		typ:      def.Type,
		params:   params,
		refs:     slices.Clone(def.Refs),
		maxSteps: def.MaxSteps,
		fn:       fn,
	}, nil
}

func (r *Routine) String() string {
	return fmt.Sprintf("Routine{%s %s params=%v}", helpers.ShortID(r.hash), r.typ, r.params)
}

// Hash is the cache key of the routine.
func (r *Routine) Hash() string { return r.hash }

// Source is the expression text as written.
func (r *Routine) Source() string { return r.source }

// Type is the data type the routine was compiled for.
func (r *Routine) Type() dataset.Type { return r.typ }

// Params returns the context parameters bound to the routine.
func (r *Routine) Params() []string { return slices.Clone(r.params) }

// Uses reports whether the routine binds the named context parameter or references the
// named builtin.
func (r *Routine) Uses(name string) bool {
	return slices.Contains(r.params, name) || slices.Contains(r.refs, name)
}

// StepInvariant reports whether the routine reads nothing that changes between steps. It
// is decided from the signature and the referenced builtins only: a routine that binds
// timestep inside a branch that never runs is still treated as step-dependent, and one
// that derives a step-dependent value some other way is not detected.
func (r *Routine) StepInvariant() bool {
	for _, name := range []string{ParamTimestep, ParamDate, ParamWaterYear, ParamKwargs, BuiltinGet, BuiltinGetLow} {
		if r.Uses(name) {
			return false
		}
	}
	return true
}

// Call runs the routine once. Cancelling ctx interrupts the routine at its next step.
func (r *Routine) Call(ctx context.Context, cc CallContext) (any, error) {
	if r == nil || r.fn == nil {
		return nil, ErrRoutineNil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := cc.Logger
	if logger == nil {
		logger = slog.Default()
	}

	thread := &starlarkLib.Thread{
		Name: helpers.ShortID(r.hash),
		Print: func(thread *starlarkLib.Thread, msg string) {
			logger.InfoContext(ctx, msg, "routine", thread.Name)
		},
	}
	thread.SetLocal(threadLocalCall, &callState{ctx: ctx, cc: &cc})
	if r.maxSteps > 0 {
		thread.SetMaxExecutionSteps(r.maxSteps)
	}

	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(context.Cause(ctx).Error())
	})
	defer stop()

	kwargs := r.bind(cc)
	v, err := starlarkLib.Call(thread, r.fn, nil, kwargs)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("routine %s interrupted: %w", thread.Name, ctxErr)
		}
		return nil, runtimeError(err)
	}

	out, err := ToGo(v)
	if err != nil {
		return nil, &RuntimeError{Msg: err.Error(), Err: err}
	}
	return out, nil
}

// bind builds the keyword arguments for the parameters the routine declares.
func (r *Routine) bind(cc CallContext) []starlarkLib.Tuple {
	kwargs := make([]starlarkLib.Tuple, 0, len(r.params))
	for _, name := range r.params {
		var v starlarkLib.Value
		if name == ParamKwargs {
			d := starlarkLib.NewDict(len(ContextParams))
			for _, p := range ContextParams {
				_ = d.SetKey(starlarkLib.String(p), contextValue(p, cc))
			}
			v = d
		} else {
			v = contextValue(name, cc)
		}
		kwargs = append(kwargs, starlarkLib.Tuple{starlarkLib.String(name), v})
	}
	return kwargs
}

func contextValue(name string, cc CallContext) starlarkLib.Value {
	switch name {
	case ParamTimestep:
		if cc.Timestep != nil {
			return timestepValue(*cc.Timestep)
		}
	case ParamDate:
		if cc.Timestep != nil {
			return starlarkTime.Time(cc.Timestep.Date)
		}
	case ParamWaterYear:
		if cc.Timestep != nil {
			return starlarkLib.MakeInt(cc.Timestep.WaterYear)
		}
	case ParamDepth:
		return starlarkLib.MakeInt(cc.Depth)
	case ParamParentKey:
		if cc.ParentKey != "" {
			return starlarkLib.String(cc.ParentKey)
		}
	case ParamFlavor:
		if cc.Flavor != "" {
			return starlarkLib.String(cc.Flavor)
		}
	case ParamStartDate:
		if !cc.StartDate.IsZero() {
			return starlarkTime.Time(cc.StartDate)
		}
	case ParamEndDate:
		if !cc.EndDate.IsZero() {
			return starlarkTime.Time(cc.EndDate)
		}
	}
	return starlarkLib.None
}

// runtimeError converts a Starlark failure into a *RuntimeError. Positions inside the
// wrapped routine are one line below the user's text.
func runtimeError(err error) error {
	var evalErr *starlarkLib.EvalError
	if !errors.As(err, &evalErr) {
		return &RuntimeError{Msg: err.Error(), Err: err}
	}
	line := 0
	for i := len(evalErr.CallStack) - 1; i >= 0; i-- {
		fr := evalErr.CallStack[i]
		if fr.Name == RoutineName {
			line = int(fr.Pos.Line) - 1
			break
		}
	}
	return &RuntimeError{Line: line, Msg: evalErr.Msg, Err: evalErr}
}
