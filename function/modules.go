package function

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	starlarkJSON "go.starlark.net/lib/json"
	starlarkMath "go.starlark.net/lib/math"
	starlarkTime "go.starlark.net/lib/time"
	starlarkLib "go.starlark.net/starlark"

	"github.com/openagua/go-evaluator/timestep"
)

// Module namespaces available to every expression.
const (
	namespaceJSON = "json"
	namespaceMath = "math"
	namespaceTime = "time"
)

// threadLocalCall is the key under which a routine call stores its *callState on the thread.
const threadLocalCall = "evaluator.call"

type callState struct {
	ctx context.Context
	cc  *CallContext
}

// Predeclared returns the names every routine may reference without binding them: the
// Starlark universe, the json/math/time modules, and the data builtins. The returned dict
// is a fresh copy.
func Predeclared() starlarkLib.StringDict {
	universe := maps.Clone(starlarkLib.Universe)

	universe[namespaceJSON] = starlarkJSON.Module
	universe[namespaceMath] = starlarkMath.Module
	universe[namespaceTime] = starlarkTime.Module

	universe[BuiltinGet] = starlarkLib.NewBuiltin(BuiltinGet, getBuiltin)
	universe[BuiltinGetLow] = starlarkLib.NewBuiltin(BuiltinGetLow, getBuiltin)
	universe[BuiltinReadCSV] = starlarkLib.NewBuiltin(BuiltinReadCSV, readCSVBuiltin)
	universe[BuiltinIsNaN] = starlarkLib.NewBuiltin(BuiltinIsNaN, isNaNBuiltin)
	universe[BuiltinLog] = starlarkLib.NewBuiltin(BuiltinLog, logBuiltin)

	return universe
}

func currentCall(thread *starlarkLib.Thread, name string) (*callState, error) {
	st, ok := thread.Local(threadLocalCall).(*callState)
	if !ok || st == nil || st.cc == nil || st.cc.Host == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrNoHost)
	}
	return st, nil
}

// getBuiltin implements GET(key, offset=0, start=None, end=None, agg="mean", default=None,
// flatten=True). Context parameter names passed as keywords (GET(key, **kwargs)) are
// accepted and ignored; the current step always comes from the calling routine.
func getBuiltin(
	thread *starlarkLib.Thread,
	b *starlarkLib.Builtin,
	args starlarkLib.Tuple,
	kwargs []starlarkLib.Tuple,
) (starlarkLib.Value, error) {
	filtered := make([]starlarkLib.Tuple, 0, len(kwargs))
	for _, kv := range kwargs {
		if name, ok := starlarkLib.AsString(kv[0]); ok && slices.Contains(ContextParams, name) {
			continue
		}
		filtered = append(filtered, kv)
	}

	var (
		key     string
		offset  int
		start   starlarkLib.Value = starlarkLib.None
		end     starlarkLib.Value = starlarkLib.None
		agg                       = "mean"
		def     starlarkLib.Value
		flatten = true
	)
	if err := starlarkLib.UnpackArgs(b.Name(), args, filtered,
		"key", &key,
		"offset?", &offset,
		"start?", &start,
		"end?", &end,
		"agg?", &agg,
		"default?", &def,
		"flatten?", &flatten,
	); err != nil {
		return nil, err
	}

	st, err := currentCall(thread, b.Name())
	if err != nil {
		return nil, err
	}

	req := GetRequest{
		Key:     strings.TrimSpace(key),
		Offset:  offset,
		Agg:     agg,
		Flatten: flatten,
	}
	if req.Start, err = dateArg(start); err != nil {
		return nil, fmt.Errorf("%s: start: %w", b.Name(), err)
	}
	if req.End, err = dateArg(end); err != nil {
		return nil, fmt.Errorf("%s: end: %w", b.Name(), err)
	}
	if def != nil {
		req.HasDefault = true
		if req.Default, err = ToGo(def); err != nil {
			return nil, fmt.Errorf("%s: default: %w", b.Name(), err)
		}
	}

	v, err := st.cc.Host.Get(st.ctx, st.cc, req)
	if err != nil {
		return nil, err
	}
	return FromGo(v)
}

// readCSVBuiltin implements read_csv(locator, **options).
func readCSVBuiltin(
	thread *starlarkLib.Thread,
	b *starlarkLib.Builtin,
	args starlarkLib.Tuple,
	kwargs []starlarkLib.Tuple,
) (starlarkLib.Value, error) {
	var locator string
	if err := starlarkLib.UnpackPositionalArgs(b.Name(), args, nil, 1, &locator); err != nil {
		return nil, err
	}

	opts := make(map[string]any, len(kwargs))
	for _, kv := range kwargs {
		name, _ := starlarkLib.AsString(kv[0])
		v, err := ToGo(kv[1])
		if err != nil {
			return nil, fmt.Errorf("%s: option %s: %w", b.Name(), name, err)
		}
		opts[name] = v
	}

	st, err := currentCall(thread, b.Name())
	if err != nil {
		return nil, err
	}

	v, err := st.cc.Host.ReadCSV(st.ctx, st.cc, locator, opts)
	if err != nil {
		return nil, err
	}
	return FromGo(v)
}

func isNaNBuiltin(
	_ *starlarkLib.Thread,
	b *starlarkLib.Builtin,
	args starlarkLib.Tuple,
	kwargs []starlarkLib.Tuple,
) (starlarkLib.Value, error) {
	var x starlarkLib.Value
	if err := starlarkLib.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	if x == starlarkLib.None {
		return starlarkLib.True, nil
	}
	f, ok := starlarkLib.AsFloat(x)
	if !ok {
		return nil, fmt.Errorf("%s: got %s, want number", b.Name(), x.Type())
	}
	return starlarkLib.Bool(math.IsNaN(f)), nil
}

// logBuiltin is math.log kept at the top level, since expressions commonly call log(x)
// bare.
func logBuiltin(
	_ *starlarkLib.Thread,
	b *starlarkLib.Builtin,
	args starlarkLib.Tuple,
	kwargs []starlarkLib.Tuple,
) (starlarkLib.Value, error) {
	var x starlarkLib.Value
	var base starlarkLib.Value = starlarkLib.None
	if err := starlarkLib.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x, &base); err != nil {
		return nil, err
	}
	f, ok := starlarkLib.AsFloat(x)
	if !ok {
		return nil, fmt.Errorf("%s: got %s, want number", b.Name(), x.Type())
	}
	if base == starlarkLib.None {
		return starlarkLib.Float(math.Log(f)), nil
	}
	bf, ok := starlarkLib.AsFloat(base)
	if !ok {
		return nil, fmt.Errorf("%s: got base %s, want number", b.Name(), base.Type())
	}
	return starlarkLib.Float(math.Log(f) / math.Log(bf)), nil
}

func dateArg(v starlarkLib.Value) (time.Time, error) {
	switch v := v.(type) {
	case starlarkLib.NoneType:
		return time.Time{}, nil
	case starlarkTime.Time:
		return time.Time(v), nil
	case starlarkLib.String:
		return timestep.ParseDate(string(v))
	default:
		return time.Time{}, fmt.Errorf("%w: %s is not a date", ErrUnsupported, v.Type())
	}
}
