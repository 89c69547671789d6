package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openagua/go-evaluator/dataset"
	"github.com/openagua/go-evaluator/format"
	"github.com/openagua/go-evaluator/function"
	"github.com/openagua/go-evaluator/function/compiler"
	"github.com/openagua/go-evaluator/timestep"
)

// Stats counts the work done by a run.
type Stats struct {
	// Calls is the number of routine invocations.
	Calls int
	// MemoHits is the number of results served from the run's caches.
	MemoHits int
	// Fetches is the number of datasets fetched for cross-resource references.
	Fetches int
	// ExternalReads is the number of tables read for read_csv.
	ExternalReads int
}

type outcome struct {
	value any
	err   error
}

type stepOutcome struct {
	blocks dataset.Blocks
	err    error
}

// memo holds the results of one routine. whole is the single call of a routine that is
// not evaluated per step; steps holds per-date results.
type memo struct {
	whole *outcome
	steps map[string]stepOutcome
}

// frame is one dataset being evaluated. The chain of frames is the set of in-flight
// resolutions.
type frame struct {
	key     string
	hash    string
	cal     *timestep.Calendar
	routine *function.Routine
}

// Run is the state of one scenario evaluation: the memoized routine results, the resolved
// cross-resource references and the tables read by expressions. A Run is not safe for
// concurrent use.
type Run struct {
	id     string
	engine *Engine
	req    Request
	logger *slog.Logger

	settings *timestep.Settings
	full     *timestep.Calendar
	periodic *timestep.Calendar

	hashStore map[string]*memo
	crossRefs map[string]*crossRef
	derived   map[string]any
	external  map[string]outcome

	chain    []frame
	warnings []Warning
	stats    Stats
}

var _ function.Host = (*Run)(nil)

func newRun(e *Engine, req Request) *Run {
	id := uuid.NewString()
	r := &Run{
		id:        id,
		engine:    e,
		req:       req,
		logger:    e.logger.With("run", id, "scenario", req.ScenarioID),
		hashStore: make(map[string]*memo),
		crossRefs: make(map[string]*crossRef),
		derived:   make(map[string]any),
		external:  make(map[string]outcome),
	}
	if req.Key != "" {
		if _, key, err := r.resolveKey(req.Key); err == nil {
			r.req.Key = key
		}
	}
	return r
}

func (r *Run) String() string {
	return fmt.Sprintf("engine.Run{%s}", r.id)
}

// ID is the unique identifier of the run.
func (r *Run) ID() string { return r.id }

// Stats returns the counters of the run so far.
func (r *Run) Stats() Stats { return r.stats }

// Evaluate evaluates ds within the run, reusing everything the run has already computed.
func (r *Run) Evaluate(ctx context.Context, ds *dataset.Dataset) (*Result, error) {
	return r.evaluateTop(ctx, ds, r.req.Key)
}

// EvaluateKey fetches the dataset of a resource attribute key in the run's scenario and
// evaluates it.
func (r *Run) EvaluateKey(ctx context.Context, key string) (*Result, error) {
	ref, canonical, err := r.resolveKey(key)
	if err != nil {
		return nil, err
	}
	ds, err := r.fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	return r.evaluateTop(ctx, ds, canonical)
}

func (r *Run) evaluateTop(ctx context.Context, ds *dataset.Dataset, key string) (*Result, error) {
	if ds == nil {
		return nil, ErrNoDataset
	}
	logger := r.logger.With("dataset", ds.String(), "key", key)
	mark := len(r.warnings)

	cal, err := r.calendar(ctx, ds.Type, true)
	if err != nil && (ds.UsesFunction() || !errors.Is(err, ErrNoCalendar)) {
		logger.ErrorContext(ctx, "Calendar unavailable", "error", err)
		return nil, err
	}
	v, hash, err := r.evaluate(ctx, ds, key, cal)
	if err != nil {
		logger.ErrorContext(ctx, "Evaluation aborted", "error", err)
		return nil, err
	}
	if ds.Type == dataset.Timeseries && !ds.UsesFunction() {
		v.Series = restrict(v.Series, r.req.Window)
	}
	if r.req.Flatten {
		v = v.Flatten()
	}

	res := &Result{
		Value:    v,
		Warnings: slices.Clone(r.warnings[mark:]),
		Hash:     hash,
		RunID:    r.id,
		Stats:    r.stats,
	}
	for _, w := range res.Warnings {
		if w.Key != key || w.Hash != hash || w.Date == "" {
			continue
		}
		if res.CellErrors == nil {
			res.CellErrors = make(map[string]string)
		}
		res.CellErrors[w.Date] = w.Message
	}
	if len(res.Warnings) > 0 {
		logger.WarnContext(ctx, "Evaluation recovered from errors", "warnings", len(res.Warnings))
	}

	res.Output, err = format.Render(v, r.req.Flavor, format.Options{Flatten: r.req.Flatten, CellErrors: res.CellErrors})
	if err != nil {
		return nil, err
	}
	logger.DebugContext(ctx, "Dataset evaluated", "calls", r.stats.Calls, "memoHits", r.stats.MemoHits)
	return res, nil
}

// calendar returns the steps a dataset of type t is evaluated over: nil for types that do
// not vary in time, the reference-year calendar for periodic series, and otherwise the
// scenario calendar, narrowed to the request window when top is set.
func (r *Run) calendar(ctx context.Context, t dataset.Type, top bool) (*timestep.Calendar, error) {
	if !t.IsTimeVarying() {
		return nil, nil
	}
	s, err := r.calendarSettings(ctx)
	if err != nil {
		return nil, err
	}

	if t == dataset.PeriodicTimeseries {
		if r.periodic == nil {
			ps := s
			ps.Periodic = true
			if r.periodic, err = timestep.Build(ps); err != nil {
				return nil, err
			}
		}
		return r.periodic, nil
	}

	if r.full == nil {
		if r.full, err = timestep.Build(s); err != nil {
			return nil, err
		}
	}
	if top {
		return r.full.Window(r.req.Window.Start, r.req.Window.End), nil
	}
	return r.full, nil
}

func (r *Run) calendarSettings(ctx context.Context) (timestep.Settings, error) {
	if r.settings != nil {
		return *r.settings, nil
	}
	var s timestep.Settings
	switch {
	case r.req.Calendar != nil:
		s = *r.req.Calendar
	case r.engine.data != nil:
		var err error
		if s, err = r.engine.data.FetchScenarioCalendar(ctx, r.req.ScenarioID); err != nil {
			return timestep.Settings{}, fmt.Errorf("scenario %d calendar: %w", r.req.ScenarioID, err)
		}
	default:
		return timestep.Settings{}, ErrNoCalendar
	}
	s.Periodic = false
	r.settings = &s
	return s, nil
}

// evaluate produces the value of ds over cal. The returned hash is that of the compiled
// routine, empty for native datasets.
func (r *Run) evaluate(ctx context.Context, ds *dataset.Dataset, key string, cal *timestep.Calendar) (dataset.Value, string, error) {
	if err := ds.Validate(); err != nil {
		return dataset.Value{}, "", err
	}
	if !ds.UsesFunction() {
		return r.native(ctx, ds, key, cal), "", nil
	}

	routine, err := r.engine.compiler.Compile(ds.Metadata.Function, ds.Type)
	if err != nil {
		return dataset.Value{}, compiler.Key(ds.Metadata.Function, ds.Type), err
	}

	r.chain = append(r.chain, frame{key: key, hash: routine.Hash(), cal: cal, routine: routine})
	defer func() {
		r.chain = r.chain[:len(r.chain)-1]
	}()

	var v dataset.Value
	switch {
	case !ds.Type.IsTimeVarying():
		v, err = r.evaluateOnce(ctx, routine, key)
	case routine.StepInvariant():
		v, err = r.evaluateInvariant(ctx, routine, key, cal)
	default:
		v, err = r.evaluateSteps(ctx, routine, key, cal)
	}
	return v, routine.Hash(), err
}

func (r *Run) native(ctx context.Context, ds *dataset.Dataset, key string, cal *timestep.Calendar) dataset.Value {
	opts := dataset.DecodeOptions{
		Default: r.engine.defaultValue,
		Fill:    r.req.FillValue,
		NBlocks: 1,
	}
	if cal != nil {
		opts.Dates = cal.Keys()
	}
	v, err := dataset.Decode(ds.Value, ds.Type, opts)
	if err != nil {
		r.warn(ctx, Warning{Key: key, Message: err.Error()})
		return dataset.Empty(ds.Type)
	}
	return v
}

// evaluateOnce runs a routine of a type that does not vary in time.
func (r *Run) evaluateOnce(ctx context.Context, routine *function.Routine, key string) (dataset.Value, error) {
	out := r.callWhole(ctx, routine)
	var v dataset.Value
	err := out.err
	if err == nil {
		v, err = wholeValue(routine.Type(), out.value)
	}
	if err != nil {
		if isFatal(err) {
			return dataset.Value{}, err
		}
		if r.req.Strict {
			return dataset.Value{}, &EvaluationError{Hash: routine.Hash(), Expression: routine.Source(), Err: err}
		}
		r.warn(ctx, Warning{Key: key, Hash: routine.Hash(), Message: err.Error()})
		return dataset.Empty(routine.Type()), nil
	}
	return v, nil
}

// evaluateInvariant runs a time-varying routine that reads nothing step-dependent. It is
// called once, whatever the length of the calendar.
func (r *Run) evaluateInvariant(ctx context.Context, routine *function.Routine, key string, cal *timestep.Calendar) (dataset.Value, error) {
	out := r.callWhole(ctx, routine)
	var v dataset.Value
	err := out.err
	if err == nil {
		v, err = r.invariantValue(routine.Type(), out.value, cal)
	}
	if err != nil {
		if isFatal(err) {
			return dataset.Value{}, err
		}
		if r.req.Strict {
			return dataset.Value{}, &EvaluationError{Hash: routine.Hash(), Expression: routine.Source(), Err: err}
		}
		r.warn(ctx, Warning{Key: key, Hash: routine.Hash(), Message: err.Error()})
		return dataset.SeriesValue(routine.Type(), dataset.DefaultSeries(cal.Keys(), 1, r.engine.defaultValue)), nil
	}
	return v, nil
}

// evaluateSteps calls a routine for every step of cal, in order, checking for
// cancellation before each step.
func (r *Run) evaluateSteps(ctx context.Context, routine *function.Routine, key string, cal *timestep.Calendar) (dataset.Value, error) {
	m := r.memo(routine.Hash())
	logger := r.logger.With("hash", routine.String())
	series := make(dataset.Series, cal.Len())
	failed := false

	for _, step := range cal.Steps() {
		if err := ctx.Err(); err != nil {
			return dataset.Value{}, err
		}
		date := step.Key()

		o, ok := m.steps[date]
		switch {
		case ok:
			r.stats.MemoHits++
		case failed && r.engine.policy == DefaultRemainder:
			series[date] = r.defaultBlocks()
			continue
		default:
			raw, err := r.call(ctx, routine, &step)
			var blocks dataset.Blocks
			if err == nil {
				blocks, err = r.stepBlocks(raw)
			}
			if isFatal(err) {
				return dataset.Value{}, err
			}
			o = stepOutcome{blocks: blocks, err: err}
			m.steps[date] = o
		}

		if o.err != nil {
			if r.req.Strict {
				return dataset.Value{}, &EvaluationError{Hash: routine.Hash(), Date: date, Expression: routine.Source(), Err: o.err}
			}
			failed = true
			msg := o.err.Error()
			if step.Index > 0 {
				msg += " " + lenientHint
			}
			logger.DebugContext(ctx, "Step failed, using the default value", "date", date, "error", o.err)
			r.warn(ctx, Warning{Key: key, Hash: routine.Hash(), Date: date, Message: msg})
			series[date] = r.defaultBlocks()
			continue
		}
		series[date] = maps.Clone(o.blocks)
	}
	return dataset.SeriesValue(routine.Type(), series), nil
}

func (r *Run) memo(hash string) *memo {
	m, ok := r.hashStore[hash]
	if !ok {
		m = &memo{steps: make(map[string]stepOutcome)}
		r.hashStore[hash] = m
	}
	return m
}

// callWhole calls a routine without a step, once per run.
func (r *Run) callWhole(ctx context.Context, routine *function.Routine) outcome {
	m := r.memo(routine.Hash())
	if m.whole != nil {
		r.stats.MemoHits++
		return *m.whole
	}
	v, err := r.call(ctx, routine, nil)
	out := outcome{value: v, err: err}
	if !isFatal(err) {
		m.whole = &out
	}
	return out
}

func (r *Run) call(ctx context.Context, routine *function.Routine, step *timestep.Timestep) (any, error) {
	cc := function.CallContext{
		Timestep:  step,
		Depth:     len(r.chain) - 1,
		Flavor:    string(r.req.Flavor),
		StartDate: r.req.Window.Start,
		EndDate:   r.req.Window.End,
		Host:      r,
		Logger:    r.logger,
	}
	if n := len(r.chain); n > 1 {
		cc.ParentKey = r.chain[n-2].key
	}
	if cur := r.current(); cur.cal != nil && !cur.cal.IsEmpty() {
		first, _ := cur.cal.At(0)
		last, _ := cur.cal.At(cur.cal.Len() - 1)
		cc.StartDate, cc.EndDate = first.Date, last.Date
	}
	r.stats.Calls++
	return routine.Call(ctx, cc)
}

func (r *Run) current() frame {
	if len(r.chain) == 0 {
		return frame{}
	}
	return r.chain[len(r.chain)-1]
}

func (r *Run) warn(ctx context.Context, w Warning) {
	r.warnings = append(r.warnings, w)
	r.logger.DebugContext(ctx, "Recovered evaluation error", "key", w.Key, "date", w.Date, "error", w.Message)
}

func (r *Run) defaultBlocks() dataset.Blocks {
	return dataset.Blocks{0: r.engine.defaultValue}
}

// stepBlocks converts the result of one step: a number is block 0, a list gives one block
// per element, a mapping is keyed by block index and None is the default value.
func (r *Run) stepBlocks(raw any) (dataset.Blocks, error) {
	switch v := raw.(type) {
	case nil:
		return r.defaultBlocks(), nil
	case []any:
		b := make(dataset.Blocks, len(v))
		for i, item := range v {
			f, ok := number(item)
			if !ok {
				return nil, fmt.Errorf("%w: block %d is %T", ErrInvalidResult, i, item)
			}
			b[i] = f
		}
		return b, nil
	case map[string]any:
		b := make(dataset.Blocks, len(v))
		for k, item := range v {
			i, err := strconv.Atoi(strings.TrimSpace(k))
			if err != nil {
				return nil, fmt.Errorf("%w: block key %q", ErrInvalidResult, k)
			}
			f, ok := number(item)
			if !ok {
				return nil, fmt.Errorf("%w: block %d is %T", ErrInvalidResult, i, item)
			}
			b[i] = f
		}
		return b, nil
	default:
		f, ok := number(v)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrInvalidResult, raw)
		}
		return dataset.Blocks{0: f}, nil
	}
}

// invariantValue converts the single result of a step-invariant routine of time-varying
// type t. A number is a scalar, broadcast over the calendar when the request asks for it;
// a string is a descriptor; a mapping is keyed by date; a list is aligned by position to
// the calendar.
func (r *Run) invariantValue(t dataset.Type, raw any, cal *timestep.Calendar) (dataset.Value, error) {
	switch v := raw.(type) {
	case nil:
		return dataset.SeriesValue(t, dataset.DefaultSeries(cal.Keys(), 1, r.engine.defaultValue)), nil
	case string:
		return dataset.TextValue(v), nil
	case map[string]any:
		series := make(dataset.Series, len(v))
		for k, item := range v {
			date, ok := timestep.NormalizeKey(k)
			if !ok {
				return dataset.Value{}, fmt.Errorf("%w: %q is not a date", ErrInvalidResult, k)
			}
			b, err := r.stepBlocks(item)
			if err != nil {
				return dataset.Value{}, err
			}
			series[date] = b
		}
		return dataset.SeriesValue(t, series), nil
	case []any:
		series := make(dataset.Series, min(len(v), cal.Len()))
		for i, item := range v {
			step, ok := cal.At(i)
			if !ok {
				break
			}
			b, err := r.stepBlocks(item)
			if err != nil {
				return dataset.Value{}, err
			}
			series[step.Key()] = b
		}
		return dataset.SeriesValue(t, series), nil
	default:
		f, ok := number(v)
		if !ok {
			return dataset.Value{}, fmt.Errorf("%w: %T", ErrInvalidResult, raw)
		}
		s := dataset.NumberValue(f)
		if r.req.ExpandScalar {
			s = s.Broadcast(t, cal.Keys())
		}
		return s, nil
	}
}

// wholeValue converts the result of a routine of a type that does not vary in time.
func wholeValue(t dataset.Type, raw any) (dataset.Value, error) {
	if raw == nil {
		return dataset.Empty(t), nil
	}
	switch t {
	case dataset.Scalar:
		if s, ok := raw.(string); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return dataset.Value{}, fmt.Errorf("%w: %q is not a number", ErrInvalidResult, s)
			}
			return dataset.NumberValue(f), nil
		}
		f, ok := number(raw)
		if !ok {
			return dataset.Value{}, fmt.Errorf("%w: %T for a scalar", ErrInvalidResult, raw)
		}
		return dataset.NumberValue(f), nil
	case dataset.Descriptor:
		if s, ok := raw.(string); ok {
			return dataset.TextValue(s), nil
		}
		f, ok := number(raw)
		if !ok {
			return dataset.Value{}, fmt.Errorf("%w: %T for a descriptor", ErrInvalidResult, raw)
		}
		return dataset.TextValue(dataset.FormatNumber(f)), nil
	case dataset.Array:
		list, ok := raw.([]any)
		if !ok {
			return dataset.Value{}, fmt.Errorf("%w: %T for an array", ErrInvalidResult, raw)
		}
		if len(list) > 0 {
			if _, nested := list[0].([]any); !nested {
				list = []any{list}
			}
		}
		rows := make([][]float64, len(list))
		for i, item := range list {
			cells, ok := item.([]any)
			if !ok {
				return dataset.Value{}, fmt.Errorf("%w: array row %d is %T", ErrInvalidResult, i, item)
			}
			row := make([]float64, len(cells))
			for j, c := range cells {
				if row[j], ok = number(c); !ok {
					return dataset.Value{}, fmt.Errorf("%w: array cell %d,%d is %T", ErrInvalidResult, i, j, c)
				}
			}
			rows[i] = row
		}
		return dataset.ArrayValue(rows), nil
	default:
		return dataset.Value{}, fmt.Errorf("%w: %q", dataset.ErrUnknownType, t)
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// restrict keeps the dates of ts inside w.
func restrict(ts dataset.Series, w Window) dataset.Series {
	if w.Start.IsZero() && w.End.IsZero() {
		return ts
	}
	out := make(dataset.Series, len(ts))
	for date, b := range ts {
		if inRange(date, w.Start, w.End) {
			out[date] = b
		}
	}
	return out
}

func inRange(key string, start, end time.Time) bool {
	d, err := time.Parse(timestep.KeyLayout, key)
	if err != nil {
		return false
	}
	if !start.IsZero() && d.Before(start) {
		return false
	}
	return end.IsZero() || !d.After(end)
}

// isFatal reports errors that abort an evaluation even in lenient mode.
func isFatal(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range []error{
		ErrCyclicReference,
		ErrMaxDepth,
		compiler.ErrCompile,
		context.Canceled,
		context.DeadlineExceeded,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
