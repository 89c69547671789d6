package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/openagua/go-evaluator/dataset"
	"github.com/openagua/go-evaluator/function"
	"github.com/openagua/go-evaluator/internal/helpers"
	"github.com/openagua/go-evaluator/tabular"
	"github.com/openagua/go-evaluator/timestep"
)

// crossRef is a resolved reference. err is set when the attribute has no dataset.
type crossRef struct {
	value dataset.Value
	err   error
}

// resolveKey parses a resource attribute key. A key qualified with the network of the
// request is the same attribute as its unqualified form.
func (r *Run) resolveKey(key string) (dataset.ResourceRef, string, error) {
	ref, err := dataset.ParseKey(key)
	if err != nil {
		return dataset.ResourceRef{}, "", err
	}
	if ref.NetworkID != 0 && ref.NetworkID == r.req.NetworkID {
		ref.NetworkID = 0
	}
	return ref, ref.Key(), nil
}

func (r *Run) fetch(ctx context.Context, ref dataset.ResourceRef) (*dataset.Dataset, error) {
	if r.engine.data == nil {
		return nil, ErrNoDataAccess
	}
	r.stats.Fetches++
	ds, err := r.engine.data.FetchAttributeDataset(ctx, r.req.ScenarioID, ref)
	if err != nil {
		return nil, err
	}
	if ds == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return ds, nil
}

// Get resolves GET(key, ...) for the routine currently running in the run.
func (r *Run) Get(ctx context.Context, cc *function.CallContext, req function.GetRequest) (any, error) {
	cur := r.current()
	ref, key, err := r.resolveKey(req.Key)
	if err != nil {
		return nil, err
	}
	if cur.key != "" && key == cur.key {
		return r.getSelf(ctx, cc, cur, req)
	}
	if err := r.guard(key); err != nil {
		return nil, err
	}

	cr, err := r.crossRef(ctx, ref, key)
	if err != nil {
		return nil, err
	}
	if cr.err != nil {
		r.logger.DebugContext(ctx, "Reference not found, using the default", "key", key, "error", cr.err)
		return fallback(req), nil
	}
	return r.pick(cc, cur, cr.value, key, req)
}

// guard rejects references that would re-enter an attribute already being resolved, and
// references nested deeper than the engine allows.
func (r *Run) guard(key string) error {
	switch r.engine.guard {
	case GuardChain:
		for _, f := range r.chain {
			if f.key == key {
				return fmt.Errorf("%w: %s", ErrCyclicReference, r.chainString(key))
			}
		}
	case GuardParent:
		if n := len(r.chain); n > 1 && r.chain[n-2].key == key {
			return fmt.Errorf("%w: %s", ErrCyclicReference, r.chainString(key))
		}
	}
	if len(r.chain) >= r.engine.maxDepth {
		return fmt.Errorf("%w: %s", ErrMaxDepth, r.chainString(key))
	}
	return nil
}

func (r *Run) chainString(next string) string {
	keys := make([]string, 0, len(r.chain)+1)
	for _, f := range r.chain {
		if f.key == "" {
			keys = append(keys, "<dataset>")
			continue
		}
		keys = append(keys, f.key)
	}
	return strings.Join(append(keys, next), " -> ")
}

// crossRef fetches and evaluates a referenced attribute once per run, over the full
// scenario calendar.
func (r *Run) crossRef(ctx context.Context, ref dataset.ResourceRef, key string) (*crossRef, error) {
	if cr, ok := r.crossRefs[key]; ok {
		r.stats.MemoHits++
		return cr, nil
	}

	ds, err := r.fetch(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		cr := &crossRef{err: err}
		r.crossRefs[key] = cr
		return cr, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", key, err)
	}

	cal, err := r.calendar(ctx, ds.Type, false)
	if err != nil {
		return nil, err
	}
	v, _, err := r.evaluate(ctx, ds, key, cal)
	if err != nil {
		return nil, err
	}
	cr := &crossRef{value: v}
	r.crossRefs[key] = cr
	return cr, nil
}

// pick selects what a GET call returns from a resolved value.
func (r *Run) pick(cc *function.CallContext, cur frame, v dataset.Value, key string, req function.GetRequest) (any, error) {
	if !v.Type.IsTimeVarying() {
		return plain(v), nil
	}
	if req.HasRange() {
		return r.aggregate(v.Series, key, req)
	}
	if cc == nil || cc.Timestep == nil {
		return seriesAny(v.Series, req.Flatten), nil
	}

	target, err := r.target(cur, *cc.Timestep, req.Offset)
	if err != nil {
		if req.HasDefault {
			return req.Default, nil
		}
		return nil, err
	}
	date := target.Key()
	if v.Type == dataset.PeriodicTimeseries {
		date = r.periodicKey(target.Date)
	}
	b, ok := v.Series[date]
	if !ok {
		return fallback(req), nil
	}
	if req.Flatten {
		return b.Sum(), nil
	}
	return map[int]float64(maps.Clone(b)), nil
}

// getSelf serves a reference of a routine to its own attribute. Only earlier steps can be
// read. Offsets count on the full calendar, so steps before a request window are evaluated
// first when the window starts later.
func (r *Run) getSelf(ctx context.Context, cc *function.CallContext, cur frame, req function.GetRequest) (any, error) {
	if cc == nil || cc.Timestep == nil || req.HasRange() || req.Offset >= 0 || cur.cal == nil {
		return nil, fmt.Errorf("%w: %s references itself", ErrCyclicReference, cur.key)
	}
	target, err := r.target(cur, *cc.Timestep, req.Offset)
	if err != nil {
		if req.HasDefault {
			return req.Default, nil
		}
		return nil, err
	}

	m := r.memo(cur.hash)
	o, ok := m.steps[target.Key()]
	if !ok && r.beforeWindow(cur, target) {
		if err := r.backfill(ctx, cur, target); err != nil {
			return nil, err
		}
		o, ok = m.steps[target.Key()]
	}

	var b dataset.Blocks
	switch {
	case !ok:
		return fallback(req), nil
	case o.err != nil:
		b = r.defaultBlocks()
	default:
		b = o.blocks
	}
	if req.Flatten {
		return b.Sum(), nil
	}
	return map[int]float64(maps.Clone(b)), nil
}

// beforeWindow reports whether target is a step of the full calendar that precedes the
// calendar of cur.
func (r *Run) beforeWindow(cur frame, target timestep.Timestep) bool {
	if r.full == nil || cur.cal == r.full || cur.cal.IsEmpty() || cur.routine == nil {
		return false
	}
	if _, ok := r.full.Lookup(target.Key()); !ok {
		return false
	}
	first, _ := cur.cal.At(0)
	return target.Date.Before(first.Date)
}

// backfill evaluates, in order, every step of the full calendar up to target that the
// routine of cur has not memoized. Failed steps are memoized like any other.
func (r *Run) backfill(ctx context.Context, cur frame, target timestep.Timestep) error {
	m := r.memo(cur.hash)
	for _, step := range r.full.Steps() {
		if step.Date.After(target.Date) {
			break
		}
		date := step.Key()
		if _, ok := m.steps[date]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := r.call(ctx, cur.routine, &step)
		var blocks dataset.Blocks
		if err == nil {
			blocks, err = r.stepBlocks(raw)
		}
		if isFatal(err) {
			return err
		}
		if err != nil {
			r.logger.DebugContext(ctx, "Step before the window failed", "key", cur.key, "date", date, "error", err)
		}
		m.steps[date] = stepOutcome{blocks: blocks, err: err}
	}
	return nil
}

// target returns the step offset steps away from step. Offsets are counted on the full
// scenario calendar when the step belongs to it, so a windowed evaluation can read
// before its window.
func (r *Run) target(cur frame, step timestep.Timestep, offset int) (timestep.Timestep, error) {
	cal := cur.cal
	if r.full != nil {
		if _, ok := r.full.Lookup(step.Key()); ok {
			cal = r.full
		}
	}
	if cal == nil {
		return timestep.Timestep{}, fmt.Errorf("%w: no calendar", ErrInvalidOffset)
	}
	t, err := cal.Offset(step, offset)
	if err != nil {
		return timestep.Timestep{}, fmt.Errorf("%w: %w", ErrInvalidOffset, err)
	}
	return t, nil
}

// periodicKey maps a date onto the reference-year calendar: the last periodic step on or
// before the same month and day, wrapping to the final step of the year.
func (r *Run) periodicKey(d time.Time) string {
	if r.periodic == nil || r.periodic.IsEmpty() {
		return ""
	}
	month := time.Date(timestep.ReferenceYear, d.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := month.AddDate(0, 1, -1).Day()
	ref := time.Date(timestep.ReferenceYear, d.Month(), min(d.Day(), last), 0, 0, 0, 0, time.UTC)

	steps := r.periodic.Steps()
	i := sort.Search(len(steps), func(i int) bool { return steps[i].Date.After(ref) })
	if i == 0 {
		i = len(steps)
	}
	return steps[i-1].Key()
}

// aggregate reduces the dates of ts inside the requested range.
func (r *Run) aggregate(ts dataset.Series, key string, req function.GetRequest) (any, error) {
	ck := fmt.Sprintf("%s|%s|%s|%s|%t", key, req.Start.Format(time.DateOnly), req.End.Format(time.DateOnly), req.Agg, req.Flatten)
	if v, ok := r.derived[ck]; ok {
		r.stats.MemoHits++
		return v, nil
	}

	perBlock := make(map[int][]float64)
	var flat []float64
	for _, date := range ts.Dates() {
		if !inRange(date, req.Start, req.End) {
			continue
		}
		b := ts[date]
		flat = append(flat, b.Sum())
		for i, f := range b {
			perBlock[i] = append(perBlock[i], f)
		}
	}
	if len(flat) == 0 {
		if req.HasDefault {
			return req.Default, nil
		}
		return nil, fmt.Errorf("%w: %s has no dates between %s and %s", ErrInvalidOffset, key,
			req.Start.Format(time.DateOnly), req.End.Format(time.DateOnly))
	}

	var out any
	if req.Flatten {
		f, err := reduce(req.Agg, flat)
		if err != nil {
			return nil, err
		}
		out = f
	} else {
		blocks := make(map[int]float64, len(perBlock))
		for i, vals := range perBlock {
			f, err := reduce(req.Agg, vals)
			if err != nil {
				return nil, err
			}
			blocks[i] = f
		}
		out = blocks
	}
	r.derived[ck] = out
	return out, nil
}

func reduce(agg string, vals []float64) (float64, error) {
	switch strings.ToLower(agg) {
	case "", "mean", "avg", "average":
		var total float64
		for _, v := range vals {
			total += v
		}
		return total / float64(len(vals)), nil
	case "sum":
		var total float64
		for _, v := range vals {
			total += v
		}
		return total, nil
	case "min":
		m := math.Inf(1)
		for _, v := range vals {
			m = math.Min(m, v)
		}
		return m, nil
	case "max":
		m := math.Inf(-1)
		for _, v := range vals {
			m = math.Max(m, v)
		}
		return m, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAggregation, agg)
	}
}

func fallback(req function.GetRequest) any {
	if req.HasDefault {
		return req.Default
	}
	return nil
}

// plain converts a value that does not vary in time into what an expression sees.
func plain(v dataset.Value) any {
	switch v.Type {
	case dataset.Scalar:
		if v.Number == nil {
			return nil
		}
		return *v.Number
	case dataset.Descriptor:
		return v.Text
	case dataset.Array:
		return v.Array
	default:
		return nil
	}
}

func seriesAny(ts dataset.Series, flatten bool) any {
	if flatten {
		out := make(map[string]float64, len(ts))
		for date, b := range ts {
			out[date] = b.Sum()
		}
		return out
	}
	out := make(map[string]any, len(ts))
	for date, b := range ts {
		out[date] = map[int]float64(maps.Clone(b))
	}
	return out
}

// ReadCSV resolves read_csv(locator, **options). Tables are fitted to the calendar of the
// dataset being evaluated, and both tables and failures are cached for the run.
func (r *Run) ReadCSV(ctx context.Context, _ *function.CallContext, locator string, opts map[string]any) (any, error) {
	if r.engine.tables == nil {
		return nil, fmt.Errorf("%w: %w", ErrExternalRead, ErrNoTableReader)
	}
	o, err := tabular.ParseOptions(opts)
	if err != nil {
		return nil, err
	}
	cal := r.current().cal
	tag := ""
	if cal != nil && !cal.IsEmpty() {
		o.Dates = cal.Keys()
		tag = fmt.Sprintf("%d|%s|%s", len(o.Dates), o.Dates[0], o.Dates[len(o.Dates)-1])
	}

	ck := helpers.SHA256Parts(locator, o.Key(), tag)
	if e, ok := r.external[ck]; ok {
		r.stats.MemoHits++
		return e.value, e.err
	}

	r.stats.ExternalReads++
	t, err := r.engine.tables.Read(ctx, locator, o)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e := outcome{err: fmt.Errorf("%w: %s: %w", ErrExternalRead, locator, err)}
		r.external[ck] = e
		r.logger.WarnContext(ctx, "Table read failed", "locator", locator, "error", err)
		return nil, e.err
	}
	e := outcome{value: t.Shape(o.Flavor)}
	r.external[ck] = e
	return e.value, nil
}
