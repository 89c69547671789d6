// Package engine evaluates attribute datasets for a scenario.
//
// Native datasets are decoded. Function-based datasets are compiled once and called over
// the scenario calendar; their expressions may read other attributes through GET, which
// re-enters the engine for the referenced dataset. Every evaluation happens inside a Run
// that owns the memoization state of one scenario evaluation and is never shared.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openagua/go-evaluator/dataset"
	"github.com/openagua/go-evaluator/format"
	"github.com/openagua/go-evaluator/function/compiler"
	"github.com/openagua/go-evaluator/internal/helpers"
	"github.com/openagua/go-evaluator/tabular"
	"github.com/openagua/go-evaluator/timestep"
)

// DataAccess fetches stored data. Implementations return an error wrapping ErrNotFound
// when the attribute has no dataset in the scenario.
type DataAccess interface {
	FetchAttributeDataset(ctx context.Context, scenarioID int64, ref dataset.ResourceRef) (*dataset.Dataset, error)
	FetchScenarioCalendar(ctx context.Context, scenarioID int64) (timestep.Settings, error)
}

// TableReader loads the tables behind read_csv locators.
type TableReader interface {
	Read(ctx context.Context, locator string, opts tabular.Options) (*tabular.Table, error)
}

// Window bounds the steps of a time-varying evaluation. A zero bound is open.
type Window struct {
	Start time.Time
	End   time.Time
}

// Request describes one evaluation.
type Request struct {
	ScenarioID int64
	// NetworkID is the network of the scenario. Keys qualified with this network are the
	// same attribute as their unqualified form.
	NetworkID int64
	// Key is the resource attribute key of the evaluated dataset, when known. It lets
	// references back to the dataset itself be detected.
	Key string
	Window Window
	// Calendar overrides the scenario calendar of the data access.
	Calendar *timestep.Settings
	Flavor   format.Flavor
	// Strict aborts on the first failing step instead of substituting the default value.
	Strict  bool
	Flatten bool
	// FillValue is written to calendar dates missing from stored series.
	FillValue *float64
	// ExpandScalar broadcasts step-invariant results of time-varying datasets over the
	// calendar.
	ExpandScalar bool
	// AllOrNothing makes EvaluateBatch fail every entry when one fails.
	AllOrNothing bool
}

// Warning is a failure recovered during a lenient evaluation.
type Warning struct {
	// Key is the referenced attribute the failure happened in, empty for the evaluated
	// dataset itself.
	Key     string
	Hash    string
	Date    string
	Message string
}

// Result is the outcome of one evaluation.
type Result struct {
	Value  dataset.Value
	Output any
	// Warnings lists recovered failures, including those of referenced attributes.
	Warnings []Warning
	// CellErrors maps the dates of the evaluated dataset that hold a substituted value to
	// the error message.
	CellErrors map[string]string
	Hash       string
	RunID      string
	Stats      Stats
}

// BatchResult is one entry of EvaluateBatch.
type BatchResult struct {
	Result *Result
	Err    error
}

// Engine evaluates datasets. It is safe for concurrent use; all mutable state lives in
// the runs it creates.
type Engine struct {
	data         DataAccess
	tables       TableReader
	compiler     *compiler.Compiler
	defaultValue float64
	guard        GuardScope
	maxDepth     int
	policy       ErrorPolicy
	concurrency  int

	logHandler slog.Handler
	logger     *slog.Logger
}

// New creates an Engine with the provided options.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("error applying engine option: %w", err)
		}
	}
	e.applyDefaults()
	if err := e.validate(); err != nil {
		return nil, fmt.Errorf("invalid engine configuration: %w", err)
	}
	e.logHandler, e.logger = helpers.LoggerOrHandler(e.logger, e.logHandler, "engine", "Engine")

	if e.compiler == nil {
		c, err := compiler.New(compiler.WithLogHandler(e.logHandler))
		if err != nil {
			return nil, err
		}
		e.compiler = c
	}
	return e, nil
}

func (e *Engine) String() string {
	return "engine.Engine"
}

// Compiler returns the compiler shared by the runs of the engine.
func (e *Engine) Compiler() *compiler.Compiler {
	return e.compiler
}

// NewRun starts a run for req. Datasets evaluated through the same run share its caches,
// so they must be evaluated one after another.
func (e *Engine) NewRun(req Request) *Run {
	return newRun(e, req)
}

// Evaluate evaluates ds in a fresh run.
func (e *Engine) Evaluate(ctx context.Context, ds *dataset.Dataset, req Request) (*Result, error) {
	return e.NewRun(req).Evaluate(ctx, ds)
}

// EvaluateBatch evaluates each dataset in its own run, concurrently, and returns the
// results in input order. A failing dataset does not affect the others unless
// req.AllOrNothing is set, in which case the first failure cancels the remaining runs and
// every entry reports an error wrapping it.
func (e *Engine) EvaluateBatch(ctx context.Context, items []*dataset.Dataset, req Request) []BatchResult {
	logger := e.logger.With("items", len(items), "allOrNothing", req.AllOrNothing)
	out := make([]BatchResult, len(items))

	g, gctx := &errgroup.Group{}, ctx
	if req.AllOrNothing {
		g, gctx = errgroup.WithContext(ctx)
	}
	g.SetLimit(e.concurrency)

	for i, ds := range items {
		g.Go(func() error {
			itemReq := req
			itemReq.Key = ""
			res, err := e.NewRun(itemReq).Evaluate(gctx, ds)
			out[i] = BatchResult{Result: res, Err: err}
			if req.AllOrNothing {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.ErrorContext(ctx, "Batch aborted", "error", err)
		for i := range out {
			out[i] = BatchResult{Err: fmt.Errorf("%w: %w", ErrBatchAborted, err)}
		}
		return out
	}
	logger.DebugContext(ctx, "Batch evaluated")
	return out
}
