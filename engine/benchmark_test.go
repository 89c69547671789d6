// Package engine_test contains benchmarks for the evaluation engine.
//
// The benchmarks compare evaluation patterns over a one-year daily calendar:
//
// 1. Compilation:
//   - FreshCompiler: every run compiles the expression (slower)
//   - SharedCompiler: runs share one compiler and its routine cache (faster)
//
// 2. Routine shape:
//   - StepInvariant: the routine is called once for the whole calendar
//   - PerStep: the routine is called for every step
//   - CrossReference: every step reads another attribute through GET
//
// Run them with:
//
//	go test -bench=. -benchmem ./engine
package engine_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/openagua/go-evaluator/dataset"
	"github.com/openagua/go-evaluator/engine"
	"github.com/openagua/go-evaluator/function/compiler"
	"github.com/openagua/go-evaluator/internal/mocks"
	"github.com/openagua/go-evaluator/timestep"
)

// quietHandler is a slog.Handler that discards all logs
var quietHandler = slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})

var year = &timestep.Settings{
	Start: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC),
	Span:  timestep.Day,
}

func function(text string) *dataset.Dataset {
	return &dataset.Dataset{
		Type:     dataset.Timeseries,
		Metadata: dataset.Metadata{UseFunction: true, Function: text},
	}
}

func newEngine(b *testing.B, opts ...engine.Option) *engine.Engine {
	b.Helper()
	e, err := engine.New(append([]engine.Option{engine.WithLogHandler(quietHandler)}, opts...)...)
	if err != nil {
		b.Fatalf("Failed to create engine: %v", err)
	}
	return e
}

// BenchmarkCompilation compares compiling per run with sharing a compiler across runs.
func BenchmarkCompilation(b *testing.B) {
	ds := function("x = timestep.month\nx * 2.5")
	req := engine.Request{Calendar: year}

	b.Run("FreshCompiler", func(b *testing.B) {
		for b.Loop() {
			e := newEngine(b)
			if _, err := e.Evaluate(context.Background(), ds, req); err != nil {
				b.Fatalf("Failed to evaluate: %v", err)
			}
		}
	})

	b.Run("SharedCompiler", func(b *testing.B) {
		c, err := compiler.New(compiler.WithLogHandler(quietHandler))
		if err != nil {
			b.Fatalf("Failed to create compiler: %v", err)
		}
		for b.Loop() {
			e := newEngine(b, engine.WithCompiler(c))
			if _, err := e.Evaluate(context.Background(), ds, req); err != nil {
				b.Fatalf("Failed to evaluate: %v", err)
			}
		}
	})
}

// BenchmarkRoutineShape compares routines by how often the engine has to call them.
func BenchmarkRoutineShape(b *testing.B) {
	req := engine.Request{ScenarioID: 1, Calendar: year}

	da := &mocks.DataAccess{}
	da.On("FetchAttributeDataset", mock.Anything, int64(1), mock.Anything).
		Return(&dataset.Dataset{Type: dataset.Scalar, Value: "4"}, nil)

	tests := []struct {
		name string
		ds   *dataset.Dataset
	}{
		{name: "StepInvariant", ds: function("3.5")},
		{name: "PerStep", ds: function("timestep.day * 0.5")},
		{name: "CrossReference", ds: function("GET('node/1/2') * timestep.month")},
	}
	for _, tt := range tests {
		b.Run(tt.name, func(b *testing.B) {
			e := newEngine(b, engine.WithDataAccess(da))
			for b.Loop() {
				if _, err := e.Evaluate(context.Background(), tt.ds, req); err != nil {
					b.Fatalf("Failed to evaluate: %v", err)
				}
			}
		})
	}
}
