// Command evaluate evaluates resource attribute datasets of a scenario stored in Postgres,
// or in a JSON fixture, and prints the results as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"

	"github.com/openagua/go-evaluator/config"
	"github.com/openagua/go-evaluator/dataset"
	"github.com/openagua/go-evaluator/engine"
	"github.com/openagua/go-evaluator/function/compiler"
	"github.com/openagua/go-evaluator/platform/data"
	"github.com/openagua/go-evaluator/platform/objectstore"
	"github.com/openagua/go-evaluator/platform/postgres"
	"github.com/openagua/go-evaluator/tabular"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// output is the printed result of one key or expression.
type output struct {
	Key        string            `json:"key,omitempty"`
	RunID      string            `json:"run_id"`
	Hash       string            `json:"hash,omitempty"`
	Value      any               `json:"value"`
	Warnings   []engine.Warning  `json:"warnings,omitempty"`
	CellErrors map[string]string `json:"cell_errors,omitempty"`
}

func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	opts, err := parseArgs(args, stderr)
	if err != nil || opts == nil {
		return err
	}
	handler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: opts.LogLevel})
	logger := slog.New(handler)

	cfg, err := config.Load(afero.NewOsFs(), opts.ConfigPath)
	if err != nil {
		return err
	}

	da, closeData, err := newDataAccess(ctx, cfg, opts, afero.NewOsFs(), logger)
	if err != nil {
		return err
	}
	defer closeData()

	reader, err := newTableReader(cfg, afero.NewOsFs(), handler)
	if err != nil {
		return err
	}

	eng, err := newEngine(cfg.Engine, da, reader, handler)
	if err != nil {
		return err
	}

	outs, err := evaluate(ctx, eng, opts)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(outs)
}

// newDataAccess combines the dataset fixture, if any, with the Postgres store. The returned
// function releases the database.
func newDataAccess(ctx context.Context, cfg config.Config, opts *options, fsys afero.Fs, logger *slog.Logger) (engine.DataAccess, func(), error) {
	var fixture data.Provider
	if opts.FixturePath != "" {
		p, err := data.LoadStaticProvider(fsys, opts.FixturePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Debug("Fixture loaded", "path", opts.FixturePath, "datasets", p.Len())
		fixture = p
	}
	if opts.Offline {
		return data.NewCompositeProvider(fixture), func() {}, nil
	}

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	closeDB := func() {
		if cerr := db.Close(); cerr != nil {
			logger.Warn("Failed to close database", "error", cerr)
		}
	}
	store, err := postgres.NewStore(db, cfg.Postgres)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	return data.NewCompositeProvider(fixture, store), closeDB, nil
}

// newTableReader builds the read_csv reader of the configured table source.
func newTableReader(cfg config.Config, fsys afero.Fs, h slog.Handler) (*tabular.Reader, error) {
	httpSrc, err := tabular.NewHTTPSource(cfg.HTTP)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	opts := []tabular.ReaderOption{tabular.WithHTTP(httpSrc), tabular.WithReaderLogHandler(h)}

	switch cfg.Source {
	case config.SourceObjectStore:
		src, err := objectstore.NewSource(cfg.ObjectStore)
		if err != nil {
			return nil, fmt.Errorf("objectstore: %w", err)
		}
		return tabular.NewReader(src, append(opts, tabular.WithPrefix(cfg.ObjectStore.FilesPath))...), nil
	default:
		src := tabular.NewFileSource(fsys, cfg.Files.Root)
		return tabular.NewReader(src, append(opts, tabular.WithPrefix(cfg.Files.Prefix))...), nil
	}
}

func newEngine(cfg config.Engine, da engine.DataAccess, tables engine.TableReader, h slog.Handler) (*engine.Engine, error) {
	comp, err := compiler.New(cfg.CompilerOptions(h)...)
	if err != nil {
		return nil, fmt.Errorf("compiler: %w", err)
	}
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		engine.WithDataAccess(da),
		engine.WithTableReader(tables),
		engine.WithCompiler(comp),
		engine.WithLogHandler(h),
	)
	return engine.New(opts...)
}

// evaluate runs the keys, or the expression, of opts in a single run so references
// shared between keys are evaluated once.
func evaluate(ctx context.Context, eng *engine.Engine, opts *options) ([]output, error) {
	req := engine.Request{
		ScenarioID: opts.ScenarioID,
		NetworkID:  opts.NetworkID,
		Window:     opts.Window,
		Flavor:     opts.Flavor,
		Strict:     opts.Strict,
		Flatten:    opts.Flatten,
	}
	r := eng.NewRun(req)

	if opts.Expression != "" {
		ds := &dataset.Dataset{
			Type:     opts.Type,
			Metadata: dataset.Metadata{UseFunction: true, Function: opts.Expression},
		}
		res, err := r.Evaluate(ctx, ds)
		if err != nil {
			return nil, err
		}
		return []output{newOutput("", res)}, nil
	}

	outs := make([]output, 0, len(opts.Keys))
	for _, key := range opts.Keys {
		res, err := r.EvaluateKey(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		outs = append(outs, newOutput(key, res))
	}
	return outs, nil
}

func newOutput(key string, res *engine.Result) output {
	return output{
		Key:        key,
		RunID:      res.RunID,
		Hash:       res.Hash,
		Value:      res.Output,
		Warnings:   res.Warnings,
		CellErrors: res.CellErrors,
	}
}
