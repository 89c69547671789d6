// Package config loads the service configuration of the evaluator from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/openagua/go-evaluator/engine"
	"github.com/openagua/go-evaluator/function/compiler"
	"github.com/openagua/go-evaluator/platform/env"
	"github.com/openagua/go-evaluator/platform/objectstore"
	"github.com/openagua/go-evaluator/platform/postgres"
	"github.com/openagua/go-evaluator/tabular"
)

// Table sources.
const (
	SourceFiles       = "files"
	SourceObjectStore = "objectstore"
)

// Engine holds the evaluation settings.
type Engine struct {
	DefaultValue float64 `yaml:"default_value"`
	GuardScope   string  `yaml:"guard_scope"`
	MaxDepth     int     `yaml:"max_depth"`
	ErrorPolicy  string  `yaml:"error_policy"`
	Concurrency  int     `yaml:"concurrency"`
	// MaxSteps bounds a single routine call. Zero means unbounded.
	MaxSteps uint64 `yaml:"max_steps"`
}

// Files locates tables read from a local directory.
type Files struct {
	Root   string `yaml:"root"`
	Prefix string `yaml:"prefix"`
}

// Config is the complete service configuration.
type Config struct {
	Engine   Engine          `yaml:"engine"`
	Postgres postgres.Config `yaml:"postgres"`
	// Source selects where read_csv tables come from: files or objectstore.
	Source      string             `yaml:"source"`
	ObjectStore objectstore.Config `yaml:"objectstore"`
	Files       Files              `yaml:"files"`
	// HTTP configures read_csv locators that are http or https URLs.
	HTTP tabular.HTTPOptions `yaml:"http"`
}

// Default is the configuration used when no file is given.
func Default() Config {
	return Config{
		Engine: Engine{
			GuardScope:  engine.GuardChain.String(),
			MaxDepth:    engine.DefaultMaxDepth,
			ErrorPolicy: engine.ContinueOnError.String(),
		},
		Postgres:    postgres.DefaultConfig(),
		Source:      SourceFiles,
		ObjectStore: objectstore.DefaultConfig(),
		Files:       Files{Root: "."},
		HTTP:        tabular.DefaultHTTPOptions(),
	}
}

// Load reads the YAML file at path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(fsys afero.Fs, path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := afero.ReadFile(fsys, path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	cfg, err := ApplyEnv(cfg)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with EVAL_*, DATABASE_* and MINIO_* variables. Only the section
// of the selected table source is read from MINIO_*.
func ApplyEnv(cfg Config) (Config, error) {
	var err error
	e := &cfg.Engine
	if e.DefaultValue, err = env.Float64("EVAL_DEFAULT_VALUE", e.DefaultValue); err != nil {
		return Config{}, err
	}
	if e.MaxDepth, err = env.Int("EVAL_MAX_DEPTH", e.MaxDepth); err != nil {
		return Config{}, err
	}
	if e.Concurrency, err = env.Int("EVAL_CONCURRENCY", e.Concurrency); err != nil {
		return Config{}, err
	}
	if e.MaxSteps, err = env.Uint64("EVAL_MAX_STEPS", e.MaxSteps); err != nil {
		return Config{}, err
	}
	e.GuardScope = env.String("EVAL_GUARD_SCOPE", e.GuardScope)
	e.ErrorPolicy = env.String("EVAL_ERROR_POLICY", e.ErrorPolicy)

	cfg.Source = env.String("EVAL_TABLE_SOURCE", cfg.Source)
	cfg.Files.Root = env.String("EVAL_FILES_ROOT", cfg.Files.Root)
	cfg.Files.Prefix = env.String("EVAL_FILES_PREFIX", cfg.Files.Prefix)
	if cfg.HTTP.Timeout, err = env.Duration("EVAL_HTTP_TIMEOUT", cfg.HTTP.Timeout); err != nil {
		return Config{}, err
	}

	if cfg.Postgres, err = postgres.ApplyEnv(cfg.Postgres); err != nil {
		return Config{}, fmt.Errorf("postgres: %w", err)
	}
	if cfg.Source == SourceObjectStore {
		if cfg.ObjectStore, err = objectstore.ApplyEnv(cfg.ObjectStore); err != nil {
			return Config{}, fmt.Errorf("objectstore: %w", err)
		}
	}
	return cfg, nil
}

// Validate checks every section in use.
func (c Config) Validate() error {
	var errs []error
	if err := c.Engine.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("engine: %w", err))
	}
	if err := c.Postgres.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("postgres: %w", err))
	}
	if err := c.HTTP.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	switch c.Source {
	case SourceFiles:
		if strings.TrimSpace(c.Files.Root) == "" {
			errs = append(errs, errors.New("files: root is required"))
		}
	case SourceObjectStore:
		if err := c.ObjectStore.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("objectstore: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown table source %q", c.Source))
	}
	return errors.Join(errs...)
}

func (e Engine) Validate() error {
	if _, err := engine.ParseGuardScope(e.GuardScope); err != nil {
		return err
	}
	if _, err := engine.ParseErrorPolicy(e.ErrorPolicy); err != nil {
		return err
	}
	if e.MaxDepth < 1 {
		return fmt.Errorf("max depth must be at least 1, got %d", e.MaxDepth)
	}
	if e.Concurrency < 0 {
		return fmt.Errorf("concurrency must be >= 0, got %d", e.Concurrency)
	}
	return nil
}

// CompilerOptions are the compiler options of the engine section.
func (e Engine) CompilerOptions(h slog.Handler) []compiler.FunctionalOption {
	opts := []compiler.FunctionalOption{compiler.WithMaxSteps(e.MaxSteps)}
	if h != nil {
		opts = append(opts, compiler.WithLogHandler(h))
	}
	return opts
}

// Options are the engine options of the section. Zero concurrency keeps the engine
// default.
func (e Engine) Options() ([]engine.Option, error) {
	scope, err := engine.ParseGuardScope(e.GuardScope)
	if err != nil {
		return nil, err
	}
	policy, err := engine.ParseErrorPolicy(e.ErrorPolicy)
	if err != nil {
		return nil, err
	}
	opts := []engine.Option{
		engine.WithDefaultValue(e.DefaultValue),
		engine.WithGuardScope(scope),
		engine.WithMaxDepth(e.MaxDepth),
		engine.WithErrorPolicy(policy),
	}
	if e.Concurrency > 0 {
		opts = append(opts, engine.WithConcurrency(e.Concurrency))
	}
	return opts, nil
}
