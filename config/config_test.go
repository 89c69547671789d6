package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openagua/go-evaluator/engine"
)

const sampleYAML = `
engine:
  default_value: -1
  guard_scope: parent
  max_depth: 8
  error_policy: default-remainder
  concurrency: 4
  max_steps: 100000
postgres:
  url: postgres://eval@db:5432/hydra
  ping_timeout: 1s
  query_timeout: 5s
  max_open_conns: 4
  max_idle_conns: 2
source: objectstore
objectstore:
  endpoint: minio:9000
  access_key: key
  secret_key: secret
  region: us-east-1
  bucket: projects
  files_path: project-12
http:
  timeout: 5s
  auth_type: header
  headers:
    Authorization: Bearer abc
`

func TestDefault(t *testing.T) {
	t.Parallel()
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "chain", cfg.Engine.GuardScope)
	assert.Equal(t, engine.DefaultMaxDepth, cfg.Engine.MaxDepth)
	assert.Equal(t, SourceFiles, cfg.Source)
}

func TestLoad(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/etc/evaluate.yaml", []byte(sampleYAML), 0o644))

	t.Run("file", func(t *testing.T) {
		cfg, err := Load(fsys, "/etc/evaluate.yaml")
		require.NoError(t, err)
		assert.InDelta(t, -1.0, cfg.Engine.DefaultValue, 1e-12)
		assert.Equal(t, "parent", cfg.Engine.GuardScope)
		assert.Equal(t, 8, cfg.Engine.MaxDepth)
		assert.Equal(t, uint64(100000), cfg.Engine.MaxSteps)
		assert.Equal(t, "postgres://eval@db:5432/hydra", cfg.Postgres.URL)
		assert.Equal(t, 4, cfg.Postgres.MaxOpenConns)
		assert.Equal(t, "projects", cfg.ObjectStore.Bucket)
		assert.Equal(t, "project-12", cfg.ObjectStore.FilesPath)
		assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
		assert.Equal(t, "Bearer abc", cfg.HTTP.Headers["Authorization"])
	})

	t.Run("environment wins", func(t *testing.T) {
		t.Setenv("EVAL_MAX_DEPTH", "3")
		t.Setenv("EVAL_ERROR_POLICY", "continue")
		t.Setenv("MINIO_BUCKET", "other")
		cfg, err := Load(fsys, "/etc/evaluate.yaml")
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.Engine.MaxDepth)
		assert.Equal(t, "continue", cfg.Engine.ErrorPolicy)
		assert.Equal(t, "other", cfg.ObjectStore.Bucket)
	})

	t.Run("no file", func(t *testing.T) {
		cfg, err := Load(fsys, "")
		require.NoError(t, err)
		assert.Equal(t, SourceFiles, cfg.Source)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(fsys, "/etc/missing.yaml")
		require.ErrorContains(t, err, "read config")
	})

	t.Run("bad yaml", func(t *testing.T) {
		require.NoError(t, afero.WriteFile(fsys, "/etc/bad.yaml", []byte("engine: [1, 2"), 0o644))
		_, err := Load(fsys, "/etc/bad.yaml")
		require.ErrorContains(t, err, "decode config")
	})

	t.Run("bad environment", func(t *testing.T) {
		t.Setenv("EVAL_DEFAULT_VALUE", "zero")
		_, err := Load(fsys, "")
		require.ErrorContains(t, err, "EVAL_DEFAULT_VALUE")
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := map[string]func(*Config){
		"guard scope":  func(c *Config) { c.Engine.GuardScope = "global" },
		"error policy": func(c *Config) { c.Engine.ErrorPolicy = "retry" },
		"max depth":    func(c *Config) { c.Engine.MaxDepth = 0 },
		"concurrency":  func(c *Config) { c.Engine.Concurrency = -2 },
		"postgres":     func(c *Config) { c.Postgres.URL = "" },
		"files root":   func(c *Config) { c.Files.Root = " " },
		"source":       func(c *Config) { c.Source = "ftp" },
		"objectstore":  func(c *Config) { c.Source = SourceObjectStore },
		"http auth":    func(c *Config) { c.HTTP.AuthType = "digest" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestEngineOptions(t *testing.T) {
	t.Parallel()
	e := Default().Engine
	e.GuardScope = "parent"
	e.Concurrency = 2

	opts, err := e.Options()
	require.NoError(t, err)
	assert.Len(t, opts, 5)

	eng, err := engine.New(opts...)
	require.NoError(t, err)
	assert.NotNil(t, eng.Compiler())

	e.ErrorPolicy = "retry"
	_, err = e.Options()
	require.Error(t, err)

	assert.Len(t, Default().Engine.CompilerOptions(nil), 1)
}
