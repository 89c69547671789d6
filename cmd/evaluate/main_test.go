package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openagua/go-evaluator/config"
	"github.com/openagua/go-evaluator/dataset"
	"github.com/openagua/go-evaluator/engine"
	"github.com/openagua/go-evaluator/format"
	"github.com/openagua/go-evaluator/internal/mocks"
	"github.com/openagua/go-evaluator/tabular"
)

func TestParseArgs(t *testing.T) {
	t.Parallel()

	t.Run("keys", func(t *testing.T) {
		t.Parallel()
		o, err := parseArgs([]string{
			"-scenario", "7", "-network", "3", "-flavor", "table", "-strict",
			"-start", "2020-01-02", "-end", "2020-01-05", "node/1/1", "3/link/2/4",
		}, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, int64(7), o.ScenarioID)
		assert.Equal(t, int64(3), o.NetworkID)
		assert.Equal(t, []string{"node/1/1", "3/link/2/4"}, o.Keys)
		assert.Equal(t, format.Tabular, o.Flavor)
		assert.True(t, o.Strict)
		assert.Equal(t, 2, o.Window.Start.Day())
		assert.Equal(t, slog.LevelWarn, o.LogLevel)
	})

	t.Run("expression", func(t *testing.T) {
		t.Parallel()
		o, err := parseArgs([]string{"-scenario", "1", "-expr", "2 * 3", "-type", "scalar"}, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, dataset.Scalar, o.Type)
		assert.Equal(t, "2 * 3", o.Expression)
	})

	t.Run("help", func(t *testing.T) {
		t.Parallel()
		var out bytes.Buffer
		o, err := parseArgs([]string{"-h"}, &out)
		require.NoError(t, err)
		assert.Nil(t, o)
		assert.Contains(t, out.String(), "Usage:")
	})

	bad := map[string][]string{
		"no scenario":    {"node/1/1"},
		"nothing to run": {"-scenario", "1"},
		"both":           {"-scenario", "1", "-expr", "1", "node/1/1"},
		"type":           {"-scenario", "1", "-type", "matrix", "node/1/1"},
		"flavor":         {"-scenario", "1", "-flavor", "xml", "node/1/1"},
		"start":          {"-scenario", "1", "-start", "soon", "node/1/1"},
		"log level":      {"-scenario", "1", "-log-level", "loud", "node/1/1"},
		"unknown flag":   {"-scenario", "1", "-verbose", "node/1/1"},
		"offline":        {"-scenario", "1", "-offline", "node/1/1"},
	}
	for name, args := range bad {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := parseArgs(args, &bytes.Buffer{})
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
		})
	}
}

func TestNewTableReader(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/data/p1/flows.csv", []byte("date,q\n2020-01-01,4\n"), 0o644))

	cfg := config.Default()
	cfg.Files = config.Files{Root: "/data", Prefix: "p1"}
	r, err := newTableReader(cfg, fsys, slog.NewTextHandler(&bytes.Buffer{}, nil))
	require.NoError(t, err)

	tbl, err := r.Read(context.Background(), "flows.csv", tabular.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"q"}, tbl.Columns)
}

func TestEvaluate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := slog.NewTextHandler(&bytes.Buffer{}, nil)

	da := &mocks.DataAccess{}
	da.On("FetchAttributeDataset", mock.Anything, int64(7), dataset.ResourceRef{ResourceType: "node", ResourceID: 1, AttrID: 1}).
		Return(&dataset.Dataset{Type: dataset.Scalar, Value: "3.5"}, nil)
	da.On("FetchAttributeDataset", mock.Anything, int64(7), dataset.ResourceRef{ResourceType: "node", ResourceID: 1, AttrID: 2}).
		Return(&dataset.Dataset{
			Type:     dataset.Scalar,
			Metadata: dataset.Metadata{UseFunction: true, Function: "GET('node/1/1') * 2"},
		}, nil)
	da.On("FetchAttributeDataset", mock.Anything, int64(7), mock.Anything).
		Return(nil, fmt.Errorf("%w: missing", engine.ErrNotFound))

	eng, err := newEngine(config.Default().Engine, da, &mocks.TableReader{}, h)
	require.NoError(t, err)

	t.Run("keys", func(t *testing.T) {
		outs, err := evaluate(ctx, eng, &options{ScenarioID: 7, Keys: []string{"node/1/2", "node/1/1"}})
		require.NoError(t, err)
		require.Len(t, outs, 2)
		assert.InDelta(t, 7.0, outs[0].Value, 1e-12)
		assert.InDelta(t, 3.5, outs[1].Value, 1e-12)
		assert.Equal(t, outs[0].RunID, outs[1].RunID)
	})

	t.Run("expression", func(t *testing.T) {
		outs, err := evaluate(ctx, eng, &options{ScenarioID: 7, Expression: "2 * 3", Type: dataset.Scalar})
		require.NoError(t, err)
		require.Len(t, outs, 1)
		assert.InDelta(t, 6.0, outs[0].Value, 1e-12)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := evaluate(ctx, eng, &options{ScenarioID: 7, Keys: []string{"node/9/9"}})
		require.ErrorIs(t, err, engine.ErrNotFound)
		assert.ErrorContains(t, err, "node/9/9")
	})
}

func TestRunOffline(t *testing.T) {
	dir := t.TempDir()
	fixture := `{
  "calendar": {"start": "2020-01-01", "end": "2020-01-03", "span": "day"},
  "datasets": {
    "node/1/1": {"type": "scalar", "value": "2"},
    "node/1/2": {"type": "timeseries", "metadata": {"use_function": true, "function": "GET('node/1/1') * date.day"}}
  }
}`
	path := filepath.Join(dir, "fixture.json")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))
	t.Setenv("EVAL_FILES_ROOT", dir)

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), &stdout, &stderr, []string{
		"-scenario", "1", "-offline", "-datasets", path, "-end", "2020-01-02", "node/1/2",
	})
	require.NoError(t, err, stderr.String())

	var outs []struct {
		Key   string             `json:"key"`
		Value map[string]float64 `json:"value"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &outs))
	require.Len(t, outs, 1)
	assert.Equal(t, "node/1/2", outs[0].Key)
	assert.Equal(t, map[string]float64{
		"2020-01-01 00:00:00": 2,
		"2020-01-02 00:00:00": 4,
	}, outs[0].Value)

	err = run(context.Background(), &stdout, &stderr, []string{
		"-scenario", "1", "-offline", "-datasets", path, "node/5/5",
	})
	require.ErrorIs(t, err, engine.ErrNotFound)
}
