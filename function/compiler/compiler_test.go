package compiler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openagua/go-evaluator/dataset"
	"github.com/openagua/go-evaluator/function"
)

func newTestCompiler(t *testing.T, opts ...FunctionalOption) *Compiler {
	t.Helper()
	opts = append([]FunctionalOption{WithLogHandler(slog.NewTextHandler(io.Discard, nil))}, opts...)
	c, err := New(opts...)
	require.NoError(t, err)
	return c
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "1 + 2", want: "1 + 2"},
		{name: "crlf and trailing spaces", in: "x = 1  \r\nx\r\n", want: "x = 1\nx"},
		{name: "tabs", in: "if x:\n\ty", want: "if x:\n    y"},
		{name: "common margin", in: "\n    x = 1\n    if x:\n        x\n", want: "x = 1\nif x:\n    x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, normalize(tt.in))
		})
	}
}

func TestWrap(t *testing.T) {
	t.Parallel()
	params := function.ContextParams

	t.Run("trailing expression returns", func(t *testing.T) {
		w, err := wrap("x = timestep.month\nx * 2", params)
		require.NoError(t, err)
		assert.Equal(t, []string{"timestep"}, w.params)
		assert.Equal(t, "def __routine__(timestep=None):\n    x = timestep.month\n    return x * 2\n", w.program)
	})

	t.Run("both branches return", func(t *testing.T) {
		w, err := wrap("if date.month > 6:\n    1\nelse:\n    2", params)
		require.NoError(t, err)
		assert.Contains(t, w.program, "        return 1\n")
		assert.Contains(t, w.program, "        return 2\n")
	})

	t.Run("attribute and keyword names are not references", func(t *testing.T) {
		w, err := wrap("GET('n/1/2', start=None) + timestep.water_year", params)
		require.NoError(t, err)
		assert.Equal(t, []string{"timestep"}, w.params)
		assert.Equal(t, []string{function.BuiltinGet}, w.refs)
	})

	t.Run("kwargs", func(t *testing.T) {
		w, err := wrap("GET('n/1/2', **kwargs)", params)
		require.NoError(t, err)
		assert.Equal(t, []string{function.ParamKwargs}, w.params)
	})

	t.Run("multi-line strings are not indented", func(t *testing.T) {
		w, err := wrap("s = \"\"\"a\n  b\nc\"\"\"\ns", params)
		require.NoError(t, err)
		assert.Equal(t, "def __routine__():\n    s = \"\"\"a\n  b\nc\"\"\"\n    return s\n", w.program)
	})

	t.Run("explicit return is kept", func(t *testing.T) {
		w, err := wrap("return 5", params)
		require.NoError(t, err)
		assert.Equal(t, "def __routine__():\n    return 5\n", w.program)
	})
}

func TestCompile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("routine runs", func(t *testing.T) {
		c := newTestCompiler(t)
		r, err := c.Compile("x = 2\nx * 10 if False else x * 3", dataset.Scalar)
		require.NoError(t, err)
		assert.Equal(t, dataset.Scalar, r.Type())
		assert.Empty(t, r.Params())
		got, err := r.Call(ctx, function.CallContext{})
		require.NoError(t, err)
		assert.Equal(t, int64(6), got)
	})

	t.Run("multi-line string value", func(t *testing.T) {
		c := newTestCompiler(t)
		r, err := c.Compile("'''first\n    second\nthird'''", dataset.Descriptor)
		require.NoError(t, err)
		got, err := r.Call(ctx, function.CallContext{})
		require.NoError(t, err)
		assert.Equal(t, "first\n    second\nthird", got)
	})

	t.Run("cache", func(t *testing.T) {
		c := newTestCompiler(t)
		a, err := c.Compile("1 + 1", dataset.Timeseries)
		require.NoError(t, err)
		b, err := c.Compile("  1 + 1\r\n", dataset.Timeseries)
		require.NoError(t, err)
		assert.Same(t, a, b)
		assert.Equal(t, 1, c.Len())
		assert.Equal(t, Key("1 + 1", dataset.Timeseries), a.Hash())

		s, err := c.Compile("1 + 1", dataset.Scalar)
		require.NoError(t, err)
		assert.NotSame(t, a, s)
		assert.Equal(t, 2, c.Len())

		c.Purge()
		assert.Equal(t, 0, c.Len())
	})

	t.Run("failures are cached", func(t *testing.T) {
		c := newTestCompiler(t)
		_, err1 := c.Compile("1 +", dataset.Scalar)
		require.ErrorIs(t, err1, ErrCompile)
		_, err2 := c.Compile("1 +", dataset.Scalar)
		assert.Same(t, err1, err2)
		assert.Equal(t, 1, c.Len())

		var cerr *CompileError
		require.ErrorAs(t, err1, &cerr)
		assert.Equal(t, 1, cerr.Line)
	})

	t.Run("undefined name position", func(t *testing.T) {
		c := newTestCompiler(t)
		_, err := c.Compile("x = 1\ny + x", dataset.Scalar)
		var cerr *CompileError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, 2, cerr.Line)
		assert.Equal(t, 1, cerr.Col)
		assert.Contains(t, cerr.Msg, "y")
	})

	t.Run("empty", func(t *testing.T) {
		c := newTestCompiler(t)
		for _, text := range []string{"", "  \n\t\n", "# just a note"} {
			_, err := c.Compile(text, dataset.Scalar)
			require.ErrorIs(t, err, ErrEmptyExpression, "%q", text)
		}
	})

	t.Run("concurrent compiles share one routine", func(t *testing.T) {
		c := newTestCompiler(t)
		var wg sync.WaitGroup
		out := make([]*function.Routine, 16)
		for i := range out {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r, err := c.Compile("timestep.index", dataset.Timeseries)
				assert.NoError(t, err)
				out[i] = r
			}()
		}
		wg.Wait()
		for _, r := range out {
			assert.Same(t, out[0], r)
		}
		assert.Equal(t, 1, c.Len())
	})
}

func TestOptions(t *testing.T) {
	t.Parallel()

	_, err := New(WithLogHandler(nil))
	require.Error(t, err)

	_, err = New(WithLogger(nil))
	require.Error(t, err)

	_, err = New(WithParamNames(nil))
	require.Error(t, err)

	_, err = New(WithParamNames([]string{"GET"}))
	require.Error(t, err)

	c, err := New(WithParamNames([]string{"t"}), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	r, err := c.Compile("t.month + depth", dataset.Scalar)
	require.Error(t, err, "depth is not a recognized parameter")
	assert.Nil(t, r)

	r, err = c.Compile("t == None", dataset.Scalar)
	require.NoError(t, err)
	assert.Equal(t, []string{"t"}, r.Params())

	assert.Equal(t, "compiler.Compiler", c.String())
}
