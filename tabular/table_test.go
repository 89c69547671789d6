package tabular

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flowsCSV = `date,inflow,demand
2020-01-01,1,10
2020-01-02,,11
2020-01-03,3,
2020-01-04,,13
`

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("date index", func(t *testing.T) {
		tbl, err := Parse(strings.NewReader(flowsCSV), DefaultOptions())
		require.NoError(t, err)
		assert.True(t, tbl.DateIndex)
		assert.Equal(t, []string{"inflow", "demand"}, tbl.Columns)
		assert.Equal(t, "2020-01-01 00:00:00", tbl.Index[0])
		assert.InDelta(t, 10.0, tbl.Values[0][1], 1e-12)
		assert.True(t, math.IsNaN(tbl.Values[1][0]))
	})

	t.Run("label index", func(t *testing.T) {
		opts := DefaultOptions()
		opts.IndexCol = 1
		tbl, err := Parse(strings.NewReader("a,name,b\n1,x,2\n3,y,4\n"), opts)
		require.NoError(t, err)
		assert.False(t, tbl.DateIndex)
		assert.Equal(t, []string{"x", "y"}, tbl.Index)
		assert.Equal(t, [][]float64{{1, 2}, {3, 4}}, tbl.Values)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := Parse(strings.NewReader(""), DefaultOptions())
		require.ErrorIs(t, err, ErrEmptyTable)
		_, err = Parse(strings.NewReader("date,a\n"), DefaultOptions())
		require.ErrorIs(t, err, ErrEmptyTable)
	})

	t.Run("index column out of range", func(t *testing.T) {
		opts := DefaultOptions()
		opts.IndexCol = 5
		_, err := Parse(strings.NewReader(flowsCSV), opts)
		require.ErrorIs(t, err, ErrInvalidTable)
	})
}

func TestFill(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		method string
		inflow []float64
	}{
		{name: "forward", method: FillForward, inflow: []float64{1, 1, 3, 3}},
		{name: "backward", method: FillBackward, inflow: []float64{1, 3, 3, math.NaN()}},
		{name: "interpolate", method: FillInterpolate, inflow: []float64{1, 2, 3, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tbl, err := Parse(strings.NewReader(flowsCSV), DefaultOptions())
			require.NoError(t, err)
			tbl.Fill(tt.method, "")
			for r, want := range tt.inflow {
				got := tbl.Values[r][0]
				if math.IsNaN(want) {
					assert.True(t, math.IsNaN(got), "row %d", r)
					continue
				}
				assert.InDelta(t, want, got, 1e-12, "row %d", r)
			}
		})
	}
}

func TestInterpolateByTime(t *testing.T) {
	t.Parallel()
	csv := "date,v\n2020-01-01,0\n2020-01-02,\n2020-01-04,3\n"
	tbl, err := Parse(strings.NewReader(csv), DefaultOptions())
	require.NoError(t, err)
	tbl.Fill(FillInterpolate, "time")
	assert.InDelta(t, 1.0, tbl.Values[1][0], 1e-9)
}

func TestReindexAndShape(t *testing.T) {
	t.Parallel()
	tbl, err := Parse(strings.NewReader(flowsCSV), DefaultOptions())
	require.NoError(t, err)

	keys := []string{"2020-01-02 00:00:00", "2020-01-05 00:00:00"}
	out := tbl.Reindex(keys)
	assert.Equal(t, keys, out.Index)
	assert.InDelta(t, 11.0, out.Values[0][1], 1e-12)
	assert.True(t, math.IsNaN(out.Values[1][0]))

	native := out.Shape(FlavorNative).(map[string]map[string]float64)
	assert.InDelta(t, 11.0, native["demand"]["2020-01-02 00:00:00"], 1e-12)

	rows := out.Shape(FlavorList).([]any)
	require.Len(t, rows, 2)
	assert.Equal(t, "2020-01-02 00:00:00", rows[0].([]any)[0])
}

func TestParseOptions(t *testing.T) {
	t.Parallel()

	o, err := ParseOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions(), o)

	o, err = ParseOptions(map[string]any{
		"index_col":   int64(1),
		"fill_method": "pad",
		"fit":         false,
		"flavor":      "dataframe",
		"parse_dates": true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, o.IndexCol)
	assert.Equal(t, FillForward, o.FillMethod)
	assert.False(t, o.Fit)
	assert.Equal(t, FlavorNative, o.Flavor)
	assert.NotEqual(t, DefaultOptions().Key(), o.Key())

	for _, bad := range []map[string]any{
		{"fill_method": "nearest"},
		{"fit": "yes"},
		{"index_col": -1},
		{"sep": ";"},
	} {
		_, err := ParseOptions(bad)
		require.ErrorIs(t, err, ErrInvalidOption, bad)
	}
}

func TestReader(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/files/project/flows.csv", []byte(flowsCSV), 0o644))

	r := NewReader(NewFileSource(fsys, "/files"), WithPrefix("project"))
	ctx := context.Background()

	t.Run("fit onto dates", func(t *testing.T) {
		opts := DefaultOptions()
		opts.FillMethod = FillForward
		opts.Dates = []string{"2020-01-03 00:00:00", "2020-01-04 00:00:00", "2020-01-05 00:00:00"}
		tbl, err := r.Read(ctx, "flows.csv", opts)
		require.NoError(t, err)
		assert.Equal(t, opts.Dates, tbl.Index)
		assert.InDelta(t, 3.0, tbl.Values[1][0], 1e-12)
		assert.True(t, math.IsNaN(tbl.Values[2][0]))
	})

	t.Run("s3 locator", func(t *testing.T) {
		assert.Equal(t, "project/flows.csv", r.Resolve("s3://bucket/project/flows.csv"))
		assert.Equal(t, "/abs.csv", r.Resolve("/abs.csv"))
	})

	t.Run("missing", func(t *testing.T) {
		_, err := r.Read(ctx, "nope.csv", DefaultOptions())
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("no source", func(t *testing.T) {
		var nr *Reader
		_, err := nr.Read(ctx, "flows.csv", DefaultOptions())
		require.ErrorIs(t, err, ErrNoSource)
	})
}
