package function

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	starlarkTime "go.starlark.net/lib/time"
	starlarkLib "go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/openagua/go-evaluator/timestep"
)

func TestToGo(t *testing.T) {
	t.Parallel()

	dict := starlarkLib.NewDict(2)
	require.NoError(t, dict.SetKey(starlarkLib.MakeInt(0), starlarkLib.Float(2)))
	require.NoError(t, dict.SetKey(starlarkLib.String("a"), starlarkLib.None))

	when := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   starlarkLib.Value
		want any
	}{
		{name: "none", in: starlarkLib.None, want: nil},
		{name: "bool", in: starlarkLib.True, want: true},
		{name: "int", in: starlarkLib.MakeInt(7), want: int64(7)},
		{name: "float", in: starlarkLib.Float(1.5), want: 1.5},
		{name: "string", in: starlarkLib.String("x"), want: "x"},
		{name: "time", in: starlarkTime.Time(when), want: when},
		{name: "list", in: starlarkLib.NewList([]starlarkLib.Value{starlarkLib.MakeInt(1), starlarkLib.Float(2)}), want: []any{int64(1), 2.0}},
		{name: "tuple", in: starlarkLib.Tuple{starlarkLib.String("a")}, want: []any{"a"}},
		{name: "dict with int keys", in: dict, want: map[string]any{"0": 2.0, "a": nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ToGo(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("unsupported", func(t *testing.T) {
		t.Parallel()
		_, err := ToGo(starlarkLib.NewBuiltin("f", nil))
		require.ErrorIs(t, err, ErrUnsupported)
	})
}

func TestFromGo(t *testing.T) {
	t.Parallel()

	t.Run("numbers and text", func(t *testing.T) {
		for in, want := range map[any]starlarkLib.Value{
			3:         starlarkLib.MakeInt(3),
			int64(4):  starlarkLib.MakeInt64(4),
			2.5:       starlarkLib.Float(2.5),
			"s":       starlarkLib.String("s"),
			true:      starlarkLib.True,
		} {
			got, err := FromGo(in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
		got, err := FromGo(nil)
		require.NoError(t, err)
		assert.Equal(t, starlarkLib.None, got)
	})

	t.Run("nan survives", func(t *testing.T) {
		got, err := FromGo(math.NaN())
		require.NoError(t, err)
		f, ok := got.(starlarkLib.Float)
		require.True(t, ok)
		assert.True(t, math.IsNaN(float64(f)))
	})

	t.Run("nested maps", func(t *testing.T) {
		got, err := FromGo(map[string]map[string]float64{"inflow": {"2020-01-01 00:00:00": 1}})
		require.NoError(t, err)
		back, err := ToGo(got)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"inflow": map[string]any{"2020-01-01 00:00:00": 1.0}}, back)
	})

	t.Run("blocks", func(t *testing.T) {
		got, err := FromGo(map[int]float64{1: 3, 0: 2})
		require.NoError(t, err)
		dict := got.(*starlarkLib.Dict)
		v, found, err := dict.Get(starlarkLib.MakeInt(1))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, starlarkLib.Float(3), v)
	})

	t.Run("rows", func(t *testing.T) {
		got, err := FromGo([][]float64{{1, 2}})
		require.NoError(t, err)
		back, err := ToGo(got)
		require.NoError(t, err)
		assert.Equal(t, []any{[]any{1.0, 2.0}}, back)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := FromGo(struct{}{})
		require.ErrorIs(t, err, ErrUnsupported)
	})
}

func TestTimestepValue(t *testing.T) {
	t.Parallel()
	ts := timestep.Timestep{
		Index:            2,
		Timestep:         3,
		Date:             time.Date(2020, 3, 31, 0, 0, 0, 0, time.UTC),
		Year:             2020,
		Month:            3,
		Day:              31,
		WaterYear:        2020,
		PeriodicTimestep: 3,
	}
	v := timestepValue(ts)
	s, ok := v.(*starlarkstruct.Struct)
	require.True(t, ok)

	month, err := s.Attr("month")
	require.NoError(t, err)
	assert.Equal(t, starlarkLib.MakeInt(3), month)

	key, err := s.Attr("date_as_string")
	require.NoError(t, err)
	assert.Equal(t, starlarkLib.String("2020-03-31 00:00:00"), key)
}
