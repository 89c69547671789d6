package function

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	starlarkTime "go.starlark.net/lib/time"
	starlarkLib "go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/openagua/go-evaluator/timestep"
)

// ToGo converts a Starlark value into nil, bool, int64, float64, string, time.Time,
// []any or map[string]any. Dict keys that are not strings are converted with their
// Starlark string form, so {0: 1.5} becomes map[string]any{"0": 1.5}.
func ToGo(v starlarkLib.Value) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch v := v.(type) {
	case starlarkLib.NoneType:
		return nil, nil
	case starlarkLib.Bool:
		return bool(v), nil
	case starlarkLib.Int:
		if i, ok := v.Int64(); ok {
			return i, nil
		}
		f, _ := starlarkLib.AsFloat(v)
		return f, nil
	case starlarkLib.Float:
		return float64(v), nil
	case starlarkLib.String:
		return string(v), nil
	case starlarkTime.Time:
		return time.Time(v), nil
	case starlarkLib.Indexable:
		list := make([]any, 0, v.Len())
		for i := range v.Len() {
			elem, err := ToGo(v.Index(i))
			if err != nil {
				return nil, fmt.Errorf("failed to convert list element: %w", err)
			}
			list = append(list, elem)
		}
		return list, nil
	case *starlarkLib.Dict:
		dict := make(map[string]any, v.Len())
		for _, item := range v.Items() {
			k, val := item[0], item[1]
			key := k.String()
			if s, ok := k.(starlarkLib.String); ok {
				key = string(s)
			}
			vv, err := ToGo(val)
			if err != nil {
				return nil, fmt.Errorf("failed to convert dict value for key %s: %w", key, err)
			}
			dict[key] = vv
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("%w: Starlark %s", ErrUnsupported, v.Type())
	}
}

// FromGo converts the values returned by a Host into Starlark values.
func FromGo(v any) (starlarkLib.Value, error) {
	if v == nil {
		return starlarkLib.None, nil
	}

	switch val := v.(type) {
	case starlarkLib.Value:
		return val, nil
	case bool:
		return starlarkLib.Bool(val), nil
	case int:
		return starlarkLib.MakeInt(val), nil
	case int64:
		return starlarkLib.MakeInt64(val), nil
	case float64:
		if math.IsNaN(val) {
			return starlarkLib.Float(math.NaN()), nil
		}
		return starlarkLib.Float(val), nil
	case string:
		return starlarkLib.String(val), nil
	case time.Time:
		return starlarkTime.Time(val), nil
	case []float64:
		elems := make([]starlarkLib.Value, len(val))
		for i, f := range val {
			elems[i] = starlarkLib.Float(f)
		}
		return starlarkLib.NewList(elems), nil
	case [][]float64:
		rows := make([]starlarkLib.Value, len(val))
		for i, row := range val {
			r, err := FromGo(row)
			if err != nil {
				return nil, err
			}
			rows[i] = r
		}
		return starlarkLib.NewList(rows), nil
	case []any:
		elems := make([]starlarkLib.Value, len(val))
		for i, elem := range val {
			sv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("failed to convert list element: %w", err)
			}
			elems[i] = sv
		}
		return starlarkLib.NewList(elems), nil
	case map[string]float64:
		dict := starlarkLib.NewDict(len(val))
		for _, k := range slices.Sorted(maps.Keys(val)) {
			if err := dict.SetKey(starlarkLib.String(k), starlarkLib.Float(val[k])); err != nil {
				return nil, err
			}
		}
		return dict, nil
	case map[int]float64:
		dict := starlarkLib.NewDict(len(val))
		for _, k := range slices.Sorted(maps.Keys(val)) {
			if err := dict.SetKey(starlarkLib.MakeInt(k), starlarkLib.Float(val[k])); err != nil {
				return nil, err
			}
		}
		return dict, nil
	case map[string]map[string]float64:
		dict := starlarkLib.NewDict(len(val))
		for _, k := range slices.Sorted(maps.Keys(val)) {
			inner, err := FromGo(val[k])
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlarkLib.String(k), inner); err != nil {
				return nil, err
			}
		}
		return dict, nil
	case map[string]any:
		dict := starlarkLib.NewDict(len(val))
		for _, k := range slices.Sorted(maps.Keys(val)) {
			sv, err := FromGo(val[k])
			if err != nil {
				return nil, fmt.Errorf("failed to convert dict value for key %q: %w", k, err)
			}
			if err := dict.SetKey(starlarkLib.String(k), sv); err != nil {
				return nil, fmt.Errorf("failed to set dict key %q: %w", k, err)
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupported, v)
	}
}

// timestepValue exposes a step to expressions as a frozen struct.
func timestepValue(ts timestep.Timestep) starlarkLib.Value {
	s := starlarkstruct.FromStringDict(starlarkstruct.Default, starlarkLib.StringDict{
		"index":             starlarkLib.MakeInt(ts.Index),
		"timestep":          starlarkLib.MakeInt(ts.Timestep),
		"date":              starlarkTime.Time(ts.Date),
		"date_as_string":    starlarkLib.String(ts.Key()),
		"year":              starlarkLib.MakeInt(ts.Year),
		"month":             starlarkLib.MakeInt(ts.Month),
		"day":               starlarkLib.MakeInt(ts.Day),
		"water_year":        starlarkLib.MakeInt(ts.WaterYear),
		"periodic_timestep": starlarkLib.MakeInt(ts.PeriodicTimestep),
	})
	s.Freeze()
	return s
}
