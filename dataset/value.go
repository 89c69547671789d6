package dataset

import (
	"maps"
	"slices"
)

// Blocks holds the values of one date, keyed by block index. Single-block series use
// block 0.
type Blocks map[int]float64

// Sum adds the values of every block.
func (b Blocks) Sum() float64 {
	var total float64
	for _, v := range b {
		total += v
	}
	return total
}

// Indices returns the block indices in ascending order.
func (b Blocks) Indices() []int {
	return slices.Sorted(maps.Keys(b))
}

// Series maps a date key to the block values of that date.
type Series map[string]Blocks

// Dates returns the date keys in ascending order. Keys share one layout, so lexical order
// is date order.
func (ts Series) Dates() []string {
	return slices.Sorted(maps.Keys(ts))
}

// NumBlocks returns the number of distinct block indices used by the series.
func (ts Series) NumBlocks() int {
	seen := make(map[int]struct{})
	for _, b := range ts {
		for i := range b {
			seen[i] = struct{}{}
		}
	}
	return len(seen)
}

// BlockIndices returns every block index used by the series in ascending order.
func (ts Series) BlockIndices() []int {
	seen := make(map[int]struct{})
	for _, b := range ts {
		for i := range b {
			seen[i] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// Flatten returns a single-block series holding the sum of the blocks of each date.
func (ts Series) Flatten() Series {
	out := make(Series, len(ts))
	for date, b := range ts {
		out[date] = Blocks{0: b.Sum()}
	}
	return out
}

// Clone returns a deep copy.
func (ts Series) Clone() Series {
	out := make(Series, len(ts))
	for date, b := range ts {
		out[date] = maps.Clone(b)
	}
	return out
}

// DefaultSeries returns a series over dates with nblocks blocks set to v.
func DefaultSeries(dates []string, nblocks int, v float64) Series {
	nblocks = max(nblocks, 1)
	ts := make(Series, len(dates))
	for _, d := range dates {
		b := make(Blocks, nblocks)
		for i := range nblocks {
			b[i] = v
		}
		ts[d] = b
	}
	return ts
}

// Value is a typed attribute value. Exactly one of the payload fields is meaningful, as
// selected by Type.
type Value struct {
	Type   Type
	Number *float64
	Text   string
	Series Series
	Array  [][]float64
}

// NumberValue returns a scalar value.
func NumberValue(f float64) Value {
	return Value{Type: Scalar, Number: &f}
}

// TextValue returns a descriptor value.
func TextValue(s string) Value {
	return Value{Type: Descriptor, Text: s}
}

// SeriesValue returns a time series value of type t.
func SeriesValue(t Type, ts Series) Value {
	if ts == nil {
		ts = Series{}
	}
	return Value{Type: t, Series: ts}
}

// ArrayValue returns an array value.
func ArrayValue(rows [][]float64) Value {
	if rows == nil {
		rows = [][]float64{}
	}
	return Value{Type: Array, Array: rows}
}

// Empty returns the canonical no-data value of t: an empty series for time series, an
// empty nested sequence for arrays, and an absent value otherwise.
func Empty(t Type) Value {
	switch t {
	case Timeseries, PeriodicTimeseries:
		return SeriesValue(t, nil)
	case Array:
		return ArrayValue(nil)
	default:
		return Value{Type: t}
	}
}

// IsEmpty reports whether v holds no data.
func (v Value) IsEmpty() bool {
	switch v.Type {
	case Scalar:
		return v.Number == nil
	case Descriptor:
		return v.Text == ""
	case Timeseries, PeriodicTimeseries:
		return len(v.Series) == 0
	case Array:
		return len(v.Array) == 0
	default:
		return true
	}
}

// Flatten collapses block-structured series into one block per date. Other values are
// returned unchanged.
func (v Value) Flatten() Value {
	if !v.Type.IsTimeVarying() {
		return v
	}
	return SeriesValue(v.Type, v.Series.Flatten())
}

// Broadcast expands a scalar into a series of type t over dates. Other values are returned
// unchanged.
func (v Value) Broadcast(t Type, dates []string) Value {
	if v.Type != Scalar || v.Number == nil || !t.IsTimeVarying() {
		return v
	}
	return SeriesValue(t, DefaultSeries(dates, 1, *v.Number))
}
