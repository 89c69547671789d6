// Package format renders evaluated values into the shapes callers ask for. Rendering is a
// pure transform: inputs are never modified.
package format

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/openagua/go-evaluator/dataset"
)

// Flavor is an output shape.
type Flavor string

const (
	// Structured is a nested map or slice of Go values.
	Structured Flavor = "structured"
	// Tabular is a date-indexed *Table.
	Tabular Flavor = "tabular"
	// Interchange is the compact string stored with a dataset.
	Interchange Flavor = "interchange"
)

// ParseFlavor accepts the flavor names and the names older callers use: native, table and
// json. An empty name is Structured.
func ParseFlavor(s string) (Flavor, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "structured", "native":
		return Structured, nil
	case "tabular", "table":
		return Tabular, nil
	case "interchange", "json":
		return Interchange, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFlavor, s)
	}
}

// Options adjust rendering.
type Options struct {
	// Flatten collapses the blocks of each date into their sum.
	Flatten bool
	// CellErrors marks dates whose value is a substitute for a failed evaluation.
	CellErrors map[string]string
}

// Table is the tabular rendering. Series rows are keyed by date; array rows by their
// position; scalar and descriptor tables have a single row with an empty key.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Row is one line of a Table. Missing cells are NaN.
type Row struct {
	Key    string    `json:"key"`
	Values []float64 `json:"values,omitempty"`
	Text   string    `json:"text,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// MarshalJSON writes missing cells as null.
func (r Row) MarshalJSON() ([]byte, error) {
	type wire struct {
		Key    string     `json:"key"`
		Values []*float64 `json:"values,omitempty"`
		Text   string     `json:"text,omitempty"`
		Error  string     `json:"error,omitempty"`
	}
	w := wire{Key: r.Key, Text: r.Text, Error: r.Error}
	if r.Values != nil {
		w.Values = make([]*float64, len(r.Values))
		for i, v := range r.Values {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				w.Values[i] = &v
			}
		}
	}
	return json.Marshal(w)
}

// Render converts v into flavor f.
func Render(v dataset.Value, f Flavor, opts Options) (any, error) {
	if opts.Flatten {
		v = v.Flatten()
	}
	switch f {
	case Structured, "":
		return structured(v)
	case Tabular:
		return tabular(v, opts)
	case Interchange:
		return dataset.Encode(v)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFlavor, f)
	}
}

func structured(v dataset.Value) (any, error) {
	switch v.Type {
	case dataset.Scalar:
		if v.Number == nil {
			return nil, nil
		}
		return *v.Number, nil
	case dataset.Descriptor:
		return v.Text, nil
	case dataset.Timeseries, dataset.PeriodicTimeseries:
		if isSingleBlock(v.Series) {
			out := make(map[string]float64, len(v.Series))
			for date, b := range v.Series {
				out[date] = b[0]
			}
			return out, nil
		}
		out := make(map[string]map[int]float64, len(v.Series))
		for date, b := range v.Series {
			out[date] = maps.Clone(b)
		}
		return out, nil
	case dataset.Array:
		out := make([][]float64, len(v.Array))
		for i, row := range v.Array {
			out[i] = slices.Clone(row)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, v.Type)
	}
}

func tabular(v dataset.Value, opts Options) (*Table, error) {
	switch v.Type {
	case dataset.Scalar:
		cell := math.NaN()
		if v.Number != nil {
			cell = *v.Number
		}
		return &Table{Columns: []string{"value"}, Rows: []Row{{Values: []float64{cell}}}}, nil
	case dataset.Descriptor:
		return &Table{Columns: []string{"value"}, Rows: []Row{{Text: v.Text}}}, nil
	case dataset.Timeseries, dataset.PeriodicTimeseries:
		blocks := v.Series.BlockIndices()
		if len(blocks) == 0 {
			blocks = []int{0}
		}
		t := &Table{Columns: make([]string, len(blocks))}
		for i, b := range blocks {
			t.Columns[i] = strconv.Itoa(b)
		}
		if len(blocks) == 1 {
			t.Columns = []string{"value"}
		}
		for _, date := range v.Series.Dates() {
			row := Row{Key: date, Values: make([]float64, len(blocks)), Error: opts.CellErrors[date]}
			for i, b := range blocks {
				cell, ok := v.Series[date][b]
				if !ok {
					cell = math.NaN()
				}
				row.Values[i] = cell
			}
			t.Rows = append(t.Rows, row)
		}
		return t, nil
	case dataset.Array:
		width := 0
		for _, row := range v.Array {
			width = max(width, len(row))
		}
		t := &Table{Columns: make([]string, width), Rows: make([]Row, len(v.Array))}
		for i := range width {
			t.Columns[i] = strconv.Itoa(i)
		}
		for i, row := range v.Array {
			cells := make([]float64, width)
			for j := range cells {
				cells[j] = math.NaN()
			}
			copy(cells, row)
			t.Rows[i] = Row{Key: strconv.Itoa(i), Values: cells}
		}
		return t, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, v.Type)
	}
}

func isSingleBlock(ts dataset.Series) bool {
	for _, b := range ts {
		if _, ok := b[0]; len(b) != 1 || !ok {
			return false
		}
	}
	return true
}
