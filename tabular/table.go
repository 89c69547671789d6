// Package tabular reads CSV tables referenced by expressions and shapes them onto the
// evaluation calendar.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/openagua/go-evaluator/timestep"
)

// Table is a numeric table with labelled rows. Missing cells are NaN.
type Table struct {
	Columns []string
	Index   []string
	Values  [][]float64
	// DateIndex is true when every row label parsed as a date; labels are then date keys.
	DateIndex bool
}

// Parse reads CSV with a header row. The IndexCol column holds the row labels; every other
// column must be numeric or empty.
func Parse(r io.Reader, opts Options) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyTable
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTable, err)
	}
	if opts.IndexCol >= len(header) {
		return nil, fmt.Errorf("%w: index column %d out of %d", ErrInvalidTable, opts.IndexCol, len(header))
	}

	t := &Table{DateIndex: true}
	for i, h := range header {
		if i != opts.IndexCol {
			t.Columns = append(t.Columns, strings.TrimSpace(h))
		}
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidTable, err)
		}
		if len(rec) <= opts.IndexCol {
			return nil, fmt.Errorf("%w: line %d has no index cell", ErrInvalidTable, line)
		}

		label := strings.TrimSpace(rec[opts.IndexCol])
		if key, ok := timestep.NormalizeKey(label); ok && t.DateIndex {
			label = key
		} else {
			t.DateIndex = false
		}

		row := make([]float64, 0, len(t.Columns))
		for i := range header {
			if i == opts.IndexCol {
				continue
			}
			row = append(row, cell(rec, i))
		}
		t.Index = append(t.Index, label)
		t.Values = append(t.Values, row)
	}
	if len(t.Index) == 0 {
		return nil, ErrEmptyTable
	}
	return t, nil
}

func cell(rec []string, i int) float64 {
	if i >= len(rec) {
		return math.NaN()
	}
	s := strings.TrimSpace(rec[i])
	if s == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// Fill replaces missing cells column by column.
func (t *Table) Fill(method, interp string) {
	for c := range t.Columns {
		switch method {
		case FillForward:
			last := math.NaN()
			for r := range t.Values {
				if math.IsNaN(t.Values[r][c]) {
					t.Values[r][c] = last
				} else {
					last = t.Values[r][c]
				}
			}
		case FillBackward:
			next := math.NaN()
			for r := len(t.Values) - 1; r >= 0; r-- {
				if math.IsNaN(t.Values[r][c]) {
					t.Values[r][c] = next
				} else {
					next = t.Values[r][c]
				}
			}
		case FillInterpolate:
			t.interpolate(c, interp == "time" && t.DateIndex)
		}
	}
}

// interpolate fills interior gaps linearly, by row position or by elapsed time. Leading
// gaps stay missing and trailing gaps take the last value.
func (t *Table) interpolate(c int, byTime bool) {
	x := func(r int) float64 {
		if byTime {
			d, err := time.Parse(timestep.KeyLayout, t.Index[r])
			if err == nil {
				return float64(d.Unix())
			}
		}
		return float64(r)
	}

	prev := -1
	for r := range t.Values {
		if math.IsNaN(t.Values[r][c]) {
			continue
		}
		if prev >= 0 && r-prev > 1 {
			x0, x1 := x(prev), x(r)
			y0, y1 := t.Values[prev][c], t.Values[r][c]
			for k := prev + 1; k < r; k++ {
				t.Values[k][c] = y0 + (y1-y0)*(x(k)-x0)/(x1-x0)
			}
		}
		prev = r
	}
	if prev >= 0 {
		for r := prev + 1; r < len(t.Values); r++ {
			t.Values[r][c] = t.Values[prev][c]
		}
	}
}

// Reindex returns a table whose rows are exactly keys, in order. Rows for keys absent from
// the table are missing.
func (t *Table) Reindex(keys []string) *Table {
	pos := make(map[string]int, len(t.Index))
	for i, k := range t.Index {
		pos[k] = i
	}
	out := &Table{
		Columns:   t.Columns,
		Index:     keys,
		Values:    make([][]float64, len(keys)),
		DateIndex: t.DateIndex,
	}
	for i, k := range keys {
		row := make([]float64, len(t.Columns))
		if p, ok := pos[k]; ok {
			copy(row, t.Values[p])
		} else {
			for c := range row {
				row[c] = math.NaN()
			}
		}
		out.Values[i] = row
	}
	return out
}

// Native is the column -> {row label -> value} form.
func (t *Table) Native() map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(t.Columns))
	for c, name := range t.Columns {
		col := make(map[string]float64, len(t.Index))
		for r, label := range t.Index {
			col[label] = t.Values[r][c]
		}
		out[name] = col
	}
	return out
}

// Rows is the list form: one list per row, the label first.
func (t *Table) Rows() []any {
	out := make([]any, len(t.Index))
	for r, label := range t.Index {
		row := make([]any, 0, len(t.Columns)+1)
		row = append(row, label)
		for _, v := range t.Values[r] {
			row = append(row, v)
		}
		out[r] = row
	}
	return out
}

// Shape returns the table in the flavor the options ask for.
func (t *Table) Shape(flavor string) any {
	if flavor == FlavorList {
		return t.Rows()
	}
	return t.Native()
}
