package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/openagua/go-evaluator/timestep"
)

// DecodeOptions controls how stored time series are expanded onto a calendar.
type DecodeOptions struct {
	// Dates is the calendar a missing or empty series is expanded over.
	Dates []string
	// Default is the value of every block of an expanded empty series.
	Default float64
	// Fill, when set, is written to every calendar date absent from a stored series.
	Fill *float64
	// NBlocks is the number of blocks of an expanded empty series.
	NBlocks int
}

// Decode converts a stored value into a typed Value.
func Decode(raw string, t Type, opts DecodeOptions) (Value, error) {
	switch t {
	case Scalar:
		return decodeScalar(raw)
	case Descriptor:
		return TextValue(raw), nil
	case Timeseries, PeriodicTimeseries:
		ts, err := decodeSeries(raw)
		if err != nil {
			return Empty(t), err
		}
		if len(ts) == 0 {
			return SeriesValue(t, DefaultSeries(opts.Dates, opts.NBlocks, opts.Default)), nil
		}
		if opts.Fill != nil {
			fillMissing(ts, opts.Dates, *opts.Fill)
		}
		return SeriesValue(t, ts), nil
	case Array:
		rows, err := decodeArray(raw)
		if err != nil {
			return Empty(Array), err
		}
		return ArrayValue(rows), nil
	default:
		return Value{}, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}

func decodeScalar(raw string) (Value, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Empty(Scalar), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Empty(Scalar), fmt.Errorf("%w: %q is not a number", ErrInvalidScalar, raw)
	}
	return NumberValue(f), nil
}

// decodeSeries accepts three stored layouts:
//
//	{"<date>": 1.0}                      single block
//	{"<date>": {"0": 1.0, "1": 2.0}}     blocks per date
//	{"0": {"<date>": 1.0}}               dates per block, as written by older exports
func decodeSeries(raw string) (Series, error) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "null" || s == "{}" {
		return Series{}, nil
	}

	var outer map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &outer); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTimeseries, err)
	}

	ts := make(Series, len(outer))
	if isBlockOriented(outer) {
		for blockKey, rawDates := range outer {
			block, _ := strconv.Atoi(blockKey)
			var dates map[string]*float64
			if err := json.Unmarshal(rawDates, &dates); err != nil {
				return nil, fmt.Errorf("%w: block %s: %w", ErrInvalidTimeseries, blockKey, err)
			}
			for date, v := range dates {
				if v == nil {
					continue
				}
				key, _ := timestep.NormalizeKey(date)
				if ts[key] == nil {
					ts[key] = Blocks{}
				}
				ts[key][block] = *v
			}
		}
		return ts, nil
	}

	for date, rawValue := range outer {
		key, _ := timestep.NormalizeKey(date)
		rawValue = bytes.TrimSpace(rawValue)
		if len(rawValue) == 0 || bytes.Equal(rawValue, []byte("null")) {
			continue
		}
		if rawValue[0] == '{' {
			var blocks map[string]*float64
			if err := json.Unmarshal(rawValue, &blocks); err != nil {
				return nil, fmt.Errorf("%w: date %s: %w", ErrInvalidTimeseries, date, err)
			}
			b := make(Blocks, len(blocks))
			for blockKey, v := range blocks {
				block, err := strconv.Atoi(blockKey)
				if err != nil {
					return nil, fmt.Errorf("%w: block %q at %s", ErrInvalidTimeseries, blockKey, date)
				}
				if v != nil {
					b[block] = *v
				}
			}
			ts[key] = b
			continue
		}
		var v float64
		if err := json.Unmarshal(rawValue, &v); err != nil {
			return nil, fmt.Errorf("%w: date %s: %w", ErrInvalidTimeseries, date, err)
		}
		ts[key] = Blocks{0: v}
	}
	return ts, nil
}

// isBlockOriented reports whether every outer key is a block index holding an object.
func isBlockOriented(outer map[string]json.RawMessage) bool {
	for k, v := range outer {
		if _, err := strconv.Atoi(k); err != nil {
			return false
		}
		v = bytes.TrimSpace(v)
		if len(v) == 0 || v[0] != '{' {
			return false
		}
	}
	return len(outer) > 0
}

func fillMissing(ts Series, dates []string, fill float64) {
	indices := ts.BlockIndices()
	if len(indices) == 0 {
		indices = []int{0}
	}
	for _, d := range dates {
		if _, ok := ts[d]; ok {
			continue
		}
		b := make(Blocks, len(indices))
		for _, i := range indices {
			b[i] = fill
		}
		ts[d] = b
	}
}

func decodeArray(raw string) ([][]float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "null" {
		return [][]float64{}, nil
	}
	var items []any
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArray, err)
	}

	if len(items) > 0 {
		if _, nested := items[0].([]any); !nested {
			row, err := arrayRow(items)
			if err != nil {
				return nil, err
			}
			return [][]float64{row}, nil
		}
	}

	rows := make([][]float64, 0, len(items))
	for i, item := range items {
		cells, ok := item.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: row %d is not a list", ErrInvalidArray, i)
		}
		row, err := arrayRow(cells)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func arrayRow(cells []any) ([]float64, error) {
	row := make([]float64, len(cells))
	for i, c := range cells {
		switch v := c.(type) {
		case float64:
			row[i] = v
		case nil:
			row[i] = math.NaN()
		default:
			return nil, fmt.Errorf("%w: cell %d is %T", ErrInvalidArray, i, c)
		}
	}
	return row, nil
}

// FormatNumber serializes a number in its shortest round-trip form.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Encode converts a typed Value into its stored form. Output is deterministic: map keys
// are sorted and numbers use FormatNumber. Missing (NaN) cells are written as null or
// omitted.
func Encode(v Value) (string, error) {
	switch v.Type {
	case Scalar:
		if v.Number == nil {
			return "", nil
		}
		return FormatNumber(*v.Number), nil
	case Descriptor:
		return v.Text, nil
	case Timeseries, PeriodicTimeseries:
		return encodeSeries(v.Series)
	case Array:
		return encodeArray(v.Array)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, v.Type)
	}
}

func encodeSeries(ts Series) (string, error) {
	singleBlock := true
	for _, b := range ts {
		if _, ok := b[0]; len(b) != 1 || !ok {
			singleBlock = false
			break
		}
	}

	var out any
	if singleBlock {
		flat := make(map[string]json.Number, len(ts))
		for date, b := range ts {
			if !math.IsNaN(b[0]) && !math.IsInf(b[0], 0) {
				flat[date] = json.Number(FormatNumber(b[0]))
			}
		}
		out = flat
	} else {
		nested := make(map[string]map[string]json.Number, len(ts))
		for date, b := range ts {
			cells := make(map[string]json.Number, len(b))
			for i, v := range b {
				if !math.IsNaN(v) && !math.IsInf(v, 0) {
					cells[strconv.Itoa(i)] = json.Number(FormatNumber(v))
				}
			}
			nested[date] = cells
		}
		out = nested
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidTimeseries, err)
	}
	return string(b), nil
}

func encodeArray(rows [][]float64) (string, error) {
	out := make([][]*json.Number, len(rows))
	for i, row := range rows {
		out[i] = make([]*json.Number, len(row))
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			n := json.Number(FormatNumber(v))
			out[i][j] = &n
		}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidArray, err)
	}
	return string(b), nil
}
