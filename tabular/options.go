package tabular

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Fill methods for missing cells.
const (
	FillNone        = ""
	FillForward     = "ffill"
	FillBackward    = "bfill"
	FillInterpolate = "interpolate"
)

// Output flavors of a read table, as seen by expressions.
const (
	FlavorNative = "native" // column -> {index -> value}
	FlavorList   = "list"   // list of rows, each a list of values
)

// Options control how a table is read and shaped.
type Options struct {
	// IndexCol is the column holding row labels.
	IndexCol int
	// FillMethod fills missing cells: ffill, bfill or interpolate.
	FillMethod string
	// InterpMethod selects the interpolation: linear (by position) or time.
	InterpMethod string
	// Fit reindexes a date-indexed table onto Dates.
	Fit bool
	// Flavor is the shape handed back to expressions.
	Flavor string
	// Dates are the calendar keys used by Fit. They are set by the caller, never by the
	// expression.
	Dates []string
}

// DefaultOptions are the options of read_csv(locator) with no keywords.
func DefaultOptions() Options {
	return Options{Fit: true, Flavor: FlavorNative}
}

// ParseOptions reads expression keywords into Options. Keywords this reader has no use for
// (parse_dates, infer_datetime_format) are accepted and ignored.
func ParseOptions(kw map[string]any) (Options, error) {
	o := DefaultOptions()
	for _, k := range slices.Sorted(maps.Keys(kw)) {
		v := kw[k]
		switch k {
		case "index_col":
			n, ok := toInt(v)
			if !ok || n < 0 {
				return Options{}, fmt.Errorf("%w: index_col=%v", ErrInvalidOption, v)
			}
			o.IndexCol = n
		case "fill_method":
			s, _ := v.(string)
			switch s {
			case FillNone, FillForward, FillBackward, FillInterpolate:
				o.FillMethod = s
			case "pad":
				o.FillMethod = FillForward
			case "backfill":
				o.FillMethod = FillBackward
			default:
				return Options{}, fmt.Errorf("%w: fill_method=%v", ErrInvalidOption, v)
			}
		case "interp_method":
			s, _ := v.(string)
			o.InterpMethod = s
		case "fit":
			b, ok := v.(bool)
			if !ok {
				return Options{}, fmt.Errorf("%w: fit=%v", ErrInvalidOption, v)
			}
			o.Fit = b
		case "flavor":
			s, _ := v.(string)
			switch strings.ToLower(s) {
			case FlavorNative, "dict", "dataframe", "pandas":
				o.Flavor = FlavorNative
			case FlavorList:
				o.Flavor = FlavorList
			default:
				return Options{}, fmt.Errorf("%w: flavor=%v", ErrInvalidOption, v)
			}
		case "parse_dates", "infer_datetime_format":
		default:
			return Options{}, fmt.Errorf("%w: unknown keyword %q", ErrInvalidOption, k)
		}
	}
	return o, nil
}

// Key identifies the options for caching. Dates are excluded since they are fixed for a
// run.
func (o Options) Key() string {
	return fmt.Sprintf("index_col=%d,fill=%s,interp=%s,fit=%t,flavor=%s",
		o.IndexCol, o.FillMethod, o.InterpMethod, o.Fit, o.Flavor)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}
