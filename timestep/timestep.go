// Package timestep builds the simulation calendar used to evaluate time-varying datasets.
package timestep

import (
	"fmt"
	"strings"
	"time"
)

// KeyLayout is the layout of the date strings used as keys in time series payloads and in
// the per-run memoization store.
const KeyLayout = "2006-01-02 15:04:05"

// ReferenceYear pins periodic calendars to a single non-leap year so patterns repeat
// independently of the scenario dates.
const ReferenceYear = 9999

// Span is the step length of a calendar.
type Span string

const (
	Day           Span = "day"
	Week          Span = "week"
	Month         Span = "month"
	ThriceMonthly Span = "thricemonthly"
)

// ParseSpan accepts the canonical span names and the spellings found in stored scenario
// settings.
func ParseSpan(s string) (Span, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", ErrMissingSpan
	case "day", "daily", "d":
		return Day, nil
	case "week", "weekly", "w":
		return Week, nil
	case "month", "monthly", "m":
		return Month, nil
	case "thricemonthly", "thrice-monthly", "thrice_monthly", "dekad":
		return ThriceMonthly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSpan, s)
	}
}

// Timestep is one point of the simulation calendar.
type Timestep struct {
	Index            int
	Timestep         int
	Date             time.Time
	Year             int
	Month            int
	Day              int
	WaterYear        int
	PeriodicTimestep int
}

func newTimestep(index int, date, start time.Time, span Span) Timestep {
	return Timestep{
		Index:            index,
		Timestep:         index + 1,
		Date:             date,
		Year:             date.Year(),
		Month:            int(date.Month()),
		Day:              date.Day(),
		WaterYear:        WaterYear(date, start),
		PeriodicTimestep: Periodic(date, start, span),
	}
}

// Key returns the date key of the step.
func (t Timestep) Key() string {
	return FormatKey(t.Date)
}

func (t Timestep) String() string {
	return fmt.Sprintf("Timestep{%d %s periodic=%d}", t.Timestep, t.Key(), t.PeriodicTimestep)
}

// FormatKey formats a date as a series key.
func FormatKey(t time.Time) string {
	return t.Format(KeyLayout)
}

var dateLayouts = []string{
	KeyLayout,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05.000",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
	"2006-01",
}

// ParseDate parses the date formats found in stored series, scenario settings and
// expression arguments.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// NormalizeKey rewrites a parseable date string into KeyLayout.
func NormalizeKey(s string) (string, bool) {
	t, err := ParseDate(s)
	if err != nil {
		return s, false
	}
	return FormatKey(t), true
}

// WaterYear returns the year of date, incremented when the month of date precedes the
// month the calendar starts in.
func WaterYear(date, start time.Time) int {
	if !start.IsZero() && date.Month() < start.Month() {
		return date.Year() + 1
	}
	return date.Year()
}
