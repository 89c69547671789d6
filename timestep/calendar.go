package timestep

import (
	"fmt"
	"slices"
	"time"
)

// Settings are the inputs of a calendar, usually read from the scenario.
type Settings struct {
	Start time.Time
	End   time.Time
	Span  Span
	// Periodic pins the calendar to ReferenceYear.
	Periodic bool
}

// Calendar is the ordered, immutable sequence of steps of one evaluation run.
type Calendar struct {
	steps    []Timestep
	index    map[string]int
	start    time.Time
	end      time.Time
	span     Span
	periodic bool
}

// Build returns the calendar for s. A missing start or end, or an end before the start,
// gives an empty calendar. A start and end without a span is ErrMissingSpan.
func Build(s Settings) (*Calendar, error) {
	if s.Start.IsZero() || s.End.IsZero() {
		return newCalendar(nil, s), nil
	}
	if s.Span == "" {
		return nil, ErrMissingSpan
	}
	span, err := ParseSpan(string(s.Span))
	if err != nil {
		return nil, err
	}
	s.Span = span

	start, end := dateOnly(s.Start), dateOnly(s.End)
	if s.Periodic {
		start = time.Date(ReferenceYear, time.January, 1, 0, 0, 0, 0, time.UTC)
		end = time.Date(ReferenceYear, time.December, 31, 0, 0, 0, 0, time.UTC)
	}
	s.Start, s.End = start, end
	if end.Before(start) {
		return newCalendar(nil, s), nil
	}

	var dates []time.Time
	switch span {
	case Day:
		dates = dailyDates(start, end)
	case Week:
		dates = weeklyDates(start, end)
	case Month:
		dates = monthEnds(start, end)
	case ThriceMonthly:
		for _, m := range monthEnds(start, end) {
			dates = append(dates,
				time.Date(m.Year(), m.Month(), 10, 0, 0, 0, 0, time.UTC),
				time.Date(m.Year(), m.Month(), 20, 0, 0, 0, 0, time.UTC),
				m,
			)
		}
	}

	steps := make([]Timestep, len(dates))
	for i, d := range dates {
		steps[i] = newTimestep(i, d, start, span)
	}
	return newCalendar(steps, s), nil
}

func newCalendar(steps []Timestep, s Settings) *Calendar {
	c := &Calendar{
		steps:    steps,
		index:    make(map[string]int, len(steps)),
		start:    s.Start,
		end:      s.End,
		span:     s.Span,
		periodic: s.Periodic,
	}
	for i, st := range steps {
		c.index[st.Key()] = i
	}
	return c
}

func dailyDates(start, end time.Time) []time.Time {
	dates := make([]time.Time, 0, daysBetween(start, end)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// weeklyDates steps seven days at a time. A step landing on Mar 4 of a leap year moves to
// Mar 5 to absorb the leap day, and a step landing on Dec 31 moves to Jan 1, so every year
// holds 52 steps.
func weeklyDates(start, end time.Time) []time.Time {
	var dates []time.Time
	for d := start; !d.After(end); {
		dates = append(dates, d)
		next := d.AddDate(0, 0, 7)
		if isLeap(next.Year()) && next.Month() == time.March && next.Day() == 4 {
			next = next.AddDate(0, 0, 1)
		}
		if next.Month() == time.December && next.Day() == 31 {
			next = next.AddDate(0, 0, 1)
		}
		d = next
	}
	return dates
}

func monthEnds(start, end time.Time) []time.Time {
	var dates []time.Time
	first := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	for {
		last := first.AddDate(0, 1, -1)
		if last.After(end) {
			break
		}
		if !last.Before(start) {
			dates = append(dates, last)
		}
		first = first.AddDate(0, 1, 0)
	}
	return dates
}

// Len returns the number of steps.
func (c *Calendar) Len() int { return len(c.steps) }

// IsEmpty reports whether the calendar has no steps.
func (c *Calendar) IsEmpty() bool { return len(c.steps) == 0 }

// Steps returns a copy of the steps.
func (c *Calendar) Steps() []Timestep { return slices.Clone(c.steps) }

// At returns the step at position i.
func (c *Calendar) At(i int) (Timestep, bool) {
	if i < 0 || i >= len(c.steps) {
		return Timestep{}, false
	}
	return c.steps[i], true
}

// Lookup returns the step with the given date key.
func (c *Calendar) Lookup(key string) (Timestep, bool) {
	i, ok := c.index[key]
	if !ok {
		return Timestep{}, false
	}
	return c.steps[i], true
}

// Keys returns the date keys in calendar order.
func (c *Calendar) Keys() []string {
	keys := make([]string, len(c.steps))
	for i, st := range c.steps {
		keys[i] = st.Key()
	}
	return keys
}

// Offset returns the step n positions away from t.
func (c *Calendar) Offset(t Timestep, n int) (Timestep, error) {
	i, ok := c.index[t.Key()]
	if !ok {
		return Timestep{}, fmt.Errorf("%w: %s is not in the calendar", ErrOutOfRange, t.Key())
	}
	target, ok := c.At(i + n)
	if !ok {
		return Timestep{}, fmt.Errorf("%w: offset %d from %s", ErrOutOfRange, n, t.Key())
	}
	return target, nil
}

// Window returns the steps dated within [from, to]. A zero bound is open. Steps keep the
// indices they have in c.
func (c *Calendar) Window(from, to time.Time) *Calendar {
	if from.IsZero() && to.IsZero() {
		return c
	}
	steps := make([]Timestep, 0, len(c.steps))
	for _, st := range c.steps {
		if !from.IsZero() && st.Date.Before(dateOnly(from)) {
			continue
		}
		if !to.IsZero() && st.Date.After(to) {
			continue
		}
		steps = append(steps, st)
	}
	w := newCalendar(steps, Settings{Start: c.start, End: c.end, Span: c.span, Periodic: c.periodic})
	return w
}

// Start returns the calendar start the steps were built from.
func (c *Calendar) Start() time.Time { return c.start }

// End returns the calendar end the steps were built from.
func (c *Calendar) End() time.Time { return c.end }

// Span returns the calendar span.
func (c *Calendar) Span() Span { return c.span }

// Periodic reports whether the calendar is pinned to ReferenceYear.
func (c *Calendar) Periodic() bool { return c.periodic }
