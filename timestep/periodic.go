package timestep

import "time"

const weeksPerYear = 52

// Periodic returns the position of date within the repeating annual cycle that starts at
// start. It depends only on its arguments, so steps can be computed in any order.
//
//   - Day: days since the latest anniversary of start, plus one (1..366).
//   - Week: weeks since the latest anniversary, plus one, capped at 52. A leap day between
//     the anniversary and date is not counted.
//   - Month: months since the start month, modulo 12, plus one.
//   - ThriceMonthly: three slots per month (day 1-10, 11-20, rest), 1..36.
func Periodic(date, start time.Time, span Span) int {
	date = dateOnly(date)
	if start.IsZero() {
		start = time.Date(date.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	start = dateOnly(start)

	switch span {
	case Day:
		return daysBetween(lastAnniversary(date, start), date) + 1
	case Week:
		anniversary := lastAnniversary(date, start)
		days := daysBetween(anniversary, date) - leapDaysBetween(anniversary, date)
		return min(days/7+1, weeksPerYear)
	case Month:
		return monthsSince(start, date) + 1
	case ThriceMonthly:
		return monthsSince(start, date)*3 + thirdOfMonth(date.Day())
	default:
		return 0
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// lastAnniversary returns the most recent occurrence of start's month and day at or before
// date.
func lastAnniversary(date, start time.Time) time.Time {
	a := time.Date(date.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	if a.After(date) {
		a = time.Date(date.Year()-1, start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	}
	return a
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// leapDaysBetween counts Feb 29 dates in (from, to].
func leapDaysBetween(from, to time.Time) int {
	n := 0
	for y := from.Year(); y <= to.Year(); y++ {
		if !isLeap(y) {
			continue
		}
		feb29 := time.Date(y, time.February, 29, 0, 0, 0, 0, time.UTC)
		if feb29.After(from) && !feb29.After(to) {
			n++
		}
	}
	return n
}

// monthsSince returns the number of months from start's month to date's month, modulo 12.
func monthsSince(start, date time.Time) int {
	m := (date.Year()-start.Year())*12 + int(date.Month()) - int(start.Month())
	return ((m % 12) + 12) % 12
}

func thirdOfMonth(day int) int {
	switch {
	case day <= 10:
		return 1
	case day <= 20:
		return 2
	default:
		return 3
	}
}
