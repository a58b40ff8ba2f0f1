// Package timewindow turns the time literals produced by the extraction model
// into calendar ranges (calculation queries) or day horizons (prediction
// queries), relative to a fixed reference date.
package timewindow

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for every calendar date.
const DateLayout = "2006-01-02"

// DefaultDays is the window applied when the model returns NULL.
const DefaultDays = 30

// Mode is the query type a window is resolved for.
type Mode int

const (
	// Calculation looks backward and yields a Range.
	Calculation Mode = iota
	// Prediction looks forward and yields a Horizon.
	Prediction
)

func (m Mode) String() string {
	switch m {
	case Calculation:
		return "calculation"
	case Prediction:
		return "prediction"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Direction is the "last"/"next" half of a relative expression.
type Direction int

const (
	Last Direction = iota
	Next
)

func (d Direction) String() string {
	if d == Next {
		return "next"
	}
	return "last"
}

// Unit is the calendar unit of a relative expression.
type Unit int

const (
	Days Unit = iota
	Weeks
	Months
)

func (u Unit) String() string {
	switch u {
	case Weeks:
		return "weeks"
	case Months:
		return "months"
	default:
		return "days"
	}
}

// WindowKind tags the variant held by a Window.
type WindowKind int

const (
	Invalid WindowKind = iota
	Range
	Horizon
)

// Window is a resolved time window. Start and End are set for Range, Days for
// Horizon. The zero value is Invalid.
type Window struct {
	Kind  WindowKind
	Start time.Time
	End   time.Time
	Days  int
}

// NewRange returns a Range window.
func NewRange(start, end time.Time) Window {
	return Window{Kind: Range, Start: start, End: end}
}

// NewHorizon returns a Horizon window of n days counted from the day after
// the reference date.
func NewHorizon(n int) Window {
	return Window{Kind: Horizon, Days: n}
}

// StartDate returns Start formatted as YYYY-MM-DD.
func (w Window) StartDate() string { return w.Start.Format(DateLayout) }

// EndDate returns End formatted as YYYY-MM-DD.
func (w Window) EndDate() string { return w.End.Format(DateLayout) }

func (w Window) String() string {
	switch w.Kind {
	case Range:
		return w.StartDate() + " -> " + w.EndDate()
	case Horizon:
		return fmt.Sprintf("+%dd", w.Days)
	default:
		return "invalid"
	}
}

// ParseDate parses a YYYY-MM-DD date at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// Truncate drops the clock part of t, keeping its calendar date in UTC.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// weekday numbers days from Monday = 0 to Sunday = 6.
func weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func addDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// daysBetween counts whole calendar days from a to b. It avoids Sub, whose
// Duration saturates past about 292 years.
func daysBetween(a, b time.Time) int {
	return int((Truncate(b).Unix() - Truncate(a).Unix()) / 86400)
}

func firstOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// ResolveDays handles "last/next n days". Last is the n days ending
// yesterday; Next is a horizon of n days.
func ResolveDays(date time.Time, dir Direction, n int) Window {
	date = Truncate(date)
	if dir == Next {
		return NewHorizon(n)
	}
	return NewRange(addDays(date, -n), addDays(date, -1))
}

// ResolveWeeks handles "last/next n weeks" aligned to Monday-Sunday weeks.
// Last covers the n full weeks before the current one; Next reaches the
// Sunday of the n-th following week.
func ResolveWeeks(date time.Time, dir Direction, n int) Window {
	date = Truncate(date)
	wd := weekday(date)
	if dir == Next {
		return NewHorizon((7 - wd) + 7*n - 1)
	}
	return NewRange(addDays(date, -(7*n + wd)), addDays(date, -(1 + wd)))
}

// ResolveMonths handles "last/next n months" aligned to calendar months.
// Last covers the n full months before the current one; Next reaches the last
// day of the n-th following month.
func ResolveMonths(date time.Time, dir Direction, n int) Window {
	date = Truncate(date)
	first := firstOfMonth(date)
	if dir == Next {
		start := first.AddDate(0, 1, 0)
		end := start.AddDate(0, n, 0).AddDate(0, 0, -1)
		return NewHorizon(daysBetween(date, end))
	}
	return NewRange(first.AddDate(0, -n, 0), addDays(first, -1))
}
