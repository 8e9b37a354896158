// Package daterange turns a pair of calendar dates into the ascending
// sequence of days between them, inclusive.
package daterange

import (
	"iter"
	"time"

	errs "bhascraper/pkg/errors"
)

// Layout is the accepted textual date format
const Layout = "2006-01-02"

// Range is an inclusive span of calendar days. Start and End are UTC
// midnights and Start is never after End.
type Range struct {
	Start time.Time
	End   time.Time
}

// New builds a Range from two instants, truncated to their calendar date.
// A zero time is rejected as invalid.
func New(start, end time.Time) (Range, error) {
	if start.IsZero() || end.IsZero() {
		return Range{}, errs.New(errs.ErrorTypeInvalidRange, 0, "start and end dates are required")
	}

	r := Range{Start: dateOf(start), End: dateOf(end)}
	if r.Start.After(r.End) {
		return Range{}, errs.New(errs.ErrorTypeInvertedRange, 0,
			"start %s is after end %s", r.Start.Format(Layout), r.End.Format(Layout))
	}
	return r, nil
}

// Parse builds a Range from two YYYY-MM-DD strings
func Parse(start, end string) (Range, error) {
	s, err := time.Parse(Layout, start)
	if err != nil {
		return Range{}, errs.Wrap(errs.ErrorTypeInvalidRange, 0, err, "invalid start date %q", start)
	}
	e, err := time.Parse(Layout, end)
	if err != nil {
		return Range{}, errs.Wrap(errs.ErrorTypeInvalidRange, 0, err, "invalid end date %q", end)
	}
	return New(s, e)
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Days yields every day from Start to End inclusive. Each call to the
// returned sequence starts again from Start.
func (r Range) Days() iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if r.Start.IsZero() {
			return
		}
		for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
			if !yield(d) {
				return
			}
		}
	}
}

// Len returns the number of days in the range
func (r Range) Len() int {
	if r.Start.IsZero() {
		return 0
	}
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// Contains reports whether t falls on a day inside the range
func (r Range) Contains(t time.Time) bool {
	d := dateOf(t)
	return !d.Before(r.Start) && !d.After(r.End)
}

func (r Range) String() string {
	return r.Start.Format(Layout) + ".." + r.End.Format(Layout)
}
