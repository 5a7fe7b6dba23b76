package harvest

import (
	"fmt"
	"time"
)

// DateFormat is the calendar-date layout used on the wire and the CLI.
const DateFormat = "2006-01-02"

// DateRange is an inclusive calendar-date interval. From never exceeds To.
type DateRange struct {
	From time.Time
	To   time.Time
}

// NewDateRange validates and builds a range from two ISO dates.
func NewDateRange(from, to string) (DateRange, error) {
	f, err := time.ParseInLocation(DateFormat, from, time.UTC)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse start date %q: %w", from, err)
	}
	t, err := time.ParseInLocation(DateFormat, to, time.UTC)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse end date %q: %w", to, err)
	}
	if f.After(t) {
		return DateRange{}, fmt.Errorf("start date %s is after end date %s", from, to)
	}
	return DateRange{From: f, To: t}, nil
}

// Days returns the number of whole days between From and To.
func (r DateRange) Days() int {
	return int(r.To.Sub(r.From) / (24 * time.Hour))
}

// SingleDay reports whether the range cannot be split further.
func (r DateRange) SingleDay() bool {
	return r.Days() == 0
}

// Bisect splits the range at floor(span/2) days from From. Both halves
// include the midpoint day so their union covers the range with no gap.
// ok is false for a single-day range, the recursion floor.
func (r DateRange) Bisect() (lo, hi DateRange, ok bool) {
	if r.SingleDay() {
		return DateRange{}, DateRange{}, false
	}
	mid := r.From.AddDate(0, 0, r.Days()/2)
	return DateRange{From: r.From, To: mid}, DateRange{From: mid, To: r.To}, true
}

// FromString returns the lower bound formatted for the wire.
func (r DateRange) FromString() string { return r.From.Format(DateFormat) }

// ToString returns the upper bound formatted for the wire.
func (r DateRange) ToString() string { return r.To.Format(DateFormat) }

func (r DateRange) String() string {
	return r.FromString() + ".." + r.ToString()
}
