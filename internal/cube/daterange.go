package cube

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used in queries and reports.
const DateLayout = "2006-01-02"

// DateRange selects whole calendar days, both ends inclusive, in UTC.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ParseDateRange parses two YYYY-MM-DD dates.
func ParseDateRange(from, to string) (DateRange, error) {
	f, err := time.Parse(DateLayout, from)
	if err != nil {
		return DateRange{}, fmt.Errorf("failed to parse start date %q: %w", from, err)
	}
	t, err := time.Parse(DateLayout, to)
	if err != nil {
		return DateRange{}, fmt.Errorf("failed to parse end date %q: %w", to, err)
	}
	if t.Before(f) {
		return DateRange{}, fmt.Errorf("end date %s is before start date %s", to, from)
	}
	return DateRange{From: f, To: t}, nil
}

// Days returns the range from the given day to the given day of the same or a later year.
func Days(fromYear int, fromMonth time.Month, fromDay int, toYear int, toMonth time.Month, toDay int) DateRange {
	return DateRange{
		From: time.Date(fromYear, fromMonth, fromDay, 0, 0, 0, 0, time.UTC),
		To:   time.Date(toYear, toMonth, toDay, 0, 0, 0, 0, time.UTC),
	}
}

// Months returns the range from the first day of from to the last day of to
// within year.
func Months(year int, from, to time.Month) DateRange {
	return Days(year, from, 1, year, to, LastDayOfMonth(year, to))
}

// LastDayOfMonth returns the number of days in the month.
func LastDayOfMonth(year int, m time.Month) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// IsZero reports whether the range is unset.
func (r DateRange) IsZero() bool { return r.From.IsZero() && r.To.IsZero() }

// Contains reports whether t falls on a day inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if r.IsZero() {
		return true
	}
	start := truncateDay(r.From)
	end := truncateDay(r.To).AddDate(0, 0, 1)
	t = t.UTC()
	return !t.Before(start) && t.Before(end)
}

func (r DateRange) String() string {
	return r.From.Format(DateLayout) + ".." + r.To.Format(DateLayout)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
