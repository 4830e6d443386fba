package ledger

import (
	"fmt"
	"time"
)

// DateLayout is the wire and storage format of week boundaries.
const DateLayout = "2006-01-02"

// =============================================================================
// WEEK - Billing period boundary
// =============================================================================

// Week is an inclusive [Start, End] range of calendar days.
// Both ends are normalized to midnight UTC.
type Week struct {
	Start time.Time
	End   time.Time
}

// NewWeek builds a normalized week. It does not validate; see Validate.
func NewWeek(start, end time.Time) Week {
	return Week{Start: Day(start), End: Day(end)}
}

// WeekOf returns the seven-day week starting on start.
func WeekOf(start time.Time) Week {
	s := Day(start)
	return Week{Start: s, End: s.AddDate(0, 0, 6)}
}

// ParseWeek parses two YYYY-MM-DD dates.
func ParseWeek(start, end string) (Week, error) {
	s, err := ParseDate("week_start_date", start)
	if err != nil {
		return Week{}, err
	}
	e, err := ParseDate("week_end_date", end)
	if err != nil {
		return Week{}, err
	}
	w := Week{Start: s, End: e}
	return w, w.Validate()
}

// ParseDate parses a YYYY-MM-DD date, reporting failures against field.
func ParseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, &ValidationError{Field: field, Reason: "is required"}
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, &ValidationError{Field: field, Reason: "must be a YYYY-MM-DD date"}
	}
	return t, nil
}

// Validate rejects missing or inverted boundaries.
func (w Week) Validate() error {
	if w.Start.IsZero() {
		return &ValidationError{Field: "week_start_date", Reason: "is required"}
	}
	if w.End.IsZero() {
		return &ValidationError{Field: "week_end_date", Reason: "is required"}
	}
	if w.End.Before(w.Start) {
		return &ValidationError{Field: "week_end_date", Reason: "must not be before week_start_date"}
	}
	return nil
}

// Days is the inclusive length of the week in days.
func (w Week) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

// Next returns the period immediately following w, of the same length.
func (w Week) Next() Week {
	start := w.End.AddDate(0, 0, 1)
	return Week{Start: start, End: start.AddDate(0, 0, w.Days()-1)}
}

// Contains reports whether day falls inside the week.
func (w Week) Contains(day time.Time) bool {
	d := Day(day)
	return !d.Before(w.Start) && !d.After(w.End)
}

// EndedBefore reports whether the whole week lies strictly before day.
func (w Week) EndedBefore(day time.Time) bool {
	return w.End.Before(Day(day))
}

func (w Week) String() string {
	return fmt.Sprintf("[%s, %s]", w.Start.Format(DateLayout), w.End.Format(DateLayout))
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date is a shorthand constructor for midnight UTC.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
