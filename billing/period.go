package billing

import (
	"fmt"
	"time"
)

// =============================================================================
// REVENUE PERIOD - Calendar window over invoice creation time
// =============================================================================

// Period selects which invoices a revenue pass covers.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
	PeriodAll   Period = "all"
)

// ParsePeriod validates a period name. Empty means all.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case PeriodDay, PeriodMonth, PeriodYear, PeriodAll:
		return p, nil
	case "":
		return PeriodAll, nil
	default:
		return "", &ValidationError{Field: "period", Message: fmt.Sprintf("must be one of day, month, year, all (got %q)", s)}
	}
}

// Window is a half-open time range [From, To). A nil bound is open.
type Window struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if w.From != nil && t.Before(*w.From) {
		return false
	}
	if w.To != nil && !t.Before(*w.To) {
		return false
	}
	return true
}

// WindowAt returns the calendar window of p containing now, in now's
// location.
func (p Period) WindowAt(now time.Time) Window {
	switch p {
	case PeriodDay:
		start := StartOfDay(now)
		return bounded(start, start.AddDate(0, 0, 1))
	case PeriodMonth:
		start := StartOfMonth(now)
		return bounded(start, start.AddDate(0, 1, 0))
	case PeriodYear:
		start := StartOfYear(now)
		return bounded(start, start.AddDate(1, 0, 0))
	case PeriodAll:
		return Window{}
	default:
		panic(fmt.Sprintf("billing: unknown period %q", string(p)))
	}
}

func bounded(from, to time.Time) Window {
	return Window{From: &from, To: &to}
}

func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func StartOfYear(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
}
