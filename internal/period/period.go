// Package period computes the calendar windows the reconciliation run
// operates over. Marketplace statements cover whole Monday-to-Sunday weeks,
// so the accounting month is snapped outward to week boundaries, and any
// tail of the month not yet covered by statements becomes an accrual window.
package period

import (
	"fmt"
	"time"

	"statement-reconciliation-service/internal/models"
)

// Window is an inclusive day range. Start and End are midnight-UTC days.
type Window struct {
	Start time.Time
	End   time.Time
}

// IsZero reports whether the window is empty.
func (w Window) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Contains reports whether day d falls inside the window, inclusive.
func (w Window) Contains(d time.Time) bool {
	d = models.Day(d)
	return !d.Before(w.Start) && !d.After(w.End)
}

// Overlaps reports whether two windows share at least one day.
func (w Window) Overlaps(o Window) bool {
	return !w.Start.After(o.End) && !o.Start.After(w.End)
}

// Days returns the number of days in the window, inclusive.
func (w Window) Days() int {
	if w.IsZero() || w.End.Before(w.Start) {
		return 0
	}
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

func (w Window) String() string {
	return fmt.Sprintf("%s..%s", w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))
}

// StartOfWeek returns the Monday of the week containing d.
func StartOfWeek(d time.Time) time.Time {
	d = models.Day(d)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// EndOfWeek returns the Sunday of the week containing d.
func EndOfWeek(d time.Time) time.Time {
	return StartOfWeek(d).AddDate(0, 0, 6)
}

// ParseAccountingPeriod parses a YYYY-MM accounting period into the calendar
// month window.
func ParseAccountingPeriod(s string) (Window, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Window{}, fmt.Errorf("invalid accounting period %q (want YYYY-MM): %w", s, err)
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return Window{Start: start, End: end}, nil
}

// StatementWindow derives the statement matching window for an accounting
// period given the discovered statement coverage.
//
// The start is the Monday of the week containing the first day of the
// period. The end is the Sunday of the last statement week, capped at the
// Sunday of the week containing the last day of the period. With no
// coverage information the full snapped month is assumed.
//
// Only the end is capped by coverage. The start stays anchored to the
// accounting month: statements arrive oldest-first, so a gap can only
// appear at the tail of the month, where the uncovered span becomes the
// accrual window rather than a hole in matching.
func StatementWindow(accounting Window, coverage Window) Window {
	start := StartOfWeek(accounting.Start)
	end := EndOfWeek(accounting.End)
	if !coverage.IsZero() {
		if covered := EndOfWeek(coverage.End); covered.Before(end) {
			end = covered
		}
	}
	return Window{Start: start, End: end}
}

// AccrualWindow returns the span between the end of statement coverage and
// the end of the accounting period. The zero Window means coverage reaches
// the period end and nothing needs accruing.
func AccrualWindow(accounting Window, statement Window) Window {
	if !statement.End.Before(accounting.End) {
		return Window{}
	}
	return Window{Start: statement.End.AddDate(0, 0, 1), End: accounting.End}
}
