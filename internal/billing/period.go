// Package billing provides pure billing-period arithmetic for plan
// assignments.
package billing

import (
	"time"

	"github.com/proserveapp/proserve/internal/models"
)

// Period computes the billing window for a plan duration starting at start.
// Monthly plans run one calendar month, annual plans one calendar year; any
// other duration yields a nil end date (non-expiring, manual renewal).
//
// Month and year arithmetic is calendar-aware: a Jan 31 monthly start ends on
// the last day of February rather than spilling into March.
func Period(duration models.PlanDuration, start time.Time) (time.Time, *time.Time) {
	switch duration {
	case models.PlanDurationMonthly:
		end := addMonths(start, 1)
		return start, &end
	case models.PlanDurationAnnual:
		end := addYears(start, 1)
		return start, &end
	default:
		return start, nil
	}
}

// addMonths advances by whole calendar months, clamping the day-of-month to
// the length of the target month.
func addMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	target := time.Date(year, month+time.Month(months), 1, hour, min, sec, t.Nanosecond(), t.Location())
	if last := daysIn(target.Year(), target.Month()); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, hour, min, sec, t.Nanosecond(), t.Location())
}

func addYears(t time.Time, years int) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	if last := daysIn(year+years, month); day > last {
		day = last
	}
	return time.Date(year+years, month, day, hour, min, sec, t.Nanosecond(), t.Location())
}

// daysIn returns the number of days in the given month.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
