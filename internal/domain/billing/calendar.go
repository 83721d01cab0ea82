package billing

import "time"

// Dates in this package are calendar dates: midnight UTC, no time-zone arithmetic
// beyond "first day of month" and "today".

// DateOf truncates t to its calendar date in UTC
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FirstOfMonth returns the first day of t's month
func FirstOfMonth(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// FirstOfNextMonth returns the first day of the month after t's month
func FirstOfNextMonth(t time.Time) time.Time {
	return FirstOfMonth(t).AddDate(0, 1, 0)
}

// PeriodKey formats a billing period as YYYY-MM
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// MonthLabel formats a billing period for descriptions, e.g. "November 2026"
func MonthLabel(t time.Time) string {
	return t.UTC().Format("January 2006")
}
