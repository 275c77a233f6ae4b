// Package timeutil provides UTC calendar-day helpers.
// Quota windows and counter keys are fixed UTC days, so everything here
// converts to UTC first regardless of the input location.
package timeutil

import "time"

// Common date/time formats.
const (
	DayLayout   = "2006-01-02"
	ResetLayout = "2006-01-02T15:04:05Z"
)

// Clock returns the current time. Components take a Clock so tests can
// pin the date.
type Clock func() time.Time

// SystemClock returns time.Now in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// Fixed returns a Clock that always reports t.
func Fixed(t time.Time) Clock {
	return func() time.Time { return t }
}

// StartOfDayUTC returns 00:00:00 UTC of the day containing t.
func StartOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NextMidnightUTC returns 00:00:00 UTC of the day after t.
func NextMidnightUTC(t time.Time) time.Time {
	return StartOfDayUTC(t).AddDate(0, 0, 1)
}

// DayUTC formats the UTC calendar date of t as YYYY-MM-DD.
func DayUTC(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// ParseDay parses a YYYY-MM-DD string as a UTC midnight.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DayLayout, s, time.UTC)
}

// FormatReset formats a reset instant as YYYY-MM-DDTHH:MM:SSZ.
func FormatReset(t time.Time) string {
	return t.UTC().Format(ResetLayout)
}

// UntilNextMidnightUTC returns the duration from t to the next UTC midnight.
func UntilNextMidnightUTC(t time.Time) time.Duration {
	return NextMidnightUTC(t).Sub(t.UTC())
}

// DaysAgoUTC returns the YYYY-MM-DD day that is n days before t.
func DaysAgoUTC(t time.Time, n int) string {
	return DayUTC(StartOfDayUTC(t).AddDate(0, 0, -n))
}
