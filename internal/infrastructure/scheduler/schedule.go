package scheduler

import (
	"fmt"
	"time"
)

// Schedule yields the next run strictly after t.
type Schedule interface {
	Next(t time.Time) time.Time
	String() string
}

// Every runs a job at a fixed interval measured from the previous start.
type Every time.Duration

func (e Every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

func (e Every) String() string { return "@every " + time.Duration(e).String() }

// DailyAt runs a job once per UTC day, the given offset after midnight.
type DailyAt time.Duration

func (d DailyAt) Next(t time.Time) time.Time {
	t = t.UTC()
	next := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Add(time.Duration(d))
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (d DailyAt) String() string {
	off := time.Duration(d)
	return fmt.Sprintf("@daily %02d:%02d UTC", int(off.Hours()), int(off.Minutes())%60)
}
