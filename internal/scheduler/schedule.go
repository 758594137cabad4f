package scheduler

import (
	"fmt"
	"time"
)

// Schedule decides when a job fires next.
type Schedule interface {
	// Next returns the first firing strictly after t.
	Next(t time.Time) time.Time
	String() string
}

type interval struct{ d time.Duration }

// Every fires at a fixed interval, measured from the previous firing.
func Every(d time.Duration) Schedule {
	if d <= 0 {
		panic(fmt.Sprintf("scheduler: non-positive interval %s", d))
	}
	return interval{d: d}
}

func (i interval) Next(t time.Time) time.Time { return t.Add(i.d) }
func (i interval) String() string             { return "every " + i.d.String() }

type daily struct{ hour, minute int }

// DailyAt fires once a day at hour:minute local time.
func DailyAt(hour, minute int) Schedule {
	checkClock(hour, minute)
	return daily{hour: hour, minute: minute}
}

func (d daily) Next(t time.Time) time.Time {
	next := time.Date(t.Year(), t.Month(), t.Day(), d.hour, d.minute, 0, 0, t.Location())
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (d daily) String() string { return fmt.Sprintf("daily at %02d:%02d", d.hour, d.minute) }

type weekly struct {
	weekday      time.Weekday
	hour, minute int
}

// WeeklyAt fires once a week on weekday at hour:minute local time.
func WeeklyAt(weekday time.Weekday, hour, minute int) Schedule {
	checkClock(hour, minute)
	if weekday < time.Sunday || weekday > time.Saturday {
		panic(fmt.Sprintf("scheduler: invalid weekday %d", weekday))
	}
	return weekly{weekday: weekday, hour: hour, minute: minute}
}

func (w weekly) Next(t time.Time) time.Time {
	days := (int(w.weekday) - int(t.Weekday()) + 7) % 7
	next := time.Date(t.Year(), t.Month(), t.Day()+days, w.hour, w.minute, 0, 0, t.Location())
	if !next.After(t) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

func (w weekly) String() string {
	return fmt.Sprintf("weekly on %s at %02d:%02d", w.weekday, w.hour, w.minute)
}

func checkClock(hour, minute int) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		panic(fmt.Sprintf("scheduler: invalid time of day %02d:%02d", hour, minute))
	}
}
