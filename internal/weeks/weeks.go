// Package weeks groups assignments by the calendar week they are due in and
// navigates between those weeks. Week keys are the ISO date of the week's
// Monday; day keys are the ISO date of the due day.
package weeks

import (
	"sort"
	"time"

	"github.com/terra-clan/duewatch/internal/models"
)

// DateLayout is the format of week and day keys
const DateLayout = "2006-01-02"

// Week maps day key -> assignments due that day, in input order
type Week map[string][]models.Assignment

// Buckets maps week key -> Week
type Buckets map[string]Week

// Direction is a navigation step
type Direction int

const (
	Previous Direction = -1
	Next     Direction = 1
)

// dateOnly is midnight of t's calendar date in loc
func dateOnly(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// civil drops the zone so date arithmetic never crosses a DST change
func civil(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

func mondayOf(d time.Time) time.Time {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// DayKey returns the ISO date of t in loc
func DayKey(t time.Time, loc *time.Location) string {
	return civil(dateOnly(t, loc)).Format(DateLayout)
}

// WeekKey returns the ISO date of the Monday of t's week in loc
func WeekKey(t time.Time, loc *time.Location) string {
	return mondayOf(civil(dateOnly(t, loc))).Format(DateLayout)
}

// Group buckets assignments by due date. Each assignment lands in exactly
// one (week, day) slot.
func Group(assignments []models.Assignment, loc *time.Location) Buckets {
	b := make(Buckets)
	for _, a := range assignments {
		week := WeekKey(a.DueDate, loc)
		day := DayKey(a.DueDate, loc)

		if b[week] == nil {
			b[week] = make(Week)
		}
		b[week][day] = append(b[week][day], a)
	}
	return b
}

// Flatten lists every bucketed assignment, weeks and days ascending
func Flatten(b Buckets) []models.Assignment {
	var out []models.Assignment
	for _, week := range Available(b) {
		days := make([]string, 0, len(b[week]))
		for day := range b[week] {
			days = append(days, day)
		}
		sort.Strings(days)
		for _, day := range days {
			out = append(out, b[week][day]...)
		}
	}
	return out
}

// Count returns the number of assignments in a week
func (w Week) Count() int {
	n := 0
	for _, list := range w {
		n += len(list)
	}
	return n
}

// Available returns the week keys in chronological order
func Available(b Buckets) []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CurrentKey returns the week key of now
func CurrentKey(now time.Time, loc *time.Location) string {
	return WeekKey(now, loc)
}

// InitialKey picks the week to show first: current if it has work,
// otherwise the earliest week. Empty when there are no weeks.
func InitialKey(available []string, current string) string {
	if len(available) == 0 {
		return ""
	}
	if indexOf(available, current) >= 0 {
		return current
	}
	return available[0]
}

// Advance moves one week in dir, clamped at both ends. From a key not in
// weeks, Next goes to the first week and Previous stays put.
func Advance(weeks []string, current string, dir Direction) string {
	i := indexOf(weeks, current)
	switch dir {
	case Next:
		if i < len(weeks)-1 {
			return weeks[i+1]
		}
	case Previous:
		if i > 0 {
			return weeks[i-1]
		}
	}
	return current
}

// HasNext reports whether Advance(weeks, current, Next) would move
func HasNext(weeks []string, current string) bool {
	return Advance(weeks, current, Next) != current
}

// HasPrevious reports whether Advance(weeks, current, Previous) would move
func HasPrevious(weeks []string, current string) bool {
	return Advance(weeks, current, Previous) != current
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
