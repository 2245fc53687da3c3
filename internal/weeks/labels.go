package weeks

import (
	"fmt"
	"time"
)

func parseKey(key string) (time.Time, error) {
	t, err := time.Parse(DateLayout, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date key %q: %w", key, err)
	}
	return t, nil
}

// Days returns the seven day keys of a week, Monday first
func Days(weekKey string) ([]string, error) {
	monday, err := parseKey(weekKey)
	if err != nil {
		return nil, err
	}
	days := make([]string, 7)
	for i := range days {
		days[i] = monday.AddDate(0, 0, i).Format(DateLayout)
	}
	return days, nil
}

// RangeLabel renders a week as "Mar 4 - Mar 10"
func RangeLabel(weekKey string) (string, error) {
	monday, err := parseKey(weekKey)
	if err != nil {
		return "", err
	}
	sunday := monday.AddDate(0, 0, 6)
	return monday.Format("Jan 2") + " - " + sunday.Format("Jan 2"), nil
}

// DayName returns the weekday name of a day key
func DayName(dayKey string) (string, error) {
	d, err := parseKey(dayKey)
	if err != nil {
		return "", err
	}
	return d.Weekday().String(), nil
}

// DueStatus describes due relative to today by calendar day in loc:
// "Due today", "Due in 3 days", "1 day overdue".
func DueStatus(due, today time.Time, loc *time.Location) string {
	dueDay := civil(dateOnly(due, loc))
	todayDay := civil(dateOnly(today, loc))
	diff := int(dueDay.Sub(todayDay).Hours() / 24)

	switch {
	case diff < 0:
		return fmt.Sprintf("%d %s overdue", -diff, plural(-diff))
	case diff == 0:
		return "Due today"
	default:
		return fmt.Sprintf("Due in %d %s", diff, plural(diff))
	}
}

func plural(n int) string {
	if n == 1 {
		return "day"
	}
	return "days"
}
