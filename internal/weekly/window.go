package weekly

import (
	"fmt"
	"strings"
	"time"
)

const daysPerWeek = 7

// WeekWindow returns the half-open interval [start, end) of the week that is
// weeksAgo weeks before the week containing reference. start is the latest
// weekStart day on or before reference, at midnight in reference's location.
func WeekWindow(reference time.Time, weeksAgo int, weekStart time.Weekday) (time.Time, time.Time) {
	ref := Midnight(reference)
	offset := (int(ref.Weekday()) - int(weekStart) + daysPerWeek) % daysPerWeek
	start := ref.AddDate(0, 0, -offset-daysPerWeek*weeksAgo)
	return start, start.AddDate(0, 0, daysPerWeek)
}

// Midnight truncates t to the start of its calendar day in its own location.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DaysBetween returns the number of calendar days from a to b, comparing the
// dates as written in each time's location, so DST shifts never produce
// fractional days.
func DaysBetween(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// ParseWeekday accepts full or three-letter English weekday names.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return time.Monday, fmt.Errorf("unknown weekday %q", s)
}

func inWindow(d, start, end time.Time) bool {
	return !d.Before(start) && d.Before(end)
}
