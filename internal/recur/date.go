// Package recur converts between occurrence lists, structured recurrence
// rules and the recurrence clauses of Remind lines.
package recur

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"remindcal/internal/model"
)

const (
	dateLayout    = "Jan 2 2006"
	isoDateLayout = "2006-01-02"
	day           = 24 * time.Hour
)

// weekdayNames are the Remind abbreviations, Monday first.
var weekdayNames = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// FormatDate renders t as "Jan 2 2024" without zero padding.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseDate parses the FormatDate layout into a date at midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.Join(strings.Fields(s), " "))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// weekdayName returns the Remind abbreviation of d.
func weekdayName(d time.Weekday) string {
	return weekdayNames[(int(d)+6)%7]
}

func parseWeekday(s string) (time.Weekday, bool) {
	for i, n := range weekdayNames {
		if strings.EqualFold(n, s) {
			return time.Weekday((i + 1) % 7), true
		}
	}
	return 0, false
}

// onDate moves t to the calendar date of d, keeping t's clock and location.
func onDate(t, d time.Time) time.Time {
	y, m, dd := d.Date()
	h, mi, s := t.Clock()
	return time.Date(y, m, dd, h, mi, s, t.Nanosecond(), t.Location())
}

// days returns the number of calendar days from a to b.
func days(a, b time.Time) int {
	return int(model.Date(b).Sub(model.Date(a)) / day)
}

// normalize sorts and de-duplicates dates. All-day dates are truncated
// to midnight UTC first.
func normalize(dates []time.Time, allDay bool) []time.Time {
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		if allDay {
			d = model.Date(d)
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	uniq := out[:0]
	for i, d := range out {
		if i > 0 && d.Equal(uniq[len(uniq)-1]) {
			continue
		}
		uniq = append(uniq, d)
	}
	return uniq
}
