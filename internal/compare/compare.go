// Package compare matches the events of two calendars semantically:
// text fields, start, length and the expanded occurrence set are
// compared instead of identifiers or serialised text.
package compare

import (
	"time"

	appLog "remindcal/internal/log"
	"remindcal/internal/model"
	"remindcal/internal/recur"
)

// Match pairs an index into the first list with one into the second.
type Match struct {
	First  int
	Second int
}

// Result of Compare. Removed holds the first-list events no second-list
// event matched, Added the second-list events without a match. The
// index slices point into the original inputs.
type Result struct {
	Removed      []*model.Event
	RemovedIndex []int
	Added        []*model.Event
	AddedIndex   []int
	Matches      []Match
}

// Compare walks second in order and matches each event against the
// first equivalent event of first not matched before.
func Compare(first, second []*model.Event) Result {
	used := make([]bool, len(first))
	var res Result

	for j, b := range second {
		found := false
		for i, a := range first {
			if used[i] || !Equivalent(a, b) {
				continue
			}
			used[i] = true
			found = true
			res.Matches = append(res.Matches, Match{First: i, Second: j})
			appLog.Debug("compare match", "first", i, "second", j)
			break
		}
		if !found {
			res.Added = append(res.Added, b)
			res.AddedIndex = append(res.AddedIndex, j)
		}
	}
	for i, a := range first {
		if !used[i] {
			res.Removed = append(res.Removed, a)
			res.RemovedIndex = append(res.RemovedIndex, i)
		}
	}
	return res
}

// Equivalent reports whether b matches a. Fields set on a constrain b;
// fields a leaves empty are ignored.
func Equivalent(a, b *model.Event) bool {
	if !sameText(a.Summary, b.Summary) ||
		!sameText(a.Location, b.Location) ||
		!sameText(a.Description, b.Description) ||
		!sameText(string(a.Class), string(b.Class)) {
		return false
	}

	if !a.Start.IsZero() {
		if b.Start.IsZero() || a.AllDay != b.AllDay {
			return false
		}
		if !sameTime(a.Start, b.Start, a, b) {
			return false
		}
	}

	if !sameLength(a, b) {
		return false
	}
	return sameOccurrences(a, b)
}

func sameText(a, b string) bool {
	return a == "" || a == b
}

// sameTime compares absolute instants when both events are zoned, and
// wall clocks otherwise.
func sameTime(x, y time.Time, a, b *model.Event) bool {
	if a.AllDay && b.AllDay {
		return model.Date(x).Equal(model.Date(y))
	}
	if !a.Floating && !b.Floating {
		return x.Equal(y)
	}
	return wall(x) == wall(y)
}

func wall(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// length returns the explicit end or duration of ev as a span.
func length(ev *model.Event) (time.Duration, bool) {
	switch {
	case ev.End != nil:
		return ev.End.Sub(ev.Start), true
	case ev.Duration != nil:
		return *ev.Duration, true
	}
	return 0, false
}

func sameLength(a, b *model.Event) bool {
	la, ok := length(a)
	if !ok {
		return true
	}
	lb, ok := length(b)
	if !ok {
		return false
	}
	if a.End != nil && b.End != nil && !a.Start.IsZero() {
		return sameTime(*a.End, *b.End, a, b)
	}
	return la == lb
}

func sameOccurrences(a, b *model.Event) bool {
	if !a.HasRecurrence() {
		return true
	}
	if !b.HasRecurrence() {
		return false
	}
	oa, err := recur.Occurrences(a)
	if err != nil {
		appLog.Warn("compare: cannot expand first event", "uid", a.UID, "err", err)
		return false
	}
	ob, err := recur.Occurrences(b)
	if err != nil {
		appLog.Warn("compare: cannot expand second event", "uid", b.UID, "err", err)
		return false
	}
	if len(oa) != len(ob) {
		return false
	}
	for i := range oa {
		if !sameTime(oa[i], ob[i], a, b) {
			return false
		}
	}
	return true
}
