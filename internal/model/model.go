package model

import (
	"strings"
	"time"
)

// PlaceholderSummary is used when an event carries no summary text.
const PlaceholderSummary = "empty reminder"

// Frequency is the shape of a regular recurrence rule.
type Frequency int

const (
	Daily Frequency = iota + 1
	Weekly
	MonthlyByDay
	MonthlyByWeekday
	// Yearly and Complex have no native Remind clause and are rendered
	// as explicit date lists. Complex rules are expanded from Raw.
	Yearly
	Complex
)

func (f Frequency) String() string {
	switch f {
	case Daily:
		return "DAILY"
	case Weekly:
		return "WEEKLY"
	case MonthlyByDay:
		return "MONTHLY_BYDAY"
	case MonthlyByWeekday:
		return "MONTHLY_BYWEEKDAY"
	case Yearly:
		return "YEARLY"
	case Complex:
		return "COMPLEX"
	default:
		return "UNKNOWN"
	}
}

// Rule is a regular recurrence. Only the fields relevant to Freq are used.
type Rule struct {
	Freq     Frequency
	Interval int

	// ByWeekday restricts a daily rule to the listed days.
	ByWeekday []time.Weekday

	// MonthDay is the day of month for MonthlyByDay.
	MonthDay int

	// Weekday and Week select the n-th weekday for MonthlyByWeekday.
	Weekday time.Weekday
	Week    int

	Until *time.Time
	Count int

	// Raw is the RRULE value this rule was read from, if any.
	Raw string
}

// Step returns the interval, treating zero as one.
func (r *Rule) Step() int {
	if r == nil || r.Interval < 1 {
		return 1
	}
	return r.Interval
}

type Classification string

const (
	ClassPublic       Classification = "PUBLIC"
	ClassPrivate      Classification = "PRIVATE"
	ClassConfidential Classification = "CONFIDENTIAL"
)

type Status string

const (
	StatusTentative Status = "TENTATIVE"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// ParseClassification reports whether s names a classification.
func ParseClassification(s string) (Classification, bool) {
	switch c := Classification(strings.ToUpper(strings.TrimSpace(s))); c {
	case ClassPublic, ClassPrivate, ClassConfidential:
		return c, true
	}
	return "", false
}

// ParseStatus reports whether s names a status.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusTentative, StatusConfirmed, StatusCancelled:
		return st, true
	}
	return "", false
}

// Event is the format-neutral representation shared by the Remind and
// iCalendar sides. Optional values are explicit: a nil pointer or an
// empty string means the field is absent.
type Event struct {
	UID string

	// Start is the first occurrence. All-day starts are midnight UTC
	// carrying only the calendar date.
	Start time.Time
	// AllDay marks date-only events.
	AllDay bool
	// Floating marks date-times without zone information; they compare
	// by wall clock.
	Floating bool

	End      *time.Time
	Duration *time.Duration

	Rule *Rule
	// Dates are additional explicit occurrences (RDATE), sorted and unique.
	Dates []time.Time

	Summary     string
	Location    string
	Description string
	URL         string

	Class      Classification
	Status     Status
	Categories []string
}

// IsTimed reports whether the event carries a time of day.
func (e *Event) IsTimed() bool {
	return !e.AllDay
}

// Span returns the length of one occurrence.
func (e *Event) Span() time.Duration {
	switch {
	case e.End != nil:
		return e.End.Sub(e.Start)
	case e.Duration != nil:
		return *e.Duration
	case e.AllDay:
		return 24 * time.Hour
	default:
		return 0
	}
}

// SummaryOrPlaceholder returns Summary, or PlaceholderSummary when empty.
func (e *Event) SummaryOrPlaceholder() string {
	if strings.TrimSpace(e.Summary) == "" {
		return PlaceholderSummary
	}
	return e.Summary
}

// HasRecurrence reports whether the event occurs more than once.
func (e *Event) HasRecurrence() bool {
	return e.Rule != nil || len(e.Dates) > 0
}

// Date truncates t to its calendar date at midnight UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
