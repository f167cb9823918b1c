package recur

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindcal/internal/model"
)

// maxFallbackDates bounds the explicit date list written for rules that
// have no native clause and no end.
const maxFallbackDates = 500

// Clause is the recurrence part of a Remind line.
type Clause struct {
	// Repeat is the frequency token: "*7", "15" or "Tue 15".
	Repeat string
	// Skip is the weekday exclusion, e.g. "SKIP OMIT Sat Sun".
	Skip string
	// Until is the terminator, e.g. "UNTIL Jan 5 2024".
	Until string
	// Satisfy lists explicit dates as a SATISFY expression.
	Satisfy string

	// OmitDate tells the event renderer to leave out the date token.
	OmitDate bool
	// From tells the event renderer to write "<Repeat> FROM <date>".
	// Remind reads day tokens after a FROM date as part of that date, so
	// the frequency token has to come first.
	From bool
}

// String joins the frequency, exclusion and terminator parts in order.
func (c Clause) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.Repeat, c.Skip, c.Until} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Terminator joins the exclusion and terminator parts, the tokens that
// follow the date when the frequency token is written before FROM.
func (c Clause) Terminator() string {
	return Clause{Skip: c.Skip, Until: c.Until}.String()
}

// IsZero reports whether the clause renders nothing.
func (c Clause) IsZero() bool {
	return c.Repeat == "" && c.Skip == "" && c.Until == "" && c.Satisfy == ""
}

// Render builds the recurrence clause of ev. Timed occurrences are
// rendered in loc.
func Render(ev *model.Event, loc *time.Location) (Clause, error) {
	if loc == nil {
		loc = time.Local
	}
	span := ev.Span()

	if !ev.HasRecurrence() {
		if ev.AllDay && span > day {
			last := model.Date(ev.Start).Add(span - day)
			return Clause{Repeat: "*1", Until: "UNTIL " + FormatDate(last)}, nil
		}
		return Clause{}, nil
	}

	if ev.AllDay && span > day {
		occ, err := Occurrences(ev)
		if err != nil {
			return Clause{}, err
		}
		return Clause{Satisfy: RenderDates(occ, int(span/day)), OmitDate: true}, nil
	}

	if ev.Rule == nil {
		return explicit(ev, loc)
	}

	rule := ev.Rule
	var c Clause
	switch rule.Freq {
	case model.Daily, model.Weekly:
		allowed := weekdaySet(rule.ByWeekday)
		switch {
		case len(allowed) == 7 && rule.Freq == model.Daily:
			c.Repeat = "*" + strconv.Itoa(rule.Step())
		case len(allowed) == 7 && rule.Step() == 1:
			c.Repeat = "*1"
		case len(allowed) >= 2 && rule.Step() == 1:
			c.Repeat = "*1"
			c.Skip = "SKIP OMIT " + strings.Join(excluded(allowed), " ")
		case len(allowed) == 1 && rule.Step() == 1 && allowed[startIn(ev, loc).Weekday()]:
			c.Repeat = "*7"
		case len(allowed) == 0 && rule.Freq == model.Daily:
			c.Repeat = "*" + strconv.Itoa(rule.Step())
		case len(allowed) == 0:
			c.Repeat = "*" + strconv.Itoa(7*rule.Step())
		default:
			return explicit(ev, loc)
		}
	case model.MonthlyByDay:
		if rule.Step() != 1 {
			return explicit(ev, loc)
		}
		md := rule.MonthDay
		if md == 0 {
			md = startIn(ev, loc).Day()
		}
		if md < 1 || md > 31 {
			return explicit(ev, loc)
		}
		c.Repeat = strconv.Itoa(md)
		c.From = true
	case model.MonthlyByWeekday:
		if rule.Step() != 1 || rule.Week < 1 || rule.Week > 4 {
			return explicit(ev, loc)
		}
		c.Repeat = fmt.Sprintf("%s %d", weekdayName(rule.Weekday), rule.Week*7-6)
		c.From = true
	case model.Yearly, model.Complex:
		return explicit(ev, loc)
	default:
		return Clause{}, fmt.Errorf("%w: %s", ErrUnsupportedFrequency, rule.Freq)
	}

	switch {
	case rule.Until != nil:
		until := *rule.Until
		if !ev.AllDay {
			until = until.In(loc)
		}
		c.Until = "UNTIL " + FormatDate(until)
	case rule.Count > 0:
		occ, err := Expand(rule, ev.Start)
		if err != nil {
			return Clause{}, err
		}
		if len(occ) > 0 {
			last := occ[len(occ)-1]
			if !ev.AllDay {
				last = last.In(loc)
			}
			c.Until = "UNTIL " + FormatDate(last)
		}
	}
	return c, nil
}

// RenderDates renders a SATISFY expression matching every date in dates
// and the repeat-1 days following each of them.
func RenderDates(dates []time.Time, repeat int) string {
	if repeat < 1 {
		repeat = 1
	}
	seen := make(map[string]bool)
	terms := make([]string, 0, len(dates)*repeat)
	for _, d := range dates {
		for i := 0; i < repeat; i++ {
			s := d.AddDate(0, 0, i).Format(isoDateLayout)
			if seen[s] {
				continue
			}
			seen[s] = true
			terms = append(terms, "$T=='"+s+"'")
		}
	}
	return "SATISFY [" + strings.Join(terms, "||") + "]"
}

func explicit(ev *model.Event, loc *time.Location) (Clause, error) {
	var occ []time.Time
	var err error
	if ev.Rule != nil && ev.Rule.Until == nil && ev.Rule.Count == 0 {
		var start time.Time
		if ev.AllDay {
			start = model.Date(ev.Start)
		} else {
			start = ev.Start
		}
		occ, _, err = ExpandSet(start, ev.Rule, ev.Dates, maxFallbackDates)
	} else {
		occ, err = Occurrences(ev)
	}
	if err != nil {
		return Clause{}, err
	}
	if !ev.AllDay {
		for i := range occ {
			occ[i] = occ[i].In(loc)
		}
	}
	return Clause{Satisfy: RenderDates(occ, 1), OmitDate: true}, nil
}

func startIn(ev *model.Event, loc *time.Location) time.Time {
	if ev.AllDay {
		return ev.Start
	}
	return ev.Start.In(loc)
}

func weekdaySet(days []time.Weekday) map[time.Weekday]bool {
	set := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		set[d] = true
	}
	return set
}

// excluded lists the weekdays missing from allowed, Monday first.
func excluded(allowed map[time.Weekday]bool) []string {
	out := make([]string, 0, 7)
	for i := 1; i <= 7; i++ {
		d := time.Weekday(i % 7)
		if !allowed[d] {
			out = append(out, weekdayName(d))
		}
	}
	return out
}
