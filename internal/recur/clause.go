package recur

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var satisfyDate = regexp.MustCompile(`\$T\s*==\s*'(\d{4}-\d{2}-\d{2})'`)

// ParseClause expands the scheduling tokens of a Remind line, as written
// by Render, back into occurrences. Start supplies the clock and location
// and is used as the first date when the clause carries none.
func ParseClause(start time.Time, clause string) ([]time.Time, error) {
	tokens := strings.Fields(clause)

	var (
		date, from, until *time.Time
		repeat            int
		skip              bool
		omit              = make(map[time.Weekday]bool)
		monthDay          int
		weekday           *time.Weekday
		satisfy           []time.Time
	)

	takeDate := func(i int) (time.Time, error) {
		if i+3 > len(tokens) {
			return time.Time{}, fmt.Errorf("truncated date at %q", strings.Join(tokens[i:], " "))
		}
		return ParseDate(strings.Join(tokens[i:i+3], " "))
	}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case tok == "FROM" || tok == "UNTIL":
			d, err := takeDate(i + 1)
			if err != nil {
				return nil, err
			}
			if tok == "FROM" {
				from = &d
			} else {
				until = &d
			}
			i += 3
		case tok == "SKIP":
			skip = true
		case tok == "OMIT":
			for i+1 < len(tokens) {
				wd, ok := parseWeekday(tokens[i+1])
				if !ok {
					break
				}
				omit[wd] = true
				i++
			}
		case tok == "SATISFY":
			expr := strings.Join(tokens[i+1:], " ")
			for _, m := range satisfyDate.FindAllStringSubmatch(expr, -1) {
				d, err := time.Parse(isoDateLayout, m[1])
				if err != nil {
					return nil, fmt.Errorf("satisfy date %q: %w", m[1], err)
				}
				satisfy = append(satisfy, d)
			}
			i = len(tokens)
		case strings.HasPrefix(tok, "*"):
			n, err := strconv.Atoi(tok[1:])
			if err != nil || n < 1 {
				return nil, fmt.Errorf("invalid repeat %q", tok)
			}
			repeat = n
		case isMonth(tok):
			d, err := takeDate(i)
			if err != nil {
				return nil, err
			}
			date = &d
			i += 2
		default:
			if wd, ok := parseWeekday(tok); ok {
				weekday = &wd
				continue
			}
			n, err := strconv.Atoi(tok)
			if err != nil || n < 1 || n > 31 {
				return nil, fmt.Errorf("unexpected token %q", tok)
			}
			monthDay = n
		}
	}

	if len(satisfy) > 0 {
		out := make([]time.Time, 0, len(satisfy))
		for _, d := range satisfy {
			out = append(out, onDate(start, d))
		}
		return normalize(out, false), nil
	}

	base := start
	switch {
	case date != nil:
		base = onDate(start, *date)
	case from != nil:
		base = onDate(start, *from)
	}
	var last time.Time
	if until != nil {
		last = onDate(start, *until)
	}

	switch {
	case repeat > 0:
		if last.IsZero() {
			return nil, errors.New("repeat without UNTIL is unbounded")
		}
		out := make([]time.Time, 0)
		for t := base; !t.After(last) && len(out) < DefaultMaxOccurrences; t = t.AddDate(0, 0, repeat) {
			if skip && omit[t.Weekday()] {
				continue
			}
			out = append(out, t)
		}
		return out, nil
	case monthDay > 0:
		if last.IsZero() {
			return nil, errors.New("monthly clause without UNTIL is unbounded")
		}
		out := make([]time.Time, 0)
		y, m, _ := base.Date()
		for i := 0; len(out) < DefaultMaxOccurrences; i++ {
			first := time.Date(y, m+time.Month(i), 1, 0, 0, 0, 0, time.UTC)
			if first.After(last) {
				break
			}
			var d time.Time
			if weekday != nil {
				d = first.AddDate(0, 0, monthDay-1)
				for d.Weekday() != *weekday {
					d = d.AddDate(0, 0, 1)
				}
			} else {
				d = first.AddDate(0, 0, monthDay-1)
				if d.Month() != first.Month() {
					continue
				}
			}
			t := onDate(start, d)
			if t.Before(base) || t.After(last) {
				continue
			}
			out = append(out, t)
		}
		return out, nil
	default:
		return []time.Time{base}, nil
	}
}

func isMonth(s string) bool {
	_, err := time.Parse("Jan", s)
	return err == nil
}
