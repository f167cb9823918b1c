package recur

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "remindcal/internal/log"
	"remindcal/internal/model"
)

const (
	// DefaultMaxOccurrences caps the expansion of unbounded rules.
	DefaultMaxOccurrences = 5000
)

// ErrUnsupportedFrequency is returned for rule frequencies that have no
// rendering at all, not even as an explicit date list.
var ErrUnsupportedFrequency = errors.New("unsupported recurrence frequency")

var rruleWeekdays = []rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

func toRRuleWeekday(d time.Weekday) rrule.Weekday {
	return rruleWeekdays[d]
}

func fromRRuleWeekday(wd rrule.Weekday) time.Weekday {
	return time.Weekday((wd.Day() + 1) % 7)
}

// ToROption maps rule onto rrule-go options anchored at start.
func ToROption(rule *model.Rule, start time.Time) (rrule.ROption, error) {
	if rule == nil {
		return rrule.ROption{}, errors.New("nil rule")
	}
	if rule.Freq == model.Complex {
		if rule.Raw == "" {
			return rrule.ROption{}, errors.New("complex rule without RRULE text")
		}
		opt, err := rrule.StrToROptionInLocation(rule.Raw, start.Location())
		if err != nil {
			return rrule.ROption{}, fmt.Errorf("parse rrule %q: %w", rule.Raw, err)
		}
		opt.Dtstart = start
		if rule.Until != nil {
			opt.Until = *rule.Until
		}
		if rule.Count > 0 {
			opt.Count = rule.Count
		}
		return *opt, nil
	}

	opt := rrule.ROption{
		Dtstart:  start,
		Interval: rule.Step(),
		Count:    rule.Count,
	}
	if rule.Until != nil {
		opt.Until = *rule.Until
	}

	switch rule.Freq {
	case model.Daily, model.Weekly:
		opt.Freq = rrule.DAILY
		if rule.Freq == model.Weekly {
			opt.Freq = rrule.WEEKLY
		}
		for _, d := range rule.ByWeekday {
			opt.Byweekday = append(opt.Byweekday, toRRuleWeekday(d))
		}
	case model.MonthlyByDay:
		opt.Freq = rrule.MONTHLY
		md := rule.MonthDay
		if md == 0 {
			md = start.Day()
		}
		opt.Bymonthday = []int{md}
	case model.MonthlyByWeekday:
		opt.Freq = rrule.MONTHLY
		wd := toRRuleWeekday(rule.Weekday)
		opt.Byweekday = []rrule.Weekday{wd.Nth(rule.Week)}
	case model.Yearly:
		opt.Freq = rrule.YEARLY
	default:
		return rrule.ROption{}, fmt.Errorf("%w: %s", ErrUnsupportedFrequency, rule.Freq)
	}
	return opt, nil
}

// FromROption maps parsed RRULE options onto a model rule. Shapes the
// model cannot hold directly become Complex rules carrying the RRULE text.
func FromROption(opt rrule.ROption) (*model.Rule, error) {
	rule := &model.Rule{
		Interval: opt.Interval,
		Count:    opt.Count,
		Raw:      opt.RRuleString(),
	}
	if rule.Interval < 1 {
		rule.Interval = 1
	}
	if !opt.Until.IsZero() {
		until := opt.Until
		rule.Until = &until
	}

	extra := len(opt.Bymonth) > 0 || len(opt.Byyearday) > 0 || len(opt.Byweekno) > 0 ||
		len(opt.Byhour) > 0 || len(opt.Byminute) > 0 || len(opt.Bysecond) > 0 || len(opt.Byeaster) > 0

	switch opt.Freq {
	case rrule.DAILY, rrule.WEEKLY:
		rule.Freq = model.Daily
		if opt.Freq == rrule.WEEKLY {
			rule.Freq = model.Weekly
		}
		for _, wd := range opt.Byweekday {
			if wd.N() != 0 {
				extra = true
			}
			rule.ByWeekday = append(rule.ByWeekday, fromRRuleWeekday(wd))
		}
		if len(opt.Bymonthday) > 0 || len(opt.Bysetpos) > 0 {
			extra = true
		}
	case rrule.MONTHLY:
		switch {
		case len(opt.Byweekday) == 1 && len(opt.Bymonthday) == 0:
			wd := opt.Byweekday[0]
			week := wd.N()
			if week == 0 && len(opt.Bysetpos) == 1 {
				week = opt.Bysetpos[0]
			} else if len(opt.Bysetpos) > 0 {
				extra = true
			}
			if week == 0 {
				extra = true
			}
			rule.Freq = model.MonthlyByWeekday
			rule.Weekday = fromRRuleWeekday(wd)
			rule.Week = week
		case len(opt.Byweekday) == 0 && len(opt.Bymonthday) <= 1 && len(opt.Bysetpos) == 0:
			rule.Freq = model.MonthlyByDay
			if len(opt.Bymonthday) == 1 {
				rule.MonthDay = opt.Bymonthday[0]
			}
		default:
			extra = true
		}
	case rrule.YEARLY:
		rule.Freq = model.Yearly
		if len(opt.Byweekday) > 0 || len(opt.Bymonthday) > 0 || len(opt.Bysetpos) > 0 {
			extra = true
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFrequency, opt.Freq)
	}

	if extra {
		rule.Freq = model.Complex
	}
	return rule, nil
}

// Expand returns the occurrences of rule anchored at start.
func Expand(rule *model.Rule, start time.Time) ([]time.Time, error) {
	out, _, err := ExpandSet(start, rule, nil, DefaultMaxOccurrences)
	return out, err
}

// ExpandSet combines start, an optional rule and explicit dates into one
// sorted, de-duplicated list. At most limit occurrences are returned; the
// boolean reports whether the cap was hit.
func ExpandSet(start time.Time, rule *model.Rule, dates []time.Time, limit int) ([]time.Time, bool, error) {
	if limit <= 0 {
		limit = DefaultMaxOccurrences
	}

	var set rrule.Set
	set.DTStart(start)
	if rule != nil {
		opt, err := ToROption(rule, start)
		if err != nil {
			return nil, false, err
		}
		r, err := rrule.NewRRule(opt)
		if err != nil {
			return nil, false, fmt.Errorf("build rrule: %w", err)
		}
		set.RRule(r)
	}
	set.RDate(start)
	for _, d := range dates {
		set.RDate(d)
	}

	out := make([]time.Time, 0)
	next := set.Iterator()
	for {
		t, ok := next()
		if !ok {
			return out, false, nil
		}
		if len(out) == limit {
			appLog.Error("expand: truncated occurrences due to cap",
				errors.New("max occurrences reached"),
				"start", start,
				"cap", limit,
			)
			return out, true, nil
		}
		out = append(out, t.In(start.Location()))
	}
}

// Occurrences expands every start instant of ev: Start, the rule and the
// explicit dates, sorted and unique.
func Occurrences(ev *model.Event) ([]time.Time, error) {
	if ev.AllDay {
		start := model.Date(ev.Start)
		dates := make([]time.Time, 0, len(ev.Dates))
		for _, d := range ev.Dates {
			dates = append(dates, model.Date(d))
		}
		rule := ev.Rule
		if rule != nil && rule.Until != nil {
			r := *rule
			until := model.Date(*rule.Until)
			r.Until = &until
			rule = &r
		}
		out, _, err := ExpandSet(start, rule, dates, DefaultMaxOccurrences)
		return out, err
	}
	out, _, err := ExpandSet(ev.Start, ev.Rule, ev.Dates, DefaultMaxOccurrences)
	return out, err
}
