package ics

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"remindcal/internal/model"
	"remindcal/internal/recur"
)

// DefaultAlarmMinutes is the lead time of the display alarm added to
// timed events.
const DefaultAlarmMinutes = 10

// Options controls how events are written as VEVENTs.
type Options struct {
	// AlarmMinutes adds a DISPLAY alarm this many minutes before timed
	// events. Zero disables the alarm.
	AlarmMinutes int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{AlarmMinutes: DefaultAlarmMinutes}
}

// NewCalendar builds a VCALENDAR holding one VEVENT per event.
func NewCalendar(events []*model.Event, stamp time.Time, opts Options) (*ical.Calendar, error) {
	cal := ical.NewCalendarFor(defaultService)
	for _, ev := range events {
		ve, err := FromEvent(ev, stamp, opts)
		if err != nil {
			return nil, err
		}
		cal.AddVEvent(ve)
	}
	return cal, nil
}

// FromEvent converts ev into a VEVENT stamped with stamp.
func FromEvent(ev *model.Event, stamp time.Time, opts Options) (*ical.VEvent, error) {
	uid := ev.UID
	if uid == "" {
		sum := sha1.Sum([]byte(ev.Start.String() + ev.Summary))
		uid = hex.EncodeToString(sum[:]) + "@" + defaultService
	}
	ve := ical.NewEvent(uid)
	ve.SetDtStampTime(stamp)

	setTime(ve, ical.ComponentPropertyDtStart, ev.Start, ev.AllDay, ev.Floating)
	switch {
	case ev.End != nil:
		setTime(ve, ical.ComponentPropertyDtEnd, *ev.End, ev.AllDay, ev.Floating)
	case ev.Duration != nil:
		ve.SetProperty(ical.ComponentPropertyDuration, FormatDuration(*ev.Duration))
	case ev.AllDay:
		setTime(ve, ical.ComponentPropertyDtEnd, model.Date(ev.Start).AddDate(0, 0, 1), true, false)
	}

	if ev.Rule != nil {
		rule, err := rruleValue(ev)
		if err != nil {
			return nil, err
		}
		ve.AddRrule(rule)
	}
	if len(ev.Dates) > 0 {
		values := make([]string, 0, len(ev.Dates))
		for _, d := range ev.Dates {
			if ev.AllDay {
				values = append(values, d.Format(layoutDate))
			} else {
				values = append(values, d.UTC().Format(layoutUTC))
			}
		}
		if ev.AllDay {
			ve.AddRdate(strings.Join(values, ","), ical.WithValue(string(ical.ValueDataTypeDate)))
		} else {
			ve.AddRdate(strings.Join(values, ","))
		}
	}

	summary := ev.SummaryOrPlaceholder()
	ve.SetSummary(summary)
	if ev.Location != "" {
		ve.SetLocation(ev.Location)
	}
	if ev.Description != "" {
		ve.SetDescription(ev.Description)
	}
	if ev.URL != "" {
		ve.SetURL(ev.URL)
	}
	if ev.Class != "" {
		ve.SetClass(ical.Classification(ev.Class))
	}
	if ev.Status != "" {
		ve.SetStatus(ical.ObjectStatus(ev.Status))
	}
	for _, c := range ev.Categories {
		ve.AddCategory(c)
	}

	if ev.IsTimed() && opts.AlarmMinutes > 0 {
		alarm := ve.AddAlarm()
		alarm.SetAction(ical.ActionDisplay)
		alarm.SetTrigger(fmt.Sprintf("-PT%dM", opts.AlarmMinutes))
		alarm.SetDescription(summary)
	}
	return ve, nil
}

// setTime writes a DATE, floating, TZID-qualified or UTC value.
func setTime(ve *ical.VEvent, prop ical.ComponentProperty, t time.Time, allDay, floating bool) {
	switch {
	case allDay:
		ve.SetProperty(prop, t.Format(layoutDate), ical.WithValue(string(ical.ValueDataTypeDate)))
	case floating:
		ve.SetProperty(prop, t.Format(layoutLocal))
	default:
		if name, ok := zoneName(t.Location()); ok {
			ve.SetProperty(prop, t.Format(layoutLocal), ical.WithTZID(name))
			return
		}
		ve.SetProperty(prop, t.UTC().Format(layoutUTC))
	}
}

// zoneName returns a loadable IANA name for loc, if it has one.
func zoneName(loc *time.Location) (string, bool) {
	name := loc.String()
	if name == "" || name == "UTC" || name == "Local" {
		return "", false
	}
	if _, err := time.LoadLocation(name); err != nil {
		return "", false
	}
	return name, true
}

func rruleValue(ev *model.Event) (string, error) {
	if ev.Rule.Freq == model.Complex && ev.Rule.Raw != "" {
		return ev.Rule.Raw, nil
	}
	opt, err := recur.ToROption(ev.Rule, ev.Start)
	if err != nil {
		return "", err
	}
	opt.Until = time.Time{}
	value := opt.RRuleString()
	if ev.Rule.Until != nil {
		if ev.AllDay {
			value += ";UNTIL=" + ev.Rule.Until.Format(layoutDate)
		} else {
			value += ";UNTIL=" + ev.Rule.Until.UTC().Format(layoutUTC)
		}
	}
	return value, nil
}
