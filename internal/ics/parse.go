package ics

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "remindcal/internal/log"
	"remindcal/internal/model"
	"remindcal/internal/recur"
)

const (
	layoutDate     = "20060102"
	layoutLocal    = "20060102T150405"
	layoutUTC      = "20060102T150405Z"
	defaultService = "remindcal"
)

// Parse reads a single iCalendar document.
func Parse(r io.Reader) (*ical.Calendar, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}
	return cal, nil
}

// Serialize renders cal in iCalendar text form.
func Serialize(cal *ical.Calendar) string {
	return cal.Serialize()
}

// Events converts every VEVENT of cal. The returned components are the
// originals, index-aligned with the events, so callers can write
// unmatched entries back unchanged.
//
// Events that cannot be converted are logged and skipped; a recurrence
// with an unsupported frequency aborts the conversion.
func Events(cal *ical.Calendar, zone *time.Location) ([]*model.Event, []*ical.VEvent, error) {
	events, comps, _, err := Split(cal, zone)
	return events, comps, err
}

// Split is Events that also returns the VEVENTs it could not convert.
func Split(cal *ical.Calendar, zone *time.Location) (events []*model.Event, comps, rejected []*ical.VEvent, err error) {
	events = make([]*model.Event, 0)
	comps = make([]*ical.VEvent, 0)

	for _, ve := range cal.Events() {
		ev, err := ToEvent(ve, zone)
		if err != nil {
			if errors.Is(err, recur.ErrUnsupportedFrequency) {
				return nil, nil, nil, err
			}
			appLog.Error("ics vevent convert failed", err, "uid", ve.Id())
			rejected = append(rejected, ve)
			continue
		}
		events = append(events, ev)
		comps = append(comps, ve)
	}

	appLog.Debug("ics convert completed", "event_count", len(events), "rejected", len(rejected))
	return events, comps, rejected, nil
}

// ToEvent converts one VEVENT. Floating date-times are read in zone.
// Without DTSTART the event keeps a zero Start and no recurrence.
func ToEvent(ve *ical.VEvent, zone *time.Location) (*model.Event, error) {
	if zone == nil {
		zone = time.Local
	}
	ev := &model.Event{}

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		ev.UID = p.Value
	}

	var (
		start           time.Time
		allDay, hasDate bool
	)
	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil && p.Value != "" {
		var (
			floating bool
			err      error
		)
		start, allDay, floating, err = parseTime(p, zone)
		if err != nil {
			return nil, fmt.Errorf("DTSTART: %w", err)
		}
		hasDate = true
		ev.Start = start
		ev.AllDay = allDay
		ev.Floating = floating
	}

	if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil && p.Value != "" {
		end, _, _, err := parseTime(p, zone)
		if err != nil {
			return nil, fmt.Errorf("DTEND: %w", err)
		}
		if allDay {
			end = model.Date(end)
		}
		ev.End = &end
	} else if p := ve.GetProperty(ical.ComponentPropertyDuration); p != nil && p.Value != "" {
		d, err := ParseDuration(p.Value)
		if err != nil {
			return nil, fmt.Errorf("DURATION: %w", err)
		}
		ev.Duration = &d
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		ev.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		ev.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyUrl); p != nil {
		ev.URL = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyClass); p != nil {
		ev.Class, _ = model.ParseClassification(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyStatus); p != nil {
		ev.Status, _ = model.ParseStatus(p.Value)
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyCategories) {
		for _, c := range strings.Split(p.Value, ",") {
			c = strings.TrimSpace(c)
			if c == "" {
				continue
			}
			if _, ok := model.ParseClassification(c); ok {
				continue
			}
			if _, ok := model.ParseStatus(c); ok {
				continue
			}
			ev.Categories = append(ev.Categories, c)
		}
	}

	if !hasDate {
		return ev, nil
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil && p.Value != "" {
		opt, err := rrule.StrToROptionInLocation(p.Value, start.Location())
		if err != nil {
			return nil, fmt.Errorf("RRULE %q: %w", p.Value, err)
		}
		rule, err := recur.FromROption(*opt)
		if err != nil {
			return nil, err
		}
		if rule.Until != nil && allDay {
			until := model.Date(*rule.Until)
			rule.Until = &until
		}
		ev.Rule = rule
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyRdate) {
		if v := p.ICalParameters["VALUE"]; len(v) > 0 && strings.EqualFold(v[0], "PERIOD") {
			continue
		}
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t, err := parseValue(part, p.ICalParameters, zone)
			if err != nil {
				return nil, fmt.Errorf("RDATE %q: %w", part, err)
			}
			if allDay {
				t = model.Date(t)
			}
			if t.Equal(ev.Start) {
				continue
			}
			ev.Dates = append(ev.Dates, t)
		}
	}

	if err := applyExdates(ev, ve, zone); err != nil {
		return nil, err
	}
	return ev, nil
}

// applyExdates folds EXDATE values into an explicit date list, since the
// model has no exclusion list of its own.
func applyExdates(ev *model.Event, ve *ical.VEvent, zone *time.Location) error {
	props := ve.GetProperties(ical.ComponentPropertyExdate)
	if len(props) == 0 || !ev.HasRecurrence() {
		return nil
	}
	excluded := make(map[int64]bool)
	for _, p := range props {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t, err := parseValue(part, p.ICalParameters, zone)
			if err != nil {
				return fmt.Errorf("EXDATE %q: %w", part, err)
			}
			if ev.AllDay {
				t = model.Date(t)
			}
			excluded[t.Unix()] = true
		}
	}

	occ, err := recur.Occurrences(ev)
	if err != nil {
		return err
	}
	kept := make([]time.Time, 0, len(occ))
	for _, t := range occ {
		if !excluded[t.Unix()] {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		return errors.New("every occurrence is excluded")
	}
	ev.Rule = nil
	ev.Start = kept[0]
	ev.Dates = kept[1:]
	return nil
}

// parseTime reads a DTSTART/DTEND style property. All-day values are
// returned at midnight UTC.
func parseTime(p *ical.IANAProperty, zone *time.Location) (t time.Time, allDay, floating bool, err error) {
	val := strings.TrimSpace(p.Value)
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		allDay = true
	}
	if !strings.Contains(val, "T") {
		allDay = true
	}
	if allDay {
		t, err = time.Parse(layoutDate, val[:min(len(val), len(layoutDate))])
		return t, true, false, err
	}
	_, hasTZ := p.ICalParameters["TZID"]
	floating = !hasTZ && !strings.HasSuffix(val, "Z")
	t, err = parseValue(val, p.ICalParameters, zone)
	return t, false, floating, err
}

// parseValue parses one DATE or DATE-TIME value honouring TZID.
func parseValue(v string, params map[string][]string, zone *time.Location) (time.Time, error) {
	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse(layoutUTC, v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation(layoutLocal, v, tzid(params, zone))
	default:
		return time.Parse(layoutDate, v)
	}
}

func tzid(params map[string][]string, zone *time.Location) *time.Location {
	tzs, ok := params["TZID"]
	if !ok || len(tzs) == 0 {
		return zone
	}
	loc, err := time.LoadLocation(strings.Trim(tzs[0], `"`))
	if err != nil {
		appLog.Warn("unknown TZID, using default zone", "tzid", tzs[0], "zone", zone.String())
		return zone
	}
	return loc
}
