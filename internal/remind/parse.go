package remind

import (
	"fmt"
	"sort"
	"strings"
	"time"

	appLog "remindcal/internal/log"
	"remindcal/internal/model"
	"remindcal/internal/recur"
)

// SynTagPrefix starts the tag remind synthesizes for every reminder
// when run with -y.
const SynTagPrefix = "__syn__"

// Collection maps source file to identifier to event.
type Collection map[string]map[string]*model.Event

// Len returns the number of events over all files.
func (c Collection) Len() int {
	n := 0
	for _, events := range c {
		n += len(events)
	}
	return n
}

// Parser turns remind records into events.
type Parser struct {
	// Zone is used for timed reminders without a TZ of their own.
	Zone *time.Location
	// Host is the identifier suffix.
	Host string
}

type pending struct {
	ev    *model.Event
	dates []time.Time
}

// Parse groups records by source line into events. Records that cannot
// be parsed are reported and skipped; the remaining records are kept.
func (p *Parser) Parse(records []Record) (Collection, []error) {
	coll := make(Collection)
	byKey := make(map[string]*pending)
	order := make([]string, 0)
	var errs []error

	for _, rec := range records {
		ev, start, err := p.parseRecord(rec)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s:%d: %w", rec.File, rec.Line, err))
			continue
		}
		if ev == nil {
			continue
		}
		key := rec.File + "\x00" + ev.UID
		if pe, ok := byKey[key]; ok {
			pe.dates = append(pe.dates, start)
			continue
		}
		byKey[key] = &pending{ev: ev, dates: []time.Time{start}}
		order = append(order, key)
	}

	for _, key := range order {
		pe := byKey[key]
		file := key[:strings.IndexByte(key, '\x00')]
		ev := pe.ev
		recur.Infer(pe.dates, ev.AllDay).Apply(ev)
		if ev.IsTimed() && ev.Duration == nil && ev.End == nil {
			end := ev.Start
			ev.End = &end
		}
		if coll[file] == nil {
			coll[file] = make(map[string]*model.Event)
		}
		coll[file][ev.UID] = ev
	}

	for _, err := range errs {
		appLog.Warn("remind record skipped", "reason", err.Error())
	}
	return coll, errs
}

// parseRecord converts one record. A nil event without error means the
// record was dropped.
func (p *Parser) parseRecord(rec Record) (*model.Event, time.Time, error) {
	tags := splitTags(rec.Tags)
	if len(tags) == 0 || !strings.HasPrefix(tags[len(tags)-1], SynTagPrefix) {
		appLog.Warn("remind record without synthesized tag dropped", "file", rec.File, "line", rec.Line)
		return nil, time.Time{}, nil
	}
	tags = tags[:len(tags)-1]

	date, err := parseRecordDate(rec.Date)
	if err != nil {
		return nil, time.Time{}, err
	}

	ev := &model.Event{}
	start := date
	if rec.Time != nil {
		if *rec.Time < 0 || *rec.Time >= 24*60 {
			return nil, time.Time{}, fmt.Errorf("invalid time %d", *rec.Time)
		}
		loc := p.zoneFor(rec.TZ)
		start = time.Date(date.Year(), date.Month(), date.Day(), *rec.Time/60, *rec.Time%60, 0, 0, loc)
		if rec.Duration != nil {
			if *rec.Duration < 0 {
				return nil, time.Time{}, fmt.Errorf("invalid duration %d", *rec.Duration)
			}
			d := time.Duration(*rec.Duration) * time.Minute
			ev.Duration = &d
		}
	} else {
		ev.AllDay = true
	}
	ev.Start = start

	ev.Summary, ev.Description = splitBody(rec)
	// An INFO location wins; only plain bodies carry it after " at ".
	if !hasInfo(rec.Info, "location") {
		if i := strings.LastIndex(ev.Summary, " at "); i >= 0 {
			ev.Location = strings.TrimSpace(ev.Summary[i+len(" at "):])
			ev.Summary = strings.TrimSpace(ev.Summary[:i])
		}
	}

	for _, tag := range tags {
		if c, ok := model.ParseClassification(tag); ok {
			ev.Class = c
			continue
		}
		if s, ok := model.ParseStatus(tag); ok {
			ev.Status = s
			continue
		}
		ev.Categories = append(ev.Categories, tag)
	}

	for k, v := range rec.Info {
		switch strings.ToLower(k) {
		case "location":
			ev.Location = unescapeInfo(v)
		case "description":
			ev.Description = unescapeInfo(v)
		case "url":
			ev.URL = unescapeInfo(v)
		}
	}

	source := rec.Source
	if source == "" {
		return nil, time.Time{}, fmt.Errorf("missing source line")
	}
	ev.UID = UID(source, p.Host)
	return ev, start, nil
}

func hasInfo(info map[string]string, key string) bool {
	for k := range info {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

func (p *Parser) zoneFor(tz string) *time.Location {
	if tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
		appLog.Warn("unknown reminder TZ, using default zone", "tz", tz)
	}
	if p.Zone != nil {
		return p.Zone
	}
	return time.Local
}

func parseRecordDate(s string) (time.Time, error) {
	v := strings.ReplaceAll(strings.TrimSpace(s), "/", "-")
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

func splitTags(s string) []string {
	out := make([]string, 0)
	for _, t := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// splitBody separates summary and description. A %"quoted%" prefix, or
// the calendar body when remind reports one, is the summary and the rest
// is the description.
func splitBody(rec Record) (summary, description string) {
	body := unescapeBody(rec.Body)

	if i := strings.Index(body, `%"`); i >= 0 {
		rest := body[i+2:]
		if j := strings.Index(rest, `%"`); j >= 0 {
			return strings.TrimSpace(rest[:j]), strings.TrimSpace(rest[j+2:])
		}
		return strings.TrimSpace(rest), ""
	}

	cal := unescapeBody(rec.CalendarBody)
	if cal != "" && cal != body {
		if i := strings.Index(body, cal); i >= 0 {
			return strings.TrimSpace(cal), strings.TrimSpace(body[:i] + body[i+len(cal):])
		}
		return strings.TrimSpace(cal), ""
	}
	return strings.TrimSpace(body), ""
}

func unescapeBody(s string) string {
	s = strings.ReplaceAll(s, "%_", "\n")
	return strings.ReplaceAll(s, `["["]`, "[")
}

func unescapeInfo(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case '"':
				b.WriteByte('"')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// sortedEvents returns events ordered by start, then identifier.
func sortedEvents(events map[string]*model.Event) []*model.Event {
	out := make([]*model.Event, 0, len(events))
	for _, ev := range events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].UID < out[j].UID
	})
	return out
}
