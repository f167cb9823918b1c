package remind

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	appLog "remindcal/internal/log"
	"remindcal/internal/model"
	"remindcal/internal/recur"
)

// maxTagLen is the longest TAG remind accepts.
const maxTagLen = 48

// Options are the caller overrides applied to every rendered line.
type Options struct {
	Label    string
	Priority int
	Tags     []string
	Tail     string
	PostDate string
	PostTime string
	// Sep separates tokens; a single space when empty.
	Sep string
}

// Renderer writes events as REM lines.
type Renderer struct {
	// Zone is the zone of the reminder file.
	Zone *time.Location
}

// Lines renders one line per event. Events without a start date are
// logged and skipped.
func (r *Renderer) Lines(events []*model.Event, opts Options) ([]string, error) {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		line, err := r.Line(ev, opts)
		if errors.Is(err, ErrMissingStart) {
			appLog.Warn("render: skipping event without start date", "uid", ev.UID, "summary", ev.Summary)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("render %q: %w", ev.UID, err)
		}
		out = append(out, line)
	}
	return out, nil
}

// Line renders ev as a single REM line without trailing newline.
func (r *Renderer) Line(ev *model.Event, opts Options) (string, error) {
	if ev.Start.IsZero() {
		return "", ErrMissingStart
	}
	loc, tz := r.location(ev)

	clause, err := recur.Render(ev, loc)
	if err != nil {
		return "", err
	}

	start := ev.Start
	if !ev.AllDay {
		start = start.In(loc)
	}

	tokens := []string{"REM"}
	recurrence := clause.String()
	if !clause.OmitDate {
		if clause.From {
			if clause.Repeat != "" {
				tokens = append(tokens, clause.Repeat)
			}
			tokens = append(tokens, "FROM")
			recurrence = clause.Terminator()
		}
		tokens = append(tokens, recur.FormatDate(start))
	}
	if opts.PostDate != "" {
		tokens = append(tokens, opts.PostDate)
	}
	if opts.Priority > 0 {
		tokens = append(tokens, "PRIORITY "+strconv.Itoa(opts.Priority))
	}
	if recurrence != "" {
		tokens = append(tokens, recurrence)
	}

	if ev.IsTimed() {
		tokens = append(tokens, fmt.Sprintf("AT %d:%02d", start.Hour(), start.Minute()))
		if opts.PostTime != "" {
			tokens = append(tokens, opts.PostTime)
		}
		if span := ev.Span(); span > 0 {
			minutes := int(span / time.Minute)
			tokens = append(tokens, fmt.Sprintf("DURATION %d:%02d", minutes/60, minutes%60))
		}
	}

	if clause.Satisfy != "" {
		tokens = append(tokens, clause.Satisfy)
	}

	for _, tag := range r.tags(ev, opts) {
		tokens = append(tokens, "TAG "+tag)
	}
	if tz != "" {
		tokens = append(tokens, "TZ "+tz)
	}

	if ev.Description != "" {
		tokens = append(tokens, info("Description", ev.Description))
	}
	if ev.Location != "" {
		tokens = append(tokens, info("Location", ev.Location))
	}
	if ev.URL != "" {
		tokens = append(tokens, info("Url", ev.URL))
	}

	tokens = append(tokens, "MSG", message(ev, opts))

	sep := opts.Sep
	if sep == "" {
		sep = " "
	}
	return strings.Join(tokens, sep), nil
}

// location picks the zone timed values are written in. A TZ clause is
// returned when the event carries a named zone other than the file zone.
func (r *Renderer) location(ev *model.Event) (*time.Location, string) {
	local := r.Zone
	if local == nil {
		local = time.Local
	}
	if ev.AllDay {
		return local, ""
	}
	if ev.Floating {
		return ev.Start.Location(), ""
	}
	evLoc := ev.Start.Location()
	name := evLoc.String()
	if name == "" || name == "UTC" || name == "Local" || name == local.String() {
		return local, ""
	}
	if _, err := time.LoadLocation(name); err != nil {
		return local, ""
	}
	return evLoc, name
}

func (r *Renderer) tags(ev *model.Event, opts Options) []string {
	raw := make([]string, 0, 2+len(opts.Tags)+len(ev.Categories))
	if ev.Class != "" {
		raw = append(raw, string(ev.Class))
	}
	if ev.Status != "" {
		raw = append(raw, string(ev.Status))
	}
	raw = append(raw, opts.Tags...)
	raw = append(raw, ev.Categories...)

	out := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.Join(strings.Fields(t), "_")
		if t == "" {
			continue
		}
		if len(t) > maxTagLen {
			t = t[:maxTagLen]
		}
		out = append(out, t)
	}
	return out
}

func info(key, value string) string {
	value = strings.ReplaceAll(value, `"`, `\"`)
	value = strings.ReplaceAll(value, "\r\n", `\n`)
	value = strings.ReplaceAll(value, "\n", `\n`)
	return `INFO "` + key + `: ` + value + `"`
}

func message(ev *model.Event, opts Options) string {
	msg := escapeMsg(ev.SummaryOrPlaceholder())
	if opts.Label != "" {
		msg = opts.Label + " " + msg
	}
	if opts.Tail != "" {
		return `%"` + msg + `%" ` + opts.Tail
	}
	return msg
}

func escapeMsg(s string) string {
	s = strings.ReplaceAll(s, "%", "%%")
	s = strings.ReplaceAll(s, "[", "[[")
	s = strings.ReplaceAll(s, "\r\n", "%_")
	return strings.ReplaceAll(s, "\n", "%_")
}
