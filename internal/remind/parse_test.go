package remind

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindcal/internal/model"
)

func intPtr(v int) *int { return &v }

func TestUID(t *testing.T) {
	a := UID("REM Jan 5 2024 MSG x", "example.org")
	b := UID("  REM Jan 5 2024 MSG x\t", "example.org")
	c := UID("REM Jan 5 2024 MSG y", "example.org")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Regexp(t, `^[0-9a-f]{40}@example\.org$`, a)
	assert.Equal(t, LineHash("REM Jan 5 2024 MSG x"), HashOf(a))
	assert.Equal(t, "plain", HashOf("plain"))
	assert.NotEmpty(t, DefaultHost())
}

func TestParseTimedRecord(t *testing.T) {
	src := "REM Jan 5 2024 AT 10:00 DURATION 1:30 TAG PRIVATE TAG work MSG Meeting at Office"
	p := Parser{Zone: cet, Host: "host"}
	coll, errs := p.Parse([]Record{{
		File:     "/r",
		Line:     1,
		Source:   src,
		Date:     "2024-01-05",
		Time:     intPtr(600),
		Duration: intPtr(90),
		Tags:     "PRIVATE,work,__syn__abc",
		Body:     "Meeting at Office",
	}})
	require.Empty(t, errs)

	uid := UID(src, "host")
	ev := coll["/r"][uid]
	require.NotNil(t, ev)
	assert.Equal(t, uid, ev.UID)
	assert.True(t, ev.Start.Equal(time.Date(2024, 1, 5, 10, 0, 0, 0, cet)))
	assert.False(t, ev.AllDay)
	require.NotNil(t, ev.Duration)
	assert.Equal(t, 90*time.Minute, *ev.Duration)
	assert.Equal(t, "Meeting", ev.Summary)
	assert.Equal(t, "Office", ev.Location)
	assert.Equal(t, model.ClassPrivate, ev.Class)
	assert.Equal(t, []string{"work"}, ev.Categories)
	assert.Nil(t, ev.Rule)
}

func TestParseAccumulatesWeekly(t *testing.T) {
	src := `REM Mon SATISFY 1 MSG %"Standup%" bring notes%_and coffee`
	rec := func(date string) Record {
		return Record{
			File:   "/r",
			Line:   3,
			Source: src,
			Date:   date,
			Tags:   "CONFIRMED,__syn__x",
			Body:   `%"Standup%" bring notes%_and coffee`,
		}
	}
	p := Parser{Zone: cet, Host: "host"}
	coll, errs := p.Parse([]Record{rec("2024-01-01"), rec("2024/01/08"), rec("2024-01-15")})
	require.Empty(t, errs)
	require.Len(t, coll["/r"], 1)

	ev := coll["/r"][UID(src, "host")]
	require.NotNil(t, ev)
	assert.True(t, ev.AllDay)
	assert.Equal(t, day(2024, 1, 1), ev.Start)
	assert.Equal(t, "Standup", ev.Summary)
	assert.Equal(t, "bring notes\nand coffee", ev.Description)
	assert.Equal(t, model.StatusConfirmed, ev.Status)
	assert.Empty(t, ev.Categories)
	require.NotNil(t, ev.Rule)
	assert.Equal(t, model.Weekly, ev.Rule.Freq)
	assert.Equal(t, 1, ev.Rule.Interval)
	assert.Equal(t, 3, ev.Rule.Count)
}

func TestParseIrregularAndRange(t *testing.T) {
	p := Parser{Zone: cet, Host: "h"}
	records := []Record{
		{File: "/r", Line: 1, Source: "irregular", Date: "2024-01-01", Tags: "__syn__1", Body: "a"},
		{File: "/r", Line: 1, Source: "irregular", Date: "2024-01-04", Tags: "__syn__1", Body: "a"},
		{File: "/r", Line: 1, Source: "irregular", Date: "2024-01-10", Tags: "__syn__1", Body: "a"},
		{File: "/r", Line: 2, Source: "range", Date: "2024-02-01", Tags: "__syn__2", Body: "b"},
		{File: "/r", Line: 2, Source: "range", Date: "2024-02-02", Tags: "__syn__2", Body: "b"},
		{File: "/r", Line: 2, Source: "range", Date: "2024-02-03", Tags: "__syn__2", Body: "b"},
	}
	coll, errs := p.Parse(records)
	require.Empty(t, errs)

	irr := coll["/r"][UID("irregular", "h")]
	require.NotNil(t, irr)
	assert.Nil(t, irr.Rule)
	assert.Equal(t, []time.Time{day(2024, 1, 4), day(2024, 1, 10)}, irr.Dates)

	rng := coll["/r"][UID("range", "h")]
	require.NotNil(t, rng)
	assert.Nil(t, rng.Rule)
	require.NotNil(t, rng.End)
	assert.Equal(t, day(2024, 2, 4), *rng.End)
}

func TestParseTimedWithoutDurationGetsEnd(t *testing.T) {
	p := Parser{Zone: cet, Host: "h"}
	coll, errs := p.Parse([]Record{{
		File: "/r", Line: 1, Source: "x", Date: "2024-01-01", Time: intPtr(8*60 + 15), Tags: "__syn__1", Body: "x", TZ: "UTC",
	}})
	require.Empty(t, errs)
	ev := coll["/r"][UID("x", "h")]
	require.NotNil(t, ev)
	assert.Equal(t, time.Date(2024, 1, 1, 8, 15, 0, 0, time.UTC), ev.Start)
	assert.Equal(t, time.UTC, ev.Start.Location())
	require.NotNil(t, ev.End)
	assert.True(t, ev.End.Equal(ev.Start))
	assert.Nil(t, ev.Duration)
}

func TestParseInfoOverrides(t *testing.T) {
	p := Parser{Zone: cet, Host: "h"}
	coll, errs := p.Parse([]Record{{
		File:   "/r",
		Line:   1,
		Source: "info",
		Date:   "2024-01-01",
		Tags:   "big_project,__syn__1",
		Body:   "Party at Home",
		Info: map[string]string{
			"Location":    `Hall \"A\"`,
			"url":         "https://example.org",
			"Description": `two\nlines`,
		},
	}})
	require.Empty(t, errs)
	ev := coll["/r"][UID("info", "h")]
	require.NotNil(t, ev)
	assert.Equal(t, "Party at Home", ev.Summary)
	assert.Equal(t, `Hall "A"`, ev.Location)
	assert.Equal(t, "https://example.org", ev.URL)
	assert.Equal(t, "two\nlines", ev.Description)
	assert.Equal(t, []string{"big_project"}, ev.Categories)
}

func TestParseErrorsAndDrops(t *testing.T) {
	p := Parser{Zone: cet, Host: "h"}
	coll, errs := p.Parse([]Record{
		{File: "/r", Line: 1, Source: "bad date", Date: "2024-13-45", Tags: "__syn__1", Body: "x"},
		{File: "/r", Line: 2, Source: "bad time", Date: "2024-01-01", Time: intPtr(24 * 60), Tags: "__syn__2", Body: "x"},
		{File: "/r", Line: 3, Source: "no tag", Date: "2024-01-01", Tags: "work", Body: "x"},
		{File: "/r", Line: 4, Source: "good", Date: "2024-01-01", Tags: "__syn__4", Body: "ok"},
	})
	assert.Len(t, errs, 2)
	require.Len(t, coll["/r"], 1)
	assert.NotNil(t, coll["/r"][UID("good", "h")])
	assert.Equal(t, 1, coll.Len())
}

func TestParseCalendarBody(t *testing.T) {
	summary, desc := splitBody(Record{Body: "Lunch with Bob, bring cake", CalendarBody: "Lunch with Bob"})
	assert.Equal(t, "Lunch with Bob", summary)
	assert.Equal(t, ", bring cake", desc)

	summary, desc = splitBody(Record{Body: `a ["["]b]`})
	assert.Equal(t, "a [b]", summary)
	assert.Empty(t, desc)
}

func TestRenderParseRoundTripText(t *testing.T) {
	ev := &model.Event{
		Start:       day(2024, 4, 1),
		AllDay:      true,
		Summary:     "Dinner",
		Location:    `Bistro "Zum Ort"`,
		Description: "first\nsecond",
	}
	r := Renderer{Zone: cet}
	line, err := r.Line(ev, Options{})
	require.NoError(t, err)
	assert.Contains(t, line, `INFO "Location: Bistro \"Zum Ort\""`)

	assert.Equal(t, ev.Location, unescapeInfo(`Bistro \"Zum Ort\"`))
	assert.Equal(t, ev.Description, unescapeInfo(`first\nsecond`))
}

func TestParseKeepsAtWithInfoLocation(t *testing.T) {
	ev := &model.Event{Start: day(2024, 3, 1), AllDay: true, Summary: "Dinner at eight", Location: "Bistro"}
	r := Renderer{Zone: cet}
	line, err := r.Line(ev, Options{})
	require.NoError(t, err)
	assert.Equal(t, `REM Mar 1 2024 INFO "Location: Bistro" MSG Dinner at eight`, line)

	p := Parser{Zone: cet, Host: "h"}
	coll, errs := p.Parse([]Record{{
		File:   "/r",
		Line:   1,
		Source: line,
		Date:   "2024-03-01",
		Tags:   "__syn__1",
		Body:   line[strings.Index(line, " MSG ")+len(" MSG "):],
		Info:   map[string]string{"Location": "Bistro"},
	}})
	require.Empty(t, errs)
	got := coll["/r"][UID(line, "h")]
	require.NotNil(t, got)
	assert.Equal(t, "Dinner at eight", got.Summary)
	assert.Equal(t, "Bistro", got.Location)

	coll, errs = p.Parse([]Record{{File: "/r", Line: 1, Source: "plain", Date: "2024-03-01", Tags: "__syn__1", Body: "Dinner at Bistro"}})
	require.Empty(t, errs)
	got = coll["/r"][UID("plain", "h")]
	require.NotNil(t, got)
	assert.Equal(t, "Dinner", got.Summary)
	assert.Equal(t, "Bistro", got.Location)
}
