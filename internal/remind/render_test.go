package remind

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindcal/internal/model"
	"remindcal/internal/recur"
)

var cet = time.FixedZone("CET", 3600)

func loadZone(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("zone %s unavailable: %v", name, err)
	}
	return loc
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRenderTimedWeekly(t *testing.T) {
	d := 90 * time.Minute
	ev := &model.Event{
		Start:      time.Date(2024, 1, 5, 10, 0, 0, 0, cet),
		Duration:   &d,
		Rule:       &model.Rule{Freq: model.Weekly, Interval: 1, Count: 3},
		Summary:    "Team [sync] 100%",
		Location:   "Room 1",
		Class:      model.ClassPrivate,
		Categories: []string{"big project"},
	}
	r := Renderer{Zone: cet}
	line, err := r.Line(ev, Options{})
	require.NoError(t, err)
	assert.Equal(t,
		`REM Jan 5 2024 *7 UNTIL Jan 19 2024 AT 10:00 DURATION 1:30 TAG PRIVATE TAG big_project INFO "Location: Room 1" MSG Team [[sync] 100%%`,
		line)
}

func TestRenderOptions(t *testing.T) {
	ev := &model.Event{
		Start:       day(2024, 1, 5),
		AllDay:      true,
		Summary:     "Day off",
		Description: "line1\nsays \"hi\"",
	}
	r := Renderer{Zone: cet}
	line, err := r.Line(ev, Options{
		Label:    "Work",
		Priority: 5000,
		Tags:     []string{"x y"},
		Tail:     "%b",
		PostDate: "+2",
		PostTime: "+15",
	})
	require.NoError(t, err)
	assert.Equal(t,
		`REM Jan 5 2024 +2 PRIORITY 5000 TAG x_y INFO "Description: line1\nsays \"hi\"" MSG %"Work Day off%" %b`,
		line)
}

func TestRenderPostTimeAndSep(t *testing.T) {
	end := time.Date(2024, 2, 1, 9, 45, 0, 0, cet)
	ev := &model.Event{
		Start:   time.Date(2024, 2, 1, 9, 5, 0, 0, cet),
		End:     &end,
		Summary: "a\nb",
	}
	r := Renderer{Zone: cet}
	line, err := r.Line(ev, Options{PostTime: "+10", Sep: "  "})
	require.NoError(t, err)
	assert.Equal(t, "REM  Feb 1 2024  AT 9:05  +10  DURATION 0:40  MSG  a%_b", line)
}

func TestRenderMultiDayAllDay(t *testing.T) {
	end := day(2024, 1, 8)
	ev := &model.Event{Start: day(2024, 1, 5), AllDay: true, End: &end, Summary: "Trip"}
	r := Renderer{Zone: cet}
	line, err := r.Line(ev, Options{})
	require.NoError(t, err)
	assert.Equal(t, "REM Jan 5 2024 *1 UNTIL Jan 7 2024 MSG Trip", line)
}

func TestRenderNthWeekday(t *testing.T) {
	until := day(2024, 6, 18)
	ev := &model.Event{
		Start:   day(2024, 1, 16),
		AllDay:  true,
		Rule:    &model.Rule{Freq: model.MonthlyByWeekday, Interval: 1, Weekday: time.Tuesday, Week: 3, Until: &until},
		Summary: "Review",
	}
	r := Renderer{Zone: cet}
	line, err := r.Line(ev, Options{})
	require.NoError(t, err)
	assert.Equal(t, "REM Tue 15 FROM Jan 16 2024 UNTIL Jun 18 2024 MSG Review", line)
}

func TestRenderMonthlyByDayRepeatBeforeFrom(t *testing.T) {
	ev := &model.Event{
		Start:   day(2024, 1, 15),
		AllDay:  true,
		Rule:    &model.Rule{Freq: model.MonthlyByDay, Interval: 1, MonthDay: 15, Count: 3},
		Summary: "Rent",
	}
	r := Renderer{Zone: cet}
	line, err := r.Line(ev, Options{})
	require.NoError(t, err)
	assert.Equal(t, "REM 15 FROM Jan 15 2024 UNTIL Mar 15 2024 MSG Rent", line)

	dates, err := recur.ParseClause(ev.Start, strings.TrimSuffix(strings.TrimPrefix(line, "REM "), " MSG Rent"))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(2024, 1, 15), day(2024, 2, 15), day(2024, 3, 15)}, dates)
}

func TestRenderExplicitDates(t *testing.T) {
	ev := &model.Event{
		Start:  day(2024, 1, 1),
		AllDay: true,
		Dates:  []time.Time{day(2024, 1, 3), day(2024, 1, 10)},
	}
	r := Renderer{Zone: cet}
	line, err := r.Line(ev, Options{})
	require.NoError(t, err)
	assert.Equal(t,
		"REM SATISFY [$T=='2024-01-01'||$T=='2024-01-03'||$T=='2024-01-10'] MSG "+model.PlaceholderSummary,
		line)

	dates, err := recur.ParseClause(ev.Start, line[len("REM "):len(line)-len(" MSG "+model.PlaceholderSummary)])
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(2024, 1, 1), day(2024, 1, 3), day(2024, 1, 10)}, dates)
}

func TestRenderForeignZone(t *testing.T) {
	ny := loadZone(t, "America/New_York")
	end := time.Date(2024, 3, 4, 10, 0, 0, 0, ny)
	ev := &model.Event{Start: time.Date(2024, 3, 4, 9, 0, 0, 0, ny), End: &end, Summary: "Call"}
	r := Renderer{Zone: cet}
	line, err := r.Line(ev, Options{})
	require.NoError(t, err)
	assert.Equal(t, "REM Mar 4 2024 AT 9:00 DURATION 1:00 TZ America/New_York MSG Call", line)
}

func TestRenderUTCConvertedToLocal(t *testing.T) {
	ev := &model.Event{Start: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC), Summary: "Call"}
	r := Renderer{Zone: cet}
	line, err := r.Line(ev, Options{})
	require.NoError(t, err)
	assert.Equal(t, "REM Mar 4 2024 AT 10:00 MSG Call", line)
}

func TestRenderTagTruncated(t *testing.T) {
	long := "abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyz"
	ev := &model.Event{Start: day(2024, 1, 1), AllDay: true, Summary: "x", Categories: []string{long}}
	r := Renderer{Zone: cet}
	line, err := r.Line(ev, Options{})
	require.NoError(t, err)
	assert.Contains(t, line, "TAG "+long[:maxTagLen]+" MSG")
}

func TestRenderLinesUnsupported(t *testing.T) {
	ev := &model.Event{Start: day(2024, 1, 1), AllDay: true, Rule: &model.Rule{Freq: model.Frequency(99), Interval: 1}}
	r := Renderer{Zone: cet}
	_, err := r.Lines([]*model.Event{ev}, Options{})
	assert.ErrorIs(t, err, recur.ErrUnsupportedFrequency)
}
