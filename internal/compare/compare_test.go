package compare

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindcal/internal/ics"
	"remindcal/internal/model"
)

func at(h int) time.Time {
	return time.Date(2001, 1, 1, h, 0, 0, 0, time.UTC)
}

func timePtr(t time.Time) *time.Time { return &t }

func durPtr(d time.Duration) *time.Duration { return &d }

func TestCompareEmptyEvents(t *testing.T) {
	res := Compare([]*model.Event{{}}, []*model.Event{{}})
	assert.Empty(t, res.Removed)
	assert.Empty(t, res.Added)
	assert.Equal(t, []Match{{First: 0, Second: 0}}, res.Matches)
}

func TestCompareSummary(t *testing.T) {
	tests := []struct {
		name    string
		first   *model.Event
		second  *model.Event
		matched bool
	}{
		{"equal", &model.Event{Summary: "Foo"}, &model.Event{Summary: "Foo"}, true},
		{"missing on second", &model.Event{Summary: "Foo"}, &model.Event{}, false},
		{"different", &model.Event{Summary: "Foo"}, &model.Event{Summary: "Bar"}, false},
		{"missing on first", &model.Event{}, &model.Event{Summary: "Bar"}, true},
		{"location", &model.Event{Location: "A"}, &model.Event{Location: "B"}, false},
		{"description", &model.Event{Description: "A"}, &model.Event{Description: "A"}, true},
		{"class", &model.Event{Class: model.ClassPrivate}, &model.Event{Class: model.ClassPublic}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Compare([]*model.Event{tt.first}, []*model.Event{tt.second})
			if tt.matched {
				assert.Empty(t, res.Removed)
				assert.Empty(t, res.Added)
			} else {
				assert.Len(t, res.Removed, 1)
				assert.Len(t, res.Added, 1)
			}
		})
	}
}

func TestCompareEndAndDuration(t *testing.T) {
	first := &model.Event{Start: at(10), End: timePtr(at(11))}

	sameEnd := &model.Event{Start: at(10), End: timePtr(at(11))}
	assert.True(t, Equivalent(first, sameEnd))

	oneHour := &model.Event{Start: at(10), Duration: durPtr(time.Hour)}
	assert.True(t, Equivalent(first, oneHour))
	assert.True(t, Equivalent(oneHour, first))

	twoHours := &model.Event{Start: at(10), Duration: durPtr(2 * time.Hour)}
	res := Compare([]*model.Event{first}, []*model.Event{twoHours})
	assert.Equal(t, []*model.Event{first}, res.Removed)
	assert.Equal(t, []*model.Event{twoHours}, res.Added)

	assert.False(t, Equivalent(first, &model.Event{Start: at(10)}))
	assert.True(t, Equivalent(&model.Event{Start: at(10)}, first))
}

func TestCompareRule(t *testing.T) {
	daily := func(count int) *model.Event {
		return &model.Event{Start: at(10), Rule: &model.Rule{Freq: model.Daily, Interval: 1, Count: count}}
	}
	assert.True(t, Equivalent(daily(3), daily(3)))
	assert.False(t, Equivalent(daily(3), daily(4)))
	assert.False(t, Equivalent(daily(3), &model.Event{Start: at(10)}))

	list := &model.Event{Start: at(10), Dates: []time.Time{at(10).AddDate(0, 0, 1), at(10).AddDate(0, 0, 2)}}
	assert.True(t, Equivalent(daily(3), list))
	assert.True(t, Equivalent(list, daily(3)))
	assert.False(t, Equivalent(list, &model.Event{Start: at(10)}))
}

func TestCompareZones(t *testing.T) {
	plus2 := time.FixedZone("P2", 2*3600)
	utc := &model.Event{Start: at(10)}
	shifted := &model.Event{Start: time.Date(2001, 1, 1, 12, 0, 0, 0, plus2)}
	assert.True(t, Equivalent(utc, shifted))

	floating := &model.Event{Start: time.Date(2001, 1, 1, 10, 0, 0, 0, plus2), Floating: true}
	assert.True(t, Equivalent(utc, floating))
	assert.False(t, Equivalent(shifted, floating))

	allDay := &model.Event{Start: time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC), AllDay: true}
	assert.False(t, Equivalent(allDay, &model.Event{Start: time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)}))
}

func TestCompareAddedAndRemoved(t *testing.T) {
	foo := &model.Event{Summary: "Foo"}

	res := Compare(nil, []*model.Event{foo})
	assert.Equal(t, []*model.Event{foo}, res.Added)
	assert.Equal(t, []int{0}, res.AddedIndex)
	assert.Empty(t, res.Removed)

	res = Compare([]*model.Event{foo}, nil)
	assert.Empty(t, res.Added)
	assert.Equal(t, []*model.Event{foo}, res.Removed)
	assert.Equal(t, []int{0}, res.RemovedIndex)
}

func TestCompareFirstMatchWins(t *testing.T) {
	a1 := &model.Event{Summary: "A"}
	a2 := &model.Event{Summary: "A"}
	b := &model.Event{Summary: "B"}

	res := Compare([]*model.Event{a1, b, a2}, []*model.Event{{Summary: "A"}, {Summary: "A"}, {Summary: "A"}})
	assert.Equal(t, []Match{{First: 0, Second: 0}, {First: 2, Second: 1}}, res.Matches)
	assert.Equal(t, []int{2}, res.AddedIndex)
	assert.Equal(t, []*model.Event{b}, res.Removed)
}

const doc = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:test\r\n" +
	"BEGIN:VEVENT\r\nUID:1\r\nDTSTART:20010101T100000Z\r\nDTEND:20010101T110000Z\r\nSUMMARY:One\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nUID:2\r\nDTSTART;VALUE=DATE:20010105\r\nRRULE:FREQ=WEEKLY;COUNT=3\r\nSUMMARY:Two\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nUID:3\r\nDTSTART:20010102T090000\r\nDURATION:PT30M\r\nSUMMARY:Three\r\nLOCATION:Home\r\nEND:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func parseDoc(t *testing.T, s string) []*model.Event {
	t.Helper()
	cal, err := ics.Parse(strings.NewReader(s))
	require.NoError(t, err)
	events, _, err := ics.Events(cal, time.UTC)
	require.NoError(t, err)
	return events
}

func TestCompareDocumentWithItself(t *testing.T) {
	first := parseDoc(t, doc)
	second := parseDoc(t, doc)
	require.Len(t, first, 3)

	res := Compare(first, second)
	assert.Empty(t, res.Removed)
	assert.Empty(t, res.Added)
	assert.Len(t, res.Matches, 3)
}

func TestCompareDocumentChange(t *testing.T) {
	first := parseDoc(t, doc)
	second := parseDoc(t, strings.Replace(doc, "DURATION:PT30M", "DURATION:PT45M", 1))

	res := Compare(first, second)
	require.Len(t, res.Removed, 1)
	require.Len(t, res.Added, 1)
	assert.Equal(t, "Three", res.Removed[0].Summary)
	assert.Equal(t, 2, res.AddedIndex[0])
}
