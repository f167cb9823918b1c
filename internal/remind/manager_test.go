package remind

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindcal/internal/ics"
	"remindcal/internal/model"
	"remindcal/internal/recur"
)

// fakeTool reads "REM <Mon D YYYY> [AT H:MM] ... MSG body" lines and
// follows INCLUDE lines, producing one record per reminder.
type fakeTool struct {
	runs int
	err  error
}

func (f *fakeTool) Run(_ context.Context, file string, stdin []byte, _ time.Time, _ int) (*Result, error) {
	f.runs++
	if f.err != nil {
		return nil, f.err
	}
	res := &Result{}
	queue := []string{file}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		res.Files = append(res.Files, name)

		var content []byte
		if name == Stdin {
			content = stdin
		} else {
			var err error
			if content, err = os.ReadFile(name); err != nil {
				continue
			}
		}
		for i, sl := range logicalLines(physicalLines(string(content))) {
			fields := strings.Fields(sl.text)
			if len(fields) == 2 && fields[0] == "INCLUDE" {
				queue = append(queue, fields[1])
				continue
			}
			if rec, ok := fakeRecord(name, sl, i); ok {
				res.Records = append(res.Records, rec)
			}
		}
	}
	return res, nil
}

func fakeRecord(file string, sl sourceLine, n int) (Record, bool) {
	fields := strings.Fields(sl.text)
	msg := strings.Index(sl.text, " MSG ")
	if len(fields) < 5 || fields[0] != "REM" || msg < 0 {
		return Record{}, false
	}
	d, err := recur.ParseDate(strings.Join(fields[1:4], " "))
	if err != nil {
		return Record{}, false
	}
	rec := Record{
		File:      file,
		Line:      sl.last + 1,
		LineStart: sl.first + 1,
		Source:    sl.text,
		Date:      d.Format("2006-01-02"),
		Tags:      "__syn__" + strconv.Itoa(n),
		Body:      sl.text[msg+len(" MSG "):],
	}
	for i, f := range fields {
		if f == "AT" && i+1 < len(fields) {
			var h, m int
			if parts := strings.SplitN(fields[i+1], ":", 2); len(parts) == 2 {
				h, _ = strconv.Atoi(parts[0])
				m, _ = strconv.Atoi(parts[1])
			}
			minutes := h*60 + m
			rec.Time = &minutes
		}
	}
	return rec, true
}

type fixture struct {
	main, other string
	tool        *fakeTool
	now         time.Time
	mgr         *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		main:  filepath.Join(dir, "main.rem"),
		other: filepath.Join(dir, "other.rem"),
		tool:  &fakeTool{},
		now:   time.Date(2024, 1, 10, 12, 0, 0, 0, cet),
	}
	require.NoError(t, os.WriteFile(f.main, []byte(
		"REM Jan 5 2024 MSG First\n"+
			"REM Jan 6 2024 MSG Second\n"+
			"INCLUDE "+f.other+"\n"), 0o640))
	require.NoError(t, os.WriteFile(f.other, []byte("REM Jan 7 2024 MSG Third\n"), 0o600))

	f.mgr = NewManager(f.main, f.tool,
		WithZone(cet),
		WithHost("test"),
		WithClock(func() time.Time { return f.now }),
	)
	return f
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func calendarFor(t *testing.T, ev *model.Event) *ical.Calendar {
	t.Helper()
	cal, err := ics.NewCalendar([]*model.Event{ev}, time.Now(), ics.DefaultOptions())
	require.NoError(t, err)
	return cal
}

func TestManagerLoadAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	files, err := f.mgr.Files(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{f.main, f.other}, files)

	ids, err := f.mgr.IDs(ctx, f.main)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		UID("REM Jan 5 2024 MSG First", "test"),
		UID("REM Jan 6 2024 MSG Second", "test"),
	}, ids)

	all, err := f.mgr.IDs(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = f.mgr.IDs(ctx, "/etc/passwd")
	assert.ErrorIs(t, err, ErrUnknownFile)

	uid := UID("REM Jan 5 2024 MSG First", "test")
	cal, etag, err := f.mgr.Get(ctx, f.main, uid)
	require.NoError(t, err)
	require.Len(t, cal.Events(), 1)
	assert.Equal(t, "First", cal.Events()[0].GetProperty(ical.ComponentPropertySummary).Value)
	assert.True(t, strings.HasPrefix(etag, `"`))

	_, etag2, err := f.mgr.Get(ctx, f.main, uid)
	require.NoError(t, err)
	assert.Equal(t, etag, etag2)

	_, _, err = f.mgr.Get(ctx, f.main, "missing@test")
	assert.ErrorIs(t, err, ErrEventNotFound)

	combined, err := f.mgr.All(ctx, "")
	require.NoError(t, err)
	assert.Len(t, combined.Events(), 3)

	assert.Equal(t, 1, f.tool.runs)
}

func TestManagerStaleness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.Files(ctx)
	require.NoError(t, err)
	_, err = f.mgr.Files(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.tool.runs)

	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(f.other, future, future))
	_, err = f.mgr.Files(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.tool.runs)

	f.mgr.Invalidate()
	_, err = f.mgr.IDs(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, f.tool.runs)

	f.now = time.Date(2024, 1, 10, 23, 59, 0, 0, cet)
	_, err = f.mgr.Files(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, f.tool.runs)

	f.now = time.Date(2024, 1, 11, 0, 0, 1, 0, cet)
	_, err = f.mgr.Files(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, f.tool.runs)
}

func TestManagerToolError(t *testing.T) {
	f := newFixture(t)
	f.tool.err = &ToolError{Kind: ErrToolUnavailable, Msg: "remind"}
	_, err := f.mgr.Files(context.Background())
	assert.ErrorIs(t, err, ErrToolUnavailable)
}

func TestManagerAppend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cal := calendarFor(t, &model.Event{Start: day(2024, 1, 20), AllDay: true, Summary: "Added"})
	uid, err := f.mgr.Append(ctx, cal, "")
	require.NoError(t, err)
	assert.Equal(t, UID("REM Jan 20 2024 MSG Added", "test"), uid)
	assert.True(t, strings.HasSuffix(read(t, f.main), "INCLUDE "+f.other+"\nREM Jan 20 2024 MSG Added\n"))

	ids, err := f.mgr.IDs(ctx, f.main)
	require.NoError(t, err)
	assert.Contains(t, ids, uid)

	info, err := os.Stat(f.main)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())

	_, err = f.mgr.Append(ctx, cal, filepath.Join(t.TempDir(), "elsewhere"))
	assert.ErrorIs(t, err, ErrUnknownFile)
}

func TestManagerAppendContinuedLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mgr = NewManager(f.main, f.tool,
		WithZone(cet),
		WithHost("test"),
		WithClock(func() time.Time { return f.now }),
		WithRenderOptions(Options{Sep: " \\\n"}),
	)

	cal := calendarFor(t, &model.Event{Start: day(2024, 1, 20), AllDay: true, Summary: "Split"})
	uid, err := f.mgr.Append(ctx, cal, "")
	require.NoError(t, err)
	assert.Contains(t, read(t, f.main), "\\\n")
	assert.Equal(t, UID("REM Jan 20 2024 MSG Split", "test"), uid)

	ids, err := f.mgr.IDs(ctx, f.main)
	require.NoError(t, err)
	assert.Contains(t, ids, uid)

	uid, err = f.mgr.Replace(ctx, uid, calendarFor(t, &model.Event{Start: day(2024, 1, 21), AllDay: true, Summary: "Moved"}), f.main)
	require.NoError(t, err)
	ids, err = f.mgr.IDs(ctx, f.main)
	require.NoError(t, err)
	assert.Contains(t, ids, uid)
}

func TestManagerAppendWithoutDates(t *testing.T) {
	f := newFixture(t)
	before := read(t, f.main)

	cal := ical.NewCalendar()
	ve := cal.AddEvent("undated@host")
	ve.SetSummary("Undated")

	_, err := f.mgr.Append(context.Background(), cal, "")
	assert.ErrorIs(t, err, ErrNoEvents)
	assert.Equal(t, before, read(t, f.main))
}

func TestManagerRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := read(t, f.main)

	require.NoError(t, f.mgr.Remove(ctx, "0000@test", f.main))
	assert.Equal(t, before, read(t, f.main))

	require.NoError(t, f.mgr.Remove(ctx, UID("REM Jan 6 2024 MSG Second", "test"), f.main))
	assert.Equal(t, "REM Jan 5 2024 MSG First\nINCLUDE "+f.other+"\n", read(t, f.main))

	ids, err := f.mgr.IDs(ctx, f.main)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestManagerReplace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := read(t, f.main)
	cal := calendarFor(t, &model.Event{Start: day(2024, 1, 6), AllDay: true, Summary: "Changed"})

	_, err := f.mgr.Replace(ctx, "0000@test", cal, f.main)
	assert.ErrorIs(t, err, ErrNotFoundOnReplace)
	assert.Equal(t, before, read(t, f.main))

	old := UID("REM Jan 6 2024 MSG Second", "test")
	uid, err := f.mgr.Replace(ctx, old, cal, f.main)
	require.NoError(t, err)
	assert.NotEqual(t, old, uid)
	assert.Equal(t,
		"REM Jan 5 2024 MSG First\nREM Jan 6 2024 MSG Changed\nINCLUDE "+f.other+"\n",
		read(t, f.main))

	ids, err := f.mgr.IDs(ctx, f.main)
	require.NoError(t, err)
	assert.Contains(t, ids, uid)
	assert.NotContains(t, ids, old)
}

func TestManagerMove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := UID("REM Jan 5 2024 MSG First", "test")

	require.NoError(t, f.mgr.Move(ctx, uid, f.main, f.other))
	assert.Equal(t, "REM Jan 6 2024 MSG Second\nINCLUDE "+f.other+"\n", read(t, f.main))
	assert.Equal(t, "REM Jan 7 2024 MSG Third\nREM Jan 5 2024 MSG First\n", read(t, f.other))

	ids, err := f.mgr.IDs(ctx, f.other)
	require.NoError(t, err)
	assert.Contains(t, ids, uid)

	// unknown identifiers are ignored
	require.NoError(t, f.mgr.Move(ctx, "0000@test", f.main, f.other))
}

func TestManagerRemoveContinuedLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(f.main, []byte("REM Jan 5 2024 \\\nMSG Joined\nREM Jan 6 2024 MSG Second"), 0o600))

	require.NoError(t, f.mgr.Remove(ctx, UID("REM Jan 5 2024 MSG Joined", "test"), ""))
	assert.Equal(t, "REM Jan 6 2024 MSG Second", read(t, f.main))
}

func TestManagerParseStdin(t *testing.T) {
	f := newFixture(t)
	events, err := f.mgr.ParseStdin(context.Background(), []byte("REM Feb 1 2024 AT 9:30 MSG Piped at Home\n"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Piped", events[0].Summary)
	assert.Equal(t, "Home", events[0].Location)
	assert.True(t, events[0].Start.Equal(time.Date(2024, 2, 1, 9, 30, 0, 0, cet)))
}
