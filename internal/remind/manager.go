package remind

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/robfig/cron/v3"

	"remindcal/internal/ics"
	appLog "remindcal/internal/log"
	"remindcal/internal/metrics"
	"remindcal/internal/model"
)

const (
	// DefaultMonths is the number of months remind computes.
	DefaultMonths = 15
	// DefaultWeeksBack is how far before today the window starts.
	DefaultWeeksBack = 12
)

// ErrUnknownFile means a mutation named a file that is not part of the
// tracked set.
var ErrUnknownFile = errors.New("remind: file not tracked")

// Option configures a Manager.
type Option func(*Manager)

// WithZone sets the zone of the reminder files.
func WithZone(loc *time.Location) Option {
	return func(m *Manager) {
		if loc != nil {
			m.zone = loc
		}
	}
}

// WithHost sets the identifier suffix.
func WithHost(host string) Option {
	return func(m *Manager) {
		if host != "" {
			m.host = host
		}
	}
}

// WithWindow fixes the start date and month count passed to remind. A
// zero start means DefaultWeeksBack weeks before the current day.
func WithWindow(start time.Time, months int) Option {
	return func(m *Manager) {
		m.start = start
		if months > 0 {
			m.months = months
		}
	}
}

// WithWeeksBack sets the distance of a floating window start.
func WithWeeksBack(weeks int) Option {
	return func(m *Manager) {
		if weeks >= 0 {
			m.weeksBack = weeks
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRenderOptions sets the options used for lines written by Append
// and Replace.
func WithRenderOptions(opts Options) Option {
	return func(m *Manager) { m.render = opts }
}

// WithCalendarOptions sets how events are materialised as VEVENTs.
func WithCalendarOptions(opts ics.Options) Option {
	return func(m *Manager) { m.calOpts = opts }
}

// WithMetrics records reloads and mutations.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// Manager owns the event collection of one reminder file and every file
// it includes. A single mutex guards reloads and file mutations.
type Manager struct {
	mu sync.Mutex

	file      string
	tool      Tool
	zone      *time.Location
	host      string
	start     time.Time
	months    int
	weeksBack int
	now       func() time.Time
	render    Options
	calOpts   ics.Options
	metrics   *metrics.Metrics
	daily     *cron.SpecSchedule

	coll     Collection
	files    []string
	loaded   bool
	stale    bool
	snapshot time.Time
	loadedAt time.Time
}

// NewManager creates a Manager for file. Nothing is loaded until the
// first read.
func NewManager(file string, tool Tool, opts ...Option) *Manager {
	m := &Manager{
		file:      file,
		tool:      tool,
		zone:      time.Local,
		host:      DefaultHost(),
		months:    DefaultMonths,
		weeksBack: DefaultWeeksBack,
		now:       time.Now,
		calOpts:   ics.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(m)
	}

	sched, err := cron.ParseStandard("@daily")
	if err == nil {
		if spec, ok := sched.(*cron.SpecSchedule); ok {
			spec.Location = m.zone
			m.daily = spec
		}
	}
	return m
}

// File returns the root reminder file.
func (m *Manager) File() string {
	return m.file
}

// Zone returns the zone of the reminder files.
func (m *Manager) Zone() *time.Location {
	return m.zone
}

// Invalidate forces a reload before the next read.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.stale = true
	m.mu.Unlock()
}

// Files returns every tracked file.
func (m *Manager) Files(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.refreshLocked(ctx); err != nil {
		return nil, err
	}
	return append([]string(nil), m.files...), nil
}

// IDs returns the identifiers in file, or in every file when file is
// empty.
func (m *Manager) IDs(ctx context.Context, file string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkFileLocked(ctx, file); err != nil {
		return nil, err
	}
	ids := make([]string, 0)
	for f, events := range m.coll {
		if file != "" && f != file {
			continue
		}
		for uid := range events {
			ids = append(ids, uid)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Events returns the events of file, or of every file when file is
// empty, ordered by start.
func (m *Manager) Events(ctx context.Context, file string) ([]*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkFileLocked(ctx, file); err != nil {
		return nil, err
	}
	merged := make(map[string]*model.Event)
	for f, events := range m.coll {
		if file != "" && f != file {
			continue
		}
		for uid, ev := range events {
			merged[uid] = ev
		}
	}
	return sortedEvents(merged), nil
}

// Get returns the calendar holding the single event uid of file and
// its etag. An empty file searches every tracked file.
func (m *Manager) Get(ctx context.Context, file, uid string) (*ical.Calendar, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.refreshLocked(ctx); err != nil {
		return nil, "", err
	}
	var ev *model.Event
	for f, events := range m.coll {
		if file != "" && f != file {
			continue
		}
		if e, ok := events[uid]; ok {
			ev = e
			break
		}
	}
	if ev == nil {
		return nil, "", fmt.Errorf("%w: %s", ErrEventNotFound, uid)
	}
	cal, err := ics.NewCalendar([]*model.Event{ev}, m.now(), m.calOpts)
	if err != nil {
		return nil, "", err
	}
	return cal, ics.Etag(cal), nil
}

// All returns the events of file, or of every tracked file when file is
// empty, as one calendar.
func (m *Manager) All(ctx context.Context, file string) (*ical.Calendar, error) {
	events, err := m.Events(ctx, file)
	if err != nil {
		return nil, err
	}
	return ics.NewCalendar(events, m.now(), m.calOpts)
}

// Append renders the events of cal at the end of file and returns the
// identifier of the first new line. An empty file means the root file.
func (m *Manager) Append(ctx context.Context, cal *ical.Calendar, file string) (string, error) {
	lines, err := m.renderCalendar(cal)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if file, err = m.trackedLocked(ctx, file); err != nil {
		return "", err
	}
	phys, err := readLines(file)
	if err != nil {
		return "", err
	}
	if err := writeLines(file, appendLines(phys, terminated(lines))); err != nil {
		m.metrics.RecordMutation("append", "error")
		return "", err
	}
	m.stale = true
	m.metrics.RecordMutation("append", "ok")
	uid := m.firstUID(lines)
	appLog.Info("reminder appended", "file", file, "uid", uid, "lines", len(lines))
	return uid, nil
}

// Remove deletes the line identified by uid from file. An unknown
// identifier is not an error.
func (m *Manager) Remove(ctx context.Context, uid, file string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, err := m.trackedLocked(ctx, file)
	if err != nil {
		return err
	}
	phys, err := readLines(file)
	if err != nil {
		return err
	}
	sl, ok := findLine(phys, HashOf(uid))
	if !ok {
		appLog.Warn("remove: identifier not found", "file", file, "uid", uid)
		m.metrics.RecordMutation("remove", "miss")
		return nil
	}
	if err := writeLines(file, splice(phys, sl, nil)); err != nil {
		m.metrics.RecordMutation("remove", "error")
		return err
	}
	m.stale = true
	m.metrics.RecordMutation("remove", "ok")
	appLog.Info("reminder removed", "file", file, "uid", uid)
	return nil
}

// Replace overwrites the line identified by uid with the events of cal
// and returns the new identifier.
func (m *Manager) Replace(ctx context.Context, uid string, cal *ical.Calendar, file string) (string, error) {
	lines, err := m.renderCalendar(cal)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if file, err = m.trackedLocked(ctx, file); err != nil {
		return "", err
	}
	phys, err := readLines(file)
	if err != nil {
		return "", err
	}
	sl, ok := findLine(phys, HashOf(uid))
	if !ok {
		m.metrics.RecordMutation("replace", "miss")
		return "", fmt.Errorf("%w: %s in %s", ErrNotFoundOnReplace, uid, file)
	}
	if err := writeLines(file, splice(phys, sl, terminated(lines))); err != nil {
		m.metrics.RecordMutation("replace", "error")
		return "", err
	}
	m.stale = true
	m.metrics.RecordMutation("replace", "ok")
	newUID := m.firstUID(lines)
	appLog.Info("reminder replaced", "file", file, "old_uid", uid, "uid", newUID)
	return newUID, nil
}

// Move deletes the line identified by uid from one file and appends it
// verbatim to another. An unknown identifier is not an error.
func (m *Manager) Move(ctx context.Context, uid, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	from, err := m.trackedLocked(ctx, from)
	if err != nil {
		return err
	}
	if to, err = m.trackedLocked(ctx, to); err != nil {
		return err
	}
	if from == to {
		return nil
	}

	src, err := readLines(from)
	if err != nil {
		return err
	}
	sl, ok := findLine(src, HashOf(uid))
	if !ok {
		appLog.Warn("move: identifier not found", "file", from, "uid", uid)
		m.metrics.RecordMutation("move", "miss")
		return nil
	}
	moved := append([]string(nil), src[sl.first:sl.last+1]...)
	if n := len(moved); !hasNewline(moved[n-1]) {
		moved[n-1] += "\n"
	}

	dst, err := readLines(to)
	if err != nil {
		return err
	}
	// Destination first: a failure afterwards duplicates the line
	// instead of losing it.
	if err := writeLines(to, appendLines(dst, moved)); err != nil {
		m.metrics.RecordMutation("move", "error")
		return err
	}
	if err := writeLines(from, splice(src, sl, nil)); err != nil {
		m.metrics.RecordMutation("move", "error")
		return err
	}
	m.stale = true
	m.metrics.RecordMutation("move", "ok")
	appLog.Info("reminder moved", "from", from, "to", to, "uid", uid)
	return nil
}

// ParseStdin runs remind on lines instead of a file and returns the
// resulting events. The collection is not touched.
func (m *Manager) ParseStdin(ctx context.Context, lines []byte) ([]*model.Event, error) {
	res, err := m.tool.Run(ctx, Stdin, lines, m.windowStart(), m.months)
	if err != nil {
		return nil, err
	}
	p := Parser{Zone: m.zone, Host: m.host}
	coll, _ := p.Parse(res.Records)
	return sortedEvents(coll[Stdin]), nil
}

func (m *Manager) renderCalendar(cal *ical.Calendar) ([]string, error) {
	events, _, err := ics.Events(cal, m.zone)
	if err != nil {
		return nil, err
	}
	r := Renderer{Zone: m.zone}
	lines, err := r.Lines(events, m.render)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrNoEvents
	}
	return lines, nil
}

// firstUID identifies the first rendered line the way a reload will,
// from its continuation-joined text.
func (m *Manager) firstUID(lines []string) string {
	logical := logicalLines(physicalLines(strings.Join(terminated(lines), "")))
	return UID(logical[0].text, m.host)
}

// trackedLocked resolves an empty file to the root file and rejects
// files outside the tracked set.
func (m *Manager) trackedLocked(ctx context.Context, file string) (string, error) {
	if file == "" {
		return m.file, nil
	}
	if file == m.file {
		return file, nil
	}
	if err := m.refreshLocked(ctx); err != nil {
		return "", err
	}
	for _, f := range m.files {
		if f == file {
			return file, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFile, file)
}

// checkFileLocked refreshes the collection and rejects a non-empty file
// outside the tracked set.
func (m *Manager) checkFileLocked(ctx context.Context, file string) error {
	if err := m.refreshLocked(ctx); err != nil {
		return err
	}
	if file == "" {
		return nil
	}
	_, err := m.trackedLocked(ctx, file)
	return err
}

func (m *Manager) refreshLocked(ctx context.Context) error {
	if !m.staleLocked() {
		return nil
	}
	return m.reloadLocked(ctx)
}

func (m *Manager) staleLocked() bool {
	if !m.loaded || m.stale {
		return true
	}
	if m.daily != nil && !m.now().Before(m.daily.Next(m.loadedAt)) {
		appLog.Debug("collection stale: day boundary crossed", "loaded_at", m.loadedAt)
		return true
	}
	for _, f := range m.files {
		if f == Stdin {
			continue
		}
		st, err := os.Stat(f)
		if err != nil {
			continue
		}
		if st.ModTime().After(m.snapshot) {
			appLog.Debug("collection stale: file modified", "file", f)
			return true
		}
	}
	return false
}

func (m *Manager) reloadLocked(ctx context.Context) error {
	began := time.Now()
	loadedAt := m.now()

	res, err := m.tool.Run(ctx, m.file, nil, m.windowStart(), m.months)
	if err != nil {
		m.metrics.RecordReload(false, time.Since(began).Seconds(), 0)
		appLog.Error("collection reload failed", err, "file", m.file)
		return err
	}

	p := Parser{Zone: m.zone, Host: m.host}
	coll, errs := p.Parse(res.Records)
	if coll[m.file] == nil {
		coll[m.file] = make(map[string]*model.Event)
	}
	var snapshot time.Time
	for _, f := range res.Files {
		if coll[f] == nil {
			coll[f] = make(map[string]*model.Event)
		}
		if st, err := os.Stat(f); err == nil && st.ModTime().After(snapshot) {
			snapshot = st.ModTime()
		}
	}
	files := make([]string, 0, len(coll))
	for f := range coll {
		files = append(files, f)
	}
	sort.Strings(files)

	m.coll = coll
	m.files = files
	m.snapshot = snapshot
	m.loadedAt = loadedAt
	m.loaded = true
	m.stale = false

	m.metrics.RecordReload(true, time.Since(began).Seconds(), coll.Len())
	appLog.Info("collection reloaded",
		"file", m.file,
		"files", len(files),
		"events", coll.Len(),
		"skipped", len(errs),
	)
	return nil
}

// windowStart is the fixed start, or the current day minus weeksBack.
func (m *Manager) windowStart() time.Time {
	if !m.start.IsZero() {
		return m.start
	}
	now := m.now().In(m.zone)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, m.zone)
	return today.AddDate(0, 0, -7*m.weeksBack)
}

func hasNewline(s string) bool {
	return len(s) > 0 && s[len(s)-1] == '\n'
}
