package recur

import (
	"sort"
	"time"

	"remindcal/internal/model"
)

// Kind tags the shape chosen by Infer.
type Kind int

const (
	Single Kind = iota
	Daily
	Weekly
	DateRange
	ExplicitDates
)

func (k Kind) String() string {
	switch k {
	case Single:
		return "single"
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case DateRange:
		return "date-range"
	case ExplicitDates:
		return "explicit-dates"
	default:
		return "unknown"
	}
}

// Inference describes how a list of occurrences is best expressed.
type Inference struct {
	Kind Kind

	// Step is in days for Daily and in weeks for Weekly.
	Step  int
	Count int

	// End is the exclusive end of a DateRange.
	End time.Time

	// Dates holds every occurrence, sorted and unique.
	Dates []time.Time
}

// Infer decides whether dates follow a uniform whole-day interval.
// Dates must be homogeneous: all date-only (allDay) or all timed.
func Infer(dates []time.Time, allDay bool) Inference {
	sorted := make([]time.Time, len(dates))
	copy(sorted, dates)
	if allDay {
		for i := range sorted {
			sorted[i] = model.Date(sorted[i])
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	inf := Inference{Dates: normalize(sorted, allDay)}
	ds := inf.Dates
	if len(ds) < 2 {
		inf.Kind = Single
		inf.Count = len(ds)
		return inf
	}

	interval, ok := dayStep(ds[0], ds[1], allDay)
	if !ok {
		inf.Kind = ExplicitDates
		return inf
	}
	for i := 2; i < len(ds); i++ {
		step, ok := dayStep(ds[i-1], ds[i], allDay)
		if !ok || step != interval {
			inf.Kind = ExplicitDates
			return inf
		}
	}

	inf.Count = len(ds)
	switch {
	case interval > 0 && interval%7 == 0:
		inf.Kind = Weekly
		inf.Step = interval / 7
	case interval > 1:
		inf.Kind = Daily
		inf.Step = interval
	case interval == 1 && !allDay:
		inf.Kind = Daily
		inf.Step = 1
	case interval == 1:
		inf.Kind = DateRange
		inf.End = ds[len(ds)-1].Add(day)
	default:
		inf.Kind = ExplicitDates
		inf.Count = 0
	}
	return inf
}

// dayStep returns the whole-day distance from a to b. Timed values only
// have a whole-day distance when their wall clocks agree.
func dayStep(a, b time.Time, allDay bool) (int, bool) {
	if allDay {
		return days(a, b), true
	}
	b = b.In(a.Location())
	ah, am, as := a.Clock()
	bh, bm, bs := b.Clock()
	if ah != bh || am != bm || as != bs {
		return 0, false
	}
	return days(a, b), true
}

// Apply writes the inferred recurrence into ev. Start is set to the
// first occurrence.
func (inf Inference) Apply(ev *model.Event) {
	if len(inf.Dates) == 0 {
		return
	}
	ev.Start = inf.Dates[0]
	ev.Rule = nil
	ev.Dates = nil

	switch inf.Kind {
	case Daily:
		ev.Rule = &model.Rule{Freq: model.Daily, Interval: inf.Step, Count: inf.Count}
	case Weekly:
		ev.Rule = &model.Rule{Freq: model.Weekly, Interval: inf.Step, Count: inf.Count}
	case DateRange:
		end := inf.End
		ev.End = &end
		ev.Duration = nil
	case ExplicitDates:
		if len(inf.Dates) > 1 {
			ev.Dates = append([]time.Time(nil), inf.Dates[1:]...)
		}
	}
}
