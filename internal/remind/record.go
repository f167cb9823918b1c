package remind

import "strings"

// Record is one occurrence of a reminder as computed by remind.
type Record struct {
	File string
	// Line is the last physical line of the reminder, LineStart the first
	// one when the reminder is continued with a trailing backslash.
	Line      int
	LineStart int
	// Source is the logical source line the reminder was read from.
	Source string

	// Date is YYYY-MM-DD or YYYY/MM/DD.
	Date string
	// Time and Duration are minutes; nil for untimed reminders.
	Time     *int
	Duration *int

	Tags         string
	Body         string
	CalendarBody string
	Info         map[string]string
	TZ           string
}

// sourceLine is one logical line of a reminder file.
type sourceLine struct {
	// first and last are zero-based physical line indexes, inclusive.
	first, last int
	text        string
}

// physicalLines splits content keeping each line terminator, so that
// untouched lines can be written back verbatim.
func physicalLines(content string) []string {
	lines := strings.SplitAfter(content, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

// logicalLines joins backslash-continued physical lines.
func logicalLines(phys []string) []sourceLine {
	out := make([]sourceLine, 0, len(phys))
	for i := 0; i < len(phys); i++ {
		sl := sourceLine{first: i}
		var b strings.Builder
		for ; i < len(phys); i++ {
			line := strings.TrimRight(phys[i], "\r\n")
			if strings.HasSuffix(line, `\`) && i+1 < len(phys) {
				b.WriteString(strings.TrimSuffix(line, `\`))
				continue
			}
			b.WriteString(line)
			break
		}
		sl.last = i
		sl.text = b.String()
		out = append(out, sl)
	}
	return out
}

// logicalAt returns the logical line covering the 1-based physical line
// number lineno.
func logicalAt(lines []sourceLine, lineno int) (sourceLine, bool) {
	idx := lineno - 1
	for _, l := range lines {
		if idx >= l.first && idx <= l.last {
			return l, true
		}
	}
	return sourceLine{}, false
}
