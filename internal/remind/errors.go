package remind

import (
	"errors"
	"strings"
)

var (
	// ErrToolUnavailable means the remind binary could not be started.
	ErrToolUnavailable = errors.New("remind: tool unavailable")
	// ErrToolRejectedInput means remind reported a syntax or option error.
	ErrToolRejectedInput = errors.New("remind: input rejected")
	// ErrOutputMalformed means remind's JSON output could not be decoded.
	ErrOutputMalformed = errors.New("remind: output malformed")
	// ErrNotFoundOnReplace means no line matched the identifier to replace.
	ErrNotFoundOnReplace = errors.New("remind: identifier not found on replace")
	// ErrEventNotFound means no event with the identifier is loaded.
	ErrEventNotFound = errors.New("remind: event not found")
	// ErrMissingStart means an event has no start date to render.
	ErrMissingStart = errors.New("remind: event has no start date")
	// ErrNoEvents means a calendar held no event that could be rendered.
	ErrNoEvents = errors.New("remind: calendar has no convertible events")
)

// ToolError is returned by a Tool when the remind invocation fails. Kind
// is one of the ErrTool* / ErrOutputMalformed sentinels.
type ToolError struct {
	Kind   error
	Msg    string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		b.WriteString(" (stderr: ")
		b.WriteString(s)
		b.WriteString(")")
	}
	return b.String()
}

func (e *ToolError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
