package remind

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	appLog "remindcal/internal/log"
)

// Stdin is the file name that makes remind read reminders from stdin.
const Stdin = "-"

// Result is the outcome of one remind invocation.
type Result struct {
	Records []Record
	// Files lists every file remind read, including INCLUDEd ones.
	Files []string
}

// Tool computes reminder occurrences for a file.
type Tool interface {
	Run(ctx context.Context, file string, stdin []byte, start time.Time, months int) (*Result, error)
}

var (
	cachingFile = regexp.MustCompile("Caching file `(.*)' in memory")
	cantOpen    = regexp.MustCompile(`Can't open file: (.*)`)
)

// ExecTool runs the remind binary.
type ExecTool struct {
	// Binary is the remind executable; "remind" when empty.
	Binary string
}

// NewExecTool returns a Tool running binary.
func NewExecTool(binary string) *ExecTool {
	return &ExecTool{Binary: binary}
}

type jsonMonth struct {
	Entries []jsonEntry `json:"entries"`
}

type jsonEntry struct {
	Date         string            `json:"date"`
	Filename     string            `json:"filename"`
	Lineno       int               `json:"lineno"`
	LinenoStart  int               `json:"lineno_start"`
	Time         *int              `json:"time"`
	Duration     *int              `json:"duration"`
	Tags         string            `json:"tags"`
	Body         string            `json:"body"`
	CalendarBody string            `json:"calendar_body"`
	Info         map[string]string `json:"info"`
	TZ           string            `json:"tz"`
}

// Run invokes remind -ppp for months starting at start.
func (t *ExecTool) Run(ctx context.Context, file string, stdin []byte, start time.Time, months int) (*Result, error) {
	bin := t.Binary
	if bin == "" {
		bin = "remind"
	}
	if months < 1 {
		months = 1
	}
	args := []string{fmt.Sprintf("-ppp%d", months), "-b2", "-y", "-df", file, start.Format("2006-01-02")}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	appLog.Debug("remind run", "binary", bin, "file", file, "start", start.Format("2006-01-02"), "months", months)

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
			return nil, &ToolError{Kind: ErrToolUnavailable, Msg: bin, Err: err}
		case errors.As(err, &exitErr):
			msg := "remind reported an error"
			if strings.Contains(stderr.String(), "Unknown option") {
				msg = "remind does not support -ppp; a newer remind version is required"
			}
			return nil, &ToolError{Kind: ErrToolRejectedInput, Msg: msg, Stderr: stderr.String(), Err: err}
		default:
			return nil, &ToolError{Kind: ErrToolUnavailable, Msg: bin, Err: err}
		}
	}

	res, err := decodeOutput(stdout.Bytes(), stderr.String(), file, stdin)
	if err != nil {
		return nil, err
	}
	appLog.Debug("remind run completed", "records", len(res.Records), "files", len(res.Files))
	return res, nil
}

// decodeOutput turns remind's JSON and -df diagnostics into a Result.
// Source lines are read from the referenced files, or from stdin for
// piped input.
func decodeOutput(stdout []byte, stderr, file string, stdin []byte) (*Result, error) {
	res := &Result{}
	seen := make(map[string]bool)
	addFile := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			res.Files = append(res.Files, name)
		}
	}
	addFile(file)
	for _, m := range cachingFile.FindAllStringSubmatch(stderr, -1) {
		addFile(m[1])
	}
	for _, m := range cantOpen.FindAllStringSubmatch(stderr, -1) {
		appLog.Warn("remind could not open file", "file", strings.TrimSpace(m[1]))
	}

	if len(bytes.TrimSpace(stdout)) == 0 {
		return res, nil
	}
	var months []jsonMonth
	if err := json.Unmarshal(stdout, &months); err != nil {
		return nil, &ToolError{Kind: ErrOutputMalformed, Err: err}
	}

	sources := make(map[string][]sourceLine)
	unreadable := make(map[string]bool)
	for _, m := range months {
		for _, e := range m.Entries {
			addFile(e.Filename)
			if unreadable[e.Filename] {
				continue
			}
			lines, ok := sources[e.Filename]
			if !ok {
				var content []byte
				var err error
				if e.Filename == Stdin {
					content = stdin
				} else {
					content, err = os.ReadFile(e.Filename)
				}
				if err != nil {
					appLog.Warn("source file unreadable, treating as empty", "file", e.Filename, "err", err)
					unreadable[e.Filename] = true
					continue
				}
				lines = logicalLines(physicalLines(string(content)))
				sources[e.Filename] = lines
			}

			rec := Record{
				File:         e.Filename,
				Line:         e.Lineno,
				LineStart:    e.LinenoStart,
				Date:         e.Date,
				Time:         e.Time,
				Duration:     e.Duration,
				Tags:         e.Tags,
				Body:         e.Body,
				CalendarBody: e.CalendarBody,
				Info:         e.Info,
				TZ:           e.TZ,
			}
			if rec.LineStart == 0 {
				rec.LineStart = rec.Line
			}
			if sl, ok := logicalAt(lines, rec.Line); ok {
				rec.Source = sl.text
			}
			res.Records = append(res.Records, rec)
		}
	}
	return res, nil
}
