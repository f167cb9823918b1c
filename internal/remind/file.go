package remind

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// readLines returns the physical lines of path. A missing file reads as
// empty.
func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return physicalLines(string(data)), nil
}

// findLine returns the logical line whose hash is hash.
func findLine(phys []string, hash string) (sourceLine, bool) {
	for _, sl := range logicalLines(phys) {
		if LineHash(sl.text) == hash {
			return sl, true
		}
	}
	return sourceLine{}, false
}

// splice replaces phys[first:last+1] with repl.
func splice(phys []string, sl sourceLine, repl []string) []string {
	out := make([]string, 0, len(phys)-(sl.last-sl.first+1)+len(repl))
	out = append(out, phys[:sl.first]...)
	out = append(out, repl...)
	return append(out, phys[sl.last+1:]...)
}

// terminated appends a newline to every rendered line.
func terminated(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l + "\n"
	}
	return out
}

// appendLines adds lines after phys, terminating an unterminated last
// line first.
func appendLines(phys, lines []string) []string {
	out := make([]string, 0, len(phys)+len(lines))
	out = append(out, phys...)
	if n := len(out); n > 0 && !strings.HasSuffix(out[n-1], "\n") {
		out[n-1] += "\n"
	}
	return append(out, lines...)
}

// writeLines replaces path atomically via a temp file + rename, keeping
// the mode of an existing file.
func writeLines(path string, phys []string) error {
	mode := fs.FileMode(0o644)
	if st, err := os.Stat(path); err == nil {
		mode = st.Mode().Perm()
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".remindcal-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(strings.Join(phys, "")); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
