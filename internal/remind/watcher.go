package remind

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "remindcal/internal/log"
)

// Invalidator is notified when a watched file changes.
type Invalidator interface {
	Invalidate()
}

// Watcher invalidates a Manager when one of its files changes on disk.
type Watcher struct {
	target   Invalidator
	watcher  *fsnotify.Watcher
	debounce time.Duration
	files    map[string]bool
	dirs     map[string]bool
}

// NewWatcher creates a watcher notifying target.
func NewWatcher(target Invalidator) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		target:   target,
		watcher:  fw,
		debounce: 100 * time.Millisecond,
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
	}, nil
}

// Watch adds files. Their directories are watched so that editors that
// replace files by rename are noticed too.
func (w *Watcher) Watch(files ...string) error {
	for _, f := range files {
		if f == Stdin || f == "" {
			continue
		}
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		w.files[abs] = true
		dir := filepath.Dir(abs)
		if w.dirs[dir] {
			continue
		}
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = true
	}
	return nil
}

// Run blocks until ctx is done, invalidating the target at most once
// per debounce interval.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	var last time.Time
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !w.files[abs] {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				pending = true
				last = time.Now()
			}

		case <-ticker.C:
			if pending && time.Since(last) >= w.debounce {
				pending = false
				appLog.Debug("reminder file changed; invalidating collection")
				w.target.Invalidate()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			appLog.Warn("file watcher error", "err", err)
		}
	}
}
