// Package settingswatch reports edits of the settings file made outside the
// running instance.
package settingswatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"pkt.systems/qermital/internal/debounce"
	"pkt.systems/pslog"
)

// DefaultDelay coalesces the several events an editor or an atomic rename
// produces for one save.
const DefaultDelay = 200 * time.Millisecond

// Watcher watches the directory holding the settings file so that atomic
// replacements are seen.
type Watcher struct {
	path    string
	changed func()
	watcher *fsnotify.Watcher
	bounce  *debounce.Debouncer[string]
}

// New creates a watcher for path. changed runs once per settled burst of
// writes, on the debouncer's goroutine.
func New(path string, delay time.Duration, changed func()) (*Watcher, error) {
	if delay <= 0 {
		delay = DefaultDelay
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}
	w := &Watcher{path: filepath.Clean(path), changed: changed, watcher: fw}
	w.bounce = debounce.New(delay, func(string) {
		if w.changed != nil {
			w.changed()
		}
	})
	return w, nil
}

// Run forwards file events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	log := pslog.Ctx(ctx).With("path", w.path)
	defer func() {
		w.bounce.Stop()
		_ = w.watcher.Close()
	}()
	log.Debug("settings watch start")
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			log.Trace("settings watch event", "op", event.Op.String())
			w.bounce.Notify(w.path)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.bounce.Notify(w.path)
				continue
			}
			log.Warn("settings watch failed", "err", err)
		}
	}
}
