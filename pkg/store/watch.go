package store

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/coldsentry-io/coldsentry/pkg/log"
)

// Watch invokes fn whenever the record changes, until ctx is cancelled.
// Change detection is fsnotify on the record's directory (the file itself is
// replaced by rename on every save), backed by a coarse ticker for
// filesystems that drop events. fn runs on the watcher goroutine; it must
// not block for long.
func (s *Store) Watch(ctx context.Context, interval time.Duration, fn func()) error {
	if interval <= 0 {
		interval = time.Second
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: the record file may not exist yet, and saves
	// replace it wholesale.
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name == s.path && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				fn()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("store watcher error", "path", s.path, "err", err)
		case <-ticker.C:
			fn()
		}
	}
}
