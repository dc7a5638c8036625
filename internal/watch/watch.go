// Package watch triggers re-syncs when the source tree changes. It
// registers every known directory with fsnotify and debounces event
// bursts into a single trigger.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce batches rapid event bursts (editors write several
// times per save) into one trigger.
const DefaultDebounce = 500 * time.Millisecond

// Watcher waits for changes under a set of directories.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
}

// New creates a watcher over root and the given relative directories.
func New(root string, relDirs []string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	if err := fsw.Add(root); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", root, err)
	}
	for _, rel := range relDirs {
		dir := filepath.Join(root, filepath.FromSlash(rel))
		if err := fsw.Add(dir); err != nil {
			// A directory may have vanished since the scan.
			if os.IsNotExist(err) {
				continue
			}
			fsw.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	return &Watcher{fsw: fsw, debounce: debounce}, nil
}

// Close releases the underlying watches.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Wait blocks until a change settles (no further events for the
// debounce interval) or the context ends. It returns nil on a trigger
// and the context's error on cancellation.
func (w *Watcher) Wait(ctx context.Context) error {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			return fmt.Errorf("watch: %w", err)
		case _, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("watcher closed")
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(w.debounce)
			}
		case <-fire:
			return nil
		}
	}
}
