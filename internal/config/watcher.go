package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Zopieux/i3blocks/internal/logging"
)

// debounce collapses editor write bursts into a single reload.
const debounce = 250 * time.Millisecond

// Watcher reports writes to the configuration file. At most one reload is
// pending at a time, so a busy consumer never blocks the filesystem loop.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	reload  chan struct{}
	log     *logging.Logger
}

func NewWatcher(path string, log *logging.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	// Watch the directory, not the file: editors replace the file by
	// rename, which would silently detach a watch on the file itself.
	abs, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:    abs,
		watcher: w,
		reload:  make(chan struct{}, 1),
		log:     log,
	}, nil
}

// Reload delivers one event per debounced burst of config writes.
func (w *Watcher) Reload() <-chan struct{} {
	return w.reload
}

// Run processes filesystem events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	var timer *time.Timer
	var fire <-chan time.Time

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
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.log.Debugf("fsnotify event=%s file=%s", event.Op, event.Name)
				if timer == nil {
					timer = time.NewTimer(debounce)
					fire = timer.C
				} else {
					timer.Reset(debounce)
				}
			}

		case <-fire:
			timer = nil
			fire = nil
			select {
			case w.reload <- struct{}{}:
			default:
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Errorf("fsnotify error=%v", err)
		}
	}
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}
