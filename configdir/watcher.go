package configdir

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// DefaultDebounce is the quiet period used when WatcherOptions.Debounce
// is not set.
const DefaultDebounce = 300 * time.Millisecond

// ErrWatcherRunning is returned when Watch is called more than once.
var ErrWatcherRunning = errors.New("watcher already running")

type WatcherOptions struct {

	// Root is the directory watched recursively.
	Root string

	// Debounce is the quiet period after the last change before the
	// reload is triggered.
	Debounce time.Duration

	// Extensions of the watched files. Defaults to DefaultExtensions.
	Extensions []string
}

// Watcher triggers a reload when the config files of a directory tree
// change. Bursts of changes trigger a single reload.
type Watcher struct {
	options WatcherOptions
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	running bool
	timer   *time.Timer
	closed  bool
}

// NewWatcher creates a watcher. Watching starts with Watch.
func NewWatcher(o WatcherOptions) (*Watcher, error) {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}

	o.Extensions = normalizeExtensions(o.Extensions)
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{options: o, watcher: fw}, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if path != root && hidden(d.Name()) {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", path, err)
		}

		log.Debugf("watching config directory %s", path)
		return nil
	})
}

func (w *Watcher) relevant(e fsnotify.Event) bool {
	if e.Op == fsnotify.Chmod || hidden(filepath.Base(e.Name)) {
		return false
	}

	// new and removed directories change the tree
	if filepath.Ext(e.Name) == "" {
		return true
	}

	x := strings.ToLower(strings.TrimPrefix(filepath.Ext(e.Name), "."))
	for _, ext := range w.options.Extensions {
		if x == ext {
			return true
		}
	}

	return false
}

func (w *Watcher) trigger(reload func() error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	if w.timer != nil {
		w.timer.Stop()
	}

	w.timer = time.AfterFunc(w.options.Debounce, func() {
		log.Infof("reloading configuration from %s", w.options.Root)
		if err := reload(); err != nil {
			log.Errorf("failed to reload configuration: %v", err)
		}
	})
}

// Watch blocks until the context is done or the watcher is closed, and
// calls reload after the watched files changed. Reload errors are logged.
func (w *Watcher) Watch(ctx context.Context, reload func() error) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrWatcherRunning
	}

	w.running = true
	w.mu.Unlock()

	if err := w.addTree(w.options.Root); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			if !w.relevant(e) {
				continue
			}

			log.Debugf("config change detected: %s %s", e.Op, e.Name)
			if e.Has(fsnotify.Create) {
				if fi, err := os.Stat(e.Name); err == nil && fi.IsDir() {
					if err := w.addTree(e.Name); err != nil {
						log.Errorf("%v", err)
					}
				}
			}

			w.trigger(reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}

			log.Errorf("config watcher error: %v", err)
		}
	}
}

// Close stops watching and cancels the pending reload.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}

	w.mu.Unlock()
	return w.watcher.Close()
}
