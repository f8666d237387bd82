// Package fsnotify implements the ports.Watcher interface using github.com/fsnotify/fsnotify.
// It watches a grammar directory, passes through only grammar definition files
// and debounces rapid events (editors often trigger multiple writes per save).
package fsnotify

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/corey/hilite/internal/logging"
	"github.com/corey/hilite/internal/logging/logfields"
)

var log = logging.DefaultLogger.WithField(logfields.LogSubsys, "fsnotify")

// Grammar file extensions.
var grammarExts = map[string]bool{
	".yaml": true,
	".yml":  true,
}

// DebounceInterval is how long a file must stay quiet before its callback
// fires. Every event for the file restarts the wait.
const DebounceInterval = 50 * time.Millisecond

// Watcher implements ports.Watcher using fsnotify.
type Watcher struct {
	fw      *fsnotify.Watcher
	done    chan struct{}
	stopped bool
	mu      sync.Mutex
	pending map[string]*time.Timer // guarded by mu
}

// NewWatcher creates a new file system watcher.
func NewWatcher() (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fw:      fw,
		done:    make(chan struct{}),
		pending: make(map[string]*time.Timer),
	}, nil
}

// Watch starts monitoring dir. Grammar files are read from the top level only,
// so subdirectories are not watched.
// onChange is called with the absolute path of each changed grammar file.
func (w *Watcher) Watch(dir string, onChange func(filePath string)) error {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &os.PathError{Op: "watch", Path: absPath, Err: os.ErrInvalid}
	}
	if err := w.fw.Add(absPath); err != nil {
		return err
	}
	log.WithField(logfields.Path, absPath).Debug("Watching grammar directory")

	go func() {
		for {
			select {
			case event, ok := <-w.fw.Events:
				if !ok {
					return
				}
				path := event.Name
				if !IsGrammarFile(path) {
					continue
				}

				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
					event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					w.schedule(path, onChange)
				}

			case err, ok := <-w.fw.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("Watcher error")

			case <-w.done:
				return
			}
		}
	}()

	return nil
}

// schedule (re)starts the quiet-period timer for path. The callback runs once
// the file has seen no event for DebounceInterval, so it observes the final
// content of a burst such as truncate-then-write.
func (w *Watcher) schedule(path string, onChange func(string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Reset(DebounceInterval)
		return
	}
	w.pending[path] = time.AfterFunc(DebounceInterval, func() {
		w.mu.Lock()
		delete(w.pending, path)
		stopped := w.stopped
		w.mu.Unlock()
		if !stopped {
			onChange(path)
		}
	})
}

// Stop ends monitoring and releases all resources. Pending callbacks are
// dropped. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	close(w.done)
	return w.fw.Close()
}

// IsGrammarFile reports whether path names a grammar definition. Hidden files
// and editor backups are rejected.
func IsGrammarFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	return grammarExts[strings.ToLower(filepath.Ext(base))]
}
