// file: internal/watcher/watcher.go
// version: 3.0.0
// guid: b2c3d4e5-f6a7-8901-bcde-f23456789012

// Package watcher reports settled changes to audio files under the media
// folders.
package watcher

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jdfalk/media-library/internal/logger"
)

// DefaultDebounce is the default debounce period.
const DefaultDebounce = 5 * time.Second

// Callback receives the media roots that saw changes during one debounce
// window, sorted.
type Callback func(roots []string)

// Watcher monitors media folders recursively for audio file changes and
// invokes a callback once events have settled.
type Watcher struct {
	fsWatcher  *fsnotify.Watcher
	roots      []string
	extensions map[string]bool
	debounce   time.Duration
	callback   Callback
	log        *logger.Logger
	stop       chan struct{}
	stopped    chan struct{}

	mu      sync.Mutex
	timer   *time.Timer
	pending map[string]bool
	running bool
}

// New creates a Watcher for files with one of extensions. Pass 0 for
// debounce to use DefaultDebounce.
func New(callback Callback, debounce time.Duration, extensions []string, log *logger.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = logger.Nop()
	}
	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = true
	}
	return &Watcher{
		extensions: exts,
		debounce:   debounce,
		callback:   callback,
		log:        log,
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
		pending:    make(map[string]bool),
	}
}

// Start begins watching roots. Missing roots are skipped with a warning.
// It is safe to call only once.
func (w *Watcher) Start(roots ...string) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsWatcher = fsw

	for _, root := range roots {
		root = filepath.Clean(root)
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			w.log.Warnf("not watching %s: not a directory", root)
			continue
		}
		w.roots = append(w.roots, root)
		w.addRecursive(root)
	}

	go w.eventLoop()
	return nil
}

// Roots returns the folders being watched.
func (w *Watcher) Roots() []string { return slices.Clone(w.roots) }

// Stop gracefully shuts down the watcher and waits for the event loop to exit.
// A pending callback is discarded.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stop)
	if w.fsWatcher != nil {
		w.fsWatcher.Close()
	}
	<-w.stopped

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	clear(w.pending)
	w.mu.Unlock()
}

func (w *Watcher) addRecursive(root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible dirs
		}
		if d.IsDir() {
			if watchErr := w.fsWatcher.Add(path); watchErr != nil {
				w.log.Warnf("cannot watch %s: %v", path, watchErr)
			}
		}
		return nil
	})
}

func (w *Watcher) eventLoop() {
	defer close(w.stopped)

	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Errorf("%v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// New directories are watched too, and may already hold files.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addRecursive(event.Name)
			if w.containsAudio(event.Name) {
				w.schedule(event.Name)
			}
			return
		}
	}

	relevant := event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) != 0
	if !relevant || !w.IsAudioFile(event.Name) {
		return
	}
	w.schedule(event.Name)
}

func (w *Watcher) containsAudio(dir string) bool {
	found := false
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() && w.IsAudioFile(path) {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

// rootOf returns the watched root containing path.
func (w *Watcher) rootOf(path string) string {
	best := ""
	for _, root := range w.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if len(root) > len(best) {
			best = root
		}
	}
	return best
}

func (w *Watcher) schedule(path string) {
	root := w.rootOf(path)
	if root == "" {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.pending[root] = true

	if w.timer != nil {
		w.timer.Reset(w.debounce)
		return
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	w.timer = nil
	roots := make([]string, 0, len(w.pending))
	for r := range w.pending {
		roots = append(roots, r)
	}
	clear(w.pending)
	w.mu.Unlock()

	if len(roots) == 0 || w.callback == nil {
		return
	}
	slices.Sort(roots)
	w.log.Infof("changes settled in %v", roots)
	w.callback(roots)
}

// IsAudioFile reports whether name has one of the watched extensions.
func (w *Watcher) IsAudioFile(name string) bool {
	return w.extensions[strings.ToLower(filepath.Ext(name))]
}
