package workspace

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 300 * time.Millisecond

// Watcher reports batches of changed files under a working directory.
type Watcher struct {
	root     string
	watcher  *fsnotify.Watcher
	matcher  Matcher
	onChange func([]string) // workspace-relative paths, sorted
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher for root. Call Start to begin delivering events.
func NewWatcher(root string, matcher Matcher, onChange func([]string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		root:     root,
		watcher:  fw,
		matcher:  matcher,
		onChange: onChange,
		debounce: defaultDebounce,
		pending:  make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// SetDebounce changes the batching interval. It must be called before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Start adds every non-ignored directory under root and starts the event loops.
func (w *Watcher) Start() error {
	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			log.Printf("⚠️  Failed to watch %s: %v", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", w.root, err)
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()
	return nil
}

// Stop stops the watcher and flushes pending changes.
func (w *Watcher) Stop() error {
	w.cancel()
	w.wg.Wait()
	w.flush()
	return w.watcher.Close()
}

func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return true
	}
	if rel == "." {
		return false
	}
	return w.matcher != nil && w.matcher.MatchesPath(filepath.ToSlash(rel))
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  Watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if w.ignored(event.Name) {
		return
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				log.Printf("⚠️  Failed to watch new directory %s: %v", event.Name, err)
			}
			return
		}
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	w.mu.Lock()
	w.pending[filepath.ToSlash(rel)] = true
	w.mu.Unlock()
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	sort.Strings(paths)
	if w.onChange != nil {
		w.onChange(paths)
	}
}
