// Package watcher turns filesystem notifications into debounced per-file
// update calls.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 500 * time.Millisecond

// Filter decides which paths are watched. *scan.Scanner satisfies it.
type Filter interface {
	Ignored(rel string, isDir bool) bool
	Accept(rel string) bool
}

// Handler is called with the slash-separated relative path of a file that
// changed and has since been quiet. Calls are serialized.
type Handler func(ctx context.Context, rel string)

// Watcher watches a directory tree recursively.
type Watcher struct {
	root     string
	filter   Filter
	handler  Handler
	debounce time.Duration
	logger   *slog.Logger

	fsw   *fsnotify.Watcher
	ready chan string
	wg    sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(w *Watcher) { w.logger = l } }

// New creates a Watcher for root. Nothing is watched until Run.
func New(root string, filter Filter, handler Handler, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w := &Watcher{
		root:     abs,
		filter:   filter,
		handler:  handler,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		fsw:      fsw,
		ready:    make(chan string, 256),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run watches until ctx is cancelled. Pending paths are dropped on exit; an
// update already running is allowed to finish.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	if err := w.addTree(w.root); err != nil {
		return err
	}

	deb := NewDebouncer(w.debounce, func(rel string) {
		select {
		case w.ready <- rel:
		case <-ctx.Done():
		}
	})
	defer deb.Stop()

	w.wg.Add(1)
	go w.dispatch(ctx)
	defer w.wg.Wait()

	w.logger.Info("watching", "root", w.root, "debounce", w.debounce)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev, deb)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) dispatch(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case rel := <-w.ready:
			w.handler(ctx, rel)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event, deb *Debouncer) {
	rel, ok := w.rel(ev.Name)
	if !ok {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if w.filter != nil && w.filter.Ignored(rel, true) {
				return
			}
			// files may land before the directory is watched
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("watch new directory failed", "path", rel, "error", err)
			}
			w.eachFile(ev.Name, deb.Trigger)
			return
		}
	}
	if ev.Op == fsnotify.Chmod {
		return
	}
	if w.filter != nil && !w.filter.Accept(rel) {
		return
	}
	w.logger.Debug("file event", "path", rel, "op", ev.Op.String())
	deb.Trigger(rel)
}

func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// addTree watches dir and every non-ignored directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if rel, ok := w.rel(path); ok && w.filter != nil && w.filter.Ignored(rel, true) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) eachFile(dir string, fn func(rel string)) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, ok := w.rel(path)
		if !ok {
			return nil
		}
		if d.IsDir() {
			if w.filter != nil && w.filter.Ignored(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if w.filter == nil || w.filter.Accept(rel) {
			fn(rel)
		}
		return nil
	})
}
