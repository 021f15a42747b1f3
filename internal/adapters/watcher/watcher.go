// Package watcher reports file system changes below the watched roots using fsnotify.
package watcher

import (
	"context"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.trai.ch/refresh/internal/core/domain"
	"go.trai.ch/refresh/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Watcher = (*Watcher)(nil)

const eventChannelBuffer = 100

// Watcher implements recursive file system watching.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	logger    ports.Logger
	content   *ContentFilter
	events    chan domain.ChangeEvent

	mu     sync.Mutex
	roots  []string
	ignore *IgnoreRules
	dirs   map[string]struct{}
	// gone holds removed directories whose second remove event is still due:
	// the parent watch and the directory's own watch both report it.
	gone map[string]struct{}
}

// NewWatcher creates a new file system watcher.
func NewWatcher(logger ports.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrWatchFailed.Error())
	}
	content, err := NewContentFilter(defaultContentCacheSize)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fsWatcher: fsw,
		logger:    logger,
		content:   content,
		events:    make(chan domain.ChangeEvent, eventChannelBuffer),
		dirs:      make(map[string]struct{}),
		gone:      make(map[string]struct{}),
	}, nil
}

// Start begins watching every root recursively.
func (w *Watcher) Start(ctx context.Context, opts ports.WatchOptions) error {
	rules, err := CompileIgnore(opts.IgnorePatterns)
	if err != nil {
		return err
	}

	roots := make([]string, 0, len(opts.Roots))
	for _, root := range opts.Roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return zerr.With(zerr.Wrap(err, domain.ErrWatchFailed.Error()), "root", root)
		}
		roots = append(roots, abs)
	}

	w.mu.Lock()
	w.roots = roots
	w.ignore = rules
	w.mu.Unlock()

	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			return zerr.With(zerr.Wrap(domain.ErrWatchFailed, "watch root is not a directory"), "root", root)
		}
		for dir := range w.walkDirs(root, root) {
			if err := w.addDir(dir); err != nil {
				return err
			}
		}
	}

	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher and releases all resources.
func (w *Watcher) Stop() error {
	return w.fsWatcher.Close()
}

// Events returns an iterator of change events.
func (w *Watcher) Events() iter.Seq[domain.ChangeEvent] {
	return func(yield func(domain.ChangeEvent) bool) {
		for event := range w.events {
			if !yield(event) {
				return
			}
		}
	}
}

func (w *Watcher) addDir(dir string) error {
	if err := w.fsWatcher.Add(dir); err != nil {
		return zerr.With(zerr.Wrap(err, domain.ErrWatchFailed.Error()), "dir", dir)
	}
	w.mu.Lock()
	w.dirs[dir] = struct{}{}
	w.mu.Unlock()
	return nil
}

// walkDirs yields start and every directory below it that is not ignored.
func (w *Watcher) walkDirs(root, start string) iter.Seq[string] {
	return func(yield func(string) bool) {
		_ = filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// Continue walking even if there's an error accessing a directory.
				return nil //nolint:nilerr // skip unreadable directories
			}
			if !d.IsDir() {
				return nil
			}
			if path != root && w.ignored(root, path, true) {
				return fs.SkipDir
			}
			if !yield(path) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

func (w *Watcher) rootOf(path string) string {
	w.mu.Lock()
	defer w.mu.Unlock()

	best := ""
	for _, root := range w.roots {
		if (path == root || strings.HasPrefix(path, root+string(filepath.Separator))) && len(root) > len(best) {
			best = root
		}
	}
	return best
}

func (w *Watcher) ignored(root, path string, isDir bool) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	w.mu.Lock()
	rules := w.ignore
	w.mu.Unlock()
	return rules.Ignored(filepath.ToSlash(rel), isDir)
}

// forgetDir drops dir and everything below it from the watched set and
// reports whether dir was being watched.
func (w *Watcher) forgetDir(dir string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, known := w.dirs[dir]
	if known {
		w.gone[dir] = struct{}{}
	}
	prefix := dir + string(filepath.Separator)
	for d := range w.dirs {
		if d == dir || strings.HasPrefix(d, prefix) {
			delete(w.dirs, d)
		}
	}
	return known
}

// consumeGone reports whether path was a directory already reported as removed.
func (w *Watcher) consumeGone(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.gone[path]
	delete(w.gone, path)
	return ok
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.events)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			change, ok := w.convertEvent(event)
			if !ok {
				continue
			}
			select {
			case w.events <- change:
			case <-ctx.Done():
				return
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file system watch error", "error", err)
		}
	}
}

// convertEvent maps an fsnotify event to a change. Ignored paths, chmod-only
// events and writes that keep the content unchanged are dropped.
func (w *Watcher) convertEvent(event fsnotify.Event) (domain.ChangeEvent, bool) {
	path := event.Name
	root := w.rootOf(path)
	if root == "" || path == root {
		return domain.ChangeEvent{}, false
	}
	change := domain.ChangeEvent{Path: path, Root: root}

	switch {
	case event.Has(fsnotify.Create):
		w.consumeGone(path)
		info, err := os.Stat(path)
		if err != nil {
			return domain.ChangeEvent{}, false
		}
		if info.IsDir() {
			if w.ignored(root, path, true) {
				return domain.ChangeEvent{}, false
			}
			for dir := range w.walkDirs(root, path) {
				if err := w.addDir(dir); err != nil {
					w.logger.Warn("failed to watch directory", "dir", dir, "error", err)
				}
			}
			change.Kind = domain.ChangeDirAdded
			change.IsDirectory = true
			return change, true
		}
		if w.ignored(root, path, false) {
			return domain.ChangeEvent{}, false
		}
		w.content.Changed(path)
		change.Kind = domain.ChangeAdded
		return change, true

	case event.Has(fsnotify.Write):
		if w.ignored(root, path, false) || !w.content.Changed(path) {
			return domain.ChangeEvent{}, false
		}
		change.Kind = domain.ChangeChanged
		return change, true

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if w.consumeGone(path) {
			return domain.ChangeEvent{}, false
		}
		if w.forgetDir(path) {
			if w.ignored(root, path, true) {
				return domain.ChangeEvent{}, false
			}
			change.Kind = domain.ChangeDirRemoved
			change.IsDirectory = true
			return change, true
		}
		if w.ignored(root, path, false) {
			return domain.ChangeEvent{}, false
		}
		w.content.Forget(path)
		change.Kind = domain.ChangeRemoved
		return change, true
	}

	return domain.ChangeEvent{}, false
}
