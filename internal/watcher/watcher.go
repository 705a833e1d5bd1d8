// Package watcher feeds inbox directories into the knowledge base. Files are
// picked up with fsnotify, debounced, extracted and indexed; deleted files are
// removed again.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/kanit/pkg/utils"
)

const defaultDebounce = 400 * time.Millisecond

// Handler receives debounced file changes.
type Handler interface {
	Ingest(ctx context.Context, path string) error
	Remove(ctx context.Context, path string) error
}

// Watcher watches inbox directories and forwards matching files to a Handler.
type Watcher struct {
	roots      []string
	extensions []string
	recursive  bool
	handler    Handler
	debounce   time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	pending map[string]*time.Timer
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = utils.OrNop(l) }
}

// WithDebounce sets how long a file must be quiet before it is ingested.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher over roots. extensions filters file names by
// extension (case-insensitive, leading dot optional); empty means all files.
func New(roots, extensions []string, recursive bool, handler Handler, opts ...Option) *Watcher {
	w := &Watcher{
		roots:      cleanAll(roots),
		extensions: extensions,
		recursive:  recursive,
		handler:    handler,
		debounce:   defaultDebounce,
		logger:     zap.NewNop(),
		pending:    make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start creates missing roots, begins watching and returns. Events are
// processed until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, root := range w.roots {
		if err := w.watchTree(fsw, root, true); err != nil {
			_ = fsw.Close()
			return err
		}
	}
	w.fsw = fsw
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.logger.Info("inbox watcher started",
		zap.Strings("roots", w.roots),
		zap.Strings("extensions", w.extensions),
		zap.Bool("recursive", w.recursive))

	w.wg.Add(1)
	go w.run(w.ctx, fsw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, fsw *fsnotify.Watcher, ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if !w.underRoot(path) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))

	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if ev.Has(fsnotify.Create) && w.recursive {
				if err := w.watchTree(fsw, path, false); err != nil {
					w.logger.Warn("watch new directory failed", zap.String("path", path), zap.Error(err))
				}
				w.syncDirectory(ctx, path)
			}
			return
		}
		if w.matches(path) {
			w.schedule(ctx, path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancelPending(path)
		if w.matches(path) {
			if err := w.handler.Remove(ctx, path); err != nil {
				w.logger.Warn("inbox remove failed", zap.String("path", path), zap.Error(err))
			}
		}
	}
}

// schedule ingests path once it has been quiet for the debounce interval.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		w.ingest(ctx, path)
	})
}

func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	if err := w.handler.Ingest(ctx, path); err != nil {
		w.logger.Warn("inbox ingest failed", zap.String("path", path), zap.Error(err))
	}
}

// watchTree adds root (and its subdirectories when recursive) to fsw,
// creating root first when create is set.
func (w *Watcher) watchTree(fsw *fsnotify.Watcher, root string, create bool) error {
	if create {
		if err := os.MkdirAll(root, 0755); err != nil {
			return err
		}
	}
	if !w.recursive {
		return fsw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

// SyncExistingFiles ingests every matching file already present in the roots.
func (w *Watcher) SyncExistingFiles(ctx context.Context) {
	for _, root := range w.roots {
		w.syncDirectory(ctx, root)
	}
}

func (w *Watcher) syncDirectory(ctx context.Context, root string) {
	w.logger.Debug("syncing directory", zap.String("root", root))
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != root && !w.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if w.matches(path) {
			w.ingest(ctx, path)
		}
		return nil
	})
}

// Directories returns the watched roots.
func (w *Watcher) Directories() []string {
	return append([]string(nil), w.roots...)
}

// Stop stops watching and waits for the event loop to exit. Pending
// debounced files are dropped.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.fsw == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.cancel()
	fsw := w.fsw
	w.fsw = nil
	w.mu.Unlock()

	_ = fsw.Close()
	w.wg.Wait()
}

func (w *Watcher) underRoot(path string) bool {
	for _, root := range w.roots {
		if root == path || inDir(root, path) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Watcher) matches(path string) bool {
	return MatchExtension(path, w.extensions)
}

// MatchExtension reports whether path has one of extensions. An empty list
// matches every path.
func MatchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func cleanAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		out = append(out, filepath.Clean(p))
	}
	return out
}
