// Package watcher ingests PDFs dropped into watched folders, using fsnotify with per-file debouncing.
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

	"github.com/hyperjump/ragchat/internal/config"
	"github.com/hyperjump/ragchat/pkg/utils"
)

const defaultDebounce = 400 * time.Millisecond

// FileFunc handles one file event. Errors are logged; the watcher keeps running.
type FileFunc func(ctx context.Context, path string) error

// Watcher watches drop folders and hands settled files to onAdded, removed ones to onRemoved.
type Watcher struct {
	dirs       []string
	extensions []string
	recursive  bool
	onAdded    FileFunc
	onRemoved  FileFunc
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
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must be quiet before it is ingested.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// New returns a watcher for cfg. onRemoved may be nil.
func New(cfg config.WatchConfig, onAdded, onRemoved FileFunc, opts ...Option) *Watcher {
	w := &Watcher{
		dirs:       append([]string(nil), cfg.Directories...),
		extensions: cfg.Extensions,
		recursive:  cfg.RecursiveOrDefault(),
		onAdded:    onAdded,
		onRemoved:  onRemoved,
		debounce:   defaultDebounce,
		pending:    make(map[string]*time.Timer),
	}
	if len(w.extensions) == 0 {
		w.extensions = []string{".pdf"}
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = utils.OrNop(w.logger)
	return w
}

// Enabled reports whether any directory is configured.
func (w *Watcher) Enabled() bool { return len(w.dirs) > 0 }

// Directories returns the watched directories.
func (w *Watcher) Directories() []string {
	return append([]string(nil), w.dirs...)
}

// Start creates missing directories and begins watching. It runs until ctx is cancelled or Stop
// is called. Starting a watcher with no directories is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil || !w.Enabled() {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, dir := range w.dirs {
		if err := w.addDir(fsw, dir); err != nil {
			_ = fsw.Close()
			return err
		}
	}
	w.fsw = fsw
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.logger.Info("watching drop folders", zap.Strings("dirs", w.dirs), zap.Bool("recursive", w.recursive))
	w.wg.Add(1)
	go w.run(w.ctx, fsw)
	return nil
}

func (w *Watcher) addDir(fsw *fsnotify.Watcher, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if !w.recursive {
		return fsw.Add(dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
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
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if w.recursive {
				w.handleNewDirectory(ctx, fsw, ev.Name)
			}
			return
		}
		if w.matchExtension(ev.Name) {
			w.schedule(ctx, ev.Name)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancelPending(ev.Name)
		if w.onRemoved != nil && w.matchExtension(ev.Name) {
			w.call(ctx, "remove", w.onRemoved, ev.Name)
		}
	}
}

// handleNewDirectory watches a directory created under a recursive root and ingests what it holds.
func (w *Watcher) handleNewDirectory(ctx context.Context, fsw *fsnotify.Watcher, dir string) {
	if err := w.addDir(fsw, dir); err != nil {
		w.logger.Warn("failed to watch new directory", zap.String("path", dir), zap.Error(err))
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && w.matchExtension(path) {
			w.schedule(ctx, path)
		}
		return nil
	})
}

func (w *Watcher) matchExtension(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range w.extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// schedule ingests path once no further events arrive for it within the debounce window.
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
		w.call(ctx, "ingest", w.onAdded, path)
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

func (w *Watcher) call(ctx context.Context, op string, fn FileFunc, path string) {
	if fn == nil {
		return
	}
	if err := fn(ctx, path); err != nil {
		w.logger.Warn("drop folder "+op+" failed", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Info("drop folder "+op, zap.String("path", path))
}

// SyncExisting hands every matching file already in the watched directories to onAdded, except
// those for which skip returns true. skip may be nil.
func (w *Watcher) SyncExisting(ctx context.Context, skip func(path string) bool) {
	for _, dir := range w.dirs {
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if path != dir && !w.recursive {
					return filepath.SkipDir
				}
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if w.matchExtension(path) && (skip == nil || !skip(path)) {
				w.call(ctx, "ingest", w.onAdded, path)
			}
			return nil
		})
	}
}

// Stop stops watching and cancels pending ingests. It is safe to call more than once.
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
