package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/ragchat/internal/config"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) fn(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return nil
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func (r *recorder) count(suffix string) int {
	n := 0
	for _, p := range r.list() {
		if strings.HasSuffix(p, suffix) {
			n++
		}
	}
	return n
}

func startWatcher(t *testing.T, cfg config.WatchConfig, added, removed *recorder) *Watcher {
	t.Helper()
	var onRemoved FileFunc
	if removed != nil {
		onRemoved = removed.fn
	}
	w := New(cfg, added.fn, onRemoved, WithDebounce(100*time.Millisecond))
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestMatchExtension(t *testing.T) {
	w := New(config.WatchConfig{}, nil, nil)
	tests := []struct {
		path string
		want bool
	}{
		{"/drop/a.pdf", true},
		{"/drop/a.PDF", true},
		{"/drop/a.txt", false},
		{"/drop/pdf", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, w.matchExtension(tt.path), tt.path)
	}
}

func TestWatcher_disabledWithoutDirectories(t *testing.T) {
	w := New(config.WatchConfig{}, nil, nil)
	assert.False(t, w.Enabled())
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
}

func TestWatcher_createsMissingDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "drop", "here")
	startWatcher(t, config.WatchConfig{Directories: []string{root}}, &recorder{}, nil)
	_, err := os.Stat(root)
	assert.NoError(t, err)
}

func TestWatcher_ingestsDroppedPDFs(t *testing.T) {
	dir := t.TempDir()
	added := &recorder{}
	startWatcher(t, config.WatchConfig{Directories: []string{dir}}, added, nil)

	writeFile(t, filepath.Join(dir, "poems.pdf"), "first")
	writeFile(t, filepath.Join(dir, "poems.pdf"), "second")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	assert.Eventually(t, func() bool { return added.count("poems.pdf") == 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, 1, added.count("poems.pdf"), "writes within the debounce window ingest once")
	assert.Equal(t, 0, added.count("notes.txt"))
}

func TestWatcher_removedPDF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.pdf")
	writeFile(t, path, "x")
	added, removed := &recorder{}, &recorder{}
	startWatcher(t, config.WatchConfig{Directories: []string{dir}}, added, removed)

	require.NoError(t, os.Remove(path))
	assert.Eventually(t, func() bool { return removed.count("old.pdf") == 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestWatcher_recursiveNewFolder(t *testing.T) {
	dir := t.TempDir()
	recursive := true
	added := &recorder{}
	startWatcher(t, config.WatchConfig{Directories: []string{dir}, Recursive: &recursive}, added, nil)

	nested := filepath.Join(dir, "level1", "level2")
	require.NoError(t, os.MkdirAll(nested, 0755))
	time.Sleep(50 * time.Millisecond)
	writeFile(t, filepath.Join(nested, "deep.pdf"), "deep")

	assert.Eventually(t, func() bool { return added.count("deep.pdf") >= 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestWatcher_SyncExisting(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.pdf"), "a")
	writeFile(t, filepath.Join(dir, "b.pdf"), "b")
	writeFile(t, filepath.Join(dir, "c.txt"), "c")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	writeFile(t, filepath.Join(dir, "sub", "d.pdf"), "d")

	added := &recorder{}
	w := New(config.WatchConfig{Directories: []string{dir}}, added.fn, nil)
	w.SyncExisting(context.Background(), func(path string) bool {
		return filepath.Base(path) == "b.pdf"
	})

	got := added.list()
	require.Len(t, got, 1)
	assert.Equal(t, "a.pdf", filepath.Base(got[0]))
}

func TestWatcher_handlerErrorsDoNotStopWatching(t *testing.T) {
	dir := t.TempDir()
	var mu sync.Mutex
	calls := 0
	w := New(config.WatchConfig{Directories: []string{dir}}, func(context.Context, string) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("broken pdf")
	}, nil, WithDebounce(50*time.Millisecond))
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	writeFile(t, filepath.Join(dir, "one.pdf"), "1")
	writeFile(t, filepath.Join(dir, "two.pdf"), "2")
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcher_StopTwice(t *testing.T) {
	w := New(config.WatchConfig{Directories: []string{t.TempDir()}}, nil, nil)
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}
