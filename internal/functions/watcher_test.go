package functions

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReloader struct {
	mu      sync.Mutex
	reloads map[string]int
	all     int
}

func newRecordingReloader() *recordingReloader {
	return &recordingReloader{reloads: make(map[string]int)}
}

func (r *recordingReloader) Reload(function string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reloads[function]++
}

func (r *recordingReloader) ReloadAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all++
}

func (r *recordingReloader) count(function string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reloads[function]
}

func (r *recordingReloader) allCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.all
}

const testDebounce = 50 * time.Millisecond

func startWatcher(t *testing.T, root string, opts WatchOptions) (*recordingReloader, *Catalog) {
	t.Helper()
	reloader, catalog, _ := startSourceWatcher(t, root, opts)
	return reloader, catalog
}

func startSourceWatcher(t *testing.T, root string, opts WatchOptions) (*recordingReloader, *Catalog, *SourceWatcher) {
	t.Helper()

	catalog := NewCatalog(testFunctionsConfig(root))
	require.NoError(t, catalog.Discover())

	reloader := newRecordingReloader()
	if opts.Debounce == 0 {
		opts.Debounce = testDebounce
	}

	watcher, err := NewSourceWatcher(catalog, reloader, opts)
	require.NoError(t, err)
	require.NoError(t, watcher.Start())
	t.Cleanup(func() { _ = watcher.Stop() })

	return reloader, catalog, watcher
}

func TestSourceWatcher_ReloadsChangedFunction(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "hello", "main.go"), "package main")
	writeFile(t, filepath.Join(root, "other", "main.go"), "package main")

	reloader, _ := startWatcher(t, root, WatchOptions{})

	writeFile(t, filepath.Join(root, "hello", "main.go"), "package main // changed")

	require.Eventually(t, func() bool { return reloader.count("hello") == 1 }, 2*time.Second, 10*time.Millisecond)

	time.Sleep(3 * testDebounce)
	assert.Equal(t, 1, reloader.count("hello"))
	assert.Equal(t, 0, reloader.count("other"))
}

func TestSourceWatcher_Debounces(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "hello", "main.go")
	writeFile(t, file, "package main")

	reloader, _ := startWatcher(t, root, WatchOptions{Debounce: 200 * time.Millisecond})

	for i := 0; i < 5; i++ {
		writeFile(t, file, "package main // edit")
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return reloader.count("hello") == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, 1, reloader.count("hello"))
}

func TestSourceWatcher_IgnoresNonMatchingFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "hello", "main.go"), "package main")

	reloader, _ := startWatcher(t, root, WatchOptions{})

	writeFile(t, filepath.Join(root, "hello", "NOTES.md"), "notes")

	time.Sleep(4 * testDebounce)
	assert.Equal(t, 0, reloader.count("hello"))
}

func TestSourceWatcher_NestedDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "hello", "main.go"), "package main")

	reloader, _ := startWatcher(t, root, WatchOptions{})

	// A directory created after start is picked up.
	nested := filepath.Join(root, "hello", "internal", "greet")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	time.Sleep(100 * time.Millisecond)

	writeFile(t, filepath.Join(nested, "greet.go"), "package greet")

	require.Eventually(t, func() bool { return reloader.count("hello") >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestSourceWatcher_SharedPathsReloadAll(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "functions", "hello", "main.go"), "package main")

	shared := filepath.Join(root, "pkg")
	writeFile(t, filepath.Join(shared, "util.go"), "package pkg")
	goMod := filepath.Join(root, "go.mod")
	writeFile(t, goMod, "module example.com/app")

	reloader, _ := startWatcher(t, filepath.Join(root, "functions"), WatchOptions{
		SharedPaths: []string{shared, goMod},
	})

	writeFile(t, filepath.Join(shared, "util.go"), "package pkg // changed")
	require.Eventually(t, func() bool { return reloader.allCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	writeFile(t, goMod, "module example.com/app\n\ngo 1.24")
	require.Eventually(t, func() bool { return reloader.allCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, reloader.count("hello"))
}

func TestSourceWatcher_CustomPatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "resize", ManifestFile), "command: ./run.sh\nwatch:\n  - \"*.sh\"\n")
	writeFile(t, filepath.Join(root, "resize", "run.sh"), "#!/bin/sh")

	reloader, _ := startWatcher(t, root, WatchOptions{})

	writeFile(t, filepath.Join(root, "resize", "helper.go"), "package main")
	time.Sleep(4 * testDebounce)
	assert.Equal(t, 0, reloader.count("resize"), "custom patterns replace the defaults")

	writeFile(t, filepath.Join(root, "resize", "run.sh"), "#!/bin/sh\necho hi")
	require.Eventually(t, func() bool { return reloader.count("resize") == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestSourceWatcher_RefreshWatchesNewFunctions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "hello", "main.go"), "package main")

	reloader, catalog, watcher := startSourceWatcher(t, root, WatchOptions{})

	writeFile(t, filepath.Join(root, "fresh", "main.go"), "package main")
	require.NoError(t, catalog.Reload())
	watcher.Refresh()
	// Already watched directories are skipped.
	watcher.Refresh()

	writeFile(t, filepath.Join(root, "fresh", "main.go"), "package main // changed")
	require.Eventually(t, func() bool { return reloader.count("fresh") == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, reloader.count("hello"))
}

func TestSourceWatcher_DefaultPatterns(t *testing.T) {
	sw, err := NewSourceWatcher(NewCatalog(testFunctionsConfig(t.TempDir())), newRecordingReloader(), WatchOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sw.Stop() })

	tests := []struct {
		rel  string
		want bool
	}{
		{"main.go", true},
		{filepath.Join("internal", "greet", "greet.go"), true},
		{"go.mod", true},
		{"go.sum", true},
		{"README.md", false},
		{filepath.Join("static", "index.html"), false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, sw.matches(tt.rel, sw.patterns))
		})
	}
}

func TestNewSourceWatcher_InvalidPattern(t *testing.T) {
	catalog := NewCatalog(testFunctionsConfig(t.TempDir()))
	_, err := NewSourceWatcher(catalog, newRecordingReloader(), WatchOptions{Patterns: []string{"[unclosed"}})
	assert.Error(t, err)
}

func TestWithin(t *testing.T) {
	rel, ok := within("/a/b", "/a/b/c/d.go")
	assert.True(t, ok)
	assert.Equal(t, filepath.Join("c", "d.go"), rel)

	_, ok = within("/a/b", "/a/bc/d.go")
	assert.False(t, ok)

	_, ok = within("/a/b", "/a/b")
	assert.False(t, ok)
}
