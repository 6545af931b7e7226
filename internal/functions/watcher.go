package functions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"

	"github.com/watzon/lambdev/internal/config"
)

const (
	defaultDebounceDuration = 300 * time.Millisecond

	// reloadAllKey is the debounce key for changes to shared paths.
	reloadAllKey = "*"
)

// Reloader restarts running functions.
type Reloader interface {
	Reload(function string)
	ReloadAll()
}

// WatchOptions configures a SourceWatcher.
type WatchOptions struct {
	// Patterns are globs a changed file must match. Functions with their own
	// watch patterns use those instead.
	Patterns []string
	// SharedPaths are files or directories whose changes restart every function.
	SharedPaths []string
	// Debounce is the quiet period before a restart.
	Debounce time.Duration
}

// SourceWatcher watches function sources and restarts functions when they change.
type SourceWatcher struct {
	catalog          *Catalog
	reloader         Reloader
	watcher          *fsnotify.Watcher
	patterns         []glob.Glob
	sharedPaths      []string
	debounceDuration time.Duration
	debounceTimers   map[string]*time.Timer
	// watched holds the function directories already added to watcher.
	watched          map[string]struct{}
	mu               sync.Mutex
	ctx              context.Context
	cancel           context.CancelFunc
	wg               sync.WaitGroup
}

// NewSourceWatcher creates a new source file watcher.
func NewSourceWatcher(catalog *Catalog, reloader Reloader, opts WatchOptions) (*SourceWatcher, error) {
	if len(opts.Patterns) == 0 {
		opts.Patterns = config.DefaultWatchPatterns
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounceDuration
	}

	patterns, err := compilePatterns(opts.Patterns)
	if err != nil {
		return nil, err
	}

	shared := make([]string, 0, len(opts.SharedPaths))
	for _, p := range opts.SharedPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolving watch path %s: %w", p, err)
		}
		shared = append(shared, abs)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &SourceWatcher{
		catalog:          catalog,
		reloader:         reloader,
		watcher:          watcher,
		patterns:         patterns,
		sharedPaths:      shared,
		debounceDuration: opts.Debounce,
		debounceTimers:   make(map[string]*time.Timer),
		watched:          make(map[string]struct{}),
		ctx:              ctx,
		cancel:           cancel,
	}, nil
}

// compilePatterns compiles globs with '/' as the separator. A leading "**/"
// must match at least one directory there, so such patterns also get a
// root-level variant: "**/*.go" covers main.go as well as cmd/app/main.go.
func compilePatterns(patterns []string) ([]glob.Glob, error) {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		variants := []string{pattern}
		if rest, ok := strings.CutPrefix(pattern, "**/"); ok && rest != "" {
			variants = append(variants, rest)
		}
		for _, v := range variants {
			g, err := glob.Compile(v, '/')
			if err != nil {
				return nil, fmt.Errorf("invalid watch pattern %q: %w", pattern, err)
			}
			compiled = append(compiled, g)
		}
	}
	return compiled, nil
}

// Start begins watching every function directory and shared path.
func (sw *SourceWatcher) Start() error {
	sw.Refresh()

	for _, p := range sw.sharedPaths {
		info, err := os.Stat(p)
		if err != nil {
			log.Warn().Err(err).Str("path", p).Msg("Failed to watch path")
			continue
		}
		if info.IsDir() {
			err = sw.addRecursive(p)
		} else {
			// Editors replace files on save, so watch the parent.
			err = sw.watcher.Add(filepath.Dir(p))
		}
		if err != nil {
			log.Warn().Err(err).Str("path", p).Msg("Failed to watch path")
		}
	}

	sw.wg.Add(1)
	go sw.eventLoop()

	return nil
}

// Refresh watches the directories of catalog functions that are not watched
// yet. Call it after the catalog has been rediscovered.
func (sw *SourceWatcher) Refresh() {
	for _, fn := range sw.catalog.List() {
		dir, err := filepath.Abs(fn.Dir)
		if err != nil {
			continue
		}

		sw.mu.Lock()
		_, seen := sw.watched[dir]
		sw.mu.Unlock()
		if seen {
			continue
		}

		if err := sw.addRecursive(dir); err != nil {
			log.Warn().Err(err).Str("function", fn.Name).Msg("Failed to watch function directory")
			continue
		}

		sw.mu.Lock()
		sw.watched[dir] = struct{}{}
		sw.mu.Unlock()
		log.Debug().Str("function", fn.Name).Str("dir", fn.Dir).Msg("Watching function sources")
	}
}

// Stop stops the watcher and cleans up resources.
func (sw *SourceWatcher) Stop() error {
	sw.cancel()
	sw.wg.Wait()

	sw.mu.Lock()
	for _, timer := range sw.debounceTimers {
		timer.Stop()
	}
	sw.mu.Unlock()

	return sw.watcher.Close()
}

func (sw *SourceWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		return sw.watcher.Add(path)
	})
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules" || name == "vendor" || name == "testdata"
}

func (sw *SourceWatcher) eventLoop() {
	defer sw.wg.Done()

	for {
		select {
		case <-sw.ctx.Done():
			return

		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				sw.handleEvent(event)
			}

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("File watcher error")
		}
	}
}

func (sw *SourceWatcher) handleEvent(event fsnotify.Event) {
	path, err := filepath.Abs(event.Name)
	if err != nil {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() && !skipDir(info.Name()) {
			if err := sw.addRecursive(path); err != nil {
				log.Warn().Err(err).Str("dir", path).Msg("Failed to watch new directory")
			}
			return
		}
	}

	if sw.isShared(path) {
		log.Debug().Str("file", path).Msg("Shared source changed")
		sw.debounce(reloadAllKey, sw.reloader.ReloadAll)
		return
	}

	for _, fn := range sw.functionsFor(path) {
		log.Debug().
			Str("file", path).
			Str("function", fn.Name).
			Msg("Source file changed")

		name := fn.Name
		sw.debounce(name, func() {
			sw.reloader.Reload(name)
		})
	}
}

func (sw *SourceWatcher) isShared(path string) bool {
	for _, shared := range sw.sharedPaths {
		if path == shared {
			return true
		}
		if rel, ok := within(shared, path); ok && sw.matches(rel, sw.patterns) {
			return true
		}
	}
	return false
}

// functionsFor returns the functions whose directory contains path and whose
// watch patterns match it.
func (sw *SourceWatcher) functionsFor(path string) []*FunctionDef {
	var matched []*FunctionDef

	for _, fn := range sw.catalog.List() {
		dir, err := filepath.Abs(fn.Dir)
		if err != nil {
			continue
		}

		rel, ok := within(dir, path)
		if !ok {
			continue
		}

		patterns := sw.patterns
		if len(fn.Watch) > 0 {
			custom, err := compilePatterns(fn.Watch)
			if err != nil {
				log.Warn().Err(err).Str("function", fn.Name).Msg("Invalid watch pattern")
				continue
			}
			patterns = custom
		}

		if sw.matches(rel, patterns) {
			matched = append(matched, fn)
		}
	}

	return matched
}

// matches tests rel and its base name, so "*.go" also covers nested files.
func (sw *SourceWatcher) matches(rel string, patterns []glob.Glob) bool {
	rel = filepath.ToSlash(rel)
	base := filepath.Base(rel)
	for _, g := range patterns {
		if g.Match(rel) || g.Match(base) {
			return true
		}
	}
	return false
}

func within(dir, path string) (string, bool) {
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

func (sw *SourceWatcher) debounce(key string, fn func()) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if timer, exists := sw.debounceTimers[key]; exists {
		timer.Stop()
	}

	sw.debounceTimers[key] = time.AfterFunc(sw.debounceDuration, func() {
		if sw.ctx.Err() != nil {
			return
		}
		log.Info().Str("target", key).Msg("Restarting after source change")
		fn()
	})
}
