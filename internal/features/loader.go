package features

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/Apex-dev01/Comet/internal/config"
)

// fileSchema mirrors the TOML features file.
type fileSchema struct {
	DebugToolEnabled          *bool    `toml:"debug_tool_enabled"`
	ThemeCustomizationEnabled bool     `toml:"theme_customization_enabled"`
	BlockedHosts              []string `toml:"blocked_hosts"`
}

// Loader serves feature snapshots from a TOML file through a short-lived
// cache. The cache is invalidated when the file changes on disk and expires
// after the configured TTL regardless, so editors that bypass the watcher
// (bind mounts, some network filesystems) are still picked up. A load
// failure never fails a request: the documented defaults are served instead.
type Loader struct {
	path   string
	ttl    time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	cached   Snapshot
	loadedAt time.Time
	dirty    bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewLoader creates a Loader from the application config. Call Start to
// begin watching the file and Close on shutdown.
func NewLoader(cfg *config.Config, logger *slog.Logger) *Loader {
	return &Loader{
		path:   cfg.Features.Path,
		ttl:    time.Duration(cfg.Features.CacheTTLSeconds) * time.Second,
		logger: logger.With("component", "features_loader"),
		dirty:  true,
	}
}

// Start begins watching the features file for changes. A watch failure is
// not fatal: the TTL cache alone still refreshes snapshots.
func (l *Loader) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("features: create watcher: %w", err)
	}
	// Watch the directory, not the file: editors replace files by rename,
	// which drops a direct file watch.
	if err := w.Add(filepath.Dir(l.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("features: watch %s: %w", filepath.Dir(l.path), err)
	}

	l.watcher = w
	l.done = make(chan struct{})
	go l.watch()
	return nil
}

// Close stops the file watcher.
func (l *Loader) Close() error {
	if l.watcher == nil {
		return nil
	}
	err := l.watcher.Close()
	<-l.done
	return err
}

func (l *Loader) watch() {
	defer close(l.done)
	for {
		select {
		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(l.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				l.mu.Lock()
				l.dirty = true
				l.mu.Unlock()
				l.logger.Debug("features file changed", "path", l.path, "op", ev.Op.String())
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn("features watcher error", "err", err)
		}
	}
}

// Snapshot returns the current feature flags. The snapshot is cached until
// the file changes or the TTL expires; errors fall back to Defaults.
func (l *Loader) Snapshot(_ context.Context) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.dirty && time.Since(l.loadedAt) < l.ttl {
		return l.cached
	}

	l.cached = l.load()
	l.loadedAt = time.Now()
	l.dirty = false
	return l.cached
}

func (l *Loader) load() Snapshot {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Debug("features file absent, using defaults", "path", l.path)
		} else {
			l.logger.Warn("read features file, using defaults", "path", l.path, "err", err)
		}
		return Defaults()
	}

	var f fileSchema
	if err := toml.Unmarshal(data, &f); err != nil {
		l.logger.Warn("parse features file, using defaults", "path", l.path, "err", err)
		return Defaults()
	}

	return NewSnapshot(f.DebugToolEnabled, f.ThemeCustomizationEnabled, f.BlockedHosts)
}
