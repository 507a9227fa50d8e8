package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reloader watches a config file for changes and re-applies it.
type Reloader struct {
	watcher *fsnotify.Watcher
	path    string
	apply   func(*Config)
	logger  *slog.Logger
}

// NewReloader creates a file watcher for the given config path. The
// apply callback receives each successfully reloaded config.
func NewReloader(path string, apply func(*Config), logger *slog.Logger) (*Reloader, error) {
	if path == "" {
		return nil, fmt.Errorf("reloader requires a config path")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to stat %q: %w", path, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", path, err)
	}

	return &Reloader{
		watcher: watcher,
		path:    path,
		apply:   apply,
		logger:  logger,
	}, nil
}

// Run watches for file changes and reloads config. Blocks until ctx is
// cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	// Debounce: wait 500ms after last write before reloading
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, r.reload)
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("file watcher error", "error", err)
		}
	}
}

func (r *Reloader) reload() {
	cfg, err := Load(r.path)
	if err != nil {
		r.logger.Error("hot-reload failed", "path", r.path, "error", err)
		return
	}
	r.apply(cfg)
	r.logger.Info("hot-reload: config reloaded", "path", r.path)
}
