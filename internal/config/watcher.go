package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the config file on change so the model registry can be
// updated without a restart.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	onChange  func(*Config)
	logger    zerolog.Logger
}

// NewWatcher creates a config file watcher. onChange receives every
// successfully reloaded and validated configuration.
func NewWatcher(path string, onChange func(*Config), logger zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	// Watch the directory, not the file: editors replace files on save
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Watcher{
		fsWatcher: fsw,
		path:      path,
		onChange:  onChange,
		logger:    logger.With().Str("component", "config-watcher").Logger(),
	}, nil
}

// Start runs the event loop until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	// Debounce rapid write bursts from editors
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(250 * time.Millisecond)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("watch error")

		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsWatcher.Close()
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn().Err(err).Msg("ignoring invalid config change")
		return
	}
	w.logger.Info().Msg("configuration reloaded")
	w.onChange(cfg)
}
