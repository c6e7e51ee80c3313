// internal/config/watch.go
package config

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the configuration file when it changes on disk.
// Used by serve mode so the team registry can grow without a restart.
type Watcher struct {
	path    string
	logger  *zap.Logger
	watcher *fsnotify.Watcher
	updates chan *Config
	done    chan struct{}
}

// Watch begins watching path. Reloads that fail validation are logged
// and dropped; the previous config stays in effect.
func Watch(path string, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}

	// Watch the directory: editors and atomic renames replace the inode.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	w := &Watcher{
		path:    path,
		logger:  logger,
		watcher: fw,
		updates: make(chan *Config, 1),
		done:    make(chan struct{}),
	}

	go w.loop()

	return w, nil
}

// Updates delivers each successfully reloaded config.
func (w *Watcher) Updates() <-chan *Config {
	return w.updates
}

// Close stops watching.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(w.path)
			if err != nil {
				w.logger.Warn("config reload failed, keeping previous",
					zap.String("path", w.path), zap.Error(err))
				continue
			}

			w.logger.Info("config reloaded",
				zap.String("path", w.path), zap.Int("teams", len(cfg.Teams)))

			select {
			case w.updates <- cfg:
			default:
				// Consumer is behind; drop the older pending update.
				select {
				case <-w.updates:
				default:
				}
				w.updates <- cfg
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}
