package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the config file at path and invokes onChange with a freshly
// loaded Config whenever it is written. It watches the containing directory
// (some systems don't support watching files directly) and debounces rapid
// editor write bursts. The watcher stops when ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	configDir := filepath.Dir(absPath)
	configFile := filepath.Base(absPath)

	if err := watcher.Add(configDir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch directory %s: %w", configDir, err)
	}

	go watchLoop(ctx, watcher, absPath, configFile, onChange)

	slog.Info("Watching config file", "path", absPath)
	return nil
}

func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, absPath, configFile string, onChange func(*Config)) {
	defer watcher.Close()

	// Debounce timer to coalesce rapid changes
	var debounceTimer *time.Timer
	const debounceDelay = 100 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != configFile {
				continue
			}

			if event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDelay, func() {
					cfg, err := Load(absPath)
					if err != nil {
						slog.Warn("Ignoring config change", "path", absPath, "error", err)
						return
					}
					slog.Info("Config file changed, applying", "path", absPath)
					onChange(cfg)
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("File watcher error", "error", err)
		}
	}
}
