package config

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the config file and delivers reloaded settings to a
// callback, so a running daemon picks up preference changes without a
// restart.
type Watcher struct {
	watcher  *fsnotify.Watcher
	manager  *Manager
	filePath string
	onChange func(*Config)
	done     chan struct{}

	mu      sync.Mutex
	running bool
}

// NewWatcher creates a watcher for the given config path.
func NewWatcher(manager *Manager, filePath string, onChange func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:  fsw,
		manager:  manager,
		filePath: filePath,
		onChange: onChange,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. Watching the parent directory is more reliable
// than the file itself for editors that replace on save.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.filePath)); err != nil {
		return err
	}
	go w.watch()
	return nil
}

// Stop terminates the watch loop.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) watch() {
	filename := filepath.Base(w.filePath)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				slog.Debug("config file changed, reloading", "path", w.filePath)
				cfg, err := w.manager.LoadFromFile(w.filePath)
				if err != nil {
					slog.Warn("config reload failed, keeping current settings", "error", err)
					continue
				}
				w.onChange(cfg)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}
