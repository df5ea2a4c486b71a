package scenario

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher uses fsnotify to watch scenario pack directories and reload a
// pack whenever its YAML file is written or created on disk (an editor's
// rename-replace arrives as a create event).
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	store     *Store
	callbacks []func(path string, err error)
	mu        sync.Mutex
	done      chan struct{}
	logger    *slog.Logger
}

// NewWatcher creates a Watcher bound to store. Call Start to begin
// processing events in the background.
func NewWatcher(store *Store, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	store.mu.RLock()
	dirs := make([]string, 0, len(store.dirs))
	for _, d := range store.dirs {
		dirs = append(dirs, d)
	}
	store.mu.RUnlock()

	w := &Watcher{
		fsWatcher: fsw,
		store:     store,
		done:      make(chan struct{}),
		logger:    logger.With("component", "scenario.Watcher"),
	}
	for _, dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			w.logger.Warn("could not watch scenario directory", "dir", dir, "error", err)
		}
	}
	return w, nil
}

// OnReload registers a callback invoked after each successful or failed
// reload attempt triggered by a filesystem event.
func (w *Watcher) OnReload(fn func(path string, err error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	ext := filepath.Ext(event.Name)
	if ext != ".yaml" && ext != ".yml" {
		return
	}
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
		return
	}

	w.store.mu.RLock()
	cached, known := w.store.packsByFile[event.Name]
	w.store.mu.RUnlock()
	domain := ""
	if known {
		domain = cached.domain
	}

	err := w.store.LoadFile(domain, event.Name)
	if err != nil {
		w.logger.Error("failed to reload scenario pack", "path", event.Name, "error", err)
	} else {
		w.logger.Info("reloaded scenario pack", "path", event.Name)
	}

	w.mu.Lock()
	cbs := make([]func(string, error), len(w.callbacks))
	copy(cbs, w.callbacks)
	w.mu.Unlock()
	for _, fn := range cbs {
		fn(event.Name, err)
	}
}
