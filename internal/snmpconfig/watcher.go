package snmpconfig

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

var (
	watchDebounce = 100 * time.Millisecond
	pollInterval  = 5 * time.Second
)

// Watcher reloads the profile file into a Factory whenever it changes. A file
// that fails to parse is logged and the previous catalog stays active.
type Watcher struct {
	path        string
	factory     *Factory
	watcher     *fsnotify.Watcher
	stopChan    chan struct{}
	stopOnce    sync.Once
	mu          sync.Mutex
	lastModTime time.Time
	onReload    func(*Catalog)
}

// NewWatcher creates a watcher for path feeding factory.
func NewWatcher(path string, factory *Factory) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:     filepath.Clean(path),
		factory:  factory,
		watcher:  watcher,
		stopChan: make(chan struct{}),
	}
	if stat, err := os.Stat(w.path); err == nil {
		w.lastModTime = stat.ModTime()
	}
	return w, nil
}

// OnReload registers a callback invoked after each successful reload.
func (w *Watcher) OnReload(fn func(*Catalog)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = fn
}

// Start begins watching. The file's directory is watched so editors that
// replace the file atomically are still noticed.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		log.Warn().Err(err).Str("path", dir).Msg("Failed to watch profile directory; falling back to polling")
		go w.pollForChanges()
		return nil
	}

	go w.watchForChanges()
	log.Info().Str("path", w.path).Msg("Started watching SNMP profile file for changes")
	return nil
}

// Stop stops the watcher. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.watcher.Close()
	})
}

// Reload re-reads the profile file immediately (e.g., from SIGHUP).
func (w *Watcher) Reload() error {
	cat, err := Load(w.path)
	if err != nil {
		log.Error().Err(err).Str("path", w.path).Msg("Failed to reload SNMP profiles; keeping previous catalog")
		return err
	}

	w.factory.Replace(cat)

	w.mu.Lock()
	callback := w.onReload
	if stat, err := os.Stat(w.path); err == nil {
		w.lastModTime = stat.ModTime()
	}
	w.mu.Unlock()

	log.Info().
		Str("path", w.path).
		Int("profiles", len(cat.Profiles)).
		Msg("Reloaded SNMP profiles")

	if callback != nil {
		callback(cat)
	}
	return nil
}

func (w *Watcher) watchForChanges() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			// Debounce - wait a bit for write to complete
			time.Sleep(watchDebounce)
			log.Debug().Str("event", event.Op.String()).Msg("Detected profile file change")
			_ = w.Reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Profile watcher error")

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) pollForChanges() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stat, err := os.Stat(w.path)
			if err != nil {
				continue
			}
			w.mu.Lock()
			changed := stat.ModTime().After(w.lastModTime)
			if changed {
				w.lastModTime = stat.ModTime()
			}
			w.mu.Unlock()
			if changed {
				log.Info().Msg("Detected profile file change via polling")
				_ = w.Reload()
			}

		case <-w.stopChan:
			return
		}
	}
}
