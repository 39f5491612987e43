package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file when it changes and pushes the diff to a
// callback, typically Manager.UpdateConfig. Reload failures (unparseable or
// invalid content) keep the previous configuration and invoke the error
// callback instead.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher

	onPatch func(Patch)
	onError func(error)

	mu      sync.Mutex
	current *Config
	stopCh  chan struct{}
	stopped bool
}

// NewWatcher creates a watcher for the given config file. The file's
// directory is watched rather than the file itself, so atomic
// rename-over-save (the common editor behavior) is still observed.
func NewWatcher(path string, onPatch func(Patch)) (*Watcher, error) {
	initial, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, err
	}

	return &Watcher{
		path:    path,
		watcher: fw,
		onPatch: onPatch,
		current: initial,
		stopCh:  make(chan struct{}),
	}, nil
}

// SetErrorCallback sets the callback invoked when a reload fails.
func (w *Watcher) SetErrorCallback(cb func(error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = cb
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	cfg := *w.current
	return &cfg
}

// Start begins watching for config file changes.
func (w *Watcher) Start() {
	go w.watchLoop()
}

// Stop stops the watcher and releases the underlying file watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	close(w.stopCh)
	_ = w.watcher.Close()
}

// watchLoop processes filesystem events.
func (w *Watcher) watchLoop() {
	// Debounce events - editors often emit several events per save.
	var debounce *time.Timer
	debounceCh := make(chan struct{}, 1)

	for {
		select {
		case <-w.stopCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, func() {
				select {
				case debounceCh <- struct{}{}:
				default:
				}
			})

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}

		case <-debounceCh:
			w.reload()
		}
	}
}

// reload re-reads the config file and pushes the diff to the callback.
func (w *Watcher) reload() {
	updated, err := LoadFile(w.path)
	if err != nil {
		w.mu.Lock()
		cb := w.onError
		w.mu.Unlock()
		if cb != nil {
			cb(err)
		}
		return
	}

	w.mu.Lock()
	patch := Diff(w.current, updated)
	w.current = updated
	cb := w.onPatch
	w.mu.Unlock()

	if cb != nil && !patch.empty() {
		cb(patch)
	}
}

// empty reports whether the patch changes nothing.
func (p Patch) empty() bool {
	return p.GracefulTimeout == nil &&
		p.ForceTimeout == nil &&
		p.MaxRetries == nil &&
		p.RetryDelay == nil &&
		p.DetectHandles == nil &&
		p.HandleDetectionTimeout == nil &&
		p.StrictMode == nil &&
		p.TypeTimeouts == nil
}
