package config

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/opencode-ai/actiongate/internal/event"
	"github.com/opencode-ai/actiongate/internal/logging"
	"github.com/opencode-ai/actiongate/pkg/types"
)

// Watcher reloads configuration when one of its source files changes.
type Watcher struct {
	watcher   *fsnotify.Watcher
	directory string
	sources   map[string]bool
	bus       *event.Bus
	current   *types.Config
	listeners []func(*types.Config)
	stopCh    chan struct{}
	doneCh    chan struct{}
	started   bool
	mu        sync.RWMutex
}

// NewWatcher creates a config watcher for the project directory. initial is
// the configuration already in effect. Returns nil if none of the source
// directories exist.
func NewWatcher(directory string, initial *types.Config, bus *event.Bus) (*Watcher, error) {
	sources := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, path := range Sources(directory) {
		abs, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		sources[abs] = true
		if info, err := os.Stat(filepath.Dir(abs)); err == nil && info.IsDir() {
			dirs[filepath.Dir(abs)] = true
		}
	}
	if len(dirs) == 0 {
		logging.Debug().Str("directory", directory).Msg("no config directories, config watcher disabled")
		return nil, nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch directories rather than files so editors that replace the file
	// on save are still observed.
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, err
		}
	}

	logging.Info().Int("dirs", len(dirs)).Msg("config watcher initialized")

	return &Watcher{
		watcher:   w,
		directory: directory,
		sources:   sources,
		bus:       bus,
		current:   initial,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// OnChange registers fn to receive every successfully reloaded config.
func (w *Watcher) OnChange(fn func(*types.Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *types.Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins watching for changes.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil || !w.sources[abs] {
				continue
			}
			w.reload(abs)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error().Err(err).Msg("config watcher error")
		}
	}
}

// reload re-runs Load. A config that fails to parse is logged and the
// previous value stays in effect.
func (w *Watcher) reload(path string) {
	cfg, err := Load(w.directory)
	if err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("config reload failed, keeping previous config")
		return
	}

	w.mu.Lock()
	w.current = cfg
	listeners := append([]func(*types.Config){}, w.listeners...)
	w.mu.Unlock()

	logging.Info().Str("path", path).Msg("config reloaded")

	for _, fn := range listeners {
		fn(cfg)
	}

	if w.bus != nil {
		w.bus.Publish(event.Event{
			Type: event.ConfigReloaded,
			Data: event.ConfigReloadedData{Path: path},
		})
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}

	if started {
		<-w.doneCh
	}

	return w.watcher.Close()
}
