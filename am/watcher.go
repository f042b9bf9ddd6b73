package am

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/logger"
)

// ConfigWatcher reloads the configuration when a config file changes
type ConfigWatcher struct {
	configPath     string
	watcher        *fsnotify.Watcher
	callbacks      []ReloadCallback
	mu             sync.RWMutex
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
	ownWrite       bool
	ownWriteMu     sync.Mutex
	done           chan struct{}
}

// ReloadCallback receives the reloaded config
type ReloadCallback func(*Config) error

var (
	globalWatcher   *ConfigWatcher
	globalWatcherMu sync.Mutex
)

// NewConfigWatcher watches the directory holding configPath. Editors replace
// files on save, so watching the file itself would lose it after one write.
func NewConfigWatcher(configPath string) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := w.Add(filepath.Dir(configPath)); err != nil {
		w.Close()
		return nil, errors.Wrapf(err, "failed to watch config file %s", configPath)
	}

	return &ConfigWatcher{
		configPath:     filepath.Clean(configPath),
		watcher:        w,
		debouncePeriod: 500 * time.Millisecond,
		done:           make(chan struct{}),
	}, nil
}

// OnReload registers a callback to be called when config is reloaded
func (cw *ConfigWatcher) OnReload(callback ReloadCallback) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

// MarkOwnWrite makes the watcher skip the next change, used when pulsed writes the file itself
func (cw *ConfigWatcher) MarkOwnWrite() {
	cw.ownWriteMu.Lock()
	defer cw.ownWriteMu.Unlock()
	cw.ownWrite = true
}

func (cw *ConfigWatcher) checkOwnWrite() bool {
	cw.ownWriteMu.Lock()
	defer cw.ownWriteMu.Unlock()
	if cw.ownWrite {
		cw.ownWrite = false
		return true
	}
	return false
}

// Start begins watching for config file changes
func (cw *ConfigWatcher) Start() {
	go cw.watchLoop()
}

func (cw *ConfigWatcher) watchLoop() {
	for {
		select {
		case <-cw.done:
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.configPath || isBackupFile(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if cw.checkOwnWrite() {
				logger.Debugw("Config watcher ignoring own write", logger.FieldPath, event.Name)
				continue
			}
			logger.AddAMSymbol(logger.Logger).Infow("Config watcher detected change",
				logger.FieldPath, event.Name,
				"op", event.Op.String())
			cw.scheduleReload()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnw("Config watcher error", logger.FieldError, err)
		}
	}
}

// scheduleReload debounces bursts of writes into one reload
func (cw *ConfigWatcher) scheduleReload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
	}
	cw.debounceTimer = time.AfterFunc(cw.debouncePeriod, func() {
		if err := cw.reload(); err != nil {
			logger.Errorw("Config reload failed", logger.FieldError, err)
		}
	})
}

// reload re-reads every source and calls the callbacks. An invalid file keeps
// the previous config in effect.
func (cw *ConfigWatcher) reload() error {
	Reset()
	newConfig, err := Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	logger.AddAMSymbol(logger.Logger).Infow("Config reloaded", logger.FieldPath, cw.configPath)

	cw.mu.RLock()
	callbacks := make([]ReloadCallback, len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.RUnlock()

	for _, callback := range callbacks {
		if err := callback(newConfig); err != nil {
			logger.Warnw("Config reload callback error", logger.FieldError, err)
		}
	}
	return nil
}

// Stop stops watching for config changes
func (cw *ConfigWatcher) Stop() error {
	cw.mu.Lock()
	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
	}
	cw.mu.Unlock()
	select {
	case <-cw.done:
		return nil
	default:
		close(cw.done)
	}
	return cw.watcher.Close()
}

// isBackupFile matches the rotating .back1 to .back3 copies written by WriteConfig
func isBackupFile(path string) bool {
	ext := filepath.Ext(path)
	return strings.HasPrefix(ext, ".back") && len(ext) == len(".back1")
}

// SetGlobalWatcher registers the watcher WriteConfig notifies of its own writes
func SetGlobalWatcher(watcher *ConfigWatcher) {
	globalWatcherMu.Lock()
	defer globalWatcherMu.Unlock()
	globalWatcher = watcher
}

// GetGlobalWatcher returns the global watcher instance
func GetGlobalWatcher() *ConfigWatcher {
	globalWatcherMu.Lock()
	defer globalWatcherMu.Unlock()
	return globalWatcher
}
