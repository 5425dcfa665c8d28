package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watcher reloads the daemon configuration when its file changes.
type Watcher struct {
	v         *viper.Viper
	mu        sync.RWMutex
	callbacks []func(*DsfdConfig)
	errorFn   func(error)
	current   *DsfdConfig
}

// NewWatcher creates a watcher for the daemon configuration file.
func NewWatcher(cfgFile string) (*Watcher, error) {
	v := newViper(AppDsfd)
	setViperDefaults(v, DefaultDsfdConfig())

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("watch config: %w", err)
	}

	return &Watcher{v: v}, nil
}

// File returns the watched file.
func (w *Watcher) File() string {
	return w.v.ConfigFileUsed()
}

// OnChange registers a callback that receives each successfully reloaded configuration.
func (w *Watcher) OnChange(fn func(*DsfdConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// OnError registers a callback for reload failures. The previous
// configuration stays in effect.
func (w *Watcher) OnError(fn func(error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.errorFn = fn
}

// Start begins watching for configuration changes.
func (w *Watcher) Start() {
	w.v.OnConfigChange(func(fsnotify.Event) {
		w.handleChange()
	})
	w.v.WatchConfig()
}

// Reload forces a configuration reload.
func (w *Watcher) Reload() error {
	if err := w.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	return w.handleChange()
}

// Current returns the last loaded configuration, or nil before the first change.
func (w *Watcher) Current() *DsfdConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) handleChange() error {
	cfg, err := decode[DsfdConfig](w.v)
	if err == nil {
		cfg.expandPaths()
		err = cfg.Validate()
	}

	w.mu.Lock()
	callbacks := append([]func(*DsfdConfig){}, w.callbacks...)
	errorFn := w.errorFn
	if err == nil {
		w.current = cfg
	}
	w.mu.Unlock()

	if err != nil {
		if errorFn != nil {
			errorFn(err)
		}
		return err
	}
	for _, cb := range callbacks {
		cb(cfg)
	}
	return nil
}
