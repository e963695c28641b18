// Package bootstrap loads the gateway's YAML configuration into a
// config.Snapshot and watches it for changes, republishing a freshly
// validated snapshot to the Router on every edit. This lives outside the
// core (spec.md §2-§4): the core only ever consumes a config.Snapshot, it
// never reads a file itself.
//
// Grounded in the teacher's pkg/controlplane/runtime.SettingsWatcher: an
// atomic-swap cache kept current by a background goroutine, except here
// the trigger is a filesystem event (fsnotify) rather than a DB poll
// ticker, and env vars can override individual keys the way the teacher's
// own config layer does.
package bootstrap

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/juliencr/xtouch-gw/internal/config"
	"github.com/juliencr/xtouch-gw/internal/logger"
)

// EnvPrefix is the prefix viper uses for environment-variable overrides,
// e.g. XTOUCHGW_SURFACE_MODE overrides surface.mode.
const EnvPrefix = "XTOUCHGW"

// SnapshotReceiver is the subset of *router.Router's interface bootstrap
// needs to republish a reloaded snapshot. Declared locally (rather than
// importing internal/router) so bootstrap has no dependency on the core's
// wiring — it only needs somewhere to push a new config.Snapshot.
type SnapshotReceiver interface {
	UpdateSnapshot(snap config.Snapshot) error
}

// Loader reads the gateway's YAML config file via viper, decodes it into a
// config.Snapshot, and validates it. It holds no mutable state of its own;
// Watcher layers the atomic-cache/fsnotify behavior on top.
type Loader struct {
	v *viper.Viper
}

// NewLoader constructs a Loader reading path. path's extension selects the
// viper decoder (".yaml"/".yml" are the supported, documented format).
func NewLoader(path string) *Loader {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load reads and decodes the config file into a validated config.Snapshot.
func (l *Loader) Load() (config.Snapshot, error) {
	if err := l.v.ReadInConfig(); err != nil {
		return config.Snapshot{}, fmt.Errorf("bootstrap: reading config: %w", err)
	}
	var snap config.Snapshot
	if err := l.v.Unmarshal(&snap); err != nil {
		return config.Snapshot{}, fmt.Errorf("bootstrap: decoding config: %w", err)
	}
	if err := snap.Validate(); err != nil {
		return config.Snapshot{}, err
	}
	return snap, nil
}

// Watcher polls the filesystem for changes to the loaded config file (via
// fsnotify) and republishes a freshly loaded, freshly validated snapshot
// to receiver on every change. A reload that fails validation is logged
// and discarded — the previously published snapshot keeps serving, exactly
// as the teacher's poll loop leaves the last-good cache in place on a
// transient DB error.
type Watcher struct {
	loader   *Loader
	receiver SnapshotReceiver

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher constructs a Watcher over loader, publishing every reload to
// receiver.
func NewWatcher(loader *Loader, receiver SnapshotReceiver) *Watcher {
	return &Watcher{loader: loader, receiver: receiver}
}

// Start performs the initial load, publishes it to the receiver, then
// launches the background fsnotify watch goroutine. The returned error is
// from the initial load only; reload failures after Start are logged, not
// returned.
func (w *Watcher) Start(path string) error {
	snap, err := w.loader.Load()
	if err != nil {
		return err
	}
	if err := w.receiver.UpdateSnapshot(snap); err != nil {
		return fmt.Errorf("bootstrap: publishing initial snapshot: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("bootstrap: creating fsnotify watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return fmt.Errorf("bootstrap: watching %s: %w", path, err)
	}

	w.mu.Lock()
	w.watcher = fw
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.run(fw)
	return nil
}

func (w *Watcher) run(fw *fsnotify.Watcher) {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			logger.Warn("config watcher error", logger.Err(err))
		}
	}
}

func (w *Watcher) reload() {
	snap, err := w.loader.Load()
	if err != nil {
		logger.Warn("config reload failed, keeping previous snapshot", logger.Err(err))
		return
	}
	if err := w.receiver.UpdateSnapshot(snap); err != nil {
		logger.Warn("config reload rejected by router, keeping previous snapshot", logger.Err(err))
		return
	}
	logger.Info("config reloaded")
}

// Stop closes the fsnotify watcher and waits for the background goroutine
// to exit. Safe to call even if Start was never called or failed.
func (w *Watcher) Stop() {
	w.mu.Lock()
	fw := w.watcher
	done := w.done
	w.mu.Unlock()
	if fw == nil {
		return
	}
	fw.Close()
	if done != nil {
		<-done
	}
}
