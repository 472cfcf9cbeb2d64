package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/hlt-mt/smarterp/internal/window"
)

// Reloader applies the settings that change without a restart.
type Reloader interface {
	// SetLogLevel switches the process log level.
	SetLogLevel(LogLevel)

	// SetParams replaces the window parameters of sessions started
	// afterwards. Running sessions keep theirs.
	SetParams(window.Params) error
}

// Watcher keeps the running configuration in step with its YAML file.
//
// A changed file is loaded, passed through the overlay, validated and
// diffed against the active configuration. Log level and window changes go
// to a [Reloader]; everything else is logged as waiting for a restart.
// A file that fails any of these steps leaves the active configuration in
// place and is not retried until its content changes again.
type Watcher struct {
	path     string
	interval time.Duration
	overlay  func(*Config)

	// format is the sample layout the process started with. A new one only
	// takes effect after a restart, so reloaded windows keep this one.
	format AudioConfig

	mu     sync.Mutex
	active *Config
	seen   [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default: 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithOverlay runs fn on every loaded config before it is validated. The
// command-line flags use it to keep precedence over the file.
func WithOverlay(fn func(*Config)) WatcherOption {
	return func(w *Watcher) { w.overlay = fn }
}

// NewWatcher loads path and returns a Watcher holding it as the active
// configuration. Polling starts with [Watcher.Watch].
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: 5 * time.Second}
	for _, o := range opts {
		o(w)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := w.parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	w.active = cfg
	w.format = cfg.Audio
	w.seen = sha256.Sum256(data)
	return w, nil
}

// Current returns the active configuration. It must not be modified.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Watch polls the file until ctx is done and applies each change to r.
func (w *Watcher) Watch(ctx context.Context, r Reloader) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := w.Check(r); err != nil {
				slog.Warn("config reload rejected", "path", w.path, "err", err)
			}
		}
	}
}

// Check reads the file once. If its content changed since the last check
// it is applied to r and the returned diff describes the change. An error
// means the active configuration was kept.
//
// r is called with the watcher locked and must not call back into it.
func (w *Watcher) Check(r Reloader) (ConfigDiff, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return ConfigDiff{}, fmt.Errorf("config: %w", err)
	}
	sum := sha256.Sum256(data)

	w.mu.Lock()
	defer w.mu.Unlock()

	if sum == w.seen {
		return ConfigDiff{}, nil
	}
	w.seen = sum

	next, err := w.parse(data)
	if err != nil {
		return ConfigDiff{}, err
	}

	d := Diff(w.active, next)
	if d.AudioChanged {
		a := w.format
		a.StepSeconds, a.WindowSeconds = d.NewAudio.StepSeconds, d.NewAudio.WindowSeconds
		if err := r.SetParams(a.Params()); err != nil {
			return ConfigDiff{}, fmt.Errorf("config: window: %w", err)
		}
		slog.Info("window parameters updated", "step_seconds", a.StepSeconds, "window_seconds", a.WindowSeconds)
	}
	if d.LogLevelChanged {
		r.SetLogLevel(d.NewLogLevel)
		slog.Info("log level updated", "level", d.NewLogLevel)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}

	w.active = next
	return d, nil
}

func (w *Watcher) parse(data []byte) (*Config, error) {
	cfg, err := loadBytes(data)
	if err != nil {
		return nil, err
	}
	if w.overlay == nil {
		return cfg, nil
	}
	w.overlay(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
