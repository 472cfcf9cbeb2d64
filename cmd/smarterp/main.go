// Command smarterp is the streaming speech-translation server.
//
// It starts the translation worker, warms it up, and then serves the
// websocket session protocol at /ws together with /healthz, /readyz and
// /metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hlt-mt/smarterp/internal/app"
	"github.com/hlt-mt/smarterp/internal/config"
	"github.com/hlt-mt/smarterp/internal/observe"
	"github.com/hlt-mt/smarterp/internal/window"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

// overrides holds the command-line settings that take precedence over the
// config file, including after a hot reload.
type overrides struct {
	debug      bool
	stepSize   float64
	windowSize float64
	saveAudio  bool
}

func (o overrides) apply(cfg *config.Config) {
	if o.debug {
		cfg.Server.LogLevel = config.LogDebug
	}
	if o.stepSize > 0 {
		cfg.Audio.StepSeconds = o.stepSize
	}
	if o.windowSize > 0 {
		cfg.Audio.WindowSeconds = o.windowSize
	}
	if o.saveAudio {
		cfg.Worker.SaveAudio = true
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	var ov overrides
	flag.BoolVar(&ov.debug, "debug", false, "log at debug level regardless of server.log_level")
	flag.Float64Var(&ov.stepSize, "stepsize", 0, "seconds of new audio that trigger a window (overrides audio.step_seconds)")
	flag.Float64Var(&ov.windowSize, "windowsize", 0, "maximum window length in seconds (overrides audio.window_seconds)")
	flag.BoolVar(&ov.saveAudio, "saveaudio", false, "keep a copy of every submitted window next to the artifact")
	flag.Parse()

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so config reloads can change it in place.
	var level slog.LevelVar
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	// ── Load configuration ────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, config.WithOverlay(ov.apply))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "smarterp: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "smarterp: %v\n", err)
		}
		return 1
	}
	cfg := watcher.Current()
	level.Set(slogLevel(cfg.Server.LogLevel))

	slog.Info("smarterp starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"step_seconds", cfg.Audio.StepSeconds,
		"window_seconds", cfg.Audio.WindowSeconds,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Application ───────────────────────────────────────────────────────────
	slog.Info("starting worker", "command", cfg.Worker.Command)
	application, err := app.New(ctx, cfg, app.WithMetricsHandler(tel.Handler))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	go watcher.Watch(ctx, reloader{level: &level, app: application})

	slog.Info("server ready; press Ctrl+C to shut down")

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return code
}

// reloader applies config file changes to the running process.
type reloader struct {
	level *slog.LevelVar
	app   *app.App
}

var _ config.Reloader = reloader{}

func (r reloader) SetLogLevel(l config.LogLevel) { r.level.Set(slogLevel(l)) }

func (r reloader) SetParams(p window.Params) error { return r.app.SetParams(p) }

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
