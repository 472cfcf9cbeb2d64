// Package app wires all smarterp subsystems into a running application.
//
// The App struct owns the full lifecycle: New starts the worker and connects
// every collaborator, Run serves HTTP until the context is cancelled or a
// client requests shutdown, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithTransport,
// WithOracle, WithStore, ...). When an option is not provided, New creates
// the real implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hlt-mt/smarterp/internal/align"
	"github.com/hlt-mt/smarterp/internal/config"
	"github.com/hlt-mt/smarterp/internal/glossary"
	"github.com/hlt-mt/smarterp/internal/health"
	"github.com/hlt-mt/smarterp/internal/ner"
	"github.com/hlt-mt/smarterp/internal/observe"
	"github.com/hlt-mt/smarterp/internal/oracle"
	"github.com/hlt-mt/smarterp/internal/resilience"
	"github.com/hlt-mt/smarterp/internal/server"
	"github.com/hlt-mt/smarterp/internal/store"
	"github.com/hlt-mt/smarterp/internal/store/postgres"
	"github.com/hlt-mt/smarterp/internal/translate"
	"github.com/hlt-mt/smarterp/internal/window"
	"github.com/hlt-mt/smarterp/internal/worker"
	"github.com/hlt-mt/smarterp/pkg/wav"
)

// readHeaderTimeout bounds how long a client may take to send request
// headers, websocket upgrades included.
const readHeaderTimeout = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	metrics *observe.Metrics

	// Subsystems, initialised in New and torn down in Shutdown.
	transport   worker.Transport
	bridge      *worker.Bridge
	oracle      oracle.Provider
	breakers    health.BreakerStates
	results     store.Store
	glossaries  *glossary.Cache
	processor   *translate.Processor
	server      *server.Server
	health      *health.Handler
	metricsHTTP http.Handler
	handler     http.Handler

	httpMu      sync.Mutex
	httpServers []*http.Server

	// stopRequested is closed when a client sends the shutdown action.
	stopRequested chan struct{}
	requestOnce   sync.Once

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithTransport injects a worker transport instead of spawning
// worker.command. The caller keeps ownership of t.
func WithTransport(t worker.Transport) Option {
	return func(a *App) { a.transport = t }
}

// WithOracle injects the linked-data provider instead of building clients
// from oracle.urls.
func WithOracle(p oracle.Provider) Option {
	return func(a *App) { a.oracle = p }
}

// WithStore injects a result store instead of connecting to
// store.postgres_dsn. The caller keeps ownership of s.
func WithStore(s store.Store) Option {
	return func(a *App) { a.results = s }
}

// WithMetrics sets the metrics instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h at /metrics, on server.metrics_addr when set
// and on the main listener otherwise.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHTTP = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together.
//
// New performs all initialisation synchronously: worker start-up and
// warm-up, oracle and store connection, and HTTP route registration. On
// error everything started so far is released again.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	a := &App{
		cfg:           cfg,
		stopRequested: make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	defer func() {
		if err != nil {
			a.runClosers(context.Background())
		}
	}()

	// ── 1. Worker ────────────────────────────────────────────────────────
	if err := a.initWorker(ctx); err != nil {
		return nil, fmt.Errorf("app: init worker: %w", err)
	}

	// ── 2. Oracle ────────────────────────────────────────────────────────
	if err := a.initOracle(); err != nil {
		return nil, fmt.Errorf("app: init oracle: %w", err)
	}

	// ── 3. Result store ──────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 4. Processing pipeline ───────────────────────────────────────────
	a.initProcessor()

	// ── 5. Session server ────────────────────────────────────────────────
	if err := a.initServer(); err != nil {
		return nil, fmt.Errorf("app: init server: %w", err)
	}

	// ── 6. HTTP routes ───────────────────────────────────────────────────
	a.initRoutes()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) artifactDir() string {
	if a.cfg.Worker.ArtifactDir != "" {
		return a.cfg.Worker.ArtifactDir
	}
	return os.TempDir()
}

// initWorker starts the worker process unless a transport was injected,
// then builds the bridge and runs the warm-up.
func (a *App) initWorker(ctx context.Context) error {
	if a.transport == nil {
		p, err := worker.StartProcess(ctx, a.cfg.Worker.Command,
			worker.WithReadyTimeout(a.cfg.Worker.ReadyTimeout))
		if err != nil {
			return err
		}
		a.transport = p
		a.closers = append(a.closers, p.Close)
	}

	audio := a.cfg.Audio
	artifact := filepath.Join(a.artifactDir(), fmt.Sprintf("smarterp.%d.wav", os.Getpid()))
	a.bridge = worker.NewBridge(a.transport, artifact,
		worker.WithFormat(wav.Format{
			SampleRate: audio.SampleRate,
			Channels:   audio.FrameSize * 8 / wav.BitsPerSample,
		}),
		worker.WithAudioBackup(a.cfg.Worker.SaveAudio),
		worker.WithMetrics(a.metrics),
	)
	// Runs before the transport closer so the artifact is gone even when the
	// worker never answered a shutdown command.
	a.closers = append([]func() error{a.bridge.RemoveArtifact}, a.closers...)

	if a.cfg.Worker.WarmupWAV == "" {
		return nil
	}
	return worker.Warmup(ctx, a.bridge, worker.WarmupConfig{
		WavPath: a.cfg.Worker.WarmupWAV,
		Seconds: a.cfg.Worker.WarmupSeconds,
		Rounds:  a.cfg.Worker.WarmupRounds,
	})
}

// initOracle builds one client per oracle URL, each behind its own circuit
// breaker, in configuration order.
func (a *App) initOracle() error {
	if a.oracle != nil {
		return nil
	}
	if len(a.cfg.Oracle.URLs) == 0 {
		if a.cfg.Alignment.Enabled {
			return errors.New("alignment is enabled but no oracle is configured")
		}
		return nil
	}

	var group *resilience.OracleFallback
	for _, u := range a.cfg.Oracle.URLs {
		c, err := oracle.New(u,
			oracle.WithTimeout(a.cfg.Oracle.Timeout),
			oracle.WithMetrics(a.metrics),
		)
		if err != nil {
			return err
		}
		if group == nil {
			group = resilience.NewOracleFallback(c, c.Name(), resilience.FallbackConfig{
				CircuitBreaker: a.cfg.Oracle.CircuitBreaker.Resilience(c.Name()),
			})
			continue
		}
		group.AddFallback(c.Name(), c)
	}
	a.oracle = group
	a.breakers = group
	slog.Info("oracle configured", "endpoints", len(a.cfg.Oracle.URLs))
	return nil
}

// initStore connects the PostgreSQL result log, or discards results when no
// DSN is configured.
func (a *App) initStore(ctx context.Context) error {
	if a.results != nil {
		return nil
	}
	if a.cfg.Store.PostgresDSN == "" {
		a.results = store.Nop{}
		return nil
	}
	s, err := postgres.NewStore(ctx, a.cfg.Store.PostgresDSN)
	if err != nil {
		return err
	}
	a.results = s
	a.closers = append(a.closers, func() error {
		s.Close()
		return nil
	})
	return nil
}

func (a *App) initProcessor() {
	al := a.cfg.Alignment
	a.glossaries = glossary.NewCache()
	a.processor = translate.New(a.bridge, ner.NewResolver(a.oracle),
		translate.WithAligner(align.New(
			align.WithFuzzyFloor(al.FuzzyFloor),
			align.WithNumerals(al.ConvertNumerals),
			align.WithMetrics(a.metrics),
		)),
		translate.WithMatcher(glossary.NewMatcher(
			glossary.WithThreshold(al.TermThreshold),
			glossary.WithMetrics(a.metrics),
		)),
		translate.WithGlossaries(a.glossaries),
		translate.WithRecorder(a.results),
		translate.WithAlignment(al.Enabled),
		translate.WithTranscriptOnlyTerms(al.TermsFromTranscriptOnly),
	)
}

func (a *App) initServer() error {
	srv, err := server.New(a.processor, a.bridge,
		server.WithParams(a.cfg.Audio.Params()),
		server.WithArtifactDir(a.artifactDir()),
		server.WithGlossaries(a.glossaries),
		server.WithShutdownFunc(a.requestStop),
		server.WithMetrics(a.metrics),
		server.WithOriginPatterns(a.cfg.Server.OriginPatterns...),
	)
	if err != nil {
		return err
	}
	a.server = srv
	return nil
}

func (a *App) initRoutes() {
	checkers := []health.Checker{
		health.WorkerChecker(a.bridge),
		health.StoreChecker(a.results),
	}
	if a.breakers != nil {
		checkers = append(checkers, health.BreakerChecker("oracle", a.breakers))
	}
	a.health = health.New(checkers...)

	mux := http.NewServeMux()
	mux.Handle("/ws", a.server)
	a.health.Register(mux)
	mux.HandleFunc("GET /sessions", a.listSessions)
	mux.HandleFunc("GET /sessions/{id}/results", a.sessionResults)
	if a.metricsHTTP != nil && a.cfg.Server.MetricsAddr == "" {
		mux.Handle("GET /metrics", a.metricsHTTP)
	}
	a.handler = observe.Middleware(a.metrics)(mux)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the root HTTP handler: the websocket endpoint at /ws plus
// the health, session and (optionally) metrics routes.
func (a *App) Handler() http.Handler { return a.handler }

// Server returns the websocket session server.
func (a *App) Server() *server.Server { return a.server }

// Done is closed once a client has requested shutdown.
func (a *App) Done() <-chan struct{} { return a.stopRequested }

func (a *App) requestStop() {
	a.requestOnce.Do(func() {
		slog.Info("shutdown requested by client")
		close(a.stopRequested)
	})
}

// SetParams changes the window parameters of sessions started afterwards.
// Together with a log level setter it serves as the [config.Reloader] of a
// running process.
func (a *App) SetParams(p window.Params) error {
	if err := a.server.SetParams(p); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on server.listen_addr (with TLS when configured) and, if
// set, the metrics endpoint on server.metrics_addr. It blocks until ctx is
// cancelled, a client requests shutdown, or a listener fails.
//
// Run returns nil after a client shutdown request and ctx.Err() after
// cancellation.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	srv := a.newHTTPServer(a.handler)
	go func() {
		if tls := a.cfg.Server.TLS; tls != nil {
			errCh <- srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- srv.Serve(ln)
	}()
	slog.Info("listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)

	if addr := a.cfg.Server.MetricsAddr; addr != "" && a.metricsHTTP != nil {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", a.metricsHTTP)
		msrv := a.newHTTPServer(mux)
		msrv.Addr = addr
		go func() { errCh <- msrv.ListenAndServe() }()
		slog.Info("metrics listening", "addr", addr)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.stopRequested:
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

func (a *App) newHTTPServer(h http.Handler) *http.Server {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	a.httpMu.Lock()
	a.httpServers = append(a.httpServers, srv)
	a.httpMu.Unlock()
	return srv
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown closes all websocket sessions, stops the HTTP listeners and then
// tears down the subsystems in order. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "sessions", len(a.server.Sessions()), "closers", len(a.closers))

		if err := a.server.Close(ctx); err != nil {
			slog.Warn("session server close error", "err", err)
		}

		a.httpMu.Lock()
		servers := a.httpServers
		a.httpMu.Unlock()
		for _, srv := range servers {
			if err := srv.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
			}
		}

		shutdownErr = a.runClosers(ctx)
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) runClosers(ctx context.Context) error {
	for i, closer := range a.closers {
		select {
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
			return ctx.Err()
		default:
		}
		if err := closer(); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
		}
	}
	return nil
}
