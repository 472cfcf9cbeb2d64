// Package server exposes the websocket endpoint clients stream audio to.
//
// Every connection owns one [Session]. The session reads JSON control
// messages (start, chunk, end, shutdown), feeds decoded audio into its
// [window.Buffer] and sends one result message per processed window.
//
// Message handling is strictly sequential per connection: a chunk that
// triggers a window blocks the read loop until the window is processed.
// Sessions share one worker, and the worker bridge serialises their
// submissions.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/hlt-mt/smarterp/internal/observe"
	"github.com/hlt-mt/smarterp/internal/oracle"
	"github.com/hlt-mt/smarterp/internal/translate"
	"github.com/hlt-mt/smarterp/internal/window"
)

// defaultReadLimit bounds a single client message. A ten second chunk of
// 16 kHz mono PCM is about 430 KiB once base64 encoded.
const defaultReadLimit = 16 << 20

// ErrClosed is returned when a connection arrives after [Server.Close].
var ErrClosed = errors.New("server: closed")

// Processor turns one window into a result. [*translate.Processor]
// implements it.
type Processor interface {
	Process(ctx context.Context, req translate.Request) (translate.Output, error)
}

// Worker is the part of the worker bridge sessions need for teardown.
// [*worker.Bridge] implements it.
type Worker interface {
	RemoveArtifact() error
	Shutdown(ctx context.Context) error
}

// GlossaryReleaser drops a cached glossary snapshot. [*glossary.Cache]
// implements it.
type GlossaryReleaser interface {
	Release(path string)
}

// SessionInfo describes an open session.
type SessionInfo struct {
	ID        string
	Remote    string
	StartedAt time.Time
	SrcLang   string
	TgtLang   string
}

// Option is a functional option for [New].
type Option func(*Server)

// WithParams sets the window parameters for new sessions. Default: 1.5 s
// step, 10 s window, 16 kHz 16-bit mono.
func WithParams(p window.Params) Option {
	return func(s *Server) { s.initial = p }
}

// WithArtifactDir sets the directory session glossary files are written to.
// Default: [os.TempDir].
func WithArtifactDir(dir string) Option {
	return func(s *Server) { s.artifactDir = dir }
}

// WithGlossaries releases each session's glossary snapshot on teardown.
func WithGlossaries(g GlossaryReleaser) Option {
	return func(s *Server) { s.glossaries = g }
}

// WithShutdownFunc is called once after a client sent the shutdown action and
// the worker was told to exit.
func WithShutdownFunc(fn func()) Option {
	return func(s *Server) { s.onShutdown = fn }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithOriginPatterns restricts the accepted Origin headers. Without patterns
// every origin is accepted.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.origins = patterns }
}

// WithLanguages sets the predicate a start message's src and tgt must pass.
// Default: the languages the entity oracle knows.
func WithLanguages(supported func(lang string) bool) Option {
	return func(s *Server) { s.supported = supported }
}

// WithReadLimit sets the maximum size of one client message in bytes.
func WithReadLimit(n int64) Option {
	return func(s *Server) { s.readLimit = n }
}

// Server is an [http.Handler] that upgrades requests to websocket sessions.
// All exported methods are safe for concurrent use.
type Server struct {
	proc       Processor
	worker     Worker
	glossaries GlossaryReleaser
	metrics    *observe.Metrics

	initial     window.Params
	params      atomic.Pointer[window.Params]
	artifactDir string
	origins     []string
	readLimit   int64
	supported   func(lang string) bool

	onShutdown   func()
	shutdownOnce sync.Once

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

var _ http.Handler = (*Server)(nil)

// New returns a Server that processes windows with proc. It returns an error
// when the window parameters are invalid.
func New(proc Processor, w Worker, opts ...Option) (*Server, error) {
	s := &Server{
		proc:   proc,
		worker: w,
		initial: window.Params{
			StepSeconds:    window.DefaultStepSeconds,
			WindowSeconds:  window.DefaultWindowSeconds,
			BytesPerSecond: 16000 * 2,
			FrameSize:      2,
		},
		artifactDir: os.TempDir(),
		readLimit:   defaultReadLimit,
		supported:   oracleLanguage,
		sessions:    make(map[string]*Session),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if err := s.SetParams(s.initial); err != nil {
		return nil, err
	}
	return s, nil
}

func oracleLanguage(lang string) bool {
	_, ok := oracle.LangCode(lang)
	return ok
}

// SetParams replaces the window parameters. Sessions started afterwards use
// the new values; running sessions keep theirs.
func (s *Server) SetParams(p window.Params) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	s.params.Store(&p)
	return nil
}

// Params returns the window parameters new sessions start with.
func (s *Server) Params() window.Params { return *s.params.Load() }

// ServeHTTP accepts the websocket handshake and runs the session until the
// client disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     s.origins,
		InsecureSkipVerify: len(s.origins) == 0,
	})
	if err != nil {
		slog.Warn("server: websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(s.readLimit)

	sess, err := s.open(conn, r.RemoteAddr)
	if err != nil {
		_ = conn.Close(websocket.StatusTryAgainLater, "server shutting down")
		return
	}
	defer s.release(sess)

	sess.run(r.Context())
}

func (s *Server) open(conn *websocket.Conn, remote string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	sess := newSession(s, conn, remote)
	s.sessions[sess.id] = sess
	s.metrics.ActiveSessions.Add(context.Background(), 1)
	return sess, nil
}

func (s *Server) release(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.id]; !ok {
		return
	}
	delete(s.sessions, sess.id)
	s.metrics.ActiveSessions.Add(context.Background(), -1)
}

// Sessions returns the open sessions ordered by start time.
func (s *Server) Sessions() []SessionInfo {
	s.mu.Lock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.info())
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b SessionInfo) int { return a.StartedAt.Compare(b.StartedAt) })
	return out
}

// Close rejects new connections and closes every open session with a
// going-away status. It returns when all close handshakes finished or ctx
// expired.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	open := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, sess := range open {
		wg.Go(func() {
			_ = sess.conn.Close(websocket.StatusGoingAway, "server shutting down")
		})
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		for _, sess := range open {
			_ = sess.conn.CloseNow()
		}
		return fmt.Errorf("server: close: %w", ctx.Err())
	}
}

// shutdown stops the worker and notifies the owner. Only the first call has
// an effect.
func (s *Server) shutdown(ctx context.Context) {
	s.shutdownOnce.Do(func() {
		if err := s.worker.Shutdown(ctx); err != nil {
			slog.Warn("server: worker shutdown failed", "err", err)
		}
		if s.onShutdown != nil {
			s.onShutdown()
		}
	})
}
