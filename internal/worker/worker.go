// Package worker bridges audio slices to the external speech-translation
// worker.
//
// The worker is a single long-running process that reads one JSON request
// per line and writes one JSON reply per line. A request references the
// audio by path: the [Bridge] writes each slice as a WAV artifact to a fixed
// location before issuing the request. The worker is single-threaded at the
// protocol level and all sessions share one artifact path, so the Bridge
// admits one submission at a time.
//
// Submissions are never retried. [ErrWorkerUnavailable] means the process is
// gone or the pipe broke, and [*ProtocolError] means a reply was received but
// could not be understood. A canceled or expired caller context is returned
// as is.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/hlt-mt/smarterp/internal/observe"
	"github.com/hlt-mt/smarterp/internal/window"
	"github.com/hlt-mt/smarterp/pkg/wav"
)

// ErrWorkerUnavailable is returned when the worker process is not running or
// its pipe is broken.
var ErrWorkerUnavailable = errors.New("worker: unavailable")

// ProtocolError reports a worker reply that is not JSON or lacks a required
// field.
type ProtocolError struct {
	Reply  string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("worker: protocol error: %s (reply %q)", e.Reason, truncate(e.Reply, 120))
}

// Transport carries one request line to the worker and returns its reply
// line. Implementations must not add or expect the trailing newline.
type Transport interface {
	// RoundTrip writes line and blocks until one reply line is read.
	RoundTrip(ctx context.Context, line []byte) ([]byte, error)

	// Send writes line without waiting for a reply.
	Send(ctx context.Context, line []byte) error

	// Alive reports whether the worker can still accept requests.
	Alive() bool
}

// Request is the JSON line sent to the worker.
type Request struct {
	WavPath    string `json:"wav_path"`
	SrcLang    string `json:"src_lang"`
	TgtLang    string `json:"tgt_lang"`
	Dictionary string `json:"dictionary,omitempty"`
}

// Entity is a named-entity pair as reported by the worker itself.
type Entity struct {
	Src  string `json:"src"`
	Tgt  string `json:"tgt"`
	Type string `json:"type"`
}

// Term is a glossary term pair as reported by the worker itself.
type Term struct {
	Src string `json:"src"`
	Tgt string `json:"tgt"`
}

// Result is one decoded worker reply. Transcript and Translation carry the
// worker's inline <TYPE>...</TYPE> entity tags.
type Result struct {
	Status      int
	Score       float64
	Transcript  string
	Translation string

	// Entities and Terms are the worker's own alignment, when it reports one.
	Entities []Entity
	Terms    []Term
}

// reply mirrors the wire format. Pointers distinguish absent fields from
// zero values.
type reply struct {
	Status      *int       `json:"status"`
	Score       *float64   `json:"score"`
	Translation *string    `json:"translation"`
	Transcript  *string    `json:"transcript"`
	NEs         [][]string `json:"nes"`
	Terms       [][]string `json:"terms"`
}

// shutdownCommand asks the worker process to exit.
var shutdownCommand = []byte(`{"command": "shutdown"}`)

// Bridge submits audio slices to the worker. It is safe for concurrent use;
// submissions are serialised.
type Bridge struct {
	transport    Transport
	artifactPath string
	format       wav.Format
	saveAudio    bool
	metrics      *observe.Metrics

	mu sync.Mutex
}

// Option is a functional option for [NewBridge].
type Option func(*Bridge)

// WithFormat sets the PCM layout written to the artifact header. Default:
// 16 kHz mono.
func WithFormat(f wav.Format) Option {
	return func(b *Bridge) { b.format = f }
}

// WithAudioBackup keeps a copy of every artifact next to it, named
// <artifact>__backup_<end>.wav.
func WithAudioBackup(enabled bool) Option {
	return func(b *Bridge) { b.saveAudio = enabled }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// NewBridge returns a Bridge that writes artifacts to artifactPath and talks
// to the worker over t.
func NewBridge(t Transport, artifactPath string, opts ...Option) *Bridge {
	b := &Bridge{
		transport:    t,
		artifactPath: artifactPath,
		format:       wav.Format{SampleRate: 16000, Channels: 1},
	}
	for _, o := range opts {
		o(b)
	}
	if b.metrics == nil {
		b.metrics = observe.DefaultMetrics()
	}
	return b
}

// ArtifactPath returns the path of the shared WAV artifact.
func (b *Bridge) ArtifactPath() string { return b.artifactPath }

// Alive reports whether the worker can accept submissions.
func (b *Bridge) Alive() bool { return b.transport.Alive() }

// Submit writes slice to the artifact, sends the request and decodes the
// reply. dictionary may be empty.
func (b *Bridge) Submit(ctx context.Context, slice window.Slice, srcLang, tgtLang, dictionary string) (Result, error) {
	ctx, span := observe.StartSpan(ctx, "worker.submit")
	defer span.End()

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.transport.Alive() {
		b.metrics.RecordWorkerRequest(ctx, "unavailable")
		return Result{}, ErrWorkerUnavailable
	}

	start := time.Now()
	if err := b.writeArtifact(slice); err != nil {
		return Result{}, err
	}

	line, err := json.Marshal(Request{
		WavPath:    b.artifactPath,
		SrcLang:    srcLang,
		TgtLang:    tgtLang,
		Dictionary: dictionary,
	})
	if err != nil {
		return Result{}, fmt.Errorf("worker: encode request: %w", err)
	}
	observe.Logger(ctx).Debug("worker request", "request", string(line), "start", slice.Start, "end", slice.End)

	raw, err := b.transport.RoundTrip(ctx, line)
	b.metrics.WorkerDuration.Record(ctx, time.Since(start).Seconds())
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The caller gave up; the worker itself is fine.
		b.metrics.RecordWorkerRequest(ctx, "canceled")
		return Result{}, err
	case errors.Is(err, ErrWorkerUnavailable):
		b.metrics.RecordWorkerRequest(ctx, "unavailable")
		return Result{}, err
	default:
		b.metrics.RecordWorkerRequest(ctx, "unavailable")
		return Result{}, fmt.Errorf("%w: %v", ErrWorkerUnavailable, err)
	}
	observe.Logger(ctx).Debug("worker reply", "reply", string(raw), "elapsed", time.Since(start))

	res, err := decodeReply(raw)
	if err != nil {
		b.metrics.RecordWorkerRequest(ctx, "protocol_error")
		return Result{}, err
	}
	b.metrics.RecordWorkerRequest(ctx, "ok")
	return res, nil
}

// RemoveArtifact deletes the shared artifact. It waits for any in-flight
// submission, so it never removes a file the worker is reading.
func (b *Bridge) RemoveArtifact() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return removeIfExists(b.artifactPath)
}

// Shutdown sends the shutdown command and removes the artifact. The worker is
// not waited for.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	if b.transport.Alive() {
		if err := b.transport.Send(ctx, shutdownCommand); err != nil {
			errs = append(errs, fmt.Errorf("worker: send shutdown: %w", err))
		}
	}
	if err := removeIfExists(b.artifactPath); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (b *Bridge) writeArtifact(slice window.Slice) error {
	data := wav.Encode(slice.Data, b.format)
	if err := os.WriteFile(b.artifactPath, data, 0o600); err != nil {
		return fmt.Errorf("worker: write artifact: %w", err)
	}
	if b.saveAudio {
		backup := b.artifactPath + "__backup_" + strconv.FormatFloat(slice.End, 'f', -1, 64) + ".wav"
		if err := os.WriteFile(backup, data, 0o600); err != nil {
			return fmt.Errorf("worker: write audio backup: %w", err)
		}
	}
	return nil
}

func decodeReply(raw []byte) (Result, error) {
	var r reply
	if err := json.Unmarshal(raw, &r); err != nil {
		return Result{}, &ProtocolError{Reply: string(raw), Reason: "invalid JSON: " + err.Error()}
	}

	var missing []string
	if r.Status == nil {
		missing = append(missing, "status")
	}
	if r.Score == nil {
		missing = append(missing, "score")
	}
	if r.Translation == nil {
		missing = append(missing, "translation")
	}
	if r.Transcript == nil {
		missing = append(missing, "transcript")
	}
	if len(missing) > 0 {
		return Result{}, &ProtocolError{Reply: string(raw), Reason: fmt.Sprintf("missing fields %v", missing)}
	}
	if *r.Status != 0 {
		return Result{}, &ProtocolError{Reply: string(raw), Reason: fmt.Sprintf("worker status %d", *r.Status)}
	}

	res := Result{
		Status:      *r.Status,
		Score:       *r.Score,
		Transcript:  *r.Transcript,
		Translation: *r.Translation,
	}
	for _, ne := range r.NEs {
		if len(ne) < 3 {
			return Result{}, &ProtocolError{Reply: string(raw), Reason: fmt.Sprintf("entity tuple %v has %d fields, want 3", ne, len(ne))}
		}
		res.Entities = append(res.Entities, Entity{Src: ne[0], Tgt: ne[1], Type: ne[2]})
	}
	for _, t := range r.Terms {
		if len(t) < 2 {
			return Result{}, &ProtocolError{Reply: string(raw), Reason: fmt.Sprintf("term tuple %v has %d fields, want 2", t, len(t))}
		}
		res.Terms = append(res.Terms, Term{Src: t[0], Tgt: t[1]})
	}
	return res, nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("worker: remove %s: %w", path, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
