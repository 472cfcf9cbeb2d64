// Package mock provides a test double for the worker.Transport interface.
//
// Transport behaves like a worker process that has already reported
// readiness. Every request is decoded and recorded, together with the size
// of the WAV artifact it references, so tests can verify which audio slices
// were submitted.
//
// Example:
//
//	tr := &mock.Transport{Reply: mock.OKReply("<PERSON>Ana</PERSON>", "<PERSON>Ana</PERSON>")}
//	b := worker.NewBridge(tr, filepath.Join(t.TempDir(), "a.wav"))
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/hlt-mt/smarterp/internal/worker"
	"github.com/hlt-mt/smarterp/pkg/wav"
)

// Call records a single RoundTrip.
type Call struct {
	// Request is the decoded request line.
	Request worker.Request
	// Raw is the request line as sent.
	Raw string
	// PCMBytes is the payload size of the artifact at Request.WavPath when
	// the request arrived, or -1 if it could not be read.
	PCMBytes int
}

// Transport is a mock implementation of worker.Transport.
type Transport struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Reply is returned by RoundTrip when ReplyFunc is nil. If both are nil a
	// minimal valid reply is returned.
	Reply []byte

	// ReplyFunc, if set, computes the reply for each request.
	ReplyFunc func(req worker.Request) ([]byte, error)

	// RoundTripErr, if non-nil, is returned by RoundTrip.
	RoundTripErr error

	// Dead makes Alive report false.
	Dead bool

	// --- Call records ---

	// Calls records every RoundTrip in order.
	Calls []Call

	// Sent records every line passed to Send.
	Sent []string
}

var _ worker.Transport = (*Transport)(nil)

// OKReply returns a status-0 reply carrying transcript and translation.
func OKReply(transcript, translation string) []byte {
	b, _ := json.Marshal(map[string]any{
		"status":      0,
		"score":       0.9,
		"transcript":  transcript,
		"translation": translation,
		"nes":         [][]string{},
		"terms":       [][]string{},
	})
	return b
}

// RoundTrip records the request and returns the configured reply.
func (t *Transport) RoundTrip(_ context.Context, line []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var req worker.Request
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, fmt.Errorf("mock worker: bad request %q: %w", line, err)
	}
	call := Call{Request: req, Raw: string(line), PCMBytes: -1}
	if data, err := os.ReadFile(req.WavPath); err == nil {
		if pcm, err := wav.PCM(data); err == nil {
			call.PCMBytes = len(pcm)
		}
	}
	t.Calls = append(t.Calls, call)

	if t.RoundTripErr != nil {
		return nil, t.RoundTripErr
	}
	if t.ReplyFunc != nil {
		return t.ReplyFunc(req)
	}
	if t.Reply != nil {
		return t.Reply, nil
	}
	return OKReply("", ""), nil
}

// Send records line.
func (t *Transport) Send(_ context.Context, line []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Sent = append(t.Sent, string(line))
	return nil
}

// Alive reports !Dead.
func (t *Transport) Alive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.Dead
}

// SetDead changes the liveness reported by Alive. Thread-safe.
func (t *Transport) SetDead(dead bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Dead = dead
}

// Snapshot returns a copy of the recorded calls. Thread-safe.
func (t *Transport) Snapshot() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Call, len(t.Calls))
	copy(out, t.Calls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = nil
	t.Sent = nil
}
