// Package mock provides an in-memory test double for [store.Store].
//
// The mock records every call and exposes exported fields that control what
// it returns. It is safe for concurrent use.
//
//	s := &mock.Store{}
//	// inject s into the system under test …
//	if got := len(s.Records()); got != 2 {
//	    t.Errorf("expected 2 records, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/hlt-mt/smarterp/internal/store"
)

// Store is a configurable test double for [store.Store].
type Store struct {
	mu sync.Mutex

	records []store.Result
	closed  bool

	// RecordErr is returned by Record when non-nil. The result is still kept.
	RecordErr error

	// PingErr is returned by Ping when non-nil.
	PingErr error
}

var _ store.Store = (*Store)(nil)

// Record stores r.
func (s *Store) Record(_ context.Context, r store.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return s.RecordErr
}

// Recent returns the last limit records of sessionID.
func (s *Store) Recent(_ context.Context, sessionID string, limit int) ([]store.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []store.Result{}
	for _, r := range s.records {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Ping returns PingErr.
func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PingErr
}

// Close marks the store closed.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Records returns a copy of every recorded result.
func (s *Store) Records() []store.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Result, len(s.records))
	copy(out, s.records)
	return out
}

// Closed reports whether Close was called.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
