// Package store defines the persistence interface for processed translation
// windows.
//
// Persistence is optional: [Nop] discards everything and is used when no
// database is configured. The PostgreSQL implementation lives in
// [github.com/hlt-mt/smarterp/internal/store/postgres].
package store

import (
	"context"
	"time"

	"github.com/hlt-mt/smarterp/internal/align"
	"github.com/hlt-mt/smarterp/internal/glossary"
)

// Result is one processed audio window.
type Result struct {
	SessionID string

	// Start and End bound the window in seconds from the session start.
	Start float64
	End   float64

	SrcLang string
	TgtLang string

	Score       float64
	Transcript  string
	Translation string
	Entities    []align.Pair
	Terms       []glossary.Term

	CreatedAt time.Time
}

// Recorder persists results. Implementations must be safe for concurrent
// use.
type Recorder interface {
	Record(ctx context.Context, r Result) error
}

// Store is a Recorder that can also read results back and report its own
// health.
type Store interface {
	Recorder

	// Recent returns up to limit results of sessionID, newest window last.
	Recent(ctx context.Context, sessionID string, limit int) ([]Result, error)

	// Ping checks connectivity to the backing database.
	Ping(ctx context.Context) error

	// Close releases all resources.
	Close()
}

// Nop is a Store that keeps nothing.
type Nop struct{}

var _ Store = Nop{}

func (Nop) Record(context.Context, Result) error { return nil }
func (Nop) Recent(context.Context, string, int) ([]Result, error) { return []Result{}, nil }
func (Nop) Ping(context.Context) error { return nil }
func (Nop) Close() {}
