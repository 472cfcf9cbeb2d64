package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hlt-mt/smarterp/internal/align"
	"github.com/hlt-mt/smarterp/internal/glossary"
	"github.com/hlt-mt/smarterp/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store is a [store.Store] backed by a pgx connection pool. All methods are
// safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, verifies the connection and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Record inserts r. A zero CreatedAt is replaced by the current time.
func (s *Store) Record(ctx context.Context, r store.Result) error {
	const q = `
		INSERT INTO translation_results
		    (session_id, window_start, window_end, src_lang, tgt_lang, score,
		     transcript, translation, entities, terms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	entities := r.Entities
	if entities == nil {
		entities = []align.Pair{}
	}
	terms := r.Terms
	if terms == nil {
		terms = []glossary.Term{}
	}

	_, err := s.pool.Exec(ctx, q,
		r.SessionID,
		r.Start,
		r.End,
		r.SrcLang,
		r.TgtLang,
		r.Score,
		r.Transcript,
		r.Translation,
		entities,
		terms,
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres store: record: %w", err)
	}
	return nil
}

// Recent returns up to limit results of sessionID ordered by window end,
// oldest first. A non-positive limit returns every result.
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]store.Result, error) {
	q := `
		SELECT session_id, window_start, window_end, src_lang, tgt_lang, score,
		       transcript, translation, entities, terms, created_at
		FROM (
		    SELECT * FROM translation_results
		    WHERE  session_id = $1
		    ORDER  BY window_end DESC, id DESC`
	args := []any{sessionID}
	if limit > 0 {
		args = append(args, limit)
		q += `
		    LIMIT $2`
	}
	q += `
		) recent
		ORDER BY window_end, id`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: recent: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Result, error) {
		var r store.Result
		err := row.Scan(
			&r.SessionID,
			&r.Start,
			&r.End,
			&r.SrcLang,
			&r.TgtLang,
			&r.Score,
			&r.Transcript,
			&r.Translation,
			&r.Entities,
			&r.Terms,
			&r.CreatedAt,
		)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan results: %w", err)
	}
	if results == nil {
		results = []store.Result{}
	}
	return results, nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres store: ping: %w", err)
	}
	return nil
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}
