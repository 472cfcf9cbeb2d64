// Package postgres stores processed translation windows in PostgreSQL.
//
// Each window becomes one row of translation_results. Entity and term pairs
// are kept as JSONB so the row mirrors the result message sent to clients.
//
// Usage:
//
//	s, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer s.Close()
//
//	_ = s.Record(ctx, result)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlTranslationResults = `
CREATE TABLE IF NOT EXISTS translation_results (
    id           BIGSERIAL         PRIMARY KEY,
    session_id   TEXT              NOT NULL,
    window_start DOUBLE PRECISION  NOT NULL,
    window_end   DOUBLE PRECISION  NOT NULL,
    src_lang     TEXT              NOT NULL,
    tgt_lang     TEXT              NOT NULL,
    score        DOUBLE PRECISION  NOT NULL,
    transcript   TEXT              NOT NULL,
    translation  TEXT              NOT NULL,
    entities     JSONB             NOT NULL DEFAULT '[]',
    terms        JSONB             NOT NULL DEFAULT '[]',
    created_at   TIMESTAMPTZ       NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_translation_results_session
    ON translation_results (session_id, window_end);
`

// Migrate creates the translation_results table and its index. It is
// idempotent and safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlTranslationResults); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
