package postgres_test

import (
	"context"
	"os"
	"slices"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hlt-mt/smarterp/internal/align"
	"github.com/hlt-mt/smarterp/internal/glossary"
	"github.com/hlt-mt/smarterp/internal/store"
	"github.com/hlt-mt/smarterp/internal/store/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if SMARTERP_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("SMARTERP_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SMARTERP_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] on a dropped and recreated
// schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS translation_results CASCADE"); err != nil {
		t.Fatalf("drop: %v", err)
	}

	s, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestStore_RecordAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, end := range []float64{1.5, 3, 4.5} {
		r := store.Result{
			SessionID:   "sess-1",
			Start:       0,
			End:         end,
			SrcLang:     "en",
			TgtLang:     "es",
			Score:       float64(i) / 10,
			Transcript:  "<GPE>Rome</GPE>",
			Translation: "<GPE>Roma</GPE>",
			Entities:    []align.Pair{{Source: "Rome", Target: "Roma", Type: "GPE"}},
		}
		if err := s.Record(ctx, r); err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}
	if err := s.Record(ctx, store.Result{SessionID: "other", End: 9}); err != nil {
		t.Fatalf("Record other: %v", err)
	}

	got, err := s.Recent(ctx, "sess-1", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent returned %d results, want 2", len(got))
	}
	if got[0].End != 3 || got[1].End != 4.5 {
		t.Errorf("ends = %v, %v; want 3, 4.5", got[0].End, got[1].End)
	}
	if !slices.Equal(got[1].Entities, []align.Pair{{Source: "Rome", Target: "Roma", Type: "GPE"}}) {
		t.Errorf("entities = %+v", got[1].Entities)
	}
	if got[1].Terms == nil || len(got[1].Terms) != 0 {
		t.Errorf("terms = %#v, want empty", got[1].Terms)
	}
	if got[1].CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	all, err := s.Recent(ctx, "sess-1", 0)
	if err != nil {
		t.Fatalf("Recent all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Recent(0) returned %d results, want 3", len(all))
	}
}

func TestStore_Terms(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	terms := []glossary.Term{{Source: "hundred", Target: "cien"}}
	if err := s.Record(ctx, store.Result{SessionID: "t", End: 1.5, Terms: terms}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, err := s.Recent(ctx, "t", 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || !slices.Equal(got[0].Terms, terms) {
		t.Errorf("Recent = %+v", got)
	}
}

func TestStore_Ping(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestStore_Unknown(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Recent(context.Background(), "nobody", 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Recent = %#v, want empty non-nil", got)
	}
}
