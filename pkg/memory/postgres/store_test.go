package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/parley/pkg/memory"
	"github.com/MrWong99/parley/pkg/memory/postgres"
)

const testEmbeddingDim = 4

// testDSN returns the test database DSN from the environment, or skips the
// test if PARLEY_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("PARLEY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PARLEY_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cleanPool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect for cleanup: %v", err)
	}
	t.Cleanup(cleanPool.Close)
	for _, stmt := range []string{
		`DROP TABLE IF EXISTS documents`,
		`DROP TABLE IF EXISTS turns`,
	} {
		if _, err := cleanPool.Exec(ctx, stmt); err != nil {
			t.Fatalf("drop schema: %v", err)
		}
	}

	store, err := postgres.NewStore(ctx, dsn, testEmbeddingDim)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestStore_IndexAndSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	docs := []memory.Document{
		{ID: "d1", Source: "faq.md", Content: "horaires d'ouverture", Embedding: []float32{1, 0, 0, 0}},
		{ID: "d2", Source: "faq.md", Content: "tarifs et abonnements", Embedding: []float32{0, 1, 0, 0}},
		{ID: "d3", Source: "faq.md", Content: "adresse et accès", Embedding: []float32{0.9, 0.1, 0, 0}},
	}
	if err := store.IndexDocuments(ctx, docs); err != nil {
		t.Fatalf("IndexDocuments: %v", err)
	}

	n, err := store.CountDocuments(ctx)
	if err != nil {
		t.Fatalf("CountDocuments: %v", err)
	}
	if n != 3 {
		t.Errorf("document count = %d, want 3", n)
	}

	results, err := store.Search(ctx, []float32{1, 0, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Document.ID != "d1" {
		t.Errorf("top result = %s, want d1", results[0].Document.ID)
	}
	if results[0].Score < results[1].Score {
		t.Error("results not ordered by descending score")
	}
	if results[0].Score < 0.99 {
		t.Errorf("identical vector score = %f, want ~1.0", results[0].Score)
	}
}

func TestStore_IndexReplacesExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := memory.Document{ID: "d1", Content: "v1", Embedding: []float32{1, 0, 0, 0}}
	if err := store.IndexDocument(ctx, doc); err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
	doc.Content = "v2"
	if err := store.IndexDocument(ctx, doc); err != nil {
		t.Fatalf("IndexDocument (update): %v", err)
	}

	results, err := store.Search(ctx, []float32{1, 0, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Document.Content != "v2" {
		t.Errorf("upsert did not replace content: %+v", results)
	}
}

func TestStore_TurnLog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	recs := []memory.TurnRecord{
		{SessionID: "s1", UserText: "bonjour", ReplyText: "Bonjour!", FastPath: "greeting"},
		{SessionID: "s1", UserText: "quels sont les horaires", ReplyText: "De 9h à 18h.", Latency: 1200 * time.Millisecond},
		{SessionID: "s2", UserText: "merci", ReplyText: "Avec plaisir!", FastPath: "thanks"},
	}
	for _, rec := range recs {
		if err := store.AppendTurn(ctx, rec); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}

	got, err := store.RecentTurns(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("turns for s1 = %d, want 2", len(got))
	}
	if got[0].UserText != "quels sont les horaires" {
		t.Errorf("newest turn first: got %q", got[0].UserText)
	}
	if got[0].Latency != 1200*time.Millisecond {
		t.Errorf("latency round-trip = %v, want 1.2s", got[0].Latency)
	}
	if got[1].FastPath != "greeting" {
		t.Errorf("fast path = %q, want greeting", got[1].FastPath)
	}
}
