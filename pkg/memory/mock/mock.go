// Package mock provides in-memory test doubles for the memory interfaces.
//
// Store implements both memory.DocumentStore and memory.TurnLog with
// brute-force cosine search, suitable for unit tests that need retrieval
// semantics without a database.
package mock

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/MrWong99/parley/pkg/memory"
)

// Compile-time interface checks.
var (
	_ memory.DocumentStore = (*Store)(nil)
	_ memory.TurnLog       = (*Store)(nil)
)

// Store is an in-memory implementation of the memory interfaces. The zero
// value is ready to use. All methods are safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	docs  map[string]memory.Document
	turns []memory.TurnRecord

	// IndexErr, SearchErr, and TurnErr force the corresponding methods to
	// fail, for error-path tests.
	IndexErr  error
	SearchErr error
	TurnErr   error
}

// IndexDocument implements memory.DocumentStore.
func (s *Store) IndexDocument(ctx context.Context, doc memory.Document) error {
	return s.IndexDocuments(ctx, []memory.Document{doc})
}

// IndexDocuments implements memory.DocumentStore.
func (s *Store) IndexDocuments(_ context.Context, docs []memory.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.IndexErr != nil {
		return s.IndexErr
	}
	if s.docs == nil {
		s.docs = make(map[string]memory.Document)
	}
	for _, doc := range docs {
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = time.Now()
		}
		s.docs[doc.ID] = doc
	}
	return nil
}

// Search implements memory.DocumentStore using brute-force cosine similarity.
func (s *Store) Search(_ context.Context, embedding []float32, topK int) ([]memory.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SearchErr != nil {
		return nil, s.SearchErr
	}

	results := make([]memory.SearchResult, 0, len(s.docs))
	for _, doc := range s.docs {
		results = append(results, memory.SearchResult{
			Document: doc,
			Score:    cosine(embedding, doc.Embedding),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// CountDocuments implements memory.DocumentStore.
func (s *Store) CountDocuments(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs), nil
}

// AppendTurn implements memory.TurnLog.
func (s *Store) AppendTurn(_ context.Context, rec memory.TurnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.TurnErr != nil {
		return s.TurnErr
	}
	rec.ID = int64(len(s.turns) + 1)
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	s.turns = append(s.turns, rec)
	return nil
}

// RecentTurns implements memory.TurnLog.
func (s *Store) RecentTurns(_ context.Context, sessionID string, limit int) ([]memory.TurnRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []memory.TurnRecord
	for i := len(s.turns) - 1; i >= 0 && len(out) < limit; i-- {
		if s.turns[i].SessionID == sessionID {
			out = append(out, s.turns[i])
		}
	}
	return out, nil
}

// Turns returns a copy of every recorded turn, oldest first.
func (s *Store) Turns() []memory.TurnRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]memory.TurnRecord(nil), s.turns...)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
