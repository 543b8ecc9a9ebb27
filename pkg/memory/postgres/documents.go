package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/MrWong99/parley/pkg/memory"
)

// IndexDocument implements [memory.DocumentStore]. It upserts a pre-embedded
// [memory.Document]; if a document with the same ID already exists it is
// completely replaced.
func (s *Store) IndexDocument(ctx context.Context, doc memory.Document) error {
	_, err := s.pool.Exec(ctx, upsertDocumentSQL,
		doc.ID,
		doc.Source,
		doc.Content,
		pgvector.NewVector(doc.Embedding),
	)
	if err != nil {
		return fmt.Errorf("document store: index document: %w", err)
	}
	return nil
}

// IndexDocuments implements [memory.DocumentStore]. All documents are
// upserted inside one transaction, so a failure leaves the store unchanged.
func (s *Store) IndexDocuments(ctx context.Context, docs []memory.Document) error {
	if len(docs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, doc := range docs {
		batch.Queue(upsertDocumentSQL, doc.ID, doc.Source, doc.Content, pgvector.NewVector(doc.Embedding))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("document store: begin batch: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("document store: index batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("document store: commit batch: %w", err)
	}
	return nil
}

const upsertDocumentSQL = `
	INSERT INTO documents (id, source, content, embedding)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO UPDATE SET
	    source    = EXCLUDED.source,
	    content   = EXCLUDED.content,
	    embedding = EXCLUDED.embedding`

// Search implements [memory.DocumentStore]. It finds the topK documents
// whose embeddings are closest (cosine distance) to the supplied query
// embedding and reports each as a similarity score (1 − distance).
//
// Results are ordered by descending score (most similar first).
func (s *Store) Search(ctx context.Context, embedding []float32, topK int) ([]memory.SearchResult, error) {
	const q = `
		SELECT id, source, content, embedding, created_at,
		       embedding <=> $1 AS distance
		FROM   documents
		ORDER  BY distance
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("document store: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.SearchResult, error) {
		var (
			sr       memory.SearchResult
			vec      pgvector.Vector
			distance float64
		)
		if err := row.Scan(
			&sr.Document.ID,
			&sr.Document.Source,
			&sr.Document.Content,
			&vec,
			&sr.Document.CreatedAt,
			&distance,
		); err != nil {
			return memory.SearchResult{}, err
		}
		sr.Document.Embedding = vec.Slice()
		sr.Score = 1 - distance
		return sr, nil
	})
	if err != nil {
		return nil, fmt.Errorf("document store: scan rows: %w", err)
	}
	if results == nil {
		results = []memory.SearchResult{}
	}
	return results, nil
}

// CountDocuments implements [memory.DocumentStore].
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("document store: count: %w", err)
	}
	return n, nil
}
