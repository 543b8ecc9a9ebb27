// Package memory defines the storage abstractions behind the assistant's
// retrieval layer: a vector-indexed document store holding the knowledge
// base, and a turn log recording what was asked and answered.
//
// Implementations must be safe for concurrent use; a single store is shared
// by every active session in the process.
package memory

import (
	"context"
	"time"
)

// Document is one entry of the knowledge base. Embedding must be produced by
// the embeddings provider configured for the deployment; mixing vectors from
// different models in one store yields meaningless distances.
type Document struct {
	// ID uniquely identifies the document. Re-indexing an existing ID
	// replaces the stored document.
	ID string

	// Source names where the document came from (file path, URL, dataset).
	Source string

	// Content is the plain text used both for embedding and for building
	// the generation context.
	Content string

	// Embedding is the dense vector for Content.
	Embedding []float32

	// CreatedAt is when the document was first indexed. The store fills it
	// on insert when zero.
	CreatedAt time.Time
}

// SearchResult pairs a document with its similarity to the query.
type SearchResult struct {
	Document Document

	// Score is the cosine similarity in [0, 1]; higher is more similar.
	Score float64
}

// DocumentStore is the abstraction over the vector-indexed knowledge base.
type DocumentStore interface {
	// IndexDocument upserts a single pre-embedded document.
	IndexDocument(ctx context.Context, doc Document) error

	// IndexDocuments upserts a batch of pre-embedded documents. Either all
	// documents are stored or none are.
	IndexDocuments(ctx context.Context, docs []Document) error

	// Search returns the topK documents most similar to the query
	// embedding, ordered by descending score. An empty result is not an
	// error.
	Search(ctx context.Context, embedding []float32, topK int) ([]SearchResult, error)

	// CountDocuments returns the number of indexed documents.
	CountDocuments(ctx context.Context) (int, error)
}

// TurnRecord captures one completed conversational turn.
type TurnRecord struct {
	// ID is assigned by the store on append.
	ID int64

	// SessionID names the session the turn belongs to.
	SessionID string

	// UserText is the transcribed user utterance.
	UserText string

	// ReplyText is the spoken reply, empty when the turn failed before a
	// reply was produced.
	ReplyText string

	// FastPath is the keyword class that short-circuited the turn
	// ("greeting", "thanks", "goodbye"), or empty for a full pipeline run.
	FastPath string

	// Latency is the wall-clock duration from segment handoff to reply.
	Latency time.Duration

	// Timestamp is when the turn completed. The store fills it on append
	// when zero.
	Timestamp time.Time
}

// TurnLog records completed turns for later inspection.
type TurnLog interface {
	// AppendTurn stores one completed turn.
	AppendTurn(ctx context.Context, rec TurnRecord) error

	// RecentTurns returns up to limit turns for the session, newest first.
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error)
}
