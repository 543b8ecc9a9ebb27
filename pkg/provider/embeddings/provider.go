// Package embeddings defines the Provider interface for vector embedding backends.
//
// An embeddings provider maps text to dense float32 vectors, backed by a
// hosted API (OpenAI text-embedding-3) or a local model served over
// an Ollama-compatible endpoint. The retrieval layer embeds transcribed
// questions with these vectors to search the knowledge base, and the ingest
// tool embeds document chunks before indexing them.
package embeddings

import "context"

// Provider is the abstraction over a text-embedding backend.
//
// Every vector a Provider instance returns has the same length, reported by
// Dimensions. Vectors from two different instances only belong in the same
// similarity computation when both use the same model; in particular, the
// ingest tool and the server must be configured with the same embeddings
// entry or searches will silently return garbage.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Embed returns the embedding vector for text, of length Dimensions().
	// Text is passed to the backend verbatim; callers apply any
	// model-specific formatting (such as a "query: " prefix) themselves.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in a single backend call; result[i]
	// corresponds to texts[i]. There are no partial results: on error the
	// returned slice is nil.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions reports the fixed vector length for this provider's model.
	Dimensions() int

	// ModelID reports the backend model identifier, for logging and for
	// checking that ingest and serving use matching models.
	ModelID() string
}
