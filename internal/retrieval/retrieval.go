// Package retrieval implements the knowledge-base lookup used to ground
// generated replies: the query text is embedded, the document store is
// searched, and results below the similarity threshold are discarded.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/pkg/memory"
	"github.com/MrWong99/parley/pkg/provider/embeddings"
)

// Defaults applied when Config fields are zero.
const (
	DefaultTopK           = 3
	DefaultScoreThreshold = 0.7
)

// Result is one retrieved document with its similarity score.
type Result struct {
	Text  string
	Score float64
}

// Config holds the tunable retrieval parameters.
type Config struct {
	// TopK is the maximum number of documents returned.
	TopK int

	// ScoreThreshold is the minimum cosine similarity a document needs to
	// qualify, in [0, 1].
	ScoreThreshold float64

	// Metrics records retrieval latency. When nil, [observe.DefaultMetrics]
	// is used.
	Metrics *observe.Metrics
}

// Retriever embeds queries and searches the document store. It is safe for
// concurrent use across sessions as long as the underlying embedder and
// store are.
type Retriever struct {
	embedder embeddings.Provider
	store    memory.DocumentStore
	topK     int
	minScore float64
	metrics  *observe.Metrics
}

// New creates a Retriever. Zero-valued Config fields take the package
// defaults.
func New(embedder embeddings.Provider, store memory.DocumentStore, cfg Config) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("retrieval: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("retrieval: store must not be nil")
	}
	if cfg.TopK == 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.TopK < 0 {
		return nil, fmt.Errorf("retrieval: topK %d must be positive", cfg.TopK)
	}
	if cfg.ScoreThreshold == 0 {
		cfg.ScoreThreshold = DefaultScoreThreshold
	}
	if cfg.ScoreThreshold < 0 || cfg.ScoreThreshold > 1 {
		return nil, fmt.Errorf("retrieval: score threshold %v must be in [0, 1]", cfg.ScoreThreshold)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		topK:     cfg.TopK,
		minScore: cfg.ScoreThreshold,
		metrics:  cfg.Metrics,
	}, nil
}

// Retrieve returns the documents most similar to text, ordered by descending
// score and filtered by the similarity threshold. An empty result means "no
// context", not an error.
func (r *Retriever) Retrieve(ctx context.Context, text string) ([]Result, error) {
	start := time.Now()
	defer func() {
		r.metrics.RetrievalDuration.Record(ctx, time.Since(start).Seconds())
	}()

	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	hits, err := r.store.Search(ctx, vec, r.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieval: search: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < r.minScore {
			continue
		}
		results = append(results, Result{Text: hit.Document.Content, Score: hit.Score})
	}
	slog.Debug("retrieval completed",
		"query_len", len(text),
		"candidates", len(hits),
		"qualified", len(results),
	)
	return results, nil
}
