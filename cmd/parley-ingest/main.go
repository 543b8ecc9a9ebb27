// Command parley-ingest populates the knowledge base: it chunks plain-text
// files, embeds each chunk with the configured embeddings provider and
// indexes the result into the PostgreSQL document store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/pkg/memory"
	"github.com/MrWong99/parley/pkg/memory/postgres"
	"github.com/MrWong99/parley/pkg/provider/embeddings"
	ollamaembed "github.com/MrWong99/parley/pkg/provider/embeddings/ollama"
	oaembed "github.com/MrWong99/parley/pkg/provider/embeddings/openai"
)

const (
	// Chunk sizing in words. Overlapping chunks keep sentences that straddle
	// a boundary retrievable from both sides.
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200

	// embedBatchSize bounds one EmbedBatch request.
	embedBatchSize = 100
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	dir := flag.String("dir", "", "directory of .txt files to ingest (required)")
	chunkSize := flag.Int("chunk-size", defaultChunkSize, "chunk size in words")
	chunkOverlap := flag.Int("chunk-overlap", defaultChunkOverlap, "chunk overlap in words")
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "parley-ingest: -dir is required")
		flag.Usage()
		return 2
	}
	if *chunkOverlap >= *chunkSize {
		fmt.Fprintln(os.Stderr, "parley-ingest: -chunk-overlap must be smaller than -chunk-size")
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "parley-ingest: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "parley-ingest: %v\n", err)
		}
		return 1
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	embedder, err := buildEmbedder(cfg.Providers.Embeddings)
	if err != nil {
		slog.Error("failed to build embeddings provider", "err", err)
		return 1
	}

	if cfg.Memory.PostgresDSN == "" {
		slog.Error("memory.postgres_dsn is required")
		return 1
	}
	dims := cfg.Memory.EmbeddingDimensions
	if dims == 0 {
		dims = embedder.Dimensions()
	}
	store, err := postgres.NewStore(ctx, cfg.Memory.PostgresDSN, dims)
	if err != nil {
		slog.Error("failed to open document store", "err", err)
		return 1
	}
	defer store.Close()

	if err := ingestDir(ctx, *dir, embedder, store, *chunkSize, *chunkOverlap); err != nil {
		slog.Error("ingestion failed", "err", err)
		return 1
	}

	total, err := store.CountDocuments(ctx)
	if err != nil {
		slog.Warn("failed to count documents", "err", err)
	} else {
		slog.Info("ingestion complete", "documents", total)
	}
	return 0
}

func buildEmbedder(entry config.ProviderEntry) (embeddings.Provider, error) {
	switch entry.Name {
	case "openai":
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	case "ollama":
		return ollamaembed.New(entry.BaseURL, entry.Model)
	case "":
		return nil, errors.New("providers.embeddings is not configured")
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", entry.Name)
	}
}

// ingestDir chunks every .txt file under dir, embeds the chunks in batches
// and upserts them into the store. Chunk IDs are derived from the file name
// and chunk index, so re-running over the same directory replaces the
// previous contents instead of duplicating them.
func ingestDir(ctx context.Context, dir string, embedder embeddings.Provider, store memory.DocumentStore, chunkSize, chunkOverlap int) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return fmt.Errorf("list %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no .txt files in %s", dir)
	}
	sort.Strings(paths)

	var docs []memory.Document
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		name := filepath.Base(path)
		chunks := chunkText(string(content), chunkSize, chunkOverlap)
		slog.Info("chunked file", "file", name, "chunks", len(chunks))

		for i, chunk := range chunks {
			docs = append(docs, memory.Document{
				ID:      fmt.Sprintf("%s#%d", name, i),
				Source:  name,
				Content: chunk,
			})
		}
	}
	slog.Info("embedding chunks", "total", len(docs))

	for start := 0; start < len(docs); start += embedBatchSize {
		end := min(start+embedBatchSize, len(docs))
		batch := docs[start:end]

		texts := make([]string, len(batch))
		for i, doc := range batch {
			texts[i] = doc.Content
		}
		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch at %d: %w", start, err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embed batch at %d: got %d vectors for %d texts", start, len(vectors), len(batch))
		}
		for i := range batch {
			batch[i].Embedding = vectors[i]
		}

		if err := store.IndexDocuments(ctx, batch); err != nil {
			return fmt.Errorf("index batch at %d: %w", start, err)
		}
		slog.Info("indexed batch", "from", start, "to", end, "total", len(docs))
	}
	return nil
}

// chunkText splits text into overlapping word-window chunks.
func chunkText(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var chunks []string
	step := size - overlap
	for i := 0; i < len(words); i += step {
		end := min(i+size, len(words))
		chunks = append(chunks, strings.Join(words[i:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
