package retrieval_test

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/retrieval"
	"github.com/MrWong99/parley/pkg/memory"
	memmock "github.com/MrWong99/parley/pkg/memory/mock"
	embmock "github.com/MrWong99/parley/pkg/provider/embeddings/mock"
)

func seedStore(t *testing.T) *memmock.Store {
	t.Helper()
	store := &memmock.Store{}
	docs := []memory.Document{
		{ID: "d1", Content: "horaires d'ouverture", Embedding: []float32{1, 0, 0}},
		{ID: "d2", Content: "tarifs et abonnements", Embedding: []float32{0, 1, 0}},
		{ID: "d3", Content: "adresse et accès", Embedding: []float32{0.8, 0.6, 0}},
	}
	if err := store.IndexDocuments(context.Background(), docs); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store
}

func TestRetriever_FiltersByThreshold(t *testing.T) {
	t.Parallel()
	embedder := &embmock.Provider{EmbedResult: []float32{1, 0, 0}}
	r, err := retrieval.New(embedder, seedStore(t), retrieval.Config{TopK: 3, ScoreThreshold: 0.7})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	results, err := r.Retrieve(context.Background(), "quels sont les horaires")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	// d1 scores 1.0, d3 scores 0.8; d2 scores 0.0 and is filtered out.
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2 (threshold filters d2)", len(results))
	}
	if results[0].Text != "horaires d'ouverture" {
		t.Errorf("top result = %q, want the exact match", results[0].Text)
	}
	if results[0].Score < results[1].Score {
		t.Error("results not ordered by descending score")
	}
}

func TestRetriever_EmptyMeansNoContext(t *testing.T) {
	t.Parallel()
	embedder := &embmock.Provider{EmbedResult: []float32{0, 0, 1}}
	r, err := retrieval.New(embedder, seedStore(t), retrieval.Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	results, err := r.Retrieve(context.Background(), "question hors sujet")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %d, want 0 (nothing above threshold)", len(results))
	}
}

func TestRetriever_EmbedErrorPropagates(t *testing.T) {
	t.Parallel()
	embedErr := errors.New("model offline")
	embedder := &embmock.Provider{EmbedErr: embedErr}
	r, err := retrieval.New(embedder, &memmock.Store{}, retrieval.Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := r.Retrieve(context.Background(), "bonjour"); !errors.Is(err, embedErr) {
		t.Errorf("Retrieve error = %v, want wrapped embed error", err)
	}
}

func TestRetriever_StoreErrorPropagates(t *testing.T) {
	t.Parallel()
	searchErr := errors.New("connection refused")
	embedder := &embmock.Provider{EmbedResult: []float32{1, 0, 0}}
	r, err := retrieval.New(embedder, &memmock.Store{SearchErr: searchErr}, retrieval.Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := r.Retrieve(context.Background(), "bonjour"); !errors.Is(err, searchErr) {
		t.Errorf("Retrieve error = %v, want wrapped search error", err)
	}
}

func TestRetriever_RecordsLatency(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	met, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	embedder := &embmock.Provider{EmbedResult: []float32{1, 0, 0}}
	r, err := retrieval.New(embedder, seedStore(t), retrieval.Config{Metrics: met})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := r.Retrieve(context.Background(), "quels sont les horaires"); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "parley.retrieval.duration" {
				continue
			}
			hist, ok := m.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("data type = %T, want Histogram[float64]", m.Data)
			}
			var count uint64
			for _, dp := range hist.DataPoints {
				count += dp.Count
			}
			if count != 1 {
				t.Errorf("latency samples = %d, want 1", count)
			}
			return
		}
	}
	t.Fatal("parley.retrieval.duration not recorded")
}

func TestNew_Invalid(t *testing.T) {
	t.Parallel()
	embedder := &embmock.Provider{}
	store := &memmock.Store{}
	if _, err := retrieval.New(nil, store, retrieval.Config{}); err == nil {
		t.Error("expected error for nil embedder")
	}
	if _, err := retrieval.New(embedder, nil, retrieval.Config{}); err == nil {
		t.Error("expected error for nil store")
	}
	if _, err := retrieval.New(embedder, store, retrieval.Config{ScoreThreshold: 1.5}); err == nil {
		t.Error("expected error for out-of-range threshold")
	}
}
