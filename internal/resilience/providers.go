package resilience

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/provider/embeddings"
	"github.com/MrWong99/parley/pkg/provider/llm"
	"github.com/MrWong99/parley/pkg/provider/stt"
	"github.com/MrWong99/parley/pkg/provider/tts"
)

// Compile-time interface assertions.
var (
	_ stt.Provider        = (*STT)(nil)
	_ llm.Provider        = (*LLM)(nil)
	_ tts.Provider        = (*TTS)(nil)
	_ embeddings.Provider = (*Embeddings)(nil)
)

// execute runs fn through cb, threading the result out of the error-only
// Execute signature.
func execute[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var out T
	err := cb.Execute(func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// record tracks one call through a wrapper: the stage latency histogram (nil
// for stages without one) and the per-provider request and error counters.
func record(ctx context.Context, met *observe.Metrics, dur metric.Float64Histogram, name, kind string, start time.Time, err error) {
	if dur != nil {
		dur.Record(ctx, time.Since(start).Seconds())
	}
	status := "ok"
	if err != nil {
		status = "error"
		met.RecordProviderError(ctx, name, kind)
	}
	met.RecordProviderRequest(ctx, name, kind, status)
}

// STT wraps an [stt.Provider] with a circuit breaker so a dead transcription
// backend fails fast instead of stalling every turn until its timeout.
type STT struct {
	inner stt.Provider
	cb    *CircuitBreaker
	name  string
	met   *observe.Metrics
}

// NewSTT creates an [STT] around inner.
func NewSTT(inner stt.Provider, cfg CircuitBreakerConfig) *STT {
	if cfg.Name == "" {
		cfg.Name = "stt"
	}
	return &STT{inner: inner, cb: NewCircuitBreaker(cfg), name: cfg.Name, met: observe.DefaultMetrics()}
}

func (s *STT) Transcribe(ctx context.Context, wav []byte, language string) (string, error) {
	start := time.Now()
	out, err := execute(s.cb, func() (string, error) {
		return s.inner.Transcribe(ctx, wav, language)
	})
	record(ctx, s.met, s.met.STTDuration, s.name, "stt", start, err)
	return out, err
}

// Breaker exposes the underlying circuit breaker for inspection.
func (s *STT) Breaker() *CircuitBreaker { return s.cb }

// LLM wraps an [llm.Provider] with a circuit breaker.
type LLM struct {
	inner llm.Provider
	cb    *CircuitBreaker
	name  string
	met   *observe.Metrics
}

// NewLLM creates an [LLM] around inner.
func NewLLM(inner llm.Provider, cfg CircuitBreakerConfig) *LLM {
	if cfg.Name == "" {
		cfg.Name = "llm"
	}
	return &LLM{inner: inner, cb: NewCircuitBreaker(cfg), name: cfg.Name, met: observe.DefaultMetrics()}
}

func (l *LLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	start := time.Now()
	out, err := execute(l.cb, func() (*llm.CompletionResponse, error) {
		return l.inner.Complete(ctx, req)
	})
	record(ctx, l.met, l.met.LLMDuration, l.name, "llm", start, err)
	return out, err
}

// Breaker exposes the underlying circuit breaker for inspection.
func (l *LLM) Breaker() *CircuitBreaker { return l.cb }

// TTS wraps a [tts.Provider] with a circuit breaker.
type TTS struct {
	inner tts.Provider
	cb    *CircuitBreaker
	name  string
	met   *observe.Metrics
}

// NewTTS creates a [TTS] around inner.
func NewTTS(inner tts.Provider, cfg CircuitBreakerConfig) *TTS {
	if cfg.Name == "" {
		cfg.Name = "tts"
	}
	return &TTS{inner: inner, cb: NewCircuitBreaker(cfg), name: cfg.Name, met: observe.DefaultMetrics()}
}

func (t *TTS) Synthesize(ctx context.Context, text string) (audio.AudioFrame, error) {
	start := time.Now()
	out, err := execute(t.cb, func() (audio.AudioFrame, error) {
		return t.inner.Synthesize(ctx, text)
	})
	record(ctx, t.met, t.met.TTSDuration, t.name, "tts", start, err)
	return out, err
}

// Breaker exposes the underlying circuit breaker for inspection.
func (t *TTS) Breaker() *CircuitBreaker { return t.cb }

// Embeddings wraps an [embeddings.Provider] with a circuit breaker.
type Embeddings struct {
	inner embeddings.Provider
	cb    *CircuitBreaker
	name  string
	met   *observe.Metrics
}

// NewEmbeddings creates an [Embeddings] around inner.
func NewEmbeddings(inner embeddings.Provider, cfg CircuitBreakerConfig) *Embeddings {
	if cfg.Name == "" {
		cfg.Name = "embeddings"
	}
	return &Embeddings{inner: inner, cb: NewCircuitBreaker(cfg), name: cfg.Name, met: observe.DefaultMetrics()}
}

func (e *Embeddings) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	out, err := execute(e.cb, func() ([]float32, error) {
		return e.inner.Embed(ctx, text)
	})
	record(ctx, e.met, nil, e.name, "embeddings", start, err)
	return out, err
}

func (e *Embeddings) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	out, err := execute(e.cb, func() ([][]float32, error) {
		return e.inner.EmbedBatch(ctx, texts)
	})
	record(ctx, e.met, nil, e.name, "embeddings", start, err)
	return out, err
}

// Dimensions is a static property of the backend; it bypasses the breaker.
func (e *Embeddings) Dimensions() int { return e.inner.Dimensions() }

// ModelID is a static property of the backend; it bypasses the breaker.
func (e *Embeddings) ModelID() string { return e.inner.ModelID() }

// Breaker exposes the underlying circuit breaker for inspection.
func (e *Embeddings) Breaker() *CircuitBreaker { return e.cb }
