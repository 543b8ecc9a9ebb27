// Package pipeline implements the response pipeline for one conversational
// turn: transcribe the sealed speech segment, classify conversational
// fillers onto canned fast paths, retrieve knowledge-base context, and
// generate the reply text.
//
// The pipeline owns only sequencing and error aggregation; the STT,
// retrieval, and generation collaborators are injected and stay unaware of
// each other. Synthesis and playback belong to the turn controller, not
// here.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/parley/internal/retrieval"
	"github.com/MrWong99/parley/pkg/provider/llm"
	"github.com/MrWong99/parley/pkg/provider/stt"
)

// Retriever is the slice of the retrieval layer the pipeline consumes.
// *retrieval.Retriever satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, text string) ([]retrieval.Result, error)
}

// Config holds the generation parameters of a [Pipeline].
type Config struct {
	// Language is the BCP-47 hint forwarded to the STT collaborator.
	Language string

	// SystemPrompt steers the generation collaborator. Required.
	SystemPrompt string

	// Temperature and MaxTokens are forwarded to the generation
	// collaborator; zero values use the provider defaults.
	Temperature float64
	MaxTokens   int
}

// TurnResult is the outcome of one successful pipeline run.
type TurnResult struct {
	// UserText is the transcribed user utterance.
	UserText string

	// ReplyText is the text to synthesize and speak.
	ReplyText string

	// FastPath is the keyword class that short-circuited the turn, or
	// empty when retrieval and generation ran.
	FastPath string
}

// Pipeline sequences one turn through the external collaborators. It is
// safe for concurrent use across sessions; per-turn state lives on the
// stack.
type Pipeline struct {
	stt        stt.Provider
	retriever  Retriever
	generator  llm.Provider
	classifier *Classifier
	cfg        Config
}

// New creates a Pipeline. All collaborators are required; classifier may be
// nil to disable the keyword fast paths.
func New(sttProvider stt.Provider, retriever Retriever, generator llm.Provider, classifier *Classifier, cfg Config) (*Pipeline, error) {
	if sttProvider == nil {
		return nil, fmt.Errorf("pipeline: stt provider must not be nil")
	}
	if retriever == nil {
		return nil, fmt.Errorf("pipeline: retriever must not be nil")
	}
	if generator == nil {
		return nil, fmt.Errorf("pipeline: generator must not be nil")
	}
	return &Pipeline{
		stt:        sttProvider,
		retriever:  retriever,
		generator:  generator,
		classifier: classifier,
		cfg:        cfg,
	}, nil
}

// RunTurn executes one turn over the sealed segment. A nil result with a nil
// error means the segment contained no intelligible speech; the caller
// produces no reply and treats the turn as a non-event.
func (p *Pipeline) RunTurn(ctx context.Context, segmentWAV []byte) (*TurnResult, error) {
	text, err := p.stt.Transcribe(ctx, segmentWAV, p.cfg.Language)
	if err != nil {
		return nil, fmt.Errorf("pipeline: transcribe: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		slog.Debug("segment transcribed to nothing, skipping turn")
		return nil, nil
	}

	if p.classifier != nil {
		if class := p.classifier.Classify(text); class != ClassNone {
			slog.Info("keyword fast path", "class", class.String(), "text", text)
			return &TurnResult{
				UserText:  text,
				ReplyText: p.classifier.Respond(class),
				FastPath:  class.String(),
			}, nil
		}
	}

	docs, err := p.retriever.Retrieve(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("pipeline: retrieve: %w", err)
	}
	contextStr := FormatContext(docs)

	reply, err := p.generate(ctx, text, contextStr)
	if err != nil {
		return nil, fmt.Errorf("pipeline: generate: %w", err)
	}

	return &TurnResult{UserText: text, ReplyText: reply}, nil
}

// generate invokes the generation collaborator with the user text and the
// optional retrieved context.
func (p *Pipeline) generate(ctx context.Context, userText, contextStr string) (string, error) {
	prompt := userText
	if contextStr != "" {
		prompt = fmt.Sprintf("Contexte:\n%s\n\nQuestion: %s", contextStr, userText)
	}

	resp, err := p.generator.Complete(ctx, llm.CompletionRequest{
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		SystemPrompt: p.cfg.SystemPrompt,
		Temperature:  p.cfg.Temperature,
		MaxTokens:    p.cfg.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// FormatContext joins retrieved documents into the single context string
// handed to generation, each prefixed with a numbered "[Document N]:" tag.
// Returns "" when no document qualifies.
func FormatContext(docs []retrieval.Result) string {
	var parts []string
	for i, doc := range docs {
		text := strings.TrimSpace(doc.Text)
		if text == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("[Document %d]: %s", i+1, text))
	}
	return strings.Join(parts, "\n\n")
}
