// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider to script completions and verify the prompts the engine
// builds:
//
//	p := &mock.Provider{Response: "Je suis là pour vous aider."}
//	resp, _ := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/parley/pkg/provider/llm"
)

// Compile-time assertion that Provider satisfies llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// Provider is a mock implementation of llm.Provider. The zero value returns
// an empty completion for every call.
type Provider struct {
	mu sync.Mutex

	// Response is the reply text returned by Complete.
	Response string

	// Err, if non-nil, is returned by Complete instead of a response.
	Err error

	calls []llm.CompletionRequest
}

// Complete records the request and returns the scripted response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	response := p.Response
	err := p.Err
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Content: response}, nil
}

// Calls returns a copy of all recorded Complete invocations.
func (p *Provider) Calls() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.CompletionRequest(nil), p.calls...)
}
