// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to script transcription results and verify the audio payloads
// and language hints passed by the engine:
//
//	p := &mock.Provider{Result: "bonjour"}
//	text, _ := p.Transcribe(ctx, wav, "fr")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/parley/pkg/provider/stt"
)

// Compile-time assertion that Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// WAV is a copy of the audio payload passed to Transcribe.
	WAV []byte
	// Language is the language hint passed to Transcribe.
	Language string
}

// Provider is a mock implementation of stt.Provider. The zero value returns
// an empty transcript for every call.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe unless Results is set.
	Result string

	// Results, if non-empty, is consumed one element per Transcribe call;
	// once exhausted, Result is returned again.
	Results []string

	// Err, if non-nil, is returned by Transcribe.
	Err error

	// Delay, if non-zero, makes Transcribe block until the duration elapses
	// or ctx is cancelled. Use it to hold a turn open in concurrency tests.
	Delay func(ctx context.Context) error

	calls []TranscribeCall
}

// Transcribe records the call and returns the scripted result.
func (p *Provider) Transcribe(ctx context.Context, wav []byte, language string) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, TranscribeCall{WAV: append([]byte(nil), wav...), Language: language})
	var result string
	if len(p.Results) > 0 {
		result = p.Results[0]
		p.Results = p.Results[1:]
	} else {
		result = p.Result
	}
	err := p.Err
	delay := p.Delay
	p.mu.Unlock()

	if delay != nil {
		if derr := delay(ctx); derr != nil {
			return "", derr
		}
	}
	return result, err
}

// Calls returns a copy of all recorded Transcribe invocations.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]TranscribeCall(nil), p.calls...)
}
