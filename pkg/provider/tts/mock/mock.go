// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled waveforms to consumers and verify the text
// fragments passed to the TTS backend:
//
//	p := &mock.Provider{Waveform: audio.AudioFrame{Data: pcm, SampleRate: 24000, Channels: 1}}
//	wave, _ := p.Synthesize(ctx, "bonjour")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/provider/tts"
)

// Compile-time assertion that Provider satisfies tts.Provider.
var _ tts.Provider = (*Provider)(nil)

// Provider is a mock implementation of tts.Provider. The zero value returns
// an empty waveform for every call.
type Provider struct {
	mu sync.Mutex

	// Waveform is returned by Synthesize.
	Waveform audio.AudioFrame

	// Err, if non-nil, is returned by Synthesize instead of a waveform.
	Err error

	calls []string
}

// Synthesize records the text and returns the scripted waveform.
func (p *Provider) Synthesize(ctx context.Context, text string) (audio.AudioFrame, error) {
	p.mu.Lock()
	p.calls = append(p.calls, text)
	waveform := p.Waveform
	err := p.Err
	p.mu.Unlock()

	if cerr := ctx.Err(); cerr != nil {
		return audio.AudioFrame{}, cerr
	}
	if err != nil {
		return audio.AudioFrame{}, err
	}
	return waveform, nil
}

// Calls returns a copy of all texts passed to Synthesize.
func (p *Provider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}
