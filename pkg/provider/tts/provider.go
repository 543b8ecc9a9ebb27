// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., a local Kokoro
// server) and presents a uniform batch interface: one utterance in, one
// waveform out. The paced egress takes care of splitting the waveform into
// transport frames; providers only synthesise.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/parley/pkg/audio"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text into a PCM waveform. The returned frame
	// carries the backend's native sample rate and channel count; callers
	// resample if the transport needs a different format.
	//
	// Returns an error if the backend cannot be reached, rejects the input,
	// or ctx is cancelled before synthesis completes.
	Synthesize(ctx context.Context, text string) (audio.AudioFrame, error)
}
