// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a transcription service (e.g., a local whisper.cpp
// server or the in-process CGO bindings) and exposes a uniform batch
// interface: one sealed speech segment in, one transcript out. The engine
// treats a blank transcript as "no speech", never as an error.
//
// Implementations must be safe for concurrent use; multiple sessions may
// transcribe segments in parallel against a shared provider.
package stt

import "context"

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts a sealed speech segment (a 16-bit PCM WAV payload)
	// to text. language is a BCP-47 hint (e.g., "fr"); an empty string lets
	// the backend pick its default. A blank or whitespace-only result means
	// the segment contained no intelligible speech and is not an error.
	Transcribe(ctx context.Context, wav []byte, language string) (string, error)
}
