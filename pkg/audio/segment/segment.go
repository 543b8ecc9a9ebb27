// Package segment accumulates speech-classified audio frames into a bounded
// in-memory segment.
//
// The buffer holds at most a configured duration of audio. When new frames
// push it past the cap, the oldest frames are evicted first, which bounds
// both memory and the worst-case transcription latency. Extremely long
// monologues are therefore truncated at the front; callers should treat this
// as a documented limitation rather than try to recover the evicted audio.
package segment

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/parley/pkg/audio"
)

// DefaultMaxDuration caps a segment at ten seconds of audio.
const DefaultMaxDuration = 10 * time.Second

// Config holds the tunable parameters of a [Buffer]. Zero values fall back to
// the package defaults.
type Config struct {
	// SampleRate of the buffered PCM in Hz. Required.
	SampleRate int

	// Channels of the buffered PCM. Required.
	Channels int

	// MaxDuration bounds the total buffered audio. Oldest frames are evicted
	// once the total exceeds it.
	MaxDuration time.Duration
}

func (c Config) validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate %d must be positive", c.SampleRate))
	}
	if c.Channels <= 0 {
		errs = append(errs, fmt.Errorf("channels %d must be positive", c.Channels))
	}
	if c.MaxDuration < 0 {
		errs = append(errs, fmt.Errorf("max duration %v must not be negative", c.MaxDuration))
	}
	return errors.Join(errs...)
}

// Buffer is an ordered sequence of speech frames with FIFO eviction. It is
// not safe for concurrent use; each session owns exactly one buffer mutated
// only from that session's frame loop.
type Buffer struct {
	sampleRate int
	channels   int
	maxSamples int

	frames  [][]byte
	samples int
}

// New creates a Buffer from cfg.
func New(cfg Config) (*Buffer, error) {
	if cfg.MaxDuration == 0 {
		cfg.MaxDuration = DefaultMaxDuration
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("segment: invalid config: %w", err)
	}
	maxSamples := int(int64(cfg.SampleRate) * int64(cfg.Channels) * int64(cfg.MaxDuration) / int64(time.Second))
	return &Buffer{
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		maxSamples: maxSamples,
	}, nil
}

// AddFrame appends a frame's PCM data and evicts from the front until the
// running sample total is back under the cap. Empty frames are ignored.
func (b *Buffer) AddFrame(frame audio.AudioFrame) {
	if len(frame.Data) == 0 {
		return
	}
	b.frames = append(b.frames, frame.Data)
	b.samples += len(frame.Data) / 2

	for b.samples > b.maxSamples && len(b.frames) > 0 {
		b.samples -= len(b.frames[0]) / 2
		b.frames = b.frames[1:]
	}
}

// Len returns the number of buffered frames.
func (b *Buffer) Len() int { return len(b.frames) }

// Duration returns the total duration of the buffered audio.
func (b *Buffer) Duration() time.Duration {
	perSec := b.sampleRate * b.channels
	if perSec == 0 {
		return 0
	}
	return time.Duration(b.samples) * time.Second / time.Duration(perSec)
}

// SealAndGet concatenates the buffered frames, encodes them as a 16-bit PCM
// WAV payload ready for the transcription backend, and clears the buffer.
// Returns nil if no frames were buffered.
func (b *Buffer) SealAndGet() []byte {
	if len(b.frames) == 0 {
		return nil
	}
	pcm := make([]byte, 0, b.samples*2)
	for _, f := range b.frames {
		pcm = append(pcm, f...)
	}
	b.Clear()
	return audio.EncodeWAV(pcm, b.sampleRate, b.channels)
}

// Clear discards all buffered frames without sealing. Used after an error or
// a barge-in cancellation.
func (b *Buffer) Clear() {
	b.frames = nil
	b.samples = 0
}
