package audio

import "time"

// AudioFrame represents a single frame of audio data flowing through the pipeline.
// Frames are the atomic unit of audio transport — captured from the inbound
// stream, scored by VAD, accumulated by the segment buffer, and played back
// through the paced egress.
type AudioFrame struct {
	// PCM audio data, 16-bit signed little-endian.
	Data []byte

	// SampleRate in Hz (e.g., 48000 for the Opus transport, 16000 for STT).
	SampleRate int

	// Channels: 1 for mono (STT input), 2 for stereo (transport output).
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback duration of the frame's PCM payload, or zero
// when the frame carries no format information.
func (f AudioFrame) Duration() time.Duration {
	bytesPerSec := f.SampleRate * f.Channels * 2
	if bytesPerSec <= 0 {
		return 0
	}
	return time.Duration(len(f.Data)) * time.Second / time.Duration(bytesPerSec)
}
