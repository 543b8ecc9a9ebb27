package whisper

import "encoding/binary"

// whisper.cpp expects mono float32 samples in [-1.0, 1.0].
const pcmScale = 1.0 / 32768.0

// pcmToFloat32 converts 16-bit signed little-endian PCM to normalised
// float32 samples. A trailing odd byte is ignored.
func pcmToFloat32(pcm []byte) []float32 {
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) * pcmScale
	}
	return samples
}

// pcmToFloat32Mono down-mixes interleaved multi-channel 16-bit PCM to mono
// float32 by averaging the channels of each frame.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 1 {
		return pcmToFloat32(pcm)
	}
	frames := len(pcm) / (2 * channels)
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		base := i * channels * 2
		for ch := range channels {
			sum += float32(int16(binary.LittleEndian.Uint16(pcm[base+2*ch:]))) * pcmScale
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
