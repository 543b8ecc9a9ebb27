package wsrtc

import (
	"fmt"

	"layeh.com/gopus"
)

// The wire carries 48 kHz stereo Opus at 20 ms frame size.
const (
	wireSampleRate  = 48000
	wireChannels    = 2
	wireFrameMs     = 20
	// wireFrameSize is the number of samples per channel per 20 ms frame.
	wireFrameSize = wireSampleRate * wireFrameMs / 1000 // 960
	// wireFrameBytes is the byte length of one interleaved PCM wire frame.
	wireFrameBytes = wireFrameSize * wireChannels * 2
)

// opusDecoder wraps a gopus Opus decoder for one client connection. The
// decoder is stateful across consecutive packets, so each connection owns
// exactly one.
type opusDecoder struct {
	dec *gopus.Decoder
}

func newOpusDecoder() (*opusDecoder, error) {
	dec, err := gopus.NewDecoder(wireSampleRate, wireChannels)
	if err != nil {
		return nil, fmt.Errorf("wsrtc: create opus decoder: %w", err)
	}
	return &opusDecoder{dec: dec}, nil
}

// decode decodes an Opus packet into interleaved PCM int16 samples and returns
// the result as a byte slice (little-endian int16 pairs).
func (d *opusDecoder) decode(opus []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(opus, wireFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("wsrtc: opus decode: %w", err)
	}
	return int16sToBytes(pcm), nil
}

// opusEncoder wraps a gopus Opus encoder for the reply stream.
type opusEncoder struct {
	enc *gopus.Encoder
}

func newOpusEncoder() (*opusEncoder, error) {
	enc, err := gopus.NewEncoder(wireSampleRate, wireChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("wsrtc: create opus encoder: %w", err)
	}
	return &opusEncoder{enc: enc}, nil
}

// encode encodes one interleaved PCM wire frame (little-endian bytes) into an
// Opus packet.
func (e *opusEncoder) encode(pcmBytes []byte) ([]byte, error) {
	pcm := bytesToInt16s(pcmBytes)
	opus, err := e.enc.Encode(pcm, wireFrameSize, len(pcmBytes))
	if err != nil {
		return nil, fmt.Errorf("wsrtc: opus encode: %w", err)
	}
	return opus, nil
}

// int16sToBytes converts a slice of int16 PCM samples to little-endian bytes.
func int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// bytesToInt16s converts little-endian bytes to a slice of int16 PCM samples.
func bytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
