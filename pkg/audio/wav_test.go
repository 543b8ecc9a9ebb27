package audio_test

import (
	"bytes"
	"testing"

	"github.com/MrWong99/parley/pkg/audio"
)

func TestEncodeWAV_Header(t *testing.T) {
	pcm := samplesToBytes([]int16{100, -200, 300, -400})
	wav := audio.EncodeWAV(pcm, 16000, 1)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("container length: got %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Errorf("missing RIFF/WAVE magic: %q %q", wav[0:4], wav[8:12])
	}
	if !bytes.Equal(wav[44:], pcm) {
		t.Error("PCM payload not copied verbatim after header")
	}
}

func TestWAV_RoundTrip(t *testing.T) {
	pcm := samplesToBytes([]int16{0, 32767, -32768, 1, -1, 12345})
	wav := audio.EncodeWAV(pcm, 16000, 1)

	got, rate, channels, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 16000 || channels != 1 {
		t.Errorf("format: got %dHz %dch, want 16000Hz 1ch", rate, channels)
	}
	if !bytes.Equal(got, pcm) {
		t.Error("decoded PCM differs from input")
	}
}

func TestDecodeWAV_Invalid(t *testing.T) {
	tests := []struct {
		name string
		wav  []byte
	}{
		{"empty", nil},
		{"truncated header", []byte("RIFF1234WAVE")},
		{"wrong magic", bytes.Repeat([]byte{0}, 64)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, _, err := audio.DecodeWAV(tc.wav); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
