package audio_test

import (
	"math"
	"testing"

	"github.com/MrWong99/parley/pkg/audio"
)

func TestRMS(t *testing.T) {
	tests := []struct {
		name    string
		samples []int16
		want    float64
	}{
		{"empty", nil, 0},
		{"silence", []int16{0, 0, 0, 0}, 0},
		{"full scale square", []int16{-32768, -32768, -32768, -32768}, 1.0},
		{"half scale square", []int16{16384, -16384, 16384, -16384}, 0.5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := audio.RMS(samplesToBytes(tc.samples))
			if math.Abs(got-tc.want) > 1e-4 {
				t.Errorf("RMS = %f, want %f", got, tc.want)
			}
		})
	}
}

func TestRMS_OddTrailingByte(t *testing.T) {
	pcm := append(samplesToBytes([]int16{16384, -16384}), 0xFF)
	got := audio.RMS(pcm)
	if math.Abs(got-0.5) > 1e-4 {
		t.Errorf("RMS = %f, want 0.5 (trailing byte ignored)", got)
	}
}
