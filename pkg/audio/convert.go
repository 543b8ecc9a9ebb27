package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// FormatConverter normalises AudioFrames to a target format. The first
// format mismatch and the first corrupt frame are each logged once.
// Create one per stream; not for shared use across goroutines.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert returns the frame in the target format. A frame already in the
// target format passes through unchanged without allocating. Resampling
// happens before channel conversion so stereo input headed for mono is not
// resampled twice.
func (c *FormatConverter) Convert(frame AudioFrame) AudioFrame {
	// An odd byte count cannot be int16 PCM; drop the frame.
	if len(frame.Data)%2 != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio format converter: odd byte count in PCM data, dropping frame",
				"bytes", len(frame.Data),
				"sampleRate", frame.SampleRate,
				"channels", frame.Channels,
			)
		})
		return AudioFrame{
			Data:       nil,
			SampleRate: c.Target.SampleRate,
			Channels:   c.Target.Channels,
			Timestamp:  frame.Timestamp,
		}
	}

	if frame.SampleRate == c.Target.SampleRate && frame.Channels == c.Target.Channels {
		return frame
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", formatString(frame.SampleRate, frame.Channels),
			"to", formatString(c.Target.SampleRate, c.Target.Channels),
		)
	})

	pcm := frame.Data
	rate := frame.SampleRate
	channels := frame.Channels

	if rate != c.Target.SampleRate {
		if channels == 1 {
			pcm = ResampleMono16(pcm, rate, c.Target.SampleRate)
		} else {
			pcm = ResampleStereo16(pcm, rate, c.Target.SampleRate)
		}
		rate = c.Target.SampleRate
	}

	if channels != c.Target.Channels {
		switch {
		case channels == 1 && c.Target.Channels == 2:
			pcm = MonoToStereo(pcm)
		case channels == 2 && c.Target.Channels == 1:
			pcm = StereoToMono(pcm)
		}
		channels = c.Target.Channels
	}

	return AudioFrame{
		Data:       pcm,
		SampleRate: rate,
		Channels:   channels,
		Timestamp:  frame.Timestamp,
	}
}

// ConvertStream runs a FormatConverter between in and the returned channel.
// The output channel closes when in closes and inherits cap(in). Dropped
// corrupt frames never appear on the output. The inbound transport uses
// this to normalise decoded Opus audio to the engine's working format
// before voice-activity scoring.
func ConvertStream(in <-chan AudioFrame, target Format) <-chan AudioFrame {
	out := make(chan AudioFrame, cap(in))
	go func() {
		defer close(out)
		conv := FormatConverter{Target: target}
		for frame := range in {
			converted := conv.Convert(frame)
			if len(converted.Data) == 0 {
				continue
			}
			out <- converted
		}
	}()
	return out
}

// sampleAt reads the little-endian int16 sample starting at byte offset i.
func sampleAt(pcm []byte, i int) int16 {
	return int16(pcm[i]) | int16(pcm[i+1])<<8
}

// putSample writes s as little-endian int16 at byte offset i.
func putSample(pcm []byte, i int, s int16) {
	pcm[i] = byte(s)
	pcm[i+1] = byte(s >> 8)
}

// MonoToStereo duplicates each int16 mono sample into an L+R pair.
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		s := sampleAt(pcm, i)
		putSample(out, i*2, s)
		putSample(out, i*2+2, s)
	}
	return out
}

// StereoToMono averages each 4-byte L+R pair into one mono sample, with
// int32 arithmetic and clamping to the int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(sampleAt(pcm, i*4))
		r := int32(sampleAt(pcm, i*4+2))
		avg := min(max((l+r)/2, -32768), 32767)
		putSample(out, i*2, int16(avg))
	}
	return out
}

// ResampleMono16 linearly resamples 16-bit little-endian mono PCM from
// srcRate to dstRate. Equal rates return the input unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := sampleAt(pcm, srcIdx*2)
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = sampleAt(pcm, (srcIdx+1)*2)
		}

		putSample(out, i*2, int16(float64(s0)*(1-frac)+float64(s1)*frac))
	}
	return out
}

// ResampleStereo16 linearly resamples 16-bit little-endian interleaved
// stereo PCM from srcRate to dstRate. Equal rates return the input
// unchanged.
func ResampleStereo16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 4 {
		return pcm
	}
	srcFrames := len(pcm) / 4
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*4)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		l0 := sampleAt(pcm, srcIdx*4)
		r0 := sampleAt(pcm, srcIdx*4+2)
		l1, r1 := l0, r0
		if srcIdx+1 < srcFrames {
			l1 = sampleAt(pcm, (srcIdx+1)*4)
			r1 = sampleAt(pcm, (srcIdx+1)*4+2)
		}

		putSample(out, i*4, int16(float64(l0)*(1-frac)+float64(l1)*frac))
		putSample(out, i*4+2, int16(float64(r0)*(1-frac)+float64(r1)*frac))
	}
	return out
}

// formatString renders a rate and channel count as e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
