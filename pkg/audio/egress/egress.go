// Package egress paces a synthesized waveform out to the transport as a
// sequence of fixed-duration frames.
//
// Playback runs at real-time speed: after each frame is written the player
// waits for that frame's playback duration before emitting the next one.
// Cancellation is cooperative and checked at frame granularity, so a
// barge-in stops the stream within one frame without corrupting a partially
// written frame. Frames are never reordered and already-sent audio is never
// rewound.
package egress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/parley/pkg/audio"
)

// Sink receives the paced outbound frames, typically the session's transport
// connection. Implementations must tolerate WriteFrame being called from the
// player goroutine only.
type Sink interface {
	WriteFrame(ctx context.Context, frame audio.AudioFrame) error
}

// DefaultFrameDuration sizes outbound frames at 100 ms of audio.
const DefaultFrameDuration = 100 * time.Millisecond

// Player splits waveforms into timed frames and writes them to a [Sink].
// A Player is stateless between Play calls and may be reused, but only one
// Play may be active at a time per session.
type Player struct {
	sink          Sink
	frameDuration time.Duration
}

// NewPlayer creates a Player writing to sink. frameDuration controls the
// outbound frame size; zero selects [DefaultFrameDuration].
func NewPlayer(sink Sink, frameDuration time.Duration) (*Player, error) {
	if sink == nil {
		return nil, errors.New("egress: sink must not be nil")
	}
	if frameDuration == 0 {
		frameDuration = DefaultFrameDuration
	}
	if frameDuration < 0 {
		return nil, fmt.Errorf("egress: frame duration %v must be positive", frameDuration)
	}
	return &Player{sink: sink, frameDuration: frameDuration}, nil
}

// Play emits waveform to the sink as fixed-duration frames at real-time
// pace. It checks ctx before each emission and returns ctx.Err() as soon as
// cancellation is observed; the caller treats that as a normal barge-in
// outcome, not a failure. Any sink write error is returned immediately.
func (p *Player) Play(ctx context.Context, waveform audio.AudioFrame) error {
	if waveform.SampleRate <= 0 || waveform.Channels <= 0 {
		return fmt.Errorf("egress: waveform format %dHz/%dch invalid", waveform.SampleRate, waveform.Channels)
	}

	blockAlign := waveform.Channels * 2
	frameBytes := int(int64(waveform.SampleRate) * int64(p.frameDuration) / int64(time.Second))
	frameBytes *= blockAlign
	if frameBytes < blockAlign {
		frameBytes = blockAlign
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	if !timer.Stop() {
		<-timer.C
	}

	var elapsed time.Duration
	data := waveform.Data
	for off := 0; off < len(data); off += frameBytes {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := off + frameBytes
		if end > len(data) {
			end = len(data)
		}
		// Never emit a torn sample at the tail.
		end -= (end - off) % blockAlign
		if end <= off {
			break
		}

		frame := audio.AudioFrame{
			Data:       data[off:end],
			SampleRate: waveform.SampleRate,
			Channels:   waveform.Channels,
			Timestamp:  waveform.Timestamp + elapsed,
		}
		if err := p.sink.WriteFrame(ctx, frame); err != nil {
			return fmt.Errorf("egress: write frame: %w", err)
		}

		// Pace: wait out this frame's playback duration before the next one.
		pause := frame.Duration()
		elapsed += pause
		timer.Reset(pause)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}
