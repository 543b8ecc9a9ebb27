// Package vad implements short-term energy voice activity detection with
// hysteresis.
//
// Each incoming frame is scored on its own RMS energy and classified as
// speech or silence against a fixed threshold. The detector's sticky
// speaking flag only flips after a configurable run of consecutive frames
// in the opposite class: a few speech frames to confirm onset, and a longer
// silence hangover before speech is considered ended. The hangover prevents
// brief pauses inside an utterance from chopping it into fragments.
package vad

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/parley/pkg/audio"
)

// Classification is the per-frame speech/silence decision derived from the
// frame's own energy, before hysteresis is applied.
type Classification int

const (
	Silence Classification = iota
	Speech
)

// String returns a human-readable name for the classification.
func (c Classification) String() string {
	if c == Speech {
		return "speech"
	}
	return "silence"
}

// Result is returned by [Detector.Process] for each frame.
type Result struct {
	// Class is the raw per-frame decision (energy vs. threshold).
	Class Classification

	// Speaking is the sticky hysteresis state after this frame. It becomes
	// true only after the onset run completes and false only after the
	// hangover run completes.
	Speaking bool

	// Energy is the normalised RMS of the frame, in [0, 1].
	Energy float64
}

// Default detector parameters. At 30 ms frames the ten-frame hangover
// corresponds to a 300 ms pause tolerance.
const (
	DefaultEnergyThreshold = 0.01
	DefaultOnsetFrames     = 3
	DefaultHangover        = 300 * time.Millisecond
	DefaultFrameDuration   = 30 * time.Millisecond
)

// Config holds the tunable parameters of a [Detector]. Zero values fall back
// to the package defaults.
type Config struct {
	// EnergyThreshold is the normalised RMS above which a frame counts as
	// speech. Must be in (0, 1).
	EnergyThreshold float64

	// OnsetFrames is the number of consecutive speech frames required before
	// the detector reports speaking.
	OnsetFrames int

	// Hangover is the minimum duration of consecutive silence before speech
	// is considered ended.
	Hangover time.Duration

	// FrameDuration is the nominal duration of one frame, used to derive the
	// hangover frame count.
	FrameDuration time.Duration
}

func (c *Config) applyDefaults() {
	if c.EnergyThreshold == 0 {
		c.EnergyThreshold = DefaultEnergyThreshold
	}
	if c.OnsetFrames == 0 {
		c.OnsetFrames = DefaultOnsetFrames
	}
	if c.Hangover == 0 {
		c.Hangover = DefaultHangover
	}
	if c.FrameDuration == 0 {
		c.FrameDuration = DefaultFrameDuration
	}
}

func (c Config) validate() error {
	var errs []error
	if c.EnergyThreshold <= 0 || c.EnergyThreshold >= 1 {
		errs = append(errs, fmt.Errorf("energy threshold %v must be in (0, 1)", c.EnergyThreshold))
	}
	if c.OnsetFrames < 1 {
		errs = append(errs, fmt.Errorf("onset frames %d must be at least 1", c.OnsetFrames))
	}
	if c.Hangover < 0 {
		errs = append(errs, fmt.Errorf("hangover %v must not be negative", c.Hangover))
	}
	if c.FrameDuration <= 0 {
		errs = append(errs, fmt.Errorf("frame duration %v must be positive", c.FrameDuration))
	}
	return errors.Join(errs...)
}

// Detector scores frames and tracks the sticky speaking state for one
// session. It is not safe for concurrent use; each session owns exactly one
// detector which is mutated only from that session's frame loop.
type Detector struct {
	threshold      float64
	onsetFrames    int
	hangoverFrames int

	speechFrames  int
	silenceFrames int
	speaking      bool
}

// New creates a Detector from cfg. Zero-valued fields take the package
// defaults; out-of-range values return an error.
func New(cfg Config) (*Detector, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("vad: invalid config: %w", err)
	}

	hangoverFrames := int(cfg.Hangover / cfg.FrameDuration)
	if hangoverFrames < 1 {
		hangoverFrames = 1
	}

	return &Detector{
		threshold:      cfg.EnergyThreshold,
		onsetFrames:    cfg.OnsetFrames,
		hangoverFrames: hangoverFrames,
	}, nil
}

// Process scores one frame and updates the hysteresis counters. Frames
// shorter than the nominal duration are still scored on their own RMS.
func (d *Detector) Process(frame audio.AudioFrame) Result {
	energy := audio.RMS(frame.Data)

	var class Classification
	if energy > d.threshold {
		class = Speech
		d.speechFrames++
		d.silenceFrames = 0
		if d.speechFrames >= d.onsetFrames {
			d.speaking = true
		}
	} else {
		class = Silence
		d.silenceFrames++
		d.speechFrames = 0
		if d.silenceFrames >= d.hangoverFrames {
			d.speaking = false
		}
	}

	return Result{Class: class, Speaking: d.speaking, Energy: energy}
}

// Speaking reports the current sticky state without processing a frame.
func (d *Detector) Speaking() bool { return d.speaking }

// Reset zeroes all counters and clears the speaking flag. Called after each
// completed turn so stale hysteresis does not leak into the next utterance.
func (d *Detector) Reset() {
	d.speechFrames = 0
	d.silenceFrames = 0
	d.speaking = false
}
