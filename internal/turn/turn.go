// Package turn implements the conversational turn-taking state machine that
// sits between the inbound audio stream and the response pipeline.
//
// A [Controller] consumes microphone frames one at a time, classifies them
// with a VAD detector, and accumulates speech into a segment buffer. When the
// user stops talking, the sealed segment is handed to the response pipeline
// in a background goroutine and the synthesized reply is streamed out through
// the audio player. At most one turn is in flight at any time.
//
// The controller moves through four states:
//
//	Idle       — no speech detected, nothing in flight
//	Listening  — speech onset confirmed, buffering the user's utterance
//	Processing — segment sealed, pipeline running in the background
//	Speaking   — reply playback in progress
//
// A new speech onset while the assistant is speaking is a barge-in: playback
// is cancelled immediately, the VAD and segment buffer are reset, and the
// controller returns to Listening. Speech detected while a turn is still
// processing is recorded and acted on when playback would begin, so the
// stale reply is dropped without ever reaching the speaker.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/pipeline"
	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/audio/segment"
	"github.com/MrWong99/parley/pkg/audio/vad"
	"github.com/MrWong99/parley/pkg/memory"
	"github.com/MrWong99/parley/pkg/provider/tts"
)

// defaultFallbackUtterance is spoken when the response pipeline fails and
// no override is configured.
const defaultFallbackUtterance = "Désolé, une erreur s'est produite."

// State identifies a phase of the turn-taking state machine.
type State int

const (
	// StateIdle means no speech is detected and nothing is in flight.
	StateIdle State = iota

	// StateListening means a speech onset was confirmed and the user's
	// utterance is being buffered.
	StateListening

	// StateProcessing means the segment was sealed and the response
	// pipeline is running.
	StateProcessing

	// StateSpeaking means reply playback is in progress.
	StateSpeaking
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Pipeline produces a reply for a sealed speech segment. Implemented by
// [pipeline.Pipeline].
type Pipeline interface {
	// RunTurn transcribes the WAV segment and produces a reply. A nil
	// result with a nil error means the segment contained no usable
	// speech.
	RunTurn(ctx context.Context, segmentWAV []byte) (*pipeline.TurnResult, error)
}

// Player streams a synthesized waveform to the user in real time.
// Implemented by [egress.Player].
type Player interface {
	Play(ctx context.Context, waveform audio.AudioFrame) error
}

// Config configures a [Controller].
type Config struct {
	// Pipeline produces replies for sealed segments. Required.
	Pipeline Pipeline

	// TTS synthesizes reply text into a waveform. Required.
	TTS tts.Provider

	// Player streams synthesized audio back to the user. Required.
	Player Player

	// VAD configures the speech detector. Zero value uses defaults.
	VAD vad.Config

	// Segment configures the utterance buffer. SampleRate and Channels
	// are required.
	Segment segment.Config

	// SessionID identifies the conversation in logs and turn records.
	SessionID string

	// FallbackUtterance is spoken when the pipeline fails. Empty selects
	// the built-in default.
	FallbackUtterance string

	// TurnLog optionally persists completed turns. May be nil.
	TurnLog memory.TurnLog

	// Metrics optionally records turn metrics. When nil,
	// [observe.DefaultMetrics] is used.
	Metrics *observe.Metrics
}

func (c Config) validate() error {
	var errs []error
	if c.Pipeline == nil {
		errs = append(errs, errors.New("pipeline is required"))
	}
	if c.TTS == nil {
		errs = append(errs, errors.New("tts provider is required"))
	}
	if c.Player == nil {
		errs = append(errs, errors.New("player is required"))
	}
	return errors.Join(errs...)
}

// Controller is the turn-taking state machine for a single voice session.
//
// [Controller.HandleFrame] must be called from a single goroutine (the
// session's inbound frame loop); the pipeline and playback run in background
// goroutines managed by the controller. All state transitions happen under
// one mutex.
type Controller struct {
	pipeline  Pipeline
	tts       tts.Provider
	player    Player
	sessionID string
	fallback  string
	turnLog   memory.TurnLog
	metrics   *observe.Metrics

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu           sync.Mutex
	state        State
	detector     *vad.Detector
	buffer       *segment.Buffer
	prevSpeaking bool
	bargePending bool
	speakCancel  context.CancelFunc

	// gen increments on every barge-in so that a superseded turn
	// goroutine never writes a stale state transition.
	gen uint64
}

// New creates a turn controller. Frames passed to [Controller.HandleFrame]
// must match the sample rate and channel count in cfg.Segment.
func New(cfg Config) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("turn: invalid config: %w", err)
	}
	detector, err := vad.New(cfg.VAD)
	if err != nil {
		return nil, fmt.Errorf("turn: %w", err)
	}
	buffer, err := segment.New(cfg.Segment)
	if err != nil {
		return nil, fmt.Errorf("turn: %w", err)
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	fallback := cfg.FallbackUtterance
	if fallback == "" {
		fallback = defaultFallbackUtterance
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		pipeline:  cfg.Pipeline,
		tts:       cfg.TTS,
		player:    cfg.Player,
		sessionID: cfg.SessionID,
		fallback:  fallback,
		turnLog:   cfg.TurnLog,
		metrics:   metrics,
		baseCtx:   ctx,
		cancel:    cancel,
		state:     StateIdle,
		detector:  detector,
		buffer:    buffer,
	}, nil
}

// State returns the current state of the controller.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HandleFrame feeds one inbound audio frame through the state machine. It
// never blocks on the pipeline or playback; those run in the background.
func (c *Controller) HandleFrame(frame audio.AudioFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := c.detector.Process(frame)

	switch c.state {
	case StateIdle:
		if res.Class == vad.Speech {
			c.buffer.AddFrame(frame)
		} else {
			// A silence frame breaks the onset run, so frames buffered
			// for an onset that never confirmed are stale. Discard them
			// or they prepend to the next utterance's segment.
			c.buffer.Clear()
		}
		if res.Speaking {
			c.state = StateListening
			slog.Debug("speech onset", "session_id", c.sessionID)
		}

	case StateListening:
		if res.Class == vad.Speech {
			c.buffer.AddFrame(frame)
		}
		if c.prevSpeaking && !res.Speaking {
			c.sealAndDispatchLocked()
		}

	case StateProcessing:
		// A new onset while the previous turn is still in flight
		// supersedes its reply. The pipeline is not re-entered; the
		// flag is honoured when playback would begin.
		if res.Class == vad.Speech {
			c.bargePending = true
		}

	case StateSpeaking:
		if res.Speaking {
			// bargeInLocked resets detection state; keep the cleared
			// prevSpeaking instead of this frame's result.
			c.bargeInLocked()
			return
		}
	}

	c.prevSpeaking = res.Speaking
}

// sealAndDispatchLocked seals the buffered utterance and starts the turn
// goroutine. Caller holds c.mu.
func (c *Controller) sealAndDispatchLocked() {
	wav := c.buffer.SealAndGet()
	if wav == nil {
		c.state = StateIdle
		return
	}
	c.metrics.SegmentsSealed.Add(c.baseCtx, 1)
	slog.Debug("segment sealed", "session_id", c.sessionID, "bytes", len(wav))
	c.state = StateProcessing
	gen := c.gen
	c.wg.Add(1)
	go c.runTurn(gen, wav)
}

// bargeInLocked handles a speech onset during playback: cancel the player,
// reset detection state, and return to Listening. Caller holds c.mu.
func (c *Controller) bargeInLocked() {
	if c.speakCancel != nil {
		c.speakCancel()
		c.speakCancel = nil
	}
	c.detector.Reset()
	c.buffer.Clear()
	c.bargePending = false
	c.prevSpeaking = false
	c.gen++
	c.state = StateListening
	c.metrics.BargeIns.Add(c.baseCtx, 1)
	c.metrics.RecordTurn(c.baseCtx, "barge_in")
	slog.Info("barge-in: playback interrupted", "session_id", c.sessionID)
}

// runTurn drives one turn through the pipeline, synthesis, and playback.
// gen is the generation at dispatch time; if a barge-in bumps it, this turn
// is superseded and must not touch controller state.
func (c *Controller) runTurn(gen uint64, wav []byte) {
	defer c.wg.Done()
	ctx := c.baseCtx
	start := time.Now()

	result, err := c.pipeline.RunTurn(ctx, wav)
	if err != nil {
		slog.Error("turn pipeline failed", "session_id", c.sessionID, "error", err)
		c.metrics.RecordTurn(ctx, "fallback")
		c.speakReply(gen, c.fallback, start)
		return
	}
	if result == nil {
		// Transcription was blank: not a real utterance.
		c.metrics.RecordTurn(ctx, "no_speech")
		c.settle(gen)
		return
	}

	if delivered := c.speakReply(gen, result.ReplyText, start); !delivered {
		return
	}

	outcome := "completed"
	if result.FastPath != "" {
		outcome = "fast_path"
	}
	c.metrics.RecordTurn(ctx, outcome)
	c.appendTurnRecord(result, time.Since(start))
}

// speakReply synthesizes text and plays it, honouring any barge-in recorded
// while the pipeline was running. It reports whether the reply was played to
// completion.
func (c *Controller) speakReply(gen uint64, text string, start time.Time) bool {
	waveform, err := c.tts.Synthesize(c.baseCtx, text)
	if err != nil {
		slog.Error("synthesis failed", "session_id", c.sessionID, "error", err)
		c.metrics.RecordTurn(c.baseCtx, "error")
		c.settle(gen)
		return false
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return false
	}
	if c.bargePending {
		// The user started talking while we were thinking. Drop the
		// stale reply before it reaches the speaker.
		c.bargePending = false
		c.detector.Reset()
		c.buffer.Clear()
		c.prevSpeaking = false
		c.state = StateListening
		c.mu.Unlock()
		c.metrics.BargeIns.Add(c.baseCtx, 1)
		c.metrics.RecordTurn(c.baseCtx, "barge_in")
		slog.Info("barge-in: stale reply dropped", "session_id", c.sessionID)
		return false
	}
	playCtx, cancel := context.WithCancel(c.baseCtx)
	c.speakCancel = cancel
	c.state = StateSpeaking
	c.mu.Unlock()

	c.metrics.TurnDuration.Record(c.baseCtx, time.Since(start).Seconds())

	err = c.player.Play(playCtx, waveform)
	cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("playback failed", "session_id", c.sessionID, "error", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		// A barge-in cancelled playback; the new listening state is
		// already in place.
		return false
	}
	c.speakCancel = nil
	// Sub-onset speech during playback must not carry over as a head
	// start for the next onset.
	c.detector.Reset()
	c.prevSpeaking = false
	c.state = StateIdle
	return err == nil
}

// settle returns the controller to Idle unless this turn has been superseded
// by a barge-in.
func (c *Controller) settle(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.speakCancel = nil
	c.bargePending = false
	c.detector.Reset()
	c.prevSpeaking = false
	c.state = StateIdle
}

// appendTurnRecord persists the completed turn when a turn log is configured.
func (c *Controller) appendTurnRecord(result *pipeline.TurnResult, latency time.Duration) {
	if c.turnLog == nil {
		return
	}
	rec := memory.TurnRecord{
		SessionID: c.sessionID,
		UserText:  result.UserText,
		ReplyText: result.ReplyText,
		FastPath:  result.FastPath,
		Latency:   latency,
	}
	if err := c.turnLog.AppendTurn(c.baseCtx, rec); err != nil {
		slog.Warn("turn log append failed", "session_id", c.sessionID, "error", err)
	}
}

// Speak synthesizes and plays an utterance outside the normal turn flow,
// such as the session greeting. The controller enters Speaking for the
// duration of playback, so a user onset interrupts it like any reply. Speak
// only proceeds from Idle; any other state means a turn is in flight and it
// returns an error without touching playback.
func (c *Controller) Speak(ctx context.Context, text string) error {
	waveform, err := c.tts.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("turn: synthesize: %w", err)
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("turn: cannot speak while %s", c.state)
	}
	gen := c.gen
	playCtx, cancel := context.WithCancel(ctx)
	c.speakCancel = cancel
	c.state = StateSpeaking
	c.mu.Unlock()

	err = c.player.Play(playCtx, waveform)
	cancel()
	c.settle(gen)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("turn: playback: %w", err)
	}
	return nil
}

// Close cancels any in-flight turn and playback and waits for background
// goroutines to finish. The controller must not be used afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.speakCancel != nil {
		c.speakCancel()
		c.speakCancel = nil
	}
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}

var _ Pipeline = (*pipeline.Pipeline)(nil)
