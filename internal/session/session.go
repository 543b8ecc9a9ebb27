// Package session ties one client connection to its own turn controller and
// drives the inbound frame loop. A [Manager] owns the set of live sessions
// and builds the per-session plumbing (playback pacer, turn controller) from
// shared dependencies.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/turn"
	"github.com/MrWong99/parley/pkg/audio"
)

// Transport is the session's view of a client audio connection.
// Implemented by [wsrtc.Conn].
type Transport interface {
	// Frames returns the inbound audio stream in the engine's working
	// format. The channel closes when the client disconnects.
	Frames() <-chan audio.AudioFrame

	// WriteFrame streams one reply frame to the client.
	WriteFrame(ctx context.Context, frame audio.AudioFrame) error

	// Flush writes any held-back partial wire frame.
	Flush(ctx context.Context) error

	// Err returns the error that ended the frame stream, nil for a clean
	// disconnect.
	Err() error

	// Close tears the connection down.
	Close() error
}

// Session is one live conversation.
type Session struct {
	id         string
	transport  Transport
	controller *turn.Controller
	greeting   string
	metrics    *observe.Metrics
	startedAt  time.Time
	onClose    func(id string)
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// StartedAt returns when the session was opened.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Run drives the session until the client disconnects or ctx is cancelled.
// It speaks the configured greeting concurrently with the frame loop, so a
// user can talk over it from the first moment.
func (s *Session) Run(ctx context.Context) error {
	defer s.close()

	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(ctx, -1)

	slog.Info("session started", "session_id", s.id)

	if s.greeting != "" {
		go func() {
			if err := s.controller.Speak(ctx, s.greeting); err != nil {
				slog.Warn("greeting failed", "session_id", s.id, "error", err)
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("session stopped", "session_id", s.id, "reason", "shutdown")
			return ctx.Err()
		case frame, ok := <-s.transport.Frames():
			if !ok {
				err := s.transport.Err()
				if err != nil {
					slog.Warn("session ended with transport error", "session_id", s.id, "error", err)
					return fmt.Errorf("session: transport: %w", err)
				}
				slog.Info("session ended", "session_id", s.id, "duration", time.Since(s.startedAt))
				return nil
			}
			s.controller.HandleFrame(frame)
		}
	}
}

// close releases the session's resources and deregisters it.
func (s *Session) close() {
	s.controller.Close()
	_ = s.transport.Close()
	// The transport's decode goroutine may still be blocked handing over an
	// in-flight frame; drain until it observes the close.
	go audio.Drain(s.transport.Frames())
	if s.onClose != nil {
		s.onClose(s.id)
	}
}

// flushingPlayer pairs the real-time pacer with a transport flush so the tail
// of each reply is not held back until the next one.
type flushingPlayer struct {
	player    turn.Player
	transport Transport
}

func (p flushingPlayer) Play(ctx context.Context, waveform audio.AudioFrame) error {
	if err := p.player.Play(ctx, waveform); err != nil {
		return err
	}
	return p.transport.Flush(ctx)
}
