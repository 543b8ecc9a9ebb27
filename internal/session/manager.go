package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/turn"
	"github.com/MrWong99/parley/pkg/audio/egress"
	"github.com/MrWong99/parley/pkg/audio/segment"
	"github.com/MrWong99/parley/pkg/audio/vad"
	"github.com/MrWong99/parley/pkg/memory"
	"github.com/MrWong99/parley/pkg/provider/tts"
	"golang.org/x/sync/errgroup"
)

// ManagerConfig holds the shared dependencies every session is built from.
type ManagerConfig struct {
	// Pipeline produces replies for sealed segments. Required.
	Pipeline turn.Pipeline

	// TTS synthesizes reply text. Required.
	TTS tts.Provider

	// VAD configures speech detection. Zero value uses defaults.
	VAD vad.Config

	// Segment configures the utterance buffer. SampleRate and Channels
	// are required.
	Segment segment.Config

	// EgressFrameDuration is the playback pacing chunk size. Zero value
	// uses the egress default.
	EgressFrameDuration time.Duration

	// Greeting is spoken when a session opens. Empty disables it.
	Greeting string

	// FallbackUtterance is spoken when a turn fails. Empty selects the
	// built-in default.
	FallbackUtterance string

	// TurnLog optionally persists completed turns. May be nil.
	TurnLog memory.TurnLog

	// Metrics optionally records session metrics. When nil,
	// [observe.DefaultMetrics] is used.
	Metrics *observe.Metrics
}

// Manager builds and tracks live sessions. All methods are safe for
// concurrent use.
type Manager struct {
	cfg     ManagerConfig
	metrics *observe.Metrics
	seq     atomic.Uint64

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("session: pipeline is required")
	}
	if cfg.TTS == nil {
		return nil, fmt.Errorf("session: tts provider is required")
	}
	if cfg.EgressFrameDuration == 0 {
		cfg.EgressFrameDuration = egress.DefaultFrameDuration
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Manager{
		cfg:      cfg,
		metrics:  metrics,
		sessions: make(map[string]*Session),
	}, nil
}

// Open builds a session around the given transport and registers it. The
// caller owns the returned session and must call [Session.Run].
func (m *Manager) Open(transport Transport) (*Session, error) {
	id := fmt.Sprintf("session-%s-%04d",
		time.Now().UTC().Format("20060102T150405Z"),
		m.seq.Add(1),
	)

	player, err := egress.NewPlayer(transport, m.cfg.EgressFrameDuration)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	controller, err := turn.New(turn.Config{
		Pipeline:  m.cfg.Pipeline,
		TTS:       m.cfg.TTS,
		Player:    flushingPlayer{player: player, transport: transport},
		VAD:       m.cfg.VAD,
		Segment:   m.cfg.Segment,
		SessionID: id,

		FallbackUtterance: m.cfg.FallbackUtterance,

		TurnLog: m.cfg.TurnLog,
		Metrics: m.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	s := &Session{
		id:         id,
		transport:  transport,
		controller: controller,
		greeting:   m.cfg.Greeting,
		metrics:    m.metrics,
		startedAt:  time.Now(),
		onClose:    m.remove,
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s, nil
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// remove deregisters a session after it closes.
func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Shutdown closes all live sessions concurrently and waits for them to
// deregister or ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	var g errgroup.Group
	for _, s := range open {
		g.Go(func() error {
			return s.transport.Close()
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("session: shutdown: %w", err)
	}

	// Wait for the Run loops to observe the closed transports.
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if m.Count() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
