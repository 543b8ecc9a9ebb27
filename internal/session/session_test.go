package session

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/parley/internal/pipeline"
	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/audio/segment"
	"github.com/MrWong99/parley/pkg/audio/vad"
	ttsmock "github.com/MrWong99/parley/pkg/provider/tts/mock"
)

// stubTransport is an in-memory Transport backed by channels.
type stubTransport struct {
	frames chan audio.AudioFrame

	mu      sync.Mutex
	written []audio.AudioFrame
	flushes int
	err     error
	closed  bool
}

func newStubTransport() *stubTransport {
	return &stubTransport{frames: make(chan audio.AudioFrame, 64)}
}

func (t *stubTransport) Frames() <-chan audio.AudioFrame { return t.frames }

func (t *stubTransport) WriteFrame(ctx context.Context, frame audio.AudioFrame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	t.written = append(t.written, frame)
	t.mu.Unlock()
	return nil
}

func (t *stubTransport) Flush(ctx context.Context) error {
	t.mu.Lock()
	t.flushes++
	t.mu.Unlock()
	return nil
}

func (t *stubTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *stubTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.frames)
	}
	return nil
}

func (t *stubTransport) writtenCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.written)
}

// scriptedPipeline returns a fixed result for every segment.
type scriptedPipeline struct {
	mu     sync.Mutex
	calls  int
	result *pipeline.TurnResult
}

func (p *scriptedPipeline) RunTurn(ctx context.Context, segmentWAV []byte) (*pipeline.TurnResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.result, nil
}

func (p *scriptedPipeline) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newTestManager(t *testing.T, pl *scriptedPipeline, greeting string) *Manager {
	t.Helper()
	waveData := make([]byte, 480*2)
	for i := 0; i < 480; i++ {
		binary.LittleEndian.PutUint16(waveData[i*2:], uint16(int16(4000)))
	}
	m, err := NewManager(ManagerConfig{
		Pipeline: pl,
		TTS:      &ttsmock.Provider{Waveform: audio.AudioFrame{Data: waveData, SampleRate: 16000, Channels: 1}},
		VAD: vad.Config{
			EnergyThreshold: 0.01,
			OnsetFrames:     3,
			Hangover:        300 * time.Millisecond,
			FrameDuration:   30 * time.Millisecond,
		},
		Segment:             segment.Config{SampleRate: 16000, Channels: 1},
		EgressFrameDuration: 10 * time.Millisecond,
		Greeting:            greeting,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func loudFrame() audio.AudioFrame {
	data := make([]byte, 480*2)
	for i := 0; i < 480; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(8000)))
	}
	return audio.AudioFrame{Data: data, SampleRate: 16000, Channels: 1}
}

func quietFrame() audio.AudioFrame {
	return audio.AudioFrame{Data: make([]byte, 480*2), SampleRate: 16000, Channels: 1}
}

func TestSession_FullTurnOverTransport(t *testing.T) {
	pl := &scriptedPipeline{result: &pipeline.TurnResult{UserText: "bonjour", ReplyText: "salut"}}
	m := newTestManager(t, pl, "")

	transport := newStubTransport()
	s, err := m.Open(transport)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	for i := 0; i < 3; i++ {
		transport.frames <- loudFrame()
	}
	for i := 0; i < 12; i++ {
		transport.frames <- quietFrame()
	}

	// The reply must arrive on the transport, paced into egress frames
	// and followed by a flush.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && transport.writtenCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if got := transport.writtenCount(); got == 0 {
		t.Fatal("no reply frames reached the transport")
	}
	if got := pl.callCount(); got != 1 {
		t.Errorf("pipeline calls = %d, want 1", got)
	}

	transport.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after transport close")
	}

	transport.mu.Lock()
	flushes := transport.flushes
	transport.mu.Unlock()
	if flushes == 0 {
		t.Error("reply tail was never flushed")
	}
}

func TestSession_GreetingIsSpokenOnOpen(t *testing.T) {
	m := newTestManager(t, &scriptedPipeline{}, "Bonjour! Comment puis-je vous aider?")

	transport := newStubTransport()
	s, err := m.Open(transport)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && transport.writtenCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if got := transport.writtenCount(); got == 0 {
		t.Fatal("greeting never reached the transport")
	}

	transport.Close()
	<-done
}

func TestSession_TransportErrorPropagates(t *testing.T) {
	m := newTestManager(t, &scriptedPipeline{}, "")

	transport := newStubTransport()
	s, err := m.Open(transport)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	wantErr := errors.New("connection reset")
	transport.mu.Lock()
	transport.err = wantErr
	transport.mu.Unlock()
	transport.Close()

	select {
	case err := <-done:
		if !errors.Is(err, wantErr) {
			t.Errorf("Run returned %v, want wrapped %v", err, wantErr)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestManager_TracksAndRemovesSessions(t *testing.T) {
	m := newTestManager(t, &scriptedPipeline{}, "")

	t1 := newStubTransport()
	t2 := newStubTransport()
	s1, err := m.Open(t1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s2, err := m.Open(t2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s1.ID() == s2.ID() {
		t.Errorf("session IDs collide: %q", s1.ID())
	}
	if got := m.Count(); got != 2 {
		t.Fatalf("Count = %d, want 2", got)
	}

	done1 := make(chan error, 1)
	done2 := make(chan error, 1)
	go func() { done1 <- s1.Run(context.Background()) }()
	go func() { done2 <- s2.Run(context.Background()) }()

	t1.Close()
	<-done1

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && m.Count() != 1 {
		time.Sleep(2 * time.Millisecond)
	}
	if got := m.Count(); got != 1 {
		t.Fatalf("Count after close = %d, want 1", got)
	}

	t2.Close()
	<-done2
}

func TestManager_Shutdown(t *testing.T) {
	m := newTestManager(t, &scriptedPipeline{}, "")

	transport := newStubTransport()
	s, err := m.Open(transport)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	go func() { _ = s.Run(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got := m.Count(); got != 0 {
		t.Errorf("Count after shutdown = %d, want 0", got)
	}
}
