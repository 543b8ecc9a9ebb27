package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/parley/internal/config"
)

const fullYAML = `
server:
  listen_addr: ":8080"
  log_level: debug
audio:
  sample_rate: 16000
  channels: 1
  frame_duration: 30ms
  egress_frame_duration: 100ms
vad:
  energy_threshold: 0.01
  onset_frames: 3
  hangover: 300ms
  max_segment_duration: 10s
providers:
  stt:
    name: whisper
    base_url: "http://localhost:8081"
  llm:
    name: groq
    api_key: "gsk_test"
    model: "llama-3.3-70b-versatile"
  tts:
    name: kokoro
    base_url: "http://localhost:8880"
    options:
      voice: af_sarah
      speed: 1.1
  embeddings:
    name: openai
    api_key: "sk-test"
    model: "text-embedding-3-small"
retrieval:
  top_k: 3
  score_threshold: 0.7
keywords:
  greetings: ["bonjour", "salut"]
  greeting_responses: ["Bonjour!"]
  fuzzy_threshold: 0.88
conversation:
  language: fr
  system_prompt: "Tu es un assistant vocal."
  temperature: 0.7
  max_tokens: 256
  greeting: "Bonjour! Comment puis-je vous aider?"
memory:
  postgres_dsn: "postgres://localhost:5432/parley"
  embedding_dimensions: 1536
`

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q", cfg.Server.LogLevel)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 {
		t.Errorf("audio format: got %d Hz %d ch", cfg.Audio.SampleRate, cfg.Audio.Channels)
	}
	if cfg.Audio.FrameDuration.Std() != 30*time.Millisecond {
		t.Errorf("frame_duration: got %v", cfg.Audio.FrameDuration)
	}
	if cfg.VAD.EnergyThreshold != 0.01 || cfg.VAD.OnsetFrames != 3 {
		t.Errorf("vad: got %+v", cfg.VAD)
	}
	if cfg.VAD.MaxSegmentDuration.Std() != 10*time.Second {
		t.Errorf("max_segment_duration: got %v", cfg.VAD.MaxSegmentDuration)
	}
	if cfg.Providers.STT.Name != "whisper" {
		t.Errorf("stt provider: got %q", cfg.Providers.STT.Name)
	}
	if cfg.Providers.LLM.Model != "llama-3.3-70b-versatile" {
		t.Errorf("llm model: got %q", cfg.Providers.LLM.Model)
	}
	if got := cfg.Providers.TTS.Options["voice"]; got != "af_sarah" {
		t.Errorf("tts voice option: got %v", got)
	}
	if cfg.Retrieval.TopK != 3 || cfg.Retrieval.ScoreThreshold != 0.7 {
		t.Errorf("retrieval: got %+v", cfg.Retrieval)
	}
	if len(cfg.Keywords.Greetings) != 2 {
		t.Errorf("keywords.greetings: got %v", cfg.Keywords.Greetings)
	}
	if cfg.Conversation.Language != "fr" {
		t.Errorf("language: got %q", cfg.Conversation.Language)
	}
	if cfg.Memory.EmbeddingDimensions != 1536 {
		t.Errorf("embedding_dimensions: got %d", cfg.Memory.EmbeddingDimensions)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
  not_a_real_field: true
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoadFromReader_InvalidYAML(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server: [not a map"))
	if err == nil {
		t.Fatal("expected error for malformed YAML, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoad_FromFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(fullYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.TTS.Name != "kokoro" {
		t.Errorf("tts provider: got %q", cfg.Providers.TTS.Name)
	}
}
