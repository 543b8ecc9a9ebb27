package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":        {"whisper", "whisper-native"},
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts":        {"kokoro"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels < 0 || cfg.Audio.Channels > 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d must be 1 or 2", cfg.Audio.Channels))
	}
	if cfg.Audio.FrameDuration < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_duration %v must not be negative", cfg.Audio.FrameDuration))
	}
	if cfg.Audio.EgressFrameDuration < 0 {
		errs = append(errs, fmt.Errorf("audio.egress_frame_duration %v must not be negative", cfg.Audio.EgressFrameDuration))
	}

	// VAD
	if cfg.VAD.EnergyThreshold < 0 || cfg.VAD.EnergyThreshold >= 1 {
		errs = append(errs, fmt.Errorf("vad.energy_threshold %v must be in [0, 1)", cfg.VAD.EnergyThreshold))
	}
	if cfg.VAD.OnsetFrames < 0 {
		errs = append(errs, fmt.Errorf("vad.onset_frames %d must not be negative", cfg.VAD.OnsetFrames))
	}
	if cfg.VAD.Hangover < 0 {
		errs = append(errs, fmt.Errorf("vad.hangover %v must not be negative", cfg.VAD.Hangover))
	}
	if cfg.VAD.MaxSegmentDuration < 0 {
		errs = append(errs, fmt.Errorf("vad.max_segment_duration %v must not be negative", cfg.VAD.MaxSegmentDuration))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	// Provider availability warnings
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; user speech cannot be transcribed")
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; only keyword fast-path replies will work")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("providers.tts is not configured; replies cannot be spoken")
	}

	// Retrieval
	if cfg.Retrieval.TopK < 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k %d must not be negative", cfg.Retrieval.TopK))
	}
	if cfg.Retrieval.ScoreThreshold < 0 || cfg.Retrieval.ScoreThreshold > 1 {
		errs = append(errs, fmt.Errorf("retrieval.score_threshold %v must be in [0, 1]", cfg.Retrieval.ScoreThreshold))
	}

	// Keywords
	if t := cfg.Keywords.FuzzyThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("keywords.fuzzy_threshold %v must be in [0, 1]", t))
	}

	// Conversation
	if tmp := cfg.Conversation.Temperature; tmp < 0 || tmp > 2 {
		errs = append(errs, fmt.Errorf("conversation.temperature %v must be in [0, 2]", tmp))
	}
	if cfg.Conversation.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("conversation.max_tokens %d must not be negative", cfg.Conversation.MaxTokens))
	}

	// Embeddings ↔ memory dimensions
	if cfg.Providers.Embeddings.Name != "" && cfg.Memory.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but memory.embedding_dimensions is not set; defaulting to 1536")
	}

	// Memory availability
	if cfg.Memory.PostgresDSN == "" {
		slog.Warn("memory.postgres_dsn is empty; knowledge retrieval and the turn log will not be available")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
