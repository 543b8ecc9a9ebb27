// Command parley is the main entry point for the Parley voice assistant
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/parley/internal/config"
	"github.com/MrWong99/parley/internal/health"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/pipeline"
	"github.com/MrWong99/parley/internal/resilience"
	"github.com/MrWong99/parley/internal/retrieval"
	"github.com/MrWong99/parley/internal/server"
	"github.com/MrWong99/parley/internal/session"
	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/audio/segment"
	"github.com/MrWong99/parley/pkg/audio/vad"
	"github.com/MrWong99/parley/pkg/memory/postgres"
	"github.com/MrWong99/parley/pkg/provider/embeddings"
	ollamaembed "github.com/MrWong99/parley/pkg/provider/embeddings/ollama"
	oaembed "github.com/MrWong99/parley/pkg/provider/embeddings/openai"
	"github.com/MrWong99/parley/pkg/provider/llm"
	"github.com/MrWong99/parley/pkg/provider/llm/anyllm"
	"github.com/MrWong99/parley/pkg/provider/stt"
	"github.com/MrWong99/parley/pkg/provider/stt/whisper"
	"github.com/MrWong99/parley/pkg/provider/tts"
	"github.com/MrWong99/parley/pkg/provider/tts/kokoro"
)

const defaultEmbeddingDimensions = 1536

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "parley: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "parley: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so config hot-reload can adjust it
	// without rebuilding the handler.
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("parley starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "parley"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	if providers.STT == nil || providers.LLM == nil || providers.TTS == nil || providers.Embeddings == nil {
		slog.Error("missing required providers — configure providers.stt, providers.llm, providers.tts and providers.embeddings")
		return 1
	}

	// Circuit breakers make a dead backend fail fast instead of stalling
	// every turn until its transport timeout.
	providers.STT = resilience.NewSTT(providers.STT, resilience.CircuitBreakerConfig{Name: "stt"})
	providers.LLM = resilience.NewLLM(providers.LLM, resilience.CircuitBreakerConfig{Name: "llm"})
	providers.TTS = resilience.NewTTS(providers.TTS, resilience.CircuitBreakerConfig{Name: "tts"})
	providers.Embeddings = resilience.NewEmbeddings(providers.Embeddings, resilience.CircuitBreakerConfig{Name: "embeddings"})

	// ── Knowledge base ────────────────────────────────────────────────────────
	if cfg.Memory.PostgresDSN == "" {
		slog.Error("memory.postgres_dsn is required — the retrieval layer needs a document store")
		return 1
	}
	dims := cfg.Memory.EmbeddingDimensions
	if dims == 0 {
		dims = defaultEmbeddingDimensions
	}
	store, err := postgres.NewStore(ctx, cfg.Memory.PostgresDSN, dims)
	if err != nil {
		slog.Error("failed to open document store", "err", err)
		return 1
	}
	defer store.Close()

	// ── Turn pipeline ─────────────────────────────────────────────────────────
	retriever, err := retrieval.New(providers.Embeddings, store, retrieval.Config{
		TopK:           cfg.Retrieval.TopK,
		ScoreThreshold: cfg.Retrieval.ScoreThreshold,
		Metrics:        metrics,
	})
	if err != nil {
		slog.Error("failed to build retriever", "err", err)
		return 1
	}

	classifier := pipeline.NewClassifier(pipeline.ClassifierConfig{
		GreetingKeywords:  cfg.Keywords.Greetings,
		ThanksKeywords:    cfg.Keywords.Thanks,
		GoodbyeKeywords:   cfg.Keywords.Goodbyes,
		GreetingResponses: cfg.Keywords.GreetingResponses,
		ThanksResponses:   cfg.Keywords.ThanksResponses,
		GoodbyeResponses:  cfg.Keywords.GoodbyeResponses,
		FuzzyThreshold:    cfg.Keywords.FuzzyThreshold,
	})

	pipe, err := pipeline.New(providers.STT, retriever, providers.LLM, classifier, pipeline.Config{
		Language:     cfg.Conversation.Language,
		SystemPrompt: cfg.Conversation.SystemPrompt,
		Temperature:  cfg.Conversation.Temperature,
		MaxTokens:    cfg.Conversation.MaxTokens,
	})
	if err != nil {
		slog.Error("failed to build pipeline", "err", err)
		return 1
	}

	// ── Sessions ──────────────────────────────────────────────────────────────
	format := audio.Format{
		SampleRate: orInt(cfg.Audio.SampleRate, 16000),
		Channels:   orInt(cfg.Audio.Channels, 1),
	}
	sessions, err := session.NewManager(session.ManagerConfig{
		Pipeline: pipe,
		TTS:      providers.TTS,
		VAD: vad.Config{
			EnergyThreshold: cfg.VAD.EnergyThreshold,
			OnsetFrames:     cfg.VAD.OnsetFrames,
			Hangover:        cfg.VAD.Hangover.Std(),
			FrameDuration:   cfg.Audio.FrameDuration.Std(),
		},
		Segment: segment.Config{
			SampleRate:  format.SampleRate,
			Channels:    format.Channels,
			MaxDuration: cfg.VAD.MaxSegmentDuration.Std(),
		},
		EgressFrameDuration: cfg.Audio.EgressFrameDuration.Std(),
		Greeting:            cfg.Conversation.Greeting,
		FallbackUtterance:   cfg.Conversation.FallbackUtterance,
		TurnLog:             store,
		Metrics:             metrics,
	})
	if err != nil {
		slog.Error("failed to build session manager", "err", err)
		return 1
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	healthHandler := health.New(health.Checker{
		Name: "knowledge_base",
		Check: func(ctx context.Context) error {
			_, err := store.CountDocuments(ctx)
			return err
		},
	})

	srvCfg := server.Config{
		ListenAddr: cfg.Server.ListenAddr,
		Sessions:   sessions,
		Format:     format,
		Health:     healthHandler,
		Metrics:    metrics,
	}
	if cfg.Server.TLS != nil {
		srvCfg.TLSCertFile = cfg.Server.TLS.CertFile
		srvCfg.TLSKeyFile = cfg.Server.TLS.KeyFile
	}
	srv, err := server.New(srvCfg)
	if err != nil {
		slog.Error("failed to build server", "err", err)
		return 1
	}

	// ── Config hot-reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyConfigChange(logLevel, old, new)
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders maps provider category names to the implementations that
// ship with Parley. Used for startup logging.
var builtinProviders = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":        {"whisper", "whisper-native"},
	"tts":        {"kokoro"},
	"embeddings": {"openai", "ollama"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai, anthropic, gemini, deepseek, mistral, groq, llamacpp, llamafile
	// all share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("kokoro", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []kokoro.Option
		if entry.Model != "" {
			opts = append(opts, kokoro.WithModel(entry.Model))
		}
		if voice := optString(entry.Options, "voice"); voice != "" {
			opts = append(opts, kokoro.WithVoice(voice))
		}
		if speed := optFloat(entry.Options, "speed"); speed != 0 {
			opts = append(opts, kokoro.WithSpeed(speed))
		}
		return kokoro.New(entry.BaseURL, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return ollamaembed.New(entry.BaseURL, entry.Model)
	})
}

// providerSet holds the instantiated providers for this process.
type providerSet struct {
	STT        stt.Provider
	LLM        llm.Provider
	TTS        tts.Provider
	Embeddings embeddings.Provider
}

// buildProviders instantiates every provider named in the configuration.
func buildProviders(cfg *config.Config, reg *config.Registry) (*providerSet, error) {
	ps := &providerSet{}

	// Log what is registered at debug level.
	for kind, names := range builtinProviders {
		slog.Debug("registered providers", "kind", kind, "names", names)
	}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		ps.STT = p
		slog.Info("provider created", "kind", "stt", "name", name)
	}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		ps.LLM = p
		slog.Info("provider created", "kind", "llm", "name", name)
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		}
		ps.TTS = p
		slog.Info("provider created", "kind", "tts", "name", name)
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		ps.Embeddings = p
		slog.Info("provider created", "kind", "embeddings", "name", name)
	}

	return ps, nil
}

// ── Hot reload ────────────────────────────────────────────────────────────────

// applyConfigChange applies the subset of config changes that take effect
// without a restart and warns about the rest.
func applyConfigChange(logLevel *slog.LevelVar, old, new *config.Config) {
	diff := config.Diff(old, new)
	if !diff.HasChanges() {
		slog.Info("config file changed; no reloadable settings differ")
		return
	}
	if diff.LogLevelChanged {
		logLevel.Set(slogLevel(diff.NewLogLevel))
		slog.Info("log level updated", "level", diff.NewLogLevel)
	}
	if diff.ConversationChanged || diff.KeywordsChanged || diff.RetrievalChanged {
		slog.Warn("conversation, keywords or retrieval settings changed — restart to apply",
			"conversation", diff.ConversationChanged,
			"keywords", diff.KeywordsChanged,
			"retrieval", diff.RetrievalChanged,
		)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Parley — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	if cfg.Memory.PostgresDSN != "" {
		fmt.Printf("║  Knowledge base  : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Knowledge base  : %-19s ║\n", "(not configured)")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// optFloat extracts a numeric value from a provider Options map[string]any.
// YAML decodes whole numbers as int, so both forms are accepted.
func optFloat(opts map[string]any, key string) float64 {
	if opts == nil {
		return 0
	}
	switch v := opts[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
