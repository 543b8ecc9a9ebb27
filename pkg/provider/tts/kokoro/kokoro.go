// Package kokoro provides a tts.Provider backed by a local Kokoro TTS
// server exposing the OpenAI-compatible speech API.
//
// Synthesis is performed in batch mode via POST /v1/audio/speech with a JSON
// body and a WAV response. The kokoro-fastapi Docker image serves this API
// out of the box.
//
// Typical usage:
//
//	p, err := kokoro.New("http://localhost:8880",
//	    kokoro.WithVoice("af_sarah"),
//	    kokoro.WithSpeed(1.0),
//	)
//	waveform, err := p.Synthesize(ctx, "Bonjour tout le monde")
package kokoro

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultVoice   = "af_sarah"
	defaultModel   = "kokoro"
	defaultTimeout = 30 * time.Second
	speechEndpoint = "/v1/audio/speech"
)

// Option is a functional option for configuring a Kokoro Provider.
type Option func(*Provider)

// WithVoice sets the voice identifier sent to the server (e.g., "af_sarah",
// "ff_siwis"). Defaults to "af_sarah".
func WithVoice(voice string) Option {
	return func(p *Provider) { p.voice = voice }
}

// WithSpeed sets the playback speed multiplier in (0, 4]. Defaults to 1.0.
func WithSpeed(speed float64) Option {
	return func(p *Provider) { p.speed = speed }
}

// WithModel sets the model name sent to the server. Defaults to "kokoro".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// Provider implements tts.Provider backed by a locally-running Kokoro
// server. It is safe for concurrent use; multiple Synthesize calls may run
// in parallel.
type Provider struct {
	serverURL  string
	voice      string
	model      string
	speed      float64
	httpClient *http.Client
}

// New creates a Provider that targets the Kokoro server at serverURL (e.g.,
// "http://localhost:8880"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("kokoro: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  serverURL,
		voice:      defaultVoice,
		model:      defaultModel,
		speed:      1.0,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	if p.speed <= 0 || p.speed > 4 {
		return nil, fmt.Errorf("kokoro: speed %v must be in (0, 4]", p.speed)
	}
	return p, nil
}

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	Speed          float64 `json:"speed"`
	ResponseFormat string  `json:"response_format"`
}

// Synthesize POSTs text to the speech endpoint and decodes the WAV response
// into a PCM waveform.
func (p *Provider) Synthesize(ctx context.Context, text string) (audio.AudioFrame, error) {
	if text == "" {
		return audio.AudioFrame{}, errors.New("kokoro: text must not be empty")
	}

	body, err := json.Marshal(speechRequest{
		Model:          p.model,
		Input:          text,
		Voice:          p.voice,
		Speed:          p.speed,
		ResponseFormat: "wav",
	})
	if err != nil {
		return audio.AudioFrame{}, fmt.Errorf("kokoro: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+speechEndpoint, bytes.NewReader(body))
	if err != nil {
		return audio.AudioFrame{}, fmt.Errorf("kokoro: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return audio.AudioFrame{}, fmt.Errorf("kokoro: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return audio.AudioFrame{}, fmt.Errorf("kokoro: server returned HTTP %d", resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return audio.AudioFrame{}, fmt.Errorf("kokoro: read response body: %w", err)
	}

	pcm, sampleRate, channels, err := audio.DecodeWAV(wav)
	if err != nil {
		return audio.AudioFrame{}, fmt.Errorf("kokoro: decode response: %w", err)
	}
	return audio.AudioFrame{Data: pcm, SampleRate: sampleRate, Channels: channels}, nil
}
