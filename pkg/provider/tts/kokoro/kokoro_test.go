package kokoro_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/provider/tts/kokoro"
)

func TestProvider_Synthesize(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 4800)
	var gotReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(audio.EncodeWAV(pcm, 24000, 1))
	}))
	defer srv.Close()

	p, err := kokoro.New(srv.URL, kokoro.WithVoice("ff_siwis"), kokoro.WithSpeed(1.2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	wave, err := p.Synthesize(context.Background(), "bonjour tout le monde")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if wave.SampleRate != 24000 || wave.Channels != 1 {
		t.Errorf("waveform format = %dHz %dch, want 24000Hz 1ch", wave.SampleRate, wave.Channels)
	}
	if len(wave.Data) != len(pcm) {
		t.Errorf("waveform bytes = %d, want %d", len(wave.Data), len(pcm))
	}
	if gotReq["voice"] != "ff_siwis" {
		t.Errorf("voice field = %v, want ff_siwis", gotReq["voice"])
	}
	if gotReq["input"] != "bonjour tout le monde" {
		t.Errorf("input field = %v", gotReq["input"])
	}
	if gotReq["response_format"] != "wav" {
		t.Errorf("response_format = %v, want wav", gotReq["response_format"])
	}
}

func TestProvider_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := kokoro.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "bonjour"); err == nil {
		t.Error("expected error on HTTP 500")
	}
}

func TestProvider_EmptyText(t *testing.T) {
	t.Parallel()
	p, err := kokoro.New("http://localhost:8880")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), ""); err == nil {
		t.Error("expected error for empty text")
	}
}

func TestNew_Invalid(t *testing.T) {
	t.Parallel()
	if _, err := kokoro.New(""); err == nil {
		t.Error("expected error for empty serverURL")
	}
	if _, err := kokoro.New("http://localhost:8880", kokoro.WithSpeed(-1)); err == nil {
		t.Error("expected error for invalid speed")
	}
}
