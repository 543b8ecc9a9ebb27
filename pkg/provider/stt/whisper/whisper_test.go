package whisper_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/parley/pkg/audio"
	"github.com/MrWong99/parley/pkg/provider/stt/whisper"
)

func TestProvider_Transcribe(t *testing.T) {
	t.Parallel()

	var gotLanguage string
	var gotFileName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotLanguage = r.FormValue("language")
		if fhs := r.MultipartForm.File["file"]; len(fhs) == 1 {
			gotFileName = fhs[0].Filename
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": "bonjour tout le monde"}`))
	}))
	defer srv.Close()

	p, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	wav := audio.EncodeWAV(make([]byte, 3200), 16000, 1)
	text, err := p.Transcribe(context.Background(), wav, "fr")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "bonjour tout le monde" {
		t.Errorf("text = %q", text)
	}
	if gotLanguage != "fr" {
		t.Errorf("language field = %q, want fr", gotLanguage)
	}
	if gotFileName != "audio.wav" {
		t.Errorf("file name = %q, want audio.wav", gotFileName)
	}
}

func TestProvider_DefaultLanguage(t *testing.T) {
	t.Parallel()

	var gotLanguage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(1 << 20)
		gotLanguage = r.FormValue("language")
		w.Write([]byte(`{"text": ""}`))
	}))
	defer srv.Close()

	p, err := whisper.New(srv.URL, whisper.WithLanguage("fr"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), nil, ""); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if gotLanguage != "fr" {
		t.Errorf("language field = %q, want provider default fr", gotLanguage)
	}
}

func TestProvider_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), nil, ""); err == nil {
		t.Error("expected error on HTTP 500")
	}
}

func TestNew_EmptyURL(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Error("expected error for empty serverURL")
	}
}
