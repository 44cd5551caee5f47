package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "note.ogg")
	if err := os.WriteFile(path, []byte("fake-ogg-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestElevenLabsTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/speech-to-text" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("xi-api-key"); got != "el-key" {
			t.Errorf("api key header = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("model_id"); got != "scribe_v1" {
			t.Errorf("model_id = %q", got)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("file part missing: %v", err)
		}
		w.Write([]byte(`{"text":"hello from voice note"}`))
	}))
	defer srv.Close()

	tr := NewElevenLabsTranscriber("el-key")
	tr.baseURL = srv.URL

	got, err := tr.Transcribe(context.Background(), writeTempAudio(t), "audio/ogg")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "hello from voice note" {
		t.Errorf("Transcribe = %q", got)
	}
}

func TestElevenLabsTranscribeUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	tr := NewElevenLabsTranscriber("bad-key")
	tr.baseURL = srv.URL

	if _, err := tr.Transcribe(context.Background(), writeTempAudio(t), "audio/ogg"); err == nil {
		t.Fatal("expected error on upstream failure")
	}
}

func TestDocumentParserParse(t *testing.T) {
	var polls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer llama-key" {
			t.Errorf("auth header = %q", got)
		}
		switch r.URL.Path {
		case "/api/parsing/upload":
			w.Write([]byte(`{"id":"job-7"}`))
		case "/api/parsing/job/job-7":
			polls++
			if polls < 2 {
				w.Write([]byte(`{"status":"PENDING"}`))
			} else {
				w.Write([]byte(`{"status":"SUCCESS"}`))
			}
		case "/api/parsing/job/job-7/result/markdown":
			w.Write([]byte(`{"markdown":"# Invoice\ntotal: 42"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewDocumentParser("llama-key")
	p.baseURL = srv.URL
	p.pollDelay = time.Millisecond

	path := filepath.Join(t.TempDir(), "invoice.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := p.Parse(context.Background(), path, "application/pdf", "invoice.pdf")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != "# Invoice\ntotal: 42" {
		t.Errorf("Parse = %q", got)
	}
	if polls < 2 {
		t.Errorf("expected at least 2 status polls, got %d", polls)
	}
}

func TestDocumentParserJobError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/parsing/upload":
			w.Write([]byte(`{"id":"job-9"}`))
		case "/api/parsing/job/job-9":
			w.Write([]byte(`{"status":"ERROR"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewDocumentParser("llama-key")
	p.baseURL = srv.URL
	p.pollDelay = time.Millisecond

	path := filepath.Join(t.TempDir(), "broken.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := p.Parse(context.Background(), path, "application/pdf", ""); err == nil {
		t.Fatal("expected error for failed parse job")
	}
}
