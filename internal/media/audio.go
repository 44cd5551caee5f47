package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const defaultElevenLabsURL = "https://api.elevenlabs.io"

// ElevenLabsTranscriber transcribes audio via the ElevenLabs speech-to-text
// API.
type ElevenLabsTranscriber struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func NewElevenLabsTranscriber(apiKey string) *ElevenLabsTranscriber {
	return &ElevenLabsTranscriber{
		apiKey:  apiKey,
		baseURL: defaultElevenLabsURL,
		http:    &http.Client{Timeout: 120 * time.Second},
	}
}

func (t *ElevenLabsTranscriber) Transcribe(ctx context.Context, path, mimeType string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("copy audio content: %w", err)
	}
	if err := writer.WriteField("model_id", "scribe_v1"); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/speech-to-text", &body)
	if err != nil {
		return "", fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("xi-api-key", t.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := t.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("transcription failed: status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	return result.Text, nil
}

// WhisperTranscriber transcribes audio through the OpenAI API.
type WhisperTranscriber struct {
	client *openai.Client
}

func NewWhisperTranscriber(apiKey string) *WhisperTranscriber {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &WhisperTranscriber{client: &client}
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, path, mimeType string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	resp, err := t.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  f,
		Model: openai.AudioModelWhisper1,
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription: %w", err)
	}
	return resp.Text, nil
}

// FallbackTranscriber tries a primary transcriber and falls back to a
// secondary one when the primary fails. Either side may be nil.
type FallbackTranscriber struct {
	primary   transcriber
	secondary transcriber
}

func NewFallbackTranscriber(primary, secondary transcriber) *FallbackTranscriber {
	return &FallbackTranscriber{primary: primary, secondary: secondary}
}

func (t *FallbackTranscriber) Transcribe(ctx context.Context, path, mimeType string) (string, error) {
	if t.primary != nil {
		text, err := t.primary.Transcribe(ctx, path, mimeType)
		if err == nil {
			return text, nil
		}
		if t.secondary == nil {
			return "", err
		}
		slog.Warn("primary transcriber failed, falling back", "error", err)
	}
	if t.secondary == nil {
		return "", fmt.Errorf("no transcriber configured")
	}
	return t.secondary.Transcribe(ctx, path, mimeType)
}
