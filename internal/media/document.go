package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const defaultLlamaParseURL = "https://api.cloud.llamaindex.ai"

const (
	parsePollAttempts = 60
	parsePollDelay    = 2 * time.Second
)

// DocumentParser extracts text from documents through the LlamaParse API:
// upload, poll the parse job, fetch the markdown result.
type DocumentParser struct {
	apiKey  string
	baseURL string
	http    *http.Client

	pollAttempts int
	pollDelay    time.Duration
}

func NewDocumentParser(apiKey string) *DocumentParser {
	return &DocumentParser{
		apiKey:       apiKey,
		baseURL:      defaultLlamaParseURL,
		http:         &http.Client{Timeout: 60 * time.Second},
		pollAttempts: parsePollAttempts,
		pollDelay:    parsePollDelay,
	}
}

func (p *DocumentParser) Parse(ctx context.Context, path, mimeType, fileName string) (string, error) {
	jobID, err := p.upload(ctx, path, fileName)
	if err != nil {
		return "", err
	}

	if err := p.waitDone(ctx, jobID); err != nil {
		return "", err
	}

	return p.fetchMarkdown(ctx, jobID)
}

func (p *DocumentParser) upload(ctx context.Context, path, fileName string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	if fileName == "" {
		fileName = filepath.Base(path)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("copy document content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/api/parsing/upload", &body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("upload document: status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("upload document: no job id in response")
	}
	return result.ID, nil
}

func (p *DocumentParser) waitDone(ctx context.Context, jobID string) error {
	for attempt := 0; attempt < p.pollAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			fmt.Sprintf("%s/api/parsing/job/%s", p.baseURL, jobID), nil)
		if err != nil {
			return fmt.Errorf("build job status request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+p.apiKey)

		resp, err := p.http.Do(req)
		if err != nil {
			return fmt.Errorf("poll parse job: %w", err)
		}

		var status struct {
			Status string `json:"status"`
		}
		err = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&status)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode job status: %w", err)
		}

		switch status.Status {
		case "SUCCESS":
			return nil
		case "ERROR", "CANCELED":
			return fmt.Errorf("parse job %s ended with status %s", jobID, status.Status)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.pollDelay):
		}
	}
	return fmt.Errorf("parse job %s not done after %d attempts", jobID, p.pollAttempts)
}

func (p *DocumentParser) fetchMarkdown(ctx context.Context, jobID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/parsing/job/%s/result/markdown", p.baseURL, jobID), nil)
	if err != nil {
		return "", fmt.Errorf("build result request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch parse result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch parse result: status %d", resp.StatusCode)
	}

	var result struct {
		Markdown string `json:"markdown"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&result); err != nil {
		return "", fmt.Errorf("decode parse result: %w", err)
	}
	return result.Markdown, nil
}
