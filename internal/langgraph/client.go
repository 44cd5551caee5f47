// Package langgraph is a minimal client for the agent-platform REST API:
// assistant lookup, thread creation and blocking runs.
package langgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to a LangGraph deployment. Safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		// Runs block until the graph finishes; allow slow agent turns.
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Assistant is one deployed graph.
type Assistant struct {
	AssistantID string `json:"assistant_id"`
	GraphID     string `json:"graph_id"`
	Name        string `json:"name"`
}

// SearchAssistants lists deployed assistants, newest first.
func (c *Client) SearchAssistants(ctx context.Context, limit int) ([]Assistant, error) {
	var assistants []Assistant
	err := c.post(ctx, "/assistants/search", map[string]any{"limit": limit}, &assistants)
	if err != nil {
		return nil, fmt.Errorf("search assistants: %w", err)
	}
	return assistants, nil
}

// CreateThread creates a fresh conversation thread.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var thread struct {
		ThreadID string `json:"thread_id"`
	}
	if err := c.post(ctx, "/threads", map[string]any{}, &thread); err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	if thread.ThreadID == "" {
		return "", fmt.Errorf("create thread: empty thread id")
	}
	return thread.ThreadID, nil
}

// RunWait starts a run on the thread and blocks until the graph finishes,
// returning the text of the final assistant message.
func (c *Client) RunWait(ctx context.Context, threadID, assistantID, input string) (string, error) {
	payload := map[string]any{
		"assistant_id": assistantID,
		"input": map[string]any{
			"messages": []map[string]any{
				{"role": "user", "content": input},
			},
		},
	}

	var output struct {
		Messages []struct {
			Type    string          `json:"type"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
	}
	path := fmt.Sprintf("/threads/%s/runs/wait", threadID)
	if err := c.post(ctx, path, payload, &output); err != nil {
		return "", fmt.Errorf("run thread %s: %w", threadID, err)
	}

	for i := len(output.Messages) - 1; i >= 0; i-- {
		if output.Messages[i].Type != "ai" {
			continue
		}
		return decodeContent(output.Messages[i].Content), nil
	}
	return "", fmt.Errorf("run thread %s: no assistant message in output", threadID)
}

// decodeContent handles both plain-string and content-block message bodies.
func decodeContent(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var out string
		for _, b := range blocks {
			if b.Type == "text" || b.Type == "" {
				out += b.Text
			}
		}
		return out
	}
	return string(raw)
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("post %s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(detail))
	}

	if out != nil {
		if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}
