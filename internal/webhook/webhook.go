// Package webhook delivers coalesced conversation context to the downstream
// consumer.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Payload is one delivery: a conversation identifier plus the rendered
// message context.
type Payload struct {
	ChatJID  string `json:"chat_jid"`
	ChatName string `json:"chat_name,omitempty"`
	IsGroup  bool   `json:"is_group"`
	ThreadID string `json:"thread_id,omitempty"`
	Context  string `json:"context"`
	SentAt   int64  `json:"sent_at"`
}

// Sender posts payloads to the configured webhook.
type Sender struct {
	url     string
	authKey string
	http    *http.Client
}

func NewSender(url, authKey string) *Sender {
	return &Sender{
		url:     url,
		authKey: authKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *Sender) Send(ctx context.Context, payload Payload) error {
	if payload.SentAt == 0 {
		payload.SentAt = time.Now().Unix()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.authKey)

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post webhook: status %d", resp.StatusCode)
	}
	return nil
}
