// Package tasks extracts actionable items from conversation content.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nextlevelbuilder/wapipe/internal/store"
)

const (
	extractModel     = anthropic.ModelClaudeSonnet4_5
	extractMaxTokens = 1024
)

const systemPrompt = `You extract actionable tasks from chat transcripts.
Respond with a JSON array only, no prose. Each element:
{"title": string, "description": string, "due_at": RFC3339 timestamp or null}.
Return [] when the transcript contains no actionable task.`

// Extractor derives tasks from a message plus its surrounding context.
type Extractor struct {
	complete func(ctx context.Context, prompt string) (string, error)
}

func NewExtractor(apiKey string) *Extractor {
	client := anthropic.NewClient(option.WithAuthToken(apiKey))
	return &Extractor{
		complete: func(ctx context.Context, prompt string) (string, error) {
			resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
				Model:     extractModel,
				MaxTokens: extractMaxTokens,
				System: []anthropic.TextBlockParam{
					{Text: systemPrompt},
				},
				Messages: []anthropic.MessageParam{
					anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
				},
			})
			if err != nil {
				return "", fmt.Errorf("task extraction call: %w", err)
			}

			var sb strings.Builder
			for _, block := range resp.Content {
				if block.Type == "text" {
					sb.WriteString(block.Text)
				}
			}
			return sb.String(), nil
		},
	}
}

// Extract returns the tasks found in msg, using the recent chat history as
// context. An empty result is normal for most messages.
func (e *Extractor) Extract(ctx context.Context, msg store.StoredMessage, history []store.StoredMessage) ([]store.Task, error) {
	var prompt strings.Builder
	prompt.WriteString("Recent conversation:\n")
	for _, h := range history {
		fmt.Fprintf(&prompt, "%s: %s\n", displayName(h), contentOf(h))
	}
	prompt.WriteString("\nNew message to analyze:\n")
	fmt.Fprintf(&prompt, "%s: %s\n", displayName(msg), contentOf(msg))

	raw, err := e.complete(ctx, prompt.String())
	if err != nil {
		return nil, err
	}

	parsed, err := parseTasks(raw)
	if err != nil {
		return nil, fmt.Errorf("parse extracted tasks: %w", err)
	}

	out := make([]store.Task, 0, len(parsed))
	for _, p := range parsed {
		if p.Title == "" {
			continue
		}
		task := store.Task{
			ChatJID:     msg.ChatJID,
			MessageID:   msg.ID,
			Title:       p.Title,
			Description: p.Description,
			Status:      store.TaskOpen,
		}
		if p.DueAt != "" {
			if due, err := time.Parse(time.RFC3339, p.DueAt); err == nil {
				task.DueAt = &due
			}
		}
		out = append(out, task)
	}
	return out, nil
}

type extractedTask struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	DueAt       string `json:"due_at"`
}

// parseTasks tolerates a fenced code block around the JSON array.
func parseTasks(raw string) ([]extractedTask, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
		raw = strings.TrimSpace(raw)
	}
	if raw == "" {
		return nil, nil
	}

	var tasks []extractedTask
	if err := json.Unmarshal([]byte(raw), &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func displayName(msg store.StoredMessage) string {
	if msg.FromMe {
		return "me"
	}
	if msg.PushName != "" {
		return msg.PushName
	}
	return msg.SenderJID
}

func contentOf(msg store.StoredMessage) string {
	if msg.IsMedia {
		return msg.ProcessResult
	}
	if msg.Body != "" {
		return msg.Body
	}
	return msg.ProcessResult
}
