package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/wapipe/internal/store"
)

// resolveThread returns the conversation's agent-thread binding, creating it
// on first use. A binding is permanent for the conversation's lifetime.
func (p *Pipeline) resolveThread(ctx context.Context, chatJID string) (*store.ThreadBinding, error) {
	binding, err := p.stores.Threads.Get(ctx, chatJID)
	if err != nil {
		return nil, fmt.Errorf("look up thread binding: %w", err)
	}
	if binding != nil {
		return binding, nil
	}

	assistants, err := p.agent.SearchAssistants(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("search assistants: %w", err)
	}
	if len(assistants) == 0 {
		return nil, fmt.Errorf("no assistants deployed")
	}

	threadID, err := p.agent.CreateThread(ctx)
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}

	binding = &store.ThreadBinding{
		ChatJID:     chatJID,
		ThreadID:    threadID,
		AssistantID: assistants[0].AssistantID,
	}
	if err := p.stores.Threads.Put(ctx, binding); err != nil {
		return nil, fmt.Errorf("persist thread binding: %w", err)
	}

	slog.Info("thread bound", "chat_jid", chatJID, "thread_id", threadID,
		"assistant_id", binding.AssistantID)
	return binding, nil
}
