package pipeline

import (
	"context"

	"github.com/nextlevelbuilder/wapipe/internal/store"
)

// Read accessors for the hosting process and the HTTP surface.

// LoadMessage returns one stored message, or nil when absent.
func (p *Pipeline) LoadMessage(ctx context.Context, chatJID, id string) (*store.StoredMessage, error) {
	return p.stores.Messages.Get(ctx, chatJID, id)
}

// LoadMessages returns up to limit recent messages of a chat, oldest first.
func (p *Pipeline) LoadMessages(ctx context.Context, chatJID string, limit int) ([]store.StoredMessage, error) {
	return p.stores.Messages.ListByChat(ctx, chatJID, limit)
}

// LoadChat returns the conversation summary, or nil when absent.
func (p *Pipeline) LoadChat(ctx context.Context, chatJID string) (*store.ChatSummary, error) {
	return p.stores.Chats.Get(ctx, chatJID)
}
