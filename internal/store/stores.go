package store

import (
	"context"
	"time"
)

// Lookup methods return (nil, nil) when the record does not exist; a non-nil
// error always means the lookup itself failed.

// MessageStore persists processed messages keyed by (chat JID, message ID).
type MessageStore interface {
	Get(ctx context.Context, chatJID, id string) (*StoredMessage, error)
	Put(ctx context.Context, msg *StoredMessage) error

	// ApplyReaction upserts one sender's reaction on a stored message,
	// recording when it happened. An empty emoji removes the sender's
	// entry. Reacting to a message that was never stored is not an error.
	ApplyReaction(ctx context.Context, chatJID, targetID, senderJID, emoji string, ts time.Time) error

	// DeleteByChat removes every stored message of a conversation and
	// returns how many rows went away.
	DeleteByChat(ctx context.Context, chatJID string) (int64, error)

	// ListByChat returns up to limit most recent messages of a chat in
	// chronological order (oldest first).
	ListByChat(ctx context.Context, chatJID string, limit int) ([]StoredMessage, error)
}

// ChatStore persists conversation summaries.
type ChatStore interface {
	Get(ctx context.Context, jid string) (*ChatSummary, error)

	// Upsert merges the given summary into the existing record. Zero-value
	// fields of the incoming summary never overwrite stored data.
	Upsert(ctx context.Context, chat *ChatSummary) error
}

// ThreadStore persists chat-to-thread bindings.
type ThreadStore interface {
	Get(ctx context.Context, chatJID string) (*ThreadBinding, error)
	Put(ctx context.Context, binding *ThreadBinding) error
}

// UserConfigStore persists per-chat tuning.
type UserConfigStore interface {
	Get(ctx context.Context, chatJID string) (*UserConfig, error)
	SetResponseDelay(ctx context.Context, chatJID string, delayMS int) error
}

// TaskStore persists extracted tasks.
type TaskStore interface {
	Put(ctx context.Context, task *Task) error
	ListByChat(ctx context.Context, chatJID string, limit int) ([]Task, error)
}

// Stores aggregates every store the pipeline needs.
type Stores struct {
	Messages    MessageStore
	Chats       ChatStore
	Threads     ThreadStore
	UserConfigs UserConfigStore
	Tasks       TaskStore
}
