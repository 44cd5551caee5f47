package wa

import "context"

// PresenceState is the chat presence indicator sent before slow operations.
type PresenceState string

const (
	PresenceComposing PresenceState = "composing"
	PresencePaused    PresenceState = "paused"
)

// Client is the narrow surface the pipeline consumes from the chat transport.
// The bridge implementation below is the production client; tests substitute
// fakes.
type Client interface {
	// Events returns the inbound batch stream. The channel is closed when the
	// client shuts down.
	Events() <-chan Event

	// SendText delivers a plain text reply into a conversation.
	SendText(ctx context.Context, jid, text string) error

	// SendPresence updates the bot's presence indicator in a conversation.
	SendPresence(ctx context.Context, jid string, state PresenceState) error

	// MarkRead acknowledges delivery of the given messages.
	MarkRead(ctx context.Context, keys []Key) error

	// Download fetches the raw media bytes referenced by a message.
	Download(ctx context.Context, msg Message) ([]byte, error)

	// GroupMetadata fetches current metadata for a group conversation.
	GroupMetadata(ctx context.Context, jid string) (*GroupInfo, error)
}
