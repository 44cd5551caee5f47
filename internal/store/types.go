package store

import "time"

// StoredMessage is the persisted record derived from one inbound message.
// Media messages carry the processing result (description, transcript or
// parsed text) in ProcessResult; text messages carry their body verbatim.
type StoredMessage struct {
	ID            string              `json:"id"`
	ChatJID       string              `json:"chat_jid"`
	SenderJID     string              `json:"sender_jid"`
	FromMe        bool                `json:"from_me"`
	PushName      string              `json:"push_name,omitempty"`
	Timestamp     time.Time           `json:"timestamp"`
	MessageType   string              `json:"message_type"`
	MimeType      string              `json:"mime_type,omitempty"`
	FileName      string              `json:"file_name,omitempty"`
	Body          string              `json:"body,omitempty"`
	ProcessResult string              `json:"process_result,omitempty"`
	IsMedia       bool                `json:"is_media"`
	UpsertType    string              `json:"upsert_type"` // append or notify
	Reactions     map[string]Reaction `json:"reactions,omitempty"` // keyed by sender JID
	CreatedAt     time.Time           `json:"created_at"`
}

// Reaction is one sender's current reaction to a stored message.
type Reaction struct {
	Emoji     string    `json:"emoji"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatSummary is the per-conversation record, merge-upserted on every
// message. Group fields stay empty for direct chats.
type ChatSummary struct {
	JID            string    `json:"jid"`
	Name           string    `json:"name,omitempty"`
	Description    string    `json:"description,omitempty"`
	IsGroup        bool      `json:"is_group"`
	Participants   []string  `json:"participants,omitempty"`
	GroupCreatedAt time.Time `json:"group_created_at,omitempty"`
	LastMessageAt  time.Time `json:"last_message_at"`
	LastSenderJID  string    `json:"last_sender_jid,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ThreadBinding maps a conversation to its agent-service thread. Created
// once per chat and never rewritten.
type ThreadBinding struct {
	ChatJID     string    `json:"chat_jid"`
	ThreadID    string    `json:"thread_id"`
	AssistantID string    `json:"assistant_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserConfig holds per-chat tuning set through chat commands.
type UserConfig struct {
	ChatJID         string    `json:"chat_jid"`
	ResponseDelayMS int       `json:"response_delay_ms"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Task is an actionable item extracted from conversation content.
type Task struct {
	ID          string     `json:"id"`
	ChatJID     string     `json:"chat_jid"`
	MessageID   string     `json:"message_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Task statuses.
const (
	TaskOpen = "open"
	TaskDone = "done"
)
