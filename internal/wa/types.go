package wa

import (
	"strings"
	"time"
)

// EventKind is the delivery-batch kind reported by the transport.
type EventKind string

const (
	EventAppend EventKind = "append" // historical sync
	EventNotify EventKind = "notify" // live delivery
)

// ContentKind tags the decoded content union. The values mirror the bridge's
// wire vocabulary so raw events stay greppable against bridge logs.
type ContentKind string

const (
	KindText                ContentKind = "conversation"
	KindExtendedText        ContentKind = "extendedTextMessage"
	KindImage               ContentKind = "imageMessage"
	KindAudio               ContentKind = "audioMessage"
	KindVideo               ContentKind = "videoMessage"
	KindDocument            ContentKind = "documentMessage"
	KindDocumentWithCaption ContentKind = "documentWithCaptionMessage"
	KindSticker             ContentKind = "stickerMessage"
	KindReaction            ContentKind = "reactionMessage"
	KindPollCreate          ContentKind = "pollCreationMessage"
	KindPollUpdate          ContentKind = "pollUpdateMessage"
	KindUnknown             ContentKind = "unknown"
)

// Reaction is a reaction event targeting a previously delivered message.
// An empty Emoji means the sender retracted their reaction.
type Reaction struct {
	TargetID string `json:"target_id"`
	Emoji    string `json:"emoji"`
}

// Content is the message content union, decoded once at the transport
// boundary. Exactly the fields relevant to Kind are populated.
type Content struct {
	Kind     ContentKind `json:"kind"`
	Text     string      `json:"text,omitempty"`
	Caption  string      `json:"caption,omitempty"`
	MimeType string      `json:"mime_type,omitempty"`
	FileName string      `json:"file_name,omitempty"`
	MediaRef string      `json:"media_ref,omitempty"` // opaque bridge handle for downloads
	Mentions []string    `json:"mentions,omitempty"`
	Reaction *Reaction   `json:"reaction,omitempty"`
}

// IsMedia reports whether the content carries downloadable media bytes.
func (c Content) IsMedia() bool {
	switch c.Kind {
	case KindImage, KindAudio, KindVideo, KindDocument, KindDocumentWithCaption, KindSticker:
		return true
	}
	return false
}

// Empty reports whether there is nothing to process: no text, no media,
// no reaction.
func (c Content) Empty() bool {
	return c.Kind == KindUnknown && c.Text == "" && c.MediaRef == "" && c.Reaction == nil
}

// Body returns the plain-text body for text kinds, empty otherwise.
func (c Content) Body() string {
	switch c.Kind {
	case KindText, KindExtendedText:
		return c.Text
	}
	return ""
}

// Message is one inbound transport event. Immutable once received; the
// pipeline only derives new records from it.
type Message struct {
	ID        string    `json:"id"`
	ChatJID   string    `json:"chat_jid"`
	SenderJID string    `json:"sender_jid"`
	FromMe    bool      `json:"from_me"`
	PushName  string    `json:"push_name,omitempty"`
	Timestamp int64     `json:"timestamp"` // unix seconds, transport native
	Content   Content   `json:"content"`
	BatchKind EventKind `json:"-"` // stamped from the enclosing event
}

// Key identifies a message at the transport for read receipts.
type Key struct {
	ID      string `json:"id"`
	ChatJID string `json:"chat_jid"`
	FromMe  bool   `json:"from_me"`
}

// Key returns the transport key for m.
func (m Message) Key() Key {
	return Key{ID: m.ID, ChatJID: m.ChatJID, FromMe: m.FromMe}
}

// Time converts the transport's unix-seconds timestamp to a time.Time.
func (m Message) Time() time.Time {
	return time.Unix(m.Timestamp, 0).UTC()
}

// Event is one inbound batch of messages.
type Event struct {
	Kind     EventKind `json:"kind"`
	Messages []Message `json:"messages"`
}

// GroupInfo is the group metadata snapshot exposed by the transport.
type GroupInfo struct {
	JID          string    `json:"jid"`
	Subject      string    `json:"subject"`
	Description  string    `json:"description,omitempty"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsGroupJID reports whether a JID addresses a group conversation.
// WhatsApp group JIDs end in "@g.us".
func IsGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@g.us")
}

// NormalizeJID strips the device suffix from a user JID
// ("4915123:17@s.whatsapp.net" → "4915123@s.whatsapp.net").
// Group JIDs pass through unchanged.
func NormalizeJID(jid string) string {
	if IsGroupJID(jid) {
		return jid
	}
	at := strings.LastIndex(jid, "@")
	if at < 0 {
		return jid
	}
	user, domain := jid[:at], jid[at:]
	if colon := strings.Index(user, ":"); colon >= 0 {
		user = user[:colon]
	}
	return user + domain
}
