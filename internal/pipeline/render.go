package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nextlevelbuilder/wapipe/internal/store"
)

// renderMessages formats stored messages into the plain-text transcript fed
// to the agent and the downstream webhook. Oldest first, one line per
// message, reactions appended inline.
func renderMessages(msgs []store.StoredMessage) string {
	var sb strings.Builder
	for _, msg := range msgs {
		fmt.Fprintf(&sb, "[%s] %s: %s",
			msg.Timestamp.Format("2006-01-02 15:04"),
			senderLabel(msg), renderContent(msg))

		if len(msg.Reactions) > 0 {
			sb.WriteString(" (reactions: ")
			sb.WriteString(renderReactions(msg.Reactions))
			sb.WriteString(")")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func senderLabel(msg store.StoredMessage) string {
	if msg.FromMe {
		return "me"
	}
	if msg.PushName != "" {
		return msg.PushName
	}
	return msg.SenderJID
}

func renderContent(msg store.StoredMessage) string {
	if !msg.IsMedia {
		if msg.Body != "" {
			return msg.Body
		}
		return "(empty)"
	}

	label := mediaLabel(msg.MessageType)
	var parts []string
	if msg.ProcessResult != "" {
		parts = append(parts, msg.ProcessResult)
	} else {
		parts = append(parts, "unprocessed")
	}
	if msg.Body != "" {
		parts = append(parts, "caption: "+msg.Body)
	}
	return fmt.Sprintf("[%s: %s]", label, strings.Join(parts, "; "))
}

func mediaLabel(messageType string) string {
	switch messageType {
	case "imageMessage":
		return "image"
	case "stickerMessage":
		return "sticker"
	case "audioMessage":
		return "audio"
	case "videoMessage":
		return "video"
	case "documentMessage", "documentWithCaptionMessage":
		return "document"
	}
	return "media"
}

func renderReactions(reactions map[string]store.Reaction) string {
	// Deterministic order keeps transcripts stable for the same state.
	parts := make([]string, 0, len(reactions))
	for _, sender := range sortedKeys(reactions) {
		parts = append(parts, fmt.Sprintf("%s %s", reactions[sender].Emoji, sender))
	}
	return strings.Join(parts, ", ")
}

func sortedKeys(m map[string]store.Reaction) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
