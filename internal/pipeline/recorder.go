package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/wapipe/internal/store"
	"github.com/nextlevelbuilder/wapipe/internal/wa"
)

// record normalizes the inbound message into its persisted form. All fields
// except the reaction map are write-once.
func (p *Pipeline) record(ctx context.Context, msg wa.Message, surrogate string) error {
	stored := &store.StoredMessage{
		ID:            msg.ID,
		ChatJID:       msg.ChatJID,
		SenderJID:     msg.SenderJID,
		FromMe:        msg.FromMe,
		PushName:      msg.PushName,
		Timestamp:     msg.Time(),
		MessageType:   string(msg.Content.Kind),
		MimeType:      msg.Content.MimeType,
		FileName:      msg.Content.FileName,
		Body:          bodyOf(msg),
		ProcessResult: surrogate,
		IsMedia:       msg.Content.IsMedia(),
		UpsertType:    string(msg.BatchKind),
		CreatedAt:     time.Now().UTC(),
	}

	if err := p.stores.Messages.Put(ctx, stored); err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	return nil
}

// bodyOf picks the user-authored text: the plain body for text kinds, the
// caption for media kinds.
func bodyOf(msg wa.Message) string {
	if body := msg.Content.Body(); body != "" {
		return body
	}
	return msg.Content.Caption
}

// applyReaction folds a reaction event into its target's reaction map. A
// missing target is a no-op; history sync may deliver reactions before the
// messages they point at.
func (p *Pipeline) applyReaction(ctx context.Context, msg wa.Message) error {
	reaction := msg.Content.Reaction
	if reaction == nil || reaction.TargetID == "" {
		slog.Warn("reaction without target", "message_id", msg.ID)
		return nil
	}

	target, err := p.stores.Messages.Get(ctx, msg.ChatJID, reaction.TargetID)
	if err != nil {
		return fmt.Errorf("look up reaction target: %w", err)
	}
	if target == nil {
		slog.Debug("reaction target not stored, ignoring",
			"target_id", reaction.TargetID, "chat_jid", msg.ChatJID)
		return nil
	}

	if err := p.stores.Messages.ApplyReaction(ctx, msg.ChatJID, reaction.TargetID, msg.SenderJID, reaction.Emoji, msg.Time()); err != nil {
		return fmt.Errorf("apply reaction: %w", err)
	}
	return nil
}
