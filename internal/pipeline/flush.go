package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/wapipe/internal/wa"
	"github.com/nextlevelbuilder/wapipe/internal/webhook"
)

// Agent runs can take a while; bound the whole flush regardless.
const flushTimeout = 5 * time.Minute

// flush is the coalescer's target: one quiet-period batch per conversation.
// Once started it runs to completion independently; nothing cancels an
// in-flight flush.
func (p *Pipeline) flush(chatJID string, msgs []wa.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if wa.IsGroupJID(chatJID) && !p.batchRelevant(msgs) {
		slog.Debug("group batch not relevant, discarding",
			"chat_jid", chatJID, "count", len(msgs))
		return
	}

	// Best-effort typing indicator while the agent thinks.
	go func() {
		pctx, pcancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer pcancel()
		if err := p.client.SendPresence(pctx, chatJID, wa.PresenceComposing); err != nil {
			slog.Debug("presence update failed", "chat_jid", chatJID, "error", err)
		}
	}()

	binding, err := p.resolveThread(ctx, chatJID)
	if err != nil {
		slog.Error("thread resolution failed", "chat_jid", chatJID, "error", err)
		p.notifier.Error(ctx, "threads", err)
		return
	}

	history, err := p.stores.Messages.ListByChat(ctx, chatJID, p.cfg.ContextLength)
	if err != nil {
		slog.Error("context load failed", "chat_jid", chatJID, "error", err)
		return
	}
	rendered := renderMessages(history)

	// Webhook delivery is the independent downstream feed of the rendered
	// context; it goes out whether or not the agent run succeeds.
	defer p.deliverWebhook(ctx, chatJID, binding.ThreadID, rendered)

	reply, err := p.agent.RunWait(ctx, binding.ThreadID, binding.AssistantID, rendered)
	if err != nil {
		slog.Error("agent run failed", "chat_jid", chatJID,
			"thread_id", binding.ThreadID, "error", err)
		p.notifier.Error(ctx, "agent", err)
		return
	}

	if reply != "" {
		if err := p.client.SendText(ctx, chatJID, reply); err != nil {
			slog.Error("agent reply delivery failed", "chat_jid", chatJID, "error", err)
		}
	}
}

// batchRelevant applies the group relevance gate: any message carrying the
// trigger token (substring, case-sensitive), an @-tag of the bot's number,
// or an explicit bot mention qualifies the whole batch.
func (p *Pipeline) batchRelevant(msgs []wa.Message) bool {
	botTag := "@" + strings.TrimSuffix(p.cfg.BotJID, "@s.whatsapp.net")
	for _, msg := range msgs {
		body, caption := msg.Content.Body(), msg.Content.Caption
		if strings.Contains(body, p.cfg.TriggerToken) ||
			strings.Contains(caption, p.cfg.TriggerToken) {
			return true
		}
		if strings.Contains(body, botTag) || strings.Contains(caption, botTag) {
			return true
		}
		for _, mention := range msg.Content.Mentions {
			if wa.NormalizeJID(mention) == p.cfg.BotJID {
				return true
			}
		}
	}
	return false
}

func (p *Pipeline) deliverWebhook(ctx context.Context, chatJID, threadID, rendered string) {
	chat, err := p.stores.Chats.Get(ctx, chatJID)
	if err != nil {
		slog.Warn("chat lookup for webhook failed", "chat_jid", chatJID, "error", err)
	}

	payload := webhook.Payload{
		ChatJID:  chatJID,
		IsGroup:  wa.IsGroupJID(chatJID),
		ThreadID: threadID,
		Context:  rendered,
	}
	if chat != nil {
		payload.ChatName = chat.Name
	}

	if err := p.hook.Send(ctx, payload); err != nil {
		slog.Warn("webhook delivery failed", "chat_jid", chatJID, "error", err)
	}
}
