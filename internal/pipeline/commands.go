package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/wapipe/internal/wa"
)

const (
	cmdClearHistory    = "CLEAR_HISTORY"
	cmdSetResponseTime = "SET_RESPONSE_TIME"
)

// interceptCommand recognizes chat commands. It reports handled=true when
// the message was a command, success or not; command messages are never
// persisted and never reach the coalescing queue.
func (p *Pipeline) interceptCommand(ctx context.Context, msg wa.Message) (handled bool, err error) {
	body := strings.TrimSpace(msg.Content.Body())

	switch {
	case body == cmdClearHistory:
		return true, p.clearHistory(ctx, msg.ChatJID)

	case strings.HasPrefix(body, cmdSetResponseTime+" "):
		return true, p.setResponseTime(ctx, msg.ChatJID, strings.TrimPrefix(body, cmdSetResponseTime+" "))

	case body == cmdSetResponseTime:
		// Command without an argument is still a command, just a bad one.
		p.reply(ctx, msg.ChatJID, "❌ Invalid syntax. Usage: SET_RESPONSE_TIME <milliseconds>")
		return true, nil
	}

	return false, nil
}

func (p *Pipeline) clearHistory(ctx context.Context, chatJID string) error {
	n, err := p.stores.Messages.DeleteByChat(ctx, chatJID)
	if err != nil {
		return fmt.Errorf("clear history: %w", err)
	}

	slog.Info("history cleared", "chat_jid", chatJID, "deleted", n)
	p.reply(ctx, chatJID, "✅ History cleared")
	return nil
}

func (p *Pipeline) setResponseTime(ctx context.Context, chatJID, arg string) error {
	delayMS, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || delayMS <= 0 {
		// User error, not a system error.
		p.reply(ctx, chatJID, "❌ Invalid syntax. Usage: SET_RESPONSE_TIME <milliseconds>")
		return nil
	}

	if err := p.stores.UserConfigs.SetResponseDelay(ctx, chatJID, delayMS); err != nil {
		return fmt.Errorf("set response time: %w", err)
	}

	slog.Info("response delay updated", "chat_jid", chatJID, "delay_ms", delayMS)
	p.reply(ctx, chatJID, fmt.Sprintf("✅ Response time set to %dms", delayMS))
	return nil
}

// reply sends a text back into the conversation, logging failures.
func (p *Pipeline) reply(ctx context.Context, chatJID, text string) {
	if err := p.client.SendText(ctx, chatJID, text); err != nil {
		slog.Warn("command reply failed", "chat_jid", chatJID, "error", err)
	}
}
