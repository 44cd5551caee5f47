// Package notify delivers operator notifications over Telegram.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// Telegram caps messages at 4096 characters.
const maxMessageLen = 4096

// Notifier sends operator-facing notifications. The zero-value Notifier is
// disabled and drops everything silently.
type Notifier struct {
	bot      *telego.Bot
	chatID   int64
	clientID string
}

// NewNotifier creates a Telegram notifier. An empty token yields a disabled
// notifier rather than an error so deployments without Telegram still run.
func NewNotifier(token string, chatID int64, clientID string) (*Notifier, error) {
	if token == "" || chatID == 0 {
		slog.Info("telegram notifications disabled")
		return &Notifier{}, nil
	}

	bot, err := telego.NewBot(token, telego.WithDefaultLogger(false, true))
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Notifier{bot: bot, chatID: chatID, clientID: clientID}, nil
}

// Notify sends a text notification. Failures are logged, never propagated;
// notifications are strictly best effort.
func (n *Notifier) Notify(ctx context.Context, text string) {
	if n.bot == nil {
		return
	}

	msg := fmt.Sprintf("[%s] %s", n.clientID, text)
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen]
	}

	if _, err := n.bot.SendMessage(ctx, tu.Message(tu.ID(n.chatID), msg)); err != nil {
		slog.Warn("telegram notification failed", "error", err)
	}
}

// Error reports a failure with its component context.
func (n *Notifier) Error(ctx context.Context, component string, err error) {
	n.Notify(ctx, fmt.Sprintf("⚠️ %s: %v", component, err))
}

// Photo sends an image file, used for pairing QR codes. Best effort.
func (n *Notifier) Photo(ctx context.Context, path, caption string) {
	if n.bot == nil {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		slog.Warn("open photo for notification failed", "path", path, "error", err)
		return
	}
	defer f.Close()

	photo := tu.Photo(tu.ID(n.chatID), tu.FileFromReader(f, "qr.png"))
	photo.Caption = fmt.Sprintf("[%s] %s", n.clientID, caption)

	if _, err := n.bot.SendPhoto(ctx, photo); err != nil {
		slog.Warn("telegram photo notification failed", "error", err)
	}
}
